package lifecycle

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventPeerConnected is emitted when a peer link is established.
	EventPeerConnected logging.EventType = "lifecycle.peer_connected"
	// EventPeerDisconnected is emitted when a peer link closes.
	EventPeerDisconnected logging.EventType = "lifecycle.peer_disconnected"
	// EventSessionStarted is emitted once the session container is ready.
	EventSessionStarted logging.EventType = "lifecycle.session_started"
	// EventSessionClosed is emitted when the session is torn down.
	EventSessionClosed logging.EventType = "lifecycle.session_closed"
)

// PeerPayload captures the identity carried by a peer link.
type PeerPayload struct {
	UserID string `json:"userId,omitempty"`
	Reason string `json:"reason,omitempty"`
	Cached int    `json:"cached,omitempty"`
}

// SessionPayload captures session-level metadata.
type SessionPayload struct {
	SessionID string `json:"sessionId"`
	HostPeer  string `json:"hostPeer,omitempty"`
}

// PeerConnected publishes a peer connection event.
func PeerConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerPayload, extra map[string]any) {
	publish(ctx, pub, EventPeerConnected, tick, actor, payload, extra)
}

// PeerDisconnected publishes a peer disconnect event.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerPayload, extra map[string]any) {
	publish(ctx, pub, EventPeerDisconnected, tick, actor, payload, extra)
}

// SessionStarted publishes a session start event.
func SessionStarted(ctx context.Context, pub logging.Publisher, tick uint64, payload SessionPayload) {
	publish(ctx, pub, EventSessionStarted, tick, logging.EntityRef{ID: payload.SessionID, Kind: logging.EntityKindSession}, payload, nil)
}

// SessionClosed publishes a session close event.
func SessionClosed(ctx context.Context, pub logging.Publisher, tick uint64, payload SessionPayload) {
	publish(ctx, pub, EventSessionClosed, tick, logging.EntityRef{ID: payload.SessionID, Kind: logging.EntityKindSession}, payload, nil)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
