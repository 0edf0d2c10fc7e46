// Package action implements the typed, versioned action bus that carries
// every gameplay fact through the session. Payloads are registered per kind
// in a Catalog, validated on ingress, stamped into Envelopes and delivered
// synchronously to subscribers in dispatch order.
package action

// Kind names a registered action type.
type Kind string

// Topic controls replication scope.
type Topic string

const (
	// TopicWorld envelopes are replicated to every peer in the session.
	TopicWorld Topic = "world"
	// TopicLocal envelopes never leave the process.
	TopicLocal Topic = "local"
)

// PeerID identifies a network participant.
type PeerID string

// UserID identifies a player. One peer controls one user.
type UserID string

// ScopeID identifies the replication scope an envelope belongs to.
type ScopeID string

// Payload is implemented by every registered action payload. Payloads are
// plain value structs; the struct type is the payload schema.
type Payload interface {
	ActionKind() Kind
}

// Identity is the local participant the bus stamps onto dispatched
// envelopes.
type Identity struct {
	Peer  PeerID
	User  UserID
	Scope ScopeID
}
