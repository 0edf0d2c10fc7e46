// Package intake turns decoded relay frames into envelopes the session may
// receive.
package intake

import (
	"skirmish/server/internal/action"
	"skirmish/server/internal/net/proto"
)

// Reject reasons reported back to the sending peer.
const (
	RejectNotAction = "not_action"
	RejectInboxFull = "inbox_full"
	RejectSpoofed   = "spoofed_identity"
)

// Sender is the authenticated connection an envelope arrived on.
type Sender struct {
	Peer  action.PeerID
	User  action.UserID
	Scope action.ScopeID
}

// Stager accepts envelopes for the next tick.
type Stager interface {
	Enqueue(peer action.PeerID, env action.Envelope) bool
}

// StageRemote stamps msg with the sender's authenticated identity and
// stages it. Frames claiming a different peer are refused; an empty claim
// is filled in.
func StageRemote(stager Stager, sender Sender, msg proto.Message) (action.Envelope, bool, string) {
	if msg.Type != proto.TypeAction {
		return action.Envelope{}, false, RejectNotAction
	}
	env := msg.Envelope
	if env.Peer != "" && env.Peer != sender.Peer {
		return action.Envelope{}, false, RejectSpoofed
	}
	env.Peer = sender.Peer
	env.User = sender.User
	env.Origin = action.Remote{Peer: sender.Peer, Scope: sender.Scope}
	if !stager.Enqueue(sender.Peer, env) {
		return env, false, RejectInboxFull
	}
	return env, true, ""
}
