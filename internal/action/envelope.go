package action

import "skirmish/server/internal/clock"

// Envelope is a stamped action. Envelopes are values and are never mutated
// after delivery begins.
type Envelope struct {
	Seq     uint64
	Kind    Kind
	Version int
	Payload Payload
	Origin  Origin
	Peer    PeerID
	User    UserID
	Topic   Topic
	Time    clock.Millis
	Tick    uint64
	Cached  bool
}

// Remote returns the remote origin when the envelope was received from a
// peer.
func (e Envelope) Remote() (Remote, bool) {
	remote, ok := e.Origin.(Remote)
	return remote, ok
}

// IsLocal reports whether the envelope was dispatched in this process.
func (e Envelope) IsLocal() bool {
	return IsLocal(e.Origin)
}

// PayloadAs extracts the typed payload of an envelope.
func PayloadAs[P Payload](env Envelope) (P, bool) {
	p, ok := env.Payload.(P)
	return p, ok
}
