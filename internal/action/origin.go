package action

// Origin records where an envelope came from. It is either Local or Remote.
type Origin interface {
	isOrigin()
}

// Local marks envelopes dispatched inside this process.
type Local struct{}

// Remote marks envelopes received from a peer within a replication scope.
type Remote struct {
	Peer  PeerID
	Scope ScopeID
}

func (Local) isOrigin()  {}
func (Remote) isOrigin() {}

// IsLocal reports whether the origin is Local. A nil origin is not local.
func IsLocal(origin Origin) bool {
	_, ok := origin.(Local)
	return ok
}
