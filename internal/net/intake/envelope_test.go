package intake

import (
	"testing"

	"skirmish/server/internal/action"
	"skirmish/server/internal/net/proto"
	"skirmish/server/internal/protocol"
)

type fakeStager struct {
	accept bool
	staged []action.Envelope
}

func (f *fakeStager) Enqueue(_ action.PeerID, env action.Envelope) bool {
	f.staged = append(f.staged, env)
	return f.accept
}

var sender = Sender{Peer: "peer-a", User: "alice", Scope: "match"}

func respawnFrame(peer action.PeerID, user action.UserID) proto.Message {
	return proto.Message{Type: proto.TypeAction, Envelope: action.Envelope{
		Kind:    protocol.KindRespawn,
		Version: 1,
		Payload: protocol.Respawn{UserID: "alice"},
		Origin:  action.Remote{Peer: peer, Scope: "elsewhere"},
		Peer:    peer,
		User:    user,
	}}
}

func TestStageRemoteStampsAuthenticatedIdentity(t *testing.T) {
	stager := &fakeStager{accept: true}
	env, ok, reason := StageRemote(stager, sender, respawnFrame("", "mallory"))
	if !ok || reason != "" {
		t.Fatalf("expected envelope staged, got reason %q", reason)
	}
	if env.Peer != "peer-a" || env.User != "alice" {
		t.Fatalf("expected sender identity, got peer=%s user=%s", env.Peer, env.User)
	}
	origin, isRemote := env.Origin.(action.Remote)
	if !isRemote || origin.Peer != "peer-a" || origin.Scope != "match" {
		t.Fatalf("unexpected origin %#v", env.Origin)
	}
	if len(stager.staged) != 1 || stager.staged[0].User != "alice" {
		t.Fatalf("expected stamped envelope staged, got %+v", stager.staged)
	}
}

func TestStageRemoteRejections(t *testing.T) {
	stager := &fakeStager{accept: true}
	if _, ok, reason := StageRemote(stager, sender, respawnFrame("peer-b", "alice")); ok || reason != RejectSpoofed {
		t.Fatalf("expected spoofed peer to be refused, got ok=%v reason=%q", ok, reason)
	}
	if _, ok, reason := StageRemote(stager, sender, proto.Message{Type: proto.TypeWelcome}); ok || reason != RejectNotAction {
		t.Fatalf("expected non-action frame to be refused, got ok=%v reason=%q", ok, reason)
	}
	if len(stager.staged) != 0 {
		t.Fatalf("refused frames must not be staged")
	}

	full := &fakeStager{accept: false}
	if _, ok, reason := StageRemote(full, sender, respawnFrame("peer-a", "alice")); ok || reason != RejectInboxFull {
		t.Fatalf("expected full inbox, got ok=%v reason=%q", ok, reason)
	}
}
