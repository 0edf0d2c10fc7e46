package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"skirmish/server/internal/action"
	"skirmish/server/internal/auth"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/net/proto"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/session"
)

type avatars map[protocol.EntityID]protocol.UserID

func (a avatars) Exists(id protocol.EntityID) bool {
	_, ok := a[id]
	return ok
}

func (a avatars) AvatarOf(user protocol.UserID) (protocol.EntityID, bool) {
	for id, owner := range a {
		if owner == user {
			return id, true
		}
	}
	return "", false
}

func (a avatars) IsAvatar(id protocol.EntityID) bool { return a.Exists(id) }

func (a avatars) NetworkOwner(id protocol.EntityID) (protocol.UserID, bool) {
	owner, ok := a[id]
	return owner, ok
}

var arena = avatars{"avatar:alice": "alice", "avatar:bob": "bob"}

type host struct {
	url     string
	session *session.Session
	tokens  *auth.Tokens
	relay   *Relay
}

func startHost(t *testing.T) *host {
	t.Helper()
	tokens, err := auth.NewTokens(auth.Config{Secret: []byte("relay-test-secret-0123456789")})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	sess, err := session.New(session.Config{
		Identity: action.Identity{Peer: "server", Scope: "match"},
		Scope:    authority.Scope{ID: "match", Host: "server"},
		Entities: arena,
		TickRate: 100,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	relay, err := NewRelay(RelayConfig{Session: sess, Tokens: tokens})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	srv := httptest.NewServer(relay)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sess.Run(ctx)
	}()
	t.Cleanup(func() {
		relay.Close()
		srv.Close()
		cancel()
		<-stopped
		sess.Close()
	})
	return &host{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		session: sess,
		tokens:  tokens,
		relay:   relay,
	}
}

func (h *host) token(t *testing.T, user action.UserID) string {
	t.Helper()
	token, err := h.tokens.Issue(user, strings.ToUpper(string(user)), "match")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

type mirror struct {
	link    *Link
	session *session.Session
}

func join(t *testing.T, h *host, user action.UserID, encoding proto.Encoding) *mirror {
	t.Helper()
	catalog, err := protocol.NewCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	link, err := Dial(ctx, LinkConfig{URL: h.url, Token: h.token(t, user), Encoding: encoding, Codec: proto.NewCodec(catalog)})
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	welcome := link.Welcome()
	if welcome.User != user || welcome.Host != "server" || welcome.Scope != "match" || welcome.Peer == "" {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
	sess, err := session.New(session.Config{
		Identity: link.Identity(),
		Scope:    authority.Scope{ID: welcome.Scope, Host: welcome.Host},
		Entities: arena,
	})
	if err != nil {
		t.Fatalf("mirror session: %v", err)
	}
	if err := link.Attach(sess); err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(func() {
		link.Close()
		sess.Close()
	})
	return &mirror{link: link, session: sess}
}

func eventually(t *testing.T, what string, cond func() bool, mirrors ...*mirror) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range mirrors {
			m.session.Step(context.Background(), 10*time.Millisecond)
		}
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (m *mirror) health(user action.UserID) (float64, bool) {
	record, ok := m.session.Store().Health(user)
	return record.Health, ok
}

func TestRelayReplicatesJoinsAndHostResolvedDamage(t *testing.T) {
	h := startHost(t)
	alice := join(t, h, "alice", proto.JSON)
	bob := join(t, h, "bob", proto.MsgPack)

	eventually(t, "both joins on both mirrors", func() bool {
		for _, m := range []*mirror{alice, bob} {
			for _, user := range []action.UserID{"alice", "bob"} {
				if _, ok := m.health(user); !ok {
					return false
				}
			}
		}
		return true
	}, alice, bob)

	if !alice.session.Post(protocol.FireWeapon{
		Weapon: protocol.AssaultRifle,
		Hits:   []protocol.Hit{{TargetID: "avatar:bob", IsPlayer: true, Damage: 30}},
	}) {
		t.Fatalf("expected fire report staged")
	}

	eventually(t, "damage on both mirrors", func() bool {
		a, _ := alice.health("bob")
		b, _ := bob.health("bob")
		return a == 70 && b == 70
	}, alice, bob)

	if health, _ := alice.health("alice"); health != 100 {
		t.Fatalf("expected shooter untouched, got %v", health)
	}
	if h.relay.Peers() != 2 {
		t.Fatalf("expected two peers, got %d", h.relay.Peers())
	}
}

func TestRelayKeepsUserWhileAnotherSocketRemains(t *testing.T) {
	h := startHost(t)
	first := join(t, h, "alice", proto.JSON)
	second := join(t, h, "alice", proto.JSON)

	hostHas := func(user action.UserID) bool {
		_, ok := h.session.Diagnostics().Health[user]
		return ok
	}
	eventually(t, "alice joined on the host", func() bool { return hostHas("alice") && h.relay.Peers() == 2 }, first, second)

	first.link.Close()
	eventually(t, "stale socket unregistered", func() bool { return h.relay.Peers() == 1 }, second)
	time.Sleep(100 * time.Millisecond)
	if !hostHas("alice") {
		t.Fatalf("closing a stale socket must not remove a connected user")
	}

	second.link.Close()
	eventually(t, "alice left on the host", func() bool { return !hostHas("alice") })
}

func TestRelayRefusesInvalidToken(t *testing.T) {
	h := startHost(t)
	catalog, err := protocol.NewCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Dial(ctx, LinkConfig{URL: h.url, Token: "not-a-token", Codec: proto.NewCodec(catalog)}); err == nil {
		t.Fatalf("expected dial with a bad token to fail")
	}
	if h.relay.Peers() != 0 {
		t.Fatalf("expected no peers registered")
	}
}

func TestRelayRejectsMalformedFrames(t *testing.T) {
	h := startHost(t)
	conn, _, err := websocket.DefaultDialer.Dial(h.url+"?token="+h.token(t, "alice"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	catalog, err := protocol.NewCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	codec := proto.NewCodec(catalog)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, data, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read welcome: %v", err)
	} else if msg, err := codec.Decode(proto.JSON, data); err != nil || msg.Type != proto.TypeWelcome {
		t.Fatalf("expected welcome, got %+v (%v)", msg, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"ver":1,"type":"action","kind":"weapon.reload","payload":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("expected a reject frame: %v", err)
		}
		msg, err := codec.Decode(proto.JSON, data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type == proto.TypeReject {
			if msg.Reject.Reason == "" {
				t.Fatalf("expected a reject reason")
			}
			return
		}
	}
}
