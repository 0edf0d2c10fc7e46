package session

import (
	"context"
	"testing"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/pickups"
	"skirmish/server/internal/protocol"
	"skirmish/server/logging"
	"skirmish/server/logging/lifecycle"
	"skirmish/server/logging/simulation"
)

type world struct {
	owners map[protocol.EntityID]protocol.UserID
}

func (w world) Exists(id protocol.EntityID) bool {
	_, ok := w.owners[id]
	return ok
}

func (w world) AvatarOf(user protocol.UserID) (protocol.EntityID, bool) {
	for id, owner := range w.owners {
		if owner == user {
			return id, true
		}
	}
	return "", false
}

func (w world) IsAvatar(id protocol.EntityID) bool { return w.Exists(id) }

func (w world) NetworkOwner(id protocol.EntityID) (protocol.UserID, bool) {
	owner, ok := w.owners[id]
	return owner, ok
}

type contactQueue struct {
	pending []pickups.Contact
}

func (c *contactQueue) DrainContacts() []pickups.Contact {
	out := c.pending
	c.pending = nil
	return out
}

type recorder struct {
	events []logging.Event
}

func (r *recorder) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		r.events = append(r.events, event)
	})
}

func (r *recorder) has(kind logging.EventType) bool {
	for _, event := range r.events {
		if event.Type == kind {
			return true
		}
	}
	return false
}

func newSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Identity.Peer == "" {
		cfg.Identity = action.Identity{Peer: "server"}
	}
	if cfg.Scope.ID == "" {
		cfg.Scope = authority.Scope{ID: "match", Host: "server"}
	}
	if cfg.Entities == nil {
		cfg.Entities = world{owners: map[protocol.EntityID]protocol.UserID{"avatar-a": "a", "avatar-b": "b"}}
	}
	if cfg.Wall == nil {
		cfg.Wall = clock.NewManual(1000)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func remoteEnvelope(t *testing.T, s *Session, peer action.PeerID, user protocol.UserID, payload action.Payload) action.Envelope {
	t.Helper()
	def, ok := s.Bus().Catalog().Lookup(payload.ActionKind())
	if !ok {
		t.Fatalf("unknown kind %s", payload.ActionKind())
	}
	return action.Envelope{
		Kind:    payload.ActionKind(),
		Version: def.Version(),
		Payload: payload,
		Origin:  action.Remote{Peer: peer, Scope: s.Scope()},
		Peer:    peer,
		User:    user,
	}
}

func TestStepAppliesEntriesBeforeResolvingFire(t *testing.T) {
	s := newSession(t, Config{})
	s.Post(protocol.PlayerJoined{UserID: "a", Name: "Alice"})
	s.Post(protocol.PlayerJoined{UserID: "b", Name: "Bob"})
	s.Enqueue("peer-a", remoteEnvelope(t, s, "peer-a", "a", protocol.FireWeapon{
		Weapon: protocol.AssaultRifle,
		Hits:   []protocol.Hit{{TargetID: "avatar-b", IsPlayer: true, Damage: 30}},
	}))

	result := s.Step(context.Background(), 16*time.Millisecond)
	if result.Tick != 1 || result.Entries != 3 || result.Rejected != 0 {
		t.Fatalf("unexpected step result %+v", result)
	}
	if record, _ := s.Store().Health("b"); record.Health != 70 {
		t.Fatalf("expected b at 70, got %v", record.Health)
	}
	batch, ok := s.Journal().BatchByTick(1)
	if !ok {
		t.Fatalf("expected journal batch for tick 1")
	}
	want := []action.Kind{protocol.KindPlayerJoined, protocol.KindPlayerJoined, protocol.KindFireWeapon, protocol.KindTakeDamage}
	if len(batch.Envelopes) != len(want) || result.Delivered != len(want) {
		t.Fatalf("expected %d envelopes, got %d (delivered %d)", len(want), len(batch.Envelopes), result.Delivered)
	}
	for i, kind := range want {
		if batch.Envelopes[i].Kind != kind {
			t.Fatalf("envelope %d: expected %s, got %s", i, kind, batch.Envelopes[i].Kind)
		}
	}
	if batch.Envelopes[3].Tick != 1 || batch.Time != result.Now {
		t.Fatalf("expected envelopes stamped with tick 1, got %+v", batch.Envelopes[3])
	}
}

func TestStepCountsRejectedEntries(t *testing.T) {
	s := newSession(t, Config{})
	env := remoteEnvelope(t, s, "peer-a", "a", protocol.Respawn{UserID: "a"})
	env.Origin = action.Local{}
	s.Enqueue("peer-a", env)
	s.Post(protocol.TakeDamage{UserID: "a", Amount: 0, AttackerID: ""})

	if result := s.Step(context.Background(), time.Millisecond); result.Rejected != 1 {
		t.Fatalf("expected one rejected entry, got %+v", result)
	}
}

func TestNonHostSessionDiscardsFireReports(t *testing.T) {
	s := newSession(t, Config{
		Identity: action.Identity{Peer: "peer-b", User: "b"},
		Scope:    authority.Scope{ID: "match", Host: "server"},
	})
	s.Post(protocol.PlayerJoined{UserID: "b"})
	s.Enqueue("peer-a", remoteEnvelope(t, s, "peer-a", "a", protocol.FireWeapon{
		Weapon: protocol.AssaultRifle,
		Hits:   []protocol.Hit{{TargetID: "avatar-b", IsPlayer: true, Damage: 30}},
	}))
	s.Step(context.Background(), time.Millisecond)
	if record, _ := s.Store().Health("b"); record.Health != 100 {
		t.Fatalf("non-host must not apply damage, got %v", record.Health)
	}
}

func TestStepProcessesContactsAndRespawnsPickups(t *testing.T) {
	contacts := &contactQueue{}
	s := newSession(t, Config{Contacts: contacts})
	s.Post(protocol.PlayerJoined{UserID: "a"})
	s.Do(func() {
		if err := s.Pickups().Spawn("medkit", pickups.DefaultPrefab(protocol.PickupHealth)); err != nil {
			t.Errorf("spawn: %v", err)
		}
	})
	s.Step(context.Background(), 16*time.Millisecond)

	contacts.pending = []pickups.Contact{{Item: "medkit", Other: "avatar-a"}}
	second := s.Step(context.Background(), 16*time.Millisecond)
	record, _ := s.Store().Pickup("medkit")
	if record.Active || record.LastPickupTime != second.Now {
		t.Fatalf("expected pickup collected at %d, got %+v", second.Now, record)
	}

	s.Step(context.Background(), 4999*time.Millisecond)
	if record, _ = s.Store().Pickup("medkit"); record.Active {
		t.Fatalf("pickup respawned early")
	}
	s.Step(context.Background(), time.Millisecond)
	if record, _ = s.Store().Pickup("medkit"); !record.Active {
		t.Fatalf("expected pickup respawned once the delay elapsed")
	}
}

func TestSimulationClockStartsAtWallClock(t *testing.T) {
	s := newSession(t, Config{Wall: clock.NewManual(42_000)})
	if now := s.Clock().Now(); now != 42_000 {
		t.Fatalf("expected simulation origin 42000, got %d", now)
	}
	if s.ID() == "" {
		t.Fatalf("expected a generated session id")
	}
}

func TestInboxOverflowIsPublished(t *testing.T) {
	events := &recorder{}
	s := newSession(t, Config{InboxCapacity: 1, Publisher: events.publisher()})
	if !s.Post(protocol.PlayerJoined{UserID: "a"}) {
		t.Fatalf("expected first post to be staged")
	}
	if s.Post(protocol.PlayerJoined{UserID: "b"}) {
		t.Fatalf("expected second post to overflow")
	}
	if !events.has(simulation.EventInboxOverflow) {
		t.Fatalf("expected inbox overflow event")
	}
	if !events.has(lifecycle.EventSessionStarted) {
		t.Fatalf("expected session started event")
	}
	for _, event := range events.events {
		if event.Extra["session"] != s.ID() {
			t.Fatalf("expected session field on %s, got %v", event.Type, event.Extra)
		}
	}
}

func TestCloseDetachesComponents(t *testing.T) {
	events := &recorder{}
	s := newSession(t, Config{Publisher: events.publisher()})
	s.Close()
	s.Close()
	if _, err := s.Bus().Dispatch(protocol.PlayerJoined{UserID: "a"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, ok := s.Store().Health("a"); ok {
		t.Fatalf("closed store must not apply actions")
	}
	if pending := s.Journal().Pending(); len(pending) != 0 {
		t.Fatalf("closed journal must not record, got %d", len(pending))
	}
	closed := 0
	for _, event := range events.events {
		if event.Type == lifecycle.EventSessionClosed {
			closed++
		}
	}
	if closed != 1 {
		t.Fatalf("expected one session closed event, got %d", closed)
	}
}

func TestRunStepsUntilCancelled(t *testing.T) {
	ticks := make(chan StepResult, 16)
	s, err := New(Config{
		Identity: action.Identity{Peer: "server"},
		Scope:    authority.Scope{ID: "match", Host: "server"},
		Entities: world{},
		TickRate: 200,
		AfterStep: func(result StepResult) {
			select {
			case ticks <- result:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case result := <-ticks:
		if result.Tick != 1 || result.Budget != 5*time.Millisecond {
			t.Fatalf("unexpected first tick %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not tick")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
}

func TestDiagnosticsRefreshAfterEachTick(t *testing.T) {
	s := newSession(t, Config{})
	if got := s.Diagnostics(); got.Tick != 0 || len(got.Health) != 0 || got.Session != s.ID() {
		t.Fatalf("unexpected initial diagnostics %+v", got)
	}
	s.Post(protocol.PlayerJoined{UserID: "a"})
	s.Post(protocol.PlayerJoined{UserID: "b"})
	s.Step(context.Background(), 16*time.Millisecond)

	got := s.Diagnostics()
	if got.Tick != 1 || got.Host != "server" || got.Scope != "match" {
		t.Fatalf("unexpected diagnostics header %+v", got)
	}
	if len(got.Health) != 2 || got.Health["a"].Health != 100 {
		t.Fatalf("expected both players at full health, got %+v", got.Health)
	}
	if len(got.Window) != 2 || got.Window[1] != 1 {
		t.Fatalf("expected journal window ending at tick 1, got %v", got.Window)
	}
}
