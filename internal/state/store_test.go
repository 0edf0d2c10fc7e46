package state

import (
	"math/rand/v2"
	"testing"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
	loggingactions "skirmish/server/logging/actions"
	"skirmish/server/logging/sinks"
)

const testScope action.ScopeID = "match"

type harness struct {
	bus    *action.Bus
	store  *Store
	clock  *clock.Manual
	events *sinks.Memory
}

func newHarness(t *testing.T) harness {
	t.Helper()
	catalog, err := protocol.NewCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	manual := clock.NewManual(0)
	memory := sinks.NewMemory()
	bus, err := action.NewBus(action.Config{
		Catalog:   catalog,
		Identity:  action.Identity{Peer: "host", User: "hostuser", Scope: testScope},
		Clock:     manual,
		Publisher: memory,
	})
	if err != nil {
		t.Fatalf("bus: %v", err)
	}
	validator := authority.NewValidator(authority.NewScopes(authority.Scope{ID: testScope, Host: "host"}), "host")
	return harness{bus: bus, store: New(bus, validator), clock: manual, events: memory}
}

func (h harness) dispatch(t *testing.T, payload action.Payload) {
	t.Helper()
	if _, err := h.bus.Dispatch(payload); err != nil {
		t.Fatalf("dispatch %s: %v", payload.ActionKind(), err)
	}
}

func (h harness) receive(t *testing.T, peer action.PeerID, user action.UserID, payload action.Payload) {
	t.Helper()
	_, err := h.bus.Receive(action.Envelope{
		Kind:    payload.ActionKind(),
		Version: 1,
		Payload: payload,
		Origin:  action.Remote{Peer: peer, Scope: testScope},
		Peer:    peer,
		User:    user,
		Time:    h.clock.Now(),
	})
	if err != nil {
		t.Fatalf("receive %s: %v", payload.ActionKind(), err)
	}
}

func (h harness) health(t *testing.T, user UserID) HealthRecord {
	t.Helper()
	record, ok := h.store.Health(user)
	if !ok {
		t.Fatalf("expected health record for %s", user)
	}
	return record
}

func TestJoinCreatesRecordsAndRejoinOverwrites(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})

	record := h.health(t, "a")
	if record.Health != 100 || record.Lives != 5 || record.Immunity.Active {
		t.Fatalf("unexpected initial record %+v", record)
	}
	if stats, ok := h.store.Stats("a"); !ok || stats != (PlayerStats{}) {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}

	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -40})
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	if got := h.health(t, "a").Health; got != 100 {
		t.Fatalf("expected rejoin to reset health, got %v", got)
	}
}

func TestLeaveDeletesRecords(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.ChangeWeapon{UserID: "a", Weapon: protocol.Shotgun})
	h.dispatch(t, protocol.PlayerLeft{UserID: "a"})

	if _, ok := h.store.Health("a"); ok {
		t.Fatalf("health should be deleted")
	}
	if _, ok := h.store.Stats("a"); ok {
		t.Fatalf("stats should be deleted")
	}
	if _, ok := h.store.Weapon("a"); ok {
		t.Fatalf("weapon should be deleted")
	}
}

func TestTakeDamageWithoutRecordIsReportedNotApplied(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.TakeDamage{UserID: "ghost", Amount: -10})
	if _, ok := h.store.Health("ghost"); ok {
		t.Fatalf("no record should be created")
	}
	if len(h.events.OfType(loggingactions.EventRejected)) == 0 {
		t.Fatalf("expected missing record to be reported")
	}
}

func TestImmunityNegatesDamageButNotHealing(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -50})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "shield", Value: 10000})

	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -30})
	if got := h.health(t, "a").Health; got != 50 {
		t.Fatalf("immune user took damage: %v", got)
	}
	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: 20})
	if got := h.health(t, "a").Health; got != 70 {
		t.Fatalf("healing should apply while immune: %v", got)
	}
}

func TestHealthClampsToMaximum(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -10})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupHealth, ItemID: "kit", Value: 100})
	if got := h.health(t, "a").Health; got != 100 {
		t.Fatalf("expected health clamped to 100, got %v", got)
	}
}

// takeDamage floors at zero and is not a death; only die counts.
func TestTakeDamageFloorsAtZeroWithoutDeath(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -250})

	if got := h.health(t, "a").Health; got != 0 {
		t.Fatalf("expected health floored at 0, got %v", got)
	}
	if stats, _ := h.store.Stats("a"); stats.Deaths != 0 {
		t.Fatalf("takeDamage must not count as a death, got %d", stats.Deaths)
	}
}

func TestDieForcesZeroAndRespawnRestores(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -70})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "shield", Value: 1000})
	h.dispatch(t, protocol.Die{UserID: "a"})
	if got := h.health(t, "a").Health; got != 0 {
		t.Fatalf("expected die to force 0, got %v", got)
	}

	h.dispatch(t, protocol.Respawn{UserID: "a"})
	record := h.health(t, "a")
	if record.Health != 100 {
		t.Fatalf("expected respawn to restore health, got %v", record.Health)
	}
	if !record.Immunity.Active || record.Lives != 5 {
		t.Fatalf("respawn must not touch immunity or lives: %+v", record)
	}
}

func TestImmunityPickupOverwritesEndTime(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.clock.Set(1000)
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "s1", Value: 10000})
	h.clock.Set(4000)
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "s2", Value: 10000})

	if got := h.health(t, "a").Immunity.EndTime; got != 14000 {
		t.Fatalf("expected end time 14000 without stacking, got %d", got)
	}
}

func TestImmunityTimedoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "s", Value: 10})
	for i := 0; i < 2; i++ {
		h.dispatch(t, protocol.ImmunityTimedout{UserID: "a"})
		if h.health(t, "a").Immunity.Active {
			t.Fatalf("immunity should be inactive after timeout %d", i+1)
		}
	}
}

func TestUnknownPickupKindIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.TakeDamage{UserID: "a", Amount: -10})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: "ammo", ItemID: "x", Value: 50})
	if got := h.health(t, "a").Health; got != 90 {
		t.Fatalf("unknown pickup kind should not change health, got %v", got)
	}
	if len(h.events.OfType(loggingactions.EventSchemaViolation)) != 1 {
		t.Fatalf("expected unknown pickup kind to be reported")
	}
}

func TestRemoteMutationsAreGatedByAuthority(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})
	h.dispatch(t, protocol.Die{UserID: "b"})

	h.receive(t, "peer-a", "a", protocol.TakeDamage{UserID: "b", Amount: 50})
	if got := h.health(t, "b").Health; got != 0 {
		t.Fatalf("non-host takeDamage must be ignored, got %v", got)
	}
	h.receive(t, "peer-a", "a", protocol.Respawn{UserID: "b"})
	if got := h.health(t, "b").Health; got != 0 {
		t.Fatalf("respawn for another user must be ignored, got %v", got)
	}
	h.receive(t, "peer-b", "b", protocol.Respawn{UserID: "b"})
	if got := h.health(t, "b").Health; got != 100 {
		t.Fatalf("self-reported respawn should apply, got %v", got)
	}
	if len(h.events.OfType(loggingactions.EventRejected)) < 2 {
		t.Fatalf("expected rejections to be logged")
	}
}

func TestPickupLifecycle(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})
	h.dispatch(t, protocol.PickupSpawned{ItemID: "p", Kind: protocol.PickupHealth, RespawnDelay: 5000})

	record, ok := h.store.Pickup("p")
	if !ok || !record.Active || record.RespawnDelay != 5000 {
		t.Fatalf("unexpected spawned record %+v", record)
	}

	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupHealth, ItemID: "p", Value: 100, RespawnDelay: 5000})
	record, _ = h.store.Pickup("p")
	if record.Active || record.LastPickupTime != 0 || record.RespawnDelay != 5000 {
		t.Fatalf("unexpected collected record %+v", record)
	}

	h.clock.Set(2000)
	h.dispatch(t, protocol.TakeDamage{UserID: "b", Amount: -40})
	h.dispatch(t, protocol.ItemPickup{UserID: "b", Kind: protocol.PickupHealth, ItemID: "p", Value: 100})
	record, _ = h.store.Pickup("p")
	if record.LastPickupTime != 0 || record.RespawnDelay != 5000 {
		t.Fatalf("collection while inactive must be ignored: %+v", record)
	}
	if got := h.health(t, "b").Health; got != 60 {
		t.Fatalf("second collector must not be healed, got %v", got)
	}

	h.dispatch(t, protocol.PickupRespawned{ItemID: "p"})
	if record, _ = h.store.Pickup("p"); !record.Active {
		t.Fatalf("expected respawned pickup to be active")
	}

	h.dispatch(t, protocol.PickupRemoved{ItemID: "p"})
	if _, ok := h.store.Pickup("p"); ok {
		t.Fatalf("expected removed pickup to be deleted")
	}
}

func TestPickupDefaultsRespawnDelay(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PickupSpawned{ItemID: "p", Kind: protocol.PickupImmunity})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "p"})
	record, _ := h.store.Pickup("p")
	if record.RespawnDelay != clock.FromDuration(60*time.Second) {
		t.Fatalf("expected 60s default delay, got %d", record.RespawnDelay)
	}
}

func TestKillCreditedToLastAttacker(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})
	h.dispatch(t, protocol.TakeDamage{UserID: "b", Amount: -30, AttackerID: "a"})

	if stats, _ := h.store.Stats("b"); stats.LastDamagedBy != "a" {
		t.Fatalf("expected attribution to a, got %q", stats.LastDamagedBy)
	}
	h.dispatch(t, protocol.Die{UserID: "b"})

	victim, _ := h.store.Stats("b")
	killer, _ := h.store.Stats("a")
	if victim.Deaths != 1 || killer.Kills != 1 {
		t.Fatalf("unexpected scoreboard victim=%+v killer=%+v", victim, killer)
	}
	kills := 0
	for _, msg := range h.store.Chat().Messages() {
		if msg.Kind == ChatKill && msg.UserID == "a" && msg.TargetUserID == "b" {
			kills++
		}
	}
	if kills != 1 {
		t.Fatalf("expected one kill message, got %d", kills)
	}
}

func TestSelfDamageAndDepartedKillerAreNotCredited(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})
	h.dispatch(t, protocol.TakeDamage{UserID: "b", Amount: -10, AttackerID: "b"})
	if stats, _ := h.store.Stats("b"); stats.LastDamagedBy != "" {
		t.Fatalf("self damage must not set attribution")
	}

	h.dispatch(t, protocol.TakeDamage{UserID: "b", Amount: -10, AttackerID: "a"})
	h.dispatch(t, protocol.PlayerLeft{UserID: "a"})
	h.dispatch(t, protocol.Die{UserID: "b"})
	if stats, _ := h.store.Stats("b"); stats.Deaths != 1 {
		t.Fatalf("expected death to count, got %+v", stats)
	}
	if _, ok := h.store.Stats("a"); ok {
		t.Fatalf("departed killer must not be recreated")
	}
}

func TestHostEnvelopeAttributionFallsBackToSender(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})
	h.dispatch(t, protocol.TakeDamage{UserID: "b", Amount: -5})
	if stats, _ := h.store.Stats("b"); stats.LastDamagedBy != "hostuser" {
		t.Fatalf("expected sender fallback, got %q", stats.LastDamagedBy)
	}
}

func TestChatRecentAndRender(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.clock.Set(10_000)
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})

	recent := h.store.Chat().Recent(12_000, DefaultChatWindow)
	if len(recent) != 1 || recent[0].UserID != "b" {
		t.Fatalf("expected only b's join in window, got %+v", recent)
	}
	text := Render(ChatMessage{Template: "${userID} has killed ${targetUserID}", UserID: "a", TargetUserID: "b"}, func(id UserID) string {
		if id == "a" {
			return "Alice"
		}
		return ""
	})
	if text != "Alice has killed b" {
		t.Fatalf("unexpected rendering %q", text)
	}
}

func TestHealthStaysInRangeUnderRandomSequences(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		var payload action.Payload
		switch rng.IntN(5) {
		case 0:
			payload = protocol.TakeDamage{UserID: "a", Amount: rng.Float64()*300 - 200}
		case 1:
			payload = protocol.Die{UserID: "a"}
		case 2:
			payload = protocol.Respawn{UserID: "a"}
		case 3:
			payload = protocol.ItemPickup{UserID: "a", Kind: protocol.PickupHealth, ItemID: "k", Value: rng.Float64() * 150}
		default:
			payload = protocol.ImmunityTimedout{UserID: "a"}
		}
		h.dispatch(t, payload)
		if got := h.health(t, "a").Health; got < 0 || got > 100 {
			t.Fatalf("health out of range after %s: %v", payload.ActionKind(), got)
		}
	}
}

func TestLateStoreConvergesFromCachedReplay(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PlayerLeft{UserID: "a"})
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PlayerJoined{UserID: "b"})
	h.dispatch(t, protocol.PlayerLeft{UserID: "b"})
	h.dispatch(t, protocol.PickupSpawned{ItemID: "p", Kind: protocol.PickupHealth})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupHealth, ItemID: "p"})

	validator := authority.NewValidator(authority.NewScopes(authority.Scope{ID: testScope, Host: "host"}), "host")
	late := New(h.bus, validator)
	defer late.Close()

	if _, ok := late.Health("a"); !ok {
		t.Fatalf("expected rejoined user to be present")
	}
	if _, ok := late.Health("b"); ok {
		t.Fatalf("expected departed user to be absent")
	}
	if record, ok := late.Pickup("p"); !ok || record.Active {
		t.Fatalf("expected collected pickup to replay as inactive, got %+v", record)
	}
}

func TestLateStoreKeepsExpiredImmunityInactive(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, protocol.PlayerJoined{UserID: "a"})
	h.dispatch(t, protocol.PickupSpawned{ItemID: "shield", Kind: protocol.PickupImmunity})
	h.dispatch(t, protocol.ItemPickup{UserID: "a", Kind: protocol.PickupImmunity, ItemID: "shield", Value: 10000})
	h.clock.Set(20000)
	h.dispatch(t, protocol.ImmunityTimedout{UserID: "a"})

	validator := authority.NewValidator(authority.NewScopes(authority.Scope{ID: testScope, Host: "host"}), "host")
	late := New(h.bus, validator)
	defer late.Close()

	host := h.health(t, "a")
	mirror, ok := late.Health("a")
	if !ok || mirror != host {
		t.Fatalf("late store diverges: host %+v, late %+v", host, mirror)
	}
	if mirror.Immunity.Active {
		t.Fatalf("expected expired immunity to replay as inactive")
	}
}
