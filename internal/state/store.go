// Package state holds the session's replicated gameplay records. Records
// are written only by receptors bound to the action bus.
package state

import (
	"cmp"
	"maps"
	"slices"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/protocol"
)

// UserID identifies a player.
type UserID = protocol.UserID

// Outcome tells a binding what to do with a receptor's result.
type Outcome int

const (
	// Skip leaves the store untouched.
	Skip Outcome = iota
	// Put stores the returned record under the action's key.
	Put
	// Delete removes the record under the action's key.
	Delete
)

// Receptor is a pure reducer for one action kind over one domain.
type Receptor[R any] func(current R, ok bool, env action.Envelope) (R, Outcome)

// Domain is a keyed record table.
type Domain[K cmp.Ordered, R any] struct {
	name    string
	records map[K]R
}

func newDomain[K cmp.Ordered, R any](name string) *Domain[K, R] {
	return &Domain[K, R]{name: name, records: make(map[K]R)}
}

// Get returns the record stored under key.
func (d *Domain[K, R]) Get(key K) (R, bool) {
	record, ok := d.records[key]
	return record, ok
}

// Len reports the number of records.
func (d *Domain[K, R]) Len() int {
	return len(d.records)
}

// Keys returns the record keys in ascending order.
func (d *Domain[K, R]) Keys() []K {
	return slices.Sorted(maps.Keys(d.records))
}

// Snapshot copies the table.
func (d *Domain[K, R]) Snapshot() map[K]R {
	return maps.Clone(d.records)
}

func (d *Domain[K, R]) apply(key K, outcome Outcome, next R) {
	switch outcome {
	case Put:
		d.records[key] = next
	case Delete:
		delete(d.records, key)
	}
}

// Store is the session-scoped gameplay state.
type Store struct {
	bus       *action.Bus
	authority *authority.Validator

	health  *Domain[UserID, HealthRecord]
	pickups *Domain[protocol.EntityID, PickupRecord]
	weapons *Domain[UserID, WeaponAssignment]
	stats   *Domain[UserID, PlayerStats]
	chat    *ChatLog

	routes      map[action.Kind][]action.Handler
	kinds       []action.Kind
	unsubscribe func()
}

// New creates a store and binds its receptors to bus. Retained cached
// envelopes are replayed into the new store.
func New(bus *action.Bus, validator *authority.Validator) *Store {
	s := &Store{
		bus:       bus,
		authority: validator,
		health:    newDomain[UserID, HealthRecord]("health"),
		pickups:   newDomain[protocol.EntityID, PickupRecord]("pickup"),
		weapons:   newDomain[UserID, WeaponAssignment]("weapon"),
		stats:     newDomain[UserID, PlayerStats]("stats"),
		chat:      newChatLog(),
		routes:    make(map[action.Kind][]action.Handler),
	}
	s.bindHealth()
	s.bindPickups()
	s.bindWeapons()
	s.bindChat()
	s.bindStats()
	s.unsubscribe = bus.Subscribe("state", action.Kinds(s.kinds...), s.route, action.WithReplay())
	return s
}

// Close detaches the store from the bus.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Health returns the health record of user.
func (s *Store) Health(user UserID) (HealthRecord, bool) { return s.health.Get(user) }

// HealthRecords snapshots every health record.
func (s *Store) HealthRecords() map[UserID]HealthRecord { return s.health.Snapshot() }

// Users lists users with a health record in ascending order.
func (s *Store) Users() []UserID { return s.health.Keys() }

// Pickup returns the record of a pickup item.
func (s *Store) Pickup(item protocol.EntityID) (PickupRecord, bool) { return s.pickups.Get(item) }

// PickupRecords snapshots every pickup record.
func (s *Store) PickupRecords() map[protocol.EntityID]PickupRecord { return s.pickups.Snapshot() }

// PickupItems lists pickup item ids in ascending order.
func (s *Store) PickupItems() []protocol.EntityID { return s.pickups.Keys() }

// Weapon returns the weapon assigned to user.
func (s *Store) Weapon(user UserID) (WeaponAssignment, bool) { return s.weapons.Get(user) }

// WeaponAssignments snapshots every weapon assignment.
func (s *Store) WeaponAssignments() map[UserID]WeaponAssignment { return s.weapons.Snapshot() }

// Stats returns the scoreboard entry of user.
func (s *Store) Stats(user UserID) (PlayerStats, bool) { return s.stats.Get(user) }

// AllStats snapshots the scoreboard.
func (s *Store) AllStats() map[UserID]PlayerStats { return s.stats.Snapshot() }

// Chat exposes the game message log.
func (s *Store) Chat() *ChatLog { return s.chat }

// gate admits an envelope or returns the reason it is discarded.
type gate[P action.Payload] func(env action.Envelope, payload P) error

func authoritativeGate[P action.Payload](s *Store) gate[P] {
	return func(env action.Envelope, _ P) error {
		if !s.authority.IsAuthoritative(env) {
			return action.ErrUnauthorized
		}
		return nil
	}
}

func ownerGate[P action.Payload](s *Store, subject func(P) UserID) gate[P] {
	return func(env action.Envelope, payload P) error {
		if !s.authority.IsAuthoritativeOrOwner(env, subject(payload)) {
			return action.ErrUnauthorized
		}
		return nil
	}
}

// route delivers env to the handlers registered for its kind in binding
// order. All domains share one subscription so replayed cached envelopes
// reach every domain in sequence order.
func (s *Store) route(env action.Envelope) {
	for _, handler := range s.routes[env.Kind] {
		handler(env)
	}
}

func (s *Store) handle(kind action.Kind, handler action.Handler) {
	if _, seen := s.routes[kind]; !seen {
		s.kinds = append(s.kinds, kind)
	}
	s.routes[kind] = append(s.routes[kind], handler)
}

// bind registers receptor for payload kind P on domain d.
func bind[K cmp.Ordered, R any, P action.Payload](s *Store, d *Domain[K, R], key func(P) K, allow gate[P], receptor Receptor[R]) {
	var zero P
	name := d.name + "." + string(zero.ActionKind())
	s.handle(zero.ActionKind(), func(env action.Envelope) {
		payload, ok := action.PayloadAs[P](env)
		if !ok {
			return
		}
		if allow != nil {
			if err := allow(env, payload); err != nil {
				s.bus.Reject(env, err, name)
				return
			}
		}
		k := key(payload)
		current, exists := d.records[k]
		next, outcome := receptor(current, exists, env)
		if outcome == Skip && !exists {
			s.bus.Reject(env, action.ErrMissingRecord, name)
			return
		}
		if outcome == Delete && !exists {
			return
		}
		d.apply(k, outcome, next)
	})
}

// listen registers a handler that is not a single-record reducer.
func listen[P action.Payload](s *Store, name string, allow gate[P], handler func(env action.Envelope, payload P)) {
	var zero P
	s.handle(zero.ActionKind(), func(env action.Envelope) {
		payload, ok := action.PayloadAs[P](env)
		if !ok {
			return
		}
		if allow != nil {
			if err := allow(env, payload); err != nil {
				s.bus.Reject(env, err, name)
				return
			}
		}
		handler(env, payload)
	})
}

func joinedUser(p protocol.PlayerJoined) UserID { return p.UserID }

func leftUser(p protocol.PlayerLeft) UserID { return p.UserID }
