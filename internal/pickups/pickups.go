// Package pickups turns trigger contacts with pickup items into itemPickup
// actions and manages the items' spawn and removal.
package pickups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/state"
	"skirmish/server/logging"
	loggingpickups "skirmish/server/logging/pickups"
)

// DefaultRespawnDelay is the cooldown of a collected pickup.
const DefaultRespawnDelay = 5 * time.Second

// Prefab is the tuning of one pickup item.
type Prefab struct {
	Kind         protocol.PickupKind
	Value        float64
	RespawnDelay time.Duration
}

// DefaultPrefab returns the stock tuning for kind: a full heal, or ten
// seconds of immunity.
func DefaultPrefab(kind protocol.PickupKind) Prefab {
	prefab := Prefab{Kind: kind, RespawnDelay: DefaultRespawnDelay}
	switch kind {
	case protocol.PickupImmunity:
		prefab.Value = float64(clock.FromDuration(10 * time.Second))
	default:
		prefab.Value = state.MaxHealth
	}
	return prefab
}

// Contact is a trigger contact between a pickup item and another entity.
type Contact struct {
	Item  protocol.EntityID
	Other protocol.EntityID
}

// Entities is the view of the entity world the manager needs.
type Entities interface {
	IsAvatar(id protocol.EntityID) bool
	NetworkOwner(id protocol.EntityID) (protocol.UserID, bool)
}

// Records reads the replicated pickup availability.
type Records interface {
	Pickup(item protocol.EntityID) (state.PickupRecord, bool)
}

// Config wires a Manager.
type Config struct {
	Bus       *action.Bus
	Authority *authority.Validator
	Scope     action.ScopeID
	Entities  Entities
	Records   Records
}

// Manager owns the pickup items of a session.
type Manager struct {
	bus       *action.Bus
	authority *authority.Validator
	scope     action.ScopeID
	entities  Entities
	records   Records
	prefabs   map[protocol.EntityID]Prefab
}

// NewManager constructs a pickup manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Bus == nil || cfg.Authority == nil {
		return nil, errors.New("pickups: manager requires a bus and an authority validator")
	}
	if cfg.Entities == nil || cfg.Records == nil {
		return nil, errors.New("pickups: manager requires entities and records")
	}
	return &Manager{
		bus:       cfg.Bus,
		authority: cfg.Authority,
		scope:     cfg.Scope,
		entities:  cfg.Entities,
		records:   cfg.Records,
		prefabs:   make(map[protocol.EntityID]Prefab),
	}, nil
}

// Spawn registers item with prefab and announces it.
func (m *Manager) Spawn(item protocol.EntityID, prefab Prefab) error {
	if prefab.RespawnDelay <= 0 {
		prefab.RespawnDelay = DefaultRespawnDelay
	}
	m.prefabs[item] = prefab
	_, err := m.bus.Dispatch(protocol.PickupSpawned{
		ItemID:       item,
		Kind:         prefab.Kind,
		RespawnDelay: clock.FromDuration(prefab.RespawnDelay),
	})
	if err != nil {
		delete(m.prefabs, item)
		return fmt.Errorf("spawn pickup %s: %w", item, err)
	}
	return nil
}

// Remove despawns item regardless of its availability.
func (m *Manager) Remove(item protocol.EntityID) error {
	delete(m.prefabs, item)
	if _, err := m.bus.Dispatch(protocol.PickupRemoved{ItemID: item}); err != nil {
		return fmt.Errorf("remove pickup %s: %w", item, err)
	}
	return nil
}

// Prefab returns the tuning registered for item.
func (m *Manager) Prefab(item protocol.EntityID) (Prefab, bool) {
	prefab, ok := m.prefabs[item]
	return prefab, ok
}

// Process handles the trigger contacts of one tick. Only the scope host
// collects pickups. Contacts with inactive items, non-avatars and entities
// without a network owner are ignored.
func (m *Manager) Process(contacts []Contact) {
	if len(contacts) == 0 || !m.authority.IsLocalHost(m.scope) {
		return
	}
	for _, contact := range contacts {
		prefab, ok := m.prefabs[contact.Item]
		if !ok {
			continue
		}
		// Receptors run synchronously, so a collection earlier in this loop
		// is already visible here.
		if record, ok := m.records.Pickup(contact.Item); ok && !record.Active {
			continue
		}
		if !m.entities.IsAvatar(contact.Other) {
			continue
		}
		user, ok := m.entities.NetworkOwner(contact.Other)
		if !ok {
			continue
		}
		delay := clock.FromDuration(prefab.RespawnDelay)
		if _, err := m.bus.Dispatch(protocol.ItemPickup{
			UserID:       user,
			Kind:         prefab.Kind,
			ItemID:       contact.Item,
			RespawnDelay: delay,
			Value:        prefab.Value,
		}); err != nil {
			continue
		}
		loggingpickups.Collected(context.Background(), m.bus.Publisher(), m.bus.Tick(),
			logging.PlayerRef(string(user)), logging.PickupRef(string(contact.Item)),
			loggingpickups.CollectedPayload{
				Kind:           string(prefab.Kind),
				Value:          int64(prefab.Value),
				RespawnDelayMs: int64(delay),
			})
	}
}
