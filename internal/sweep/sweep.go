// Package sweep runs the per-tick timer checks: immunity expiry and
// respawn for the local user, and pickup respawn on the scope host.
package sweep

import (
	"context"
	"errors"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/state"
	"skirmish/server/logging"
	loggingpickups "skirmish/server/logging/pickups"
)

// DefaultRespawnDelay is how long a dead local player waits before
// respawning.
const DefaultRespawnDelay = 3 * time.Second

// Records is the replicated state the sweep reads.
type Records interface {
	Health(user state.UserID) (state.HealthRecord, bool)
	Pickup(item protocol.EntityID) (state.PickupRecord, bool)
	PickupItems() []protocol.EntityID
}

// Config wires a Sweep. Wall defaults to the process clock and
// RespawnDelay to DefaultRespawnDelay.
type Config struct {
	Bus          *action.Bus
	Authority    *authority.Validator
	Scope        action.ScopeID
	Records      Records
	Wall         clock.Source
	RespawnDelay time.Duration
}

// Sweep holds the timers between ticks.
type Sweep struct {
	bus          *action.Bus
	authority    *authority.Validator
	scope        action.ScopeID
	records      Records
	wall         clock.Source
	respawnDelay time.Duration

	immunitySent clock.Millis
	respawnArmed bool
	respawnAt    clock.Millis
}

// New constructs a sweep.
func New(cfg Config) (*Sweep, error) {
	if cfg.Bus == nil || cfg.Authority == nil || cfg.Records == nil {
		return nil, errors.New("sweep: requires a bus, an authority validator and records")
	}
	wall := cfg.Wall
	if wall == nil {
		wall = clock.Wall{}
	}
	delay := cfg.RespawnDelay
	if delay <= 0 {
		delay = DefaultRespawnDelay
	}
	return &Sweep{
		bus:          cfg.Bus,
		authority:    cfg.Authority,
		scope:        cfg.Scope,
		records:      cfg.Records,
		wall:         wall,
		respawnDelay: delay,
		immunitySent: -1,
	}, nil
}

// Run performs one sweep.
func (s *Sweep) Run() {
	user := s.bus.Identity().User
	if user != "" {
		if record, ok := s.records.Health(user); ok {
			s.expireImmunity(user, record)
			s.respawn(user, record)
		}
	}
	if s.authority.IsLocalHost(s.scope) {
		s.respawnPickups()
	}
}

func (s *Sweep) expireImmunity(user state.UserID, record state.HealthRecord) {
	if !record.Immunity.Active {
		s.immunitySent = -1
		return
	}
	if record.Immunity.EndTime >= s.wall.Now() || record.Immunity.EndTime == s.immunitySent {
		return
	}
	if _, err := s.bus.Dispatch(protocol.ImmunityTimedout{UserID: user}); err != nil {
		return
	}
	// A host that has not answered yet is not sent the same expiry again.
	s.immunitySent = record.Immunity.EndTime
}

func (s *Sweep) respawn(user state.UserID, record state.HealthRecord) {
	if record.Alive() {
		s.respawnArmed = false
		return
	}
	now := s.wall.Now()
	if !s.respawnArmed {
		s.respawnArmed = true
		s.respawnAt = now.Add(s.respawnDelay)
		return
	}
	if now < s.respawnAt {
		return
	}
	if _, err := s.bus.Dispatch(protocol.Respawn{UserID: user}); err != nil {
		return
	}
	s.respawnArmed = false
}

func (s *Sweep) respawnPickups() {
	now := s.bus.Now()
	for _, item := range s.records.PickupItems() {
		record, ok := s.records.Pickup(item)
		if !ok || record.Active || now < record.RespawnAt() {
			continue
		}
		if _, err := s.bus.Dispatch(protocol.PickupRespawned{ItemID: item}); err != nil {
			continue
		}
		loggingpickups.Respawned(context.Background(), s.bus.Publisher(), s.bus.Tick(),
			logging.PickupRef(string(item)), loggingpickups.RespawnedPayload{
				LastPickupTime: int64(record.LastPickupTime),
				Now:            int64(now),
			})
	}
}
