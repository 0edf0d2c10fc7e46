package session

import (
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/state"
)

// Diagnostics is a point-in-time copy of the session, refreshed at the end
// of every tick and safe to read from any goroutine.
type Diagnostics struct {
	Session string                                   `json:"session"`
	Scope   string                                   `json:"scope"`
	Host    string                                   `json:"host"`
	Tick    uint64                                   `json:"tick"`
	Time    clock.Millis                             `json:"time"`
	Inbox   int                                      `json:"inbox"`
	Health  map[state.UserID]state.HealthRecord      `json:"health"`
	Stats   map[state.UserID]state.PlayerStats       `json:"stats"`
	Weapons map[state.UserID]state.WeaponAssignment  `json:"weapons"`
	Pickups map[protocol.EntityID]state.PickupRecord `json:"pickups"`
	Window  []uint64                                 `json:"journalWindow,omitempty"`
}

// Diagnostics returns the snapshot taken after the most recent tick.
func (s *Session) Diagnostics() Diagnostics {
	if snapshot := s.diagnostics.Load(); snapshot != nil {
		return *snapshot
	}
	return Diagnostics{Session: s.id, Scope: string(s.cfg.Scope.ID), Host: string(s.cfg.Scope.Host)}
}

func (s *Session) snapshot(tick uint64, now clock.Millis) {
	size, oldest, newest := s.journal.Window()
	var window []uint64
	if size > 0 {
		window = []uint64{oldest, newest}
	}
	s.diagnostics.Store(&Diagnostics{
		Session: s.id,
		Scope:   string(s.cfg.Scope.ID),
		Host:    string(s.cfg.Scope.Host),
		Tick:    tick,
		Time:    now,
		Inbox:   s.inbox.Len(),
		Health:  s.store.HealthRecords(),
		Stats:   s.store.AllStats(),
		Weapons: s.store.WeaponAssignments(),
		Pickups: s.store.PickupRecords(),
		Window:  window,
	})
}
