// Package session owns everything that lives for the duration of one match:
// the action bus, the state store, the combat resolver, the pickup manager,
// the timed sweep and the journal, driven by a fixed-order tick loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/combat"
	"skirmish/server/internal/journal"
	"skirmish/server/internal/pickups"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/state"
	"skirmish/server/internal/sweep"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	"skirmish/server/logging/lifecycle"
	"skirmish/server/logging/simulation"
)

const (
	defaultTickRate      = 30
	defaultInboxCapacity = 1024
	defaultJournalFrames = 256
)

// ContactSource yields the trigger contacts the physics step produced since
// the previous call.
type ContactSource interface {
	DrainContacts() []pickups.Contact
}

// Config wires a Session.
type Config struct {
	// ID names the session. A random UUID is used when empty.
	ID       string
	Scope    authority.Scope
	Identity action.Identity
	Entities combat.Entities
	Contacts ContactSource
	// Wall drives immunity expiry, local respawn and tick pacing.
	Wall     clock.Source
	// Origin is the simulation clock's starting instant. Zero starts it at
	// the wall clock so immunity end times compare against both clocks.
	Origin   clock.Millis

	TickRate        int
	CatchupMaxTicks int
	InboxCapacity   int
	PerPeerLimit    int
	RespawnDelay    time.Duration
	JournalFrames   int
	JournalMaxAge   time.Duration

	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Logger    telemetry.Logger

	// AfterStep observes every completed tick.
	AfterStep func(StepResult)
}

// Session is a single match. All methods except Enqueue, Post and the
// accessors for immutable fields must be called from the tick goroutine.
type Session struct {
	id        string
	cfg       Config
	clock     *clock.Simulation
	wall      clock.Source
	scopes    *authority.Scopes
	authority *authority.Validator
	bus       *action.Bus
	store     *state.Store
	resolver  *combat.Resolver
	pickups   *pickups.Manager
	sweep     *sweep.Sweep
	journal   *journal.Journal
	inbox     *Inbox
	pub       logging.Publisher
	metrics   telemetry.Metrics
	logger    telemetry.Logger
	closed    bool

	diagnostics atomic.Pointer[Diagnostics]
}

// New builds a session and every per-match component. The components
// subscribe to the bus in a fixed order: state first, then combat and the
// journal last so it observes fully applied envelopes.
func New(cfg Config) (*Session, error) {
	if cfg.Entities == nil {
		return nil, errors.New("session: entities are required")
	}
	if cfg.Identity.Peer == "" {
		return nil, errors.New("session: identity peer is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.InboxCapacity <= 0 {
		cfg.InboxCapacity = defaultInboxCapacity
	}
	if cfg.JournalFrames == 0 {
		cfg.JournalFrames = defaultJournalFrames
	}
	wall := cfg.Wall
	if wall == nil {
		wall = clock.Wall{}
	}
	origin := cfg.Origin
	if origin == 0 {
		origin = wall.Now()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	pub = logging.WithFields(pub, map[string]any{"session": cfg.ID})

	catalog, err := protocol.NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("session: build catalog: %w", err)
	}
	sim := clock.NewSimulation(origin)
	bus, err := action.NewBus(action.Config{
		Catalog:   catalog,
		Identity:  cfg.Identity,
		Clock:     sim,
		Ticks:     sim.Tick,
		Publisher: pub,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("session: build bus: %w", err)
	}

	scopes := authority.NewScopes(cfg.Scope)
	validator := authority.NewValidator(scopes, cfg.Identity.Peer)
	store := state.New(bus, validator)
	s := &Session{
		id:        cfg.ID,
		cfg:       cfg,
		clock:     sim,
		wall:      wall,
		scopes:    scopes,
		authority: validator,
		bus:       bus,
		store:     store,
		inbox:     NewInbox(cfg.InboxCapacity, cfg.PerPeerLimit, metrics),
		pub:       pub,
		metrics:   metrics,
		logger:    logger,
	}
	fail := func(err error) (*Session, error) {
		store.Close()
		return nil, err
	}

	s.resolver, err = combat.NewResolver(combat.ResolverConfig{
		Bus:       bus,
		Authority: validator,
		Scope:     cfg.Scope.ID,
		Entities:  cfg.Entities,
		Health:    store,
	})
	if err != nil {
		return fail(fmt.Errorf("session: build resolver: %w", err))
	}
	s.pickups, err = pickups.NewManager(pickups.Config{
		Bus:       bus,
		Authority: validator,
		Scope:     cfg.Scope.ID,
		Entities:  cfg.Entities,
		Records:   store,
	})
	if err != nil {
		return fail(fmt.Errorf("session: build pickups: %w", err))
	}
	s.sweep, err = sweep.New(sweep.Config{
		Bus:          bus,
		Authority:    validator,
		Scope:        cfg.Scope.ID,
		Records:      store,
		Wall:         wall,
		RespawnDelay: cfg.RespawnDelay,
	})
	if err != nil {
		return fail(fmt.Errorf("session: build sweep: %w", err))
	}
	s.journal = journal.New(cfg.JournalFrames, cfg.JournalMaxAge, wall)
	s.journal.AttachMetrics(metrics)
	s.journal.Attach(bus)
	s.snapshot(0, sim.Now())

	lifecycle.SessionStarted(context.Background(), pub, 0, lifecycle.SessionPayload{
		SessionID: s.id,
		HostPeer:  string(cfg.Scope.Host),
	})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Bus returns the session's action bus.
func (s *Session) Bus() *action.Bus { return s.bus }

// Store returns the session's state store.
func (s *Session) Store() *state.Store { return s.store }

// Journal returns the per-tick action journal.
func (s *Session) Journal() *journal.Journal { return s.journal }

// Pickups returns the pickup manager.
func (s *Session) Pickups() *pickups.Manager { return s.pickups }

// Authority returns the authority validator.
func (s *Session) Authority() *authority.Validator { return s.authority }

// Scopes returns the scope registry, used to migrate the host.
func (s *Session) Scopes() *authority.Scopes { return s.scopes }

// Scope returns the session's replication scope id.
func (s *Session) Scope() action.ScopeID { return s.cfg.Scope.ID }

// Clock returns the simulation clock.
func (s *Session) Clock() *clock.Simulation { return s.clock }

// Inbox returns the staging inbox.
func (s *Session) Inbox() *Inbox { return s.inbox }

// Enqueue stages a remote envelope from peer for the next tick. It is safe
// to call from any goroutine.
func (s *Session) Enqueue(peer action.PeerID, env action.Envelope) bool {
	return s.push(Entry{Peer: peer, Envelope: env})
}

// Post stages a locally dispatched payload for the next tick. It is safe to
// call from any goroutine.
func (s *Session) Post(payload action.Payload) bool {
	return s.push(Entry{Payload: payload})
}

// Do runs fn on the tick goroutine at the start of the next tick, in order
// with the other staged entries. It is safe to call from any goroutine.
func (s *Session) Do(fn func()) bool {
	if fn == nil {
		return false
	}
	return s.push(Entry{Call: fn})
}

func (s *Session) push(entry Entry) bool {
	reason, drops := s.inbox.Push(entry)
	if reason == "" {
		return true
	}
	simulation.InboxOverflow(context.Background(), s.pub, s.clock.Tick(), logging.PeerRef(string(entry.Peer)),
		simulation.InboxOverflowPayload{Capacity: s.inbox.Capacity(), Kind: entry.Kind()})
	if drops > 0 && drops&(drops-1) == 0 {
		s.logger.Printf("[backpressure] dropping entry peer=%s kind=%s reason=%s count=%d",
			entry.Peer, entry.Kind(), reason, drops)
	}
	return false
}

// Close unsubscribes the session's components. It is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.journal.Detach()
	s.store.Close()
	lifecycle.SessionClosed(context.Background(), s.pub, s.clock.Tick(), lifecycle.SessionPayload{
		SessionID: s.id,
		HostPeer:  string(s.cfg.Scope.Host),
	})
}
