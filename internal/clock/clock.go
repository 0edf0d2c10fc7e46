package clock

import (
	"sync"
	"time"
)

// Millis is a timestamp or duration expressed in milliseconds. Gameplay
// records store Millis so replicated values compare the same on every peer.
type Millis int64

// FromDuration converts a duration into milliseconds.
func FromDuration(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}

// Duration converts the value back into a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Add offsets the timestamp by the provided duration.
func (m Millis) Add(d time.Duration) Millis {
	return m + FromDuration(d)
}

// Source reports the current time of a clock.
type Source interface {
	Now() Millis
}

// SourceFunc adapts a function into a Source.
type SourceFunc func() Millis

// Now implements Source.
func (f SourceFunc) Now() Millis {
	if f == nil {
		return 0
	}
	return f()
}

// Wall reads the process wall clock.
type Wall struct{}

// Now implements Source.
func (Wall) Now() Millis {
	return Millis(time.Now().UnixMilli())
}

// Simulation is the monotonic tick clock. It only moves when the tick loop
// advances it, which keeps rate limiting and deadline comparisons
// replayable.
type Simulation struct {
	mu   sync.RWMutex
	now  Millis
	tick uint64
}

// NewSimulation constructs a simulation clock starting at origin.
func NewSimulation(origin Millis) *Simulation {
	return &Simulation{now: origin}
}

// Now implements Source.
func (s *Simulation) Now() Millis {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Tick reports the number of completed advances.
func (s *Simulation) Tick() uint64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Advance moves the clock forward by delta and increments the tick counter.
// Negative deltas are treated as zero so the clock never runs backwards.
func (s *Simulation) Advance(delta time.Duration) (uint64, Millis) {
	if s == nil {
		return 0, 0
	}
	if delta < 0 {
		delta = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	s.now = s.now.Add(delta)
	return s.tick, s.now
}

// Manual is a settable clock for tests and tools.
type Manual struct {
	mu  sync.RWMutex
	now Millis
}

// NewManual constructs a manual clock at the provided instant.
func NewManual(now Millis) *Manual {
	return &Manual{now: now}
}

// Now implements Source.
func (m *Manual) Now() Millis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to an absolute instant.
func (m *Manual) Set(now Millis) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
