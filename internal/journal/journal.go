// Package journal records the delivered action stream in per-tick batches
// so observers (renderers, UI, relays) can catch up on what happened.
package journal

import (
	"sync"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
)

const (
	metricJournalRecorded = "journal_recorded_total"
	metricJournalEvicted  = "journal_evicted_total"
)

// Metrics is the counter sink the journal reports through.
type Metrics interface {
	Add(string, uint64)
}

// Batch captures the envelopes delivered during one tick.
type Batch struct {
	Tick       uint64            `json:"tick"`
	Time       clock.Millis      `json:"time"`
	Envelopes  []action.Envelope `json:"envelopes,omitempty"`
	RecordedAt clock.Millis      `json:"recordedAt"`
}

// Eviction describes a batch removed from the buffer and why it was dropped.
type Eviction struct {
	Tick   uint64 `json:"tick"`
	Reason string `json:"reason,omitempty"`
}

// SealResult reports journal state after a tick is sealed.
type SealResult struct {
	Recorded int        `json:"recorded"`
	Size     int        `json:"size"`
	Oldest   uint64     `json:"oldest"`
	Newest   uint64     `json:"newest"`
	Evicted  []Eviction `json:"evicted,omitempty"`
}

// Journal accumulates delivered envelopes for the current tick and keeps a
// rolling buffer of sealed batches bounded by count and age.
type Journal struct {
	mu        sync.RWMutex
	pending   []action.Envelope
	batches   []Batch
	maxFrames int
	maxAge    time.Duration
	clock     clock.Source
	metrics   Metrics
	detach    func()
}

// New constructs a journal retaining at most capacity batches, none older
// than maxAge. A zero maxAge disables age eviction. The clock stamps
// RecordedAt and defaults to the wall clock.
func New(capacity int, maxAge time.Duration, source clock.Source) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	if source == nil {
		source = clock.Wall{}
	}
	return &Journal{
		batches:   make([]Batch, 0, capacity),
		maxFrames: capacity,
		maxAge:    maxAge,
		clock:     source,
	}
}

// AttachMetrics installs the counter sink.
func (j *Journal) AttachMetrics(m Metrics) {
	j.mu.Lock()
	j.metrics = m
	j.mu.Unlock()
}

// Attach records every envelope the bus delivers from now on. Cached
// envelopes delivered before the journal attached are not replayed.
func (j *Journal) Attach(bus *action.Bus) {
	unsubscribe := bus.Subscribe("journal", action.All(), j.Record)
	j.mu.Lock()
	j.detach = unsubscribe
	j.mu.Unlock()
}

// Detach stops recording.
func (j *Journal) Detach() {
	j.mu.Lock()
	detach := j.detach
	j.detach = nil
	j.mu.Unlock()
	if detach != nil {
		detach()
	}
}

// Record stages an envelope for the current tick.
func (j *Journal) Record(env action.Envelope) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, env)
	if j.metrics != nil {
		j.metrics.Add(metricJournalRecorded, 1)
	}
}

// Pending returns a copy of the envelopes staged since the last seal.
func (j *Journal) Pending() []action.Envelope {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.pending) == 0 {
		return nil
	}
	return append([]action.Envelope(nil), j.pending...)
}

// Seal closes the current tick into a batch and enforces retention. Ticks
// with no envelopes still produce an empty batch so observers can tell a
// quiet tick from a missed one.
func (j *Journal) Seal(tick uint64, now clock.Millis) SealResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	envelopes := j.pending
	j.pending = nil
	if j.maxFrames == 0 {
		j.batches = j.batches[:0]
		return SealResult{Recorded: len(envelopes)}
	}

	recordedAt := j.clock.Now()
	j.batches = append(j.batches, Batch{Tick: tick, Time: now, Envelopes: envelopes, RecordedAt: recordedAt})

	evicted := make([]Eviction, 0)
	if j.maxAge > 0 {
		cutoff := recordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.batches) && j.batches[idx].RecordedAt < cutoff {
			evicted = append(evicted, Eviction{Tick: j.batches[idx].Tick, Reason: "expired"})
			idx++
		}
		if idx > 0 {
			copy(j.batches, j.batches[idx:])
			j.batches = j.batches[:len(j.batches)-idx]
		}
	}

	if len(j.batches) > j.maxFrames {
		overflow := len(j.batches) - j.maxFrames
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, Eviction{Tick: j.batches[i].Tick, Reason: "count"})
		}
		copy(j.batches, j.batches[overflow:])
		j.batches = j.batches[:len(j.batches)-overflow]
	}
	if len(evicted) > 0 && j.metrics != nil {
		j.metrics.Add(metricJournalEvicted, uint64(len(evicted)))
	}

	size := len(j.batches)
	result := SealResult{Recorded: len(envelopes), Size: size, Evicted: evicted}
	if size > 0 {
		result.Oldest = j.batches[0].Tick
		result.Newest = j.batches[size-1].Tick
	}
	return result
}

// Batches exposes the retained batches in chronological order. Callers
// receive a copy.
func (j *Journal) Batches() []Batch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.batches) == 0 {
		return nil
	}
	batches := make([]Batch, len(j.batches))
	copy(batches, j.batches)
	return batches
}

// BatchByTick returns the batch sealed for tick.
func (j *Journal) BatchByTick(tick uint64) (Batch, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, batch := range j.batches {
		if batch.Tick == tick {
			return batch, true
		}
	}
	return Batch{}, false
}

// Since returns every batch sealed after tick. It reports false when
// batches after tick were already evicted; the observer has a gap and must
// rebuild from the state store instead.
func (j *Journal) Since(tick uint64) ([]Batch, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.batches) == 0 {
		return nil, true
	}
	if j.batches[0].Tick > tick+1 {
		return nil, false
	}
	out := make([]Batch, 0, len(j.batches))
	for _, batch := range j.batches {
		if batch.Tick > tick {
			out = append(out, batch)
		}
	}
	return out, true
}

// Window reports the current retention window.
func (j *Journal) Window() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.batches)
	if size == 0 {
		return size, 0, 0
	}
	return size, j.batches[0].Tick, j.batches[size-1].Tick
}
