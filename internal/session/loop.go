package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"skirmish/server/internal/clock"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging/simulation"
)

// StepResult summarises one tick.
type StepResult struct {
	Tick         uint64
	Now          clock.Millis
	Delta        time.Duration
	Entries      int
	Rejected     int
	Delivered    int
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
}

// Step advances the simulation by delta and runs one tick in fixed order:
// staged entries in arrival order, the combat resolver, pickup contacts,
// the timed sweep, then the journal seal.
func (s *Session) Step(ctx context.Context, delta time.Duration) StepResult {
	tick, now := s.clock.Advance(delta)
	_, span := telemetry.StartTick(ctx, s.id, tick)
	defer span.End()

	result := StepResult{Tick: tick, Now: now, Delta: delta}
	entries := s.inbox.Drain()
	result.Entries = len(entries)
	for _, entry := range entries {
		var err error
		switch {
		case entry.Call != nil:
			entry.Call()
		case entry.Payload != nil:
			_, err = s.bus.Dispatch(entry.Payload)
		default:
			_, err = s.bus.Receive(entry.Envelope)
		}
		if err != nil {
			result.Rejected++
		}
	}

	s.resolver.Run()
	if s.cfg.Contacts != nil {
		s.pickups.Process(s.cfg.Contacts.DrainContacts())
	}
	s.sweep.Run()

	sealed := s.journal.Seal(tick, now)
	result.Delivered = sealed.Recorded
	s.metrics.Add(telemetry.MetricTickCount, 1)
	span.SetAttributes(
		attribute.Int("session.entries", result.Entries),
		attribute.Int("session.rejected", result.Rejected),
		attribute.Int("session.delivered", result.Delivered),
	)
	s.snapshot(tick, now)
	return result
}

// Run drives the fixed-timestep loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	tickRate := s.cfg.TickRate
	budget := time.Second / time.Duration(tickRate)
	maxDelta := budget
	if s.cfg.CatchupMaxTicks > 1 {
		maxDelta = budget * time.Duration(s.cfg.CatchupMaxTicks)
	}
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	last := s.wall.Now()
	var streak uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.wall.Now()
			delta := (now - last).Duration()
			clamped := false
			if delta <= 0 {
				delta = budget
			} else if delta > maxDelta {
				delta = maxDelta
				clamped = true
			}
			last = now

			start := time.Now()
			result := s.Step(ctx, delta)
			result.Duration = time.Since(start)
			result.Budget = budget
			result.ClampedDelta = clamped

			if result.Duration > budget {
				streak++
				s.reportOverrun(ctx, result, streak)
			} else {
				streak = 0
			}
			if s.cfg.AfterStep != nil {
				s.cfg.AfterStep(result)
			}
		}
	}
}

func (s *Session) reportOverrun(ctx context.Context, result StepResult, streak uint64) {
	s.metrics.Add(telemetry.MetricTickOverruns, 1)
	ratio := float64(result.Duration) / float64(result.Budget)
	simulation.TickBudgetOverrun(ctx, s.pub, result.Tick, simulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          ratio,
		Streak:         streak,
	}, nil)
}
