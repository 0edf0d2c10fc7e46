package simulation

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a tick exceeds its time budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventInboxOverflow is emitted when remote actions are dropped at the inbox.
	EventInboxOverflow logging.EventType = "simulation.inbox_overflow"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// InboxOverflowPayload captures the inbox state when a remote action is dropped.
type InboxOverflowPayload struct {
	Capacity int    `json:"capacity"`
	Kind     string `json:"kind"`
}

// TickBudgetOverrun publishes a warning when the tick loop exceeds its budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}

// InboxOverflow publishes a warning when the remote inbox is saturated.
func InboxOverflow(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload InboxOverflowPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInboxOverflow,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
	})
}
