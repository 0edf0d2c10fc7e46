package actions

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventSchemaViolation is emitted when a payload fails validation at the bus.
	EventSchemaViolation logging.EventType = "actions.schema_violation"
	// EventRejected is emitted when a receptor or system discards an action.
	EventRejected logging.EventType = "actions.rejected"
)

// Rejection reasons attached to EventRejected.
const (
	ReasonUnauthorized   = "unauthorized"
	ReasonMissingRecord  = "missing_record"
	ReasonStaleReference = "stale_reference"
	ReasonInactive       = "inactive"
)

// SchemaViolationPayload describes why an action payload was refused.
type SchemaViolationPayload struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
	Remote bool   `json:"remote"`
}

// RejectedPayload describes why a well-formed action produced no mutation.
type RejectedPayload struct {
	Reason   string `json:"reason"`
	Receptor string `json:"receptor,omitempty"`
}

// SchemaViolation publishes a warning for a malformed payload.
func SchemaViolation(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, kind string, payload SchemaViolationPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:       EventSchemaViolation,
		Tick:       tick,
		Actor:      actor,
		Severity:   logging.SeverityWarn,
		Category:   logging.CategoryActions,
		Payload:    payload,
		Extra:      extra,
		ActionKind: kind,
	}
	pub.Publish(ctx, event)
}

// Rejected publishes a debug event for a silently discarded action.
func Rejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, kind string, seq uint64, payload RejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:       EventRejected,
		Tick:       tick,
		Actor:      actor,
		Severity:   logging.SeverityDebug,
		Category:   logging.CategoryActions,
		Payload:    payload,
		Extra:      extra,
		ActionKind: kind,
		ActionSeq:  seq,
	}
	pub.Publish(ctx, event)
}
