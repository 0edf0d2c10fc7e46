package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"skirmish/server/logging"
)

// Console prints one human-readable line per event.
type Console struct {
	logger  *log.Logger
	verbose bool
}

func NewConsole(w io.Writer, cfg logging.ConsoleConfig) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{logger: log.New(w, "", log.LstdFlags), verbose: cfg.Verbose}
}

func (s *Console) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	action := ""
	if event.ActionKind != "" {
		action = fmt.Sprintf(" action=%s#%d", event.ActionKind, event.ActionSeq)
	}
	extra := ""
	if s.verbose && len(event.Extra) > 0 {
		extra = " extra=" + formatJSON(event.Extra)
	}
	s.logger.Printf("[%s] tick=%d actor=%s severity=%s%s%s%s%s",
		event.Type,
		event.Tick,
		formatEntity(event.Actor),
		event.Severity,
		action,
		formatTargets(event.Targets),
		formatPayload(event.Payload),
		extra,
	)
	return nil
}

func (s *Console) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	return " payload=" + formatJSON(payload)
}

func formatJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
