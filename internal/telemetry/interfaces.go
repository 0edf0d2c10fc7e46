package telemetry

import (
	"log"

	"skirmish/server/logging"
)

// Logger is the printf-style fallback used by transport and startup code.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger for components that need one.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// Metrics is the counter surface shared by the bus, the authority validator
// and the transport.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// Counter keys.
const (
	MetricActionsDispatched  = "actions_dispatched_total"
	MetricActionsReceived    = "actions_received_total"
	MetricActionsDelivered   = "actions_delivered_total"
	MetricSchemaViolations   = "actions_schema_violations_total"
	MetricUnauthorized       = "actions_unauthorized_total"
	MetricMissingRecord      = "actions_missing_record_total"
	MetricStaleReference     = "actions_stale_reference_total"
	MetricInactive           = "actions_inactive_total"
	MetricInboxDropped       = "inbox_dropped_total"
	MetricTickCount          = "ticks_total"
	MetricTickOverruns       = "tick_overruns_total"
	MetricPeersConnected     = "peers_connected"
	MetricFramesDecodeFailed = "frames_decode_failed_total"
)

// WrapMetrics adapts the logging router metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// NopMetrics discards every update.
func NopMetrics() Metrics { return nopMetrics{} }
