package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across pagesync.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldDocumentID = "document_id"
	FieldPath       = "path"
	FieldTitle      = "title"
	FieldSpace      = "space"
	FieldCycleID    = "cycle_id"

	// Components
	FieldComponent = "component"

	// Sync
	FieldState      = "state"
	FieldOutcome    = "outcome"
	FieldVersion    = "version"
	FieldPrevious   = "previous_version"
	FieldLocalHash  = "local_hash"
	FieldRemoteHash = "remote_hash"
	FieldBaseHash   = "base_hash"
	FieldScope      = "scope"
	FieldEvent      = "event"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldInterval   = "interval"
	FieldSince      = "since"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Files and network
	FieldFile   = "file"
	FieldLine   = "line"
	FieldURL    = "url"
	FieldStatus = "status"

	FieldSymbol = "symbol"
)

type contextKey string

const (
	cycleIDKey   contextKey = "logger_cycle_id"
	componentKey contextKey = "logger_component"
)

// WithCycleID adds a poll cycle ID to the context for logging
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if cycleID, ok := ctx.Value(cycleIDKey).(string); ok && cycleID != "" {
		fields = append(fields, FieldCycleID, cycleID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base (or the global logger) with fields extracted from ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	l := Or(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
//	type Poller struct {
//	    logger *zap.SugaredLogger
//	}
//
//	p := &Poller{logger: logger.ComponentLogger("poller")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
