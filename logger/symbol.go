package logger

import (
	"github.com/teranos/pagesync/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These log with the symbol as a structured field, not in the message,
// which keeps messages clean and logs queryable by symbol.
//
//	logger.PollInfow(l, "cycle complete", "events", n)

// PollInfow logs an info message with the poll symbol (꩜)
func PollInfow(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	Or(l).Infow(msg, withSymbol(sym.Poll, keysAndValues)...)
}

// PollWarnw logs a warning message with the poll symbol (꩜)
func PollWarnw(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	Or(l).Warnw(msg, withSymbol(sym.Poll, keysAndValues)...)
}

// PollErrorw logs an error message with the poll symbol (꩜)
func PollErrorw(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	Or(l).Errorw(msg, withSymbol(sym.Poll, keysAndValues)...)
}

// DBDebugw logs a debug message with the record store symbol (⊔)
func DBDebugw(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	Or(l).Debugw(msg, withSymbol(sym.DB, keysAndValues)...)
}

// StateInfow logs an info message tagged with the glyph for a sync state.
func StateInfow(l *zap.SugaredLogger, state string, msg string, keysAndValues ...interface{}) {
	fields := append([]interface{}{FieldState, state}, keysAndValues...)
	Or(l).Infow(msg, withSymbol(sym.StateSymbol(state), fields)...)
}

func withSymbol(symbol string, keysAndValues []interface{}) []interface{} {
	return append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
}
