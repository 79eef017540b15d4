// Package errors provides error handling for pagesync.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping with context, and user-facing hints. Sentinel errors
// defined here classify failures of the sync engine's collaborators.
//
// Usage:
//
//	if err := store.Upsert(ctx, doc); err != nil {
//	    return errors.Wrapf(err, "failed to record %s", doc.Path)
//	}
//
//	if errors.Is(err, errors.ErrNotTracked) {
//	    // offer `pagesync push --create`
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// CombineErrors joins a secondary error onto a primary one, used when a
// rollback fails after the original failure.
var CombineErrors = crdb.CombineErrors

// Sentinel errors for the sync engine and its collaborators.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested record or remote page does not exist
	ErrNotFound = New("not found")

	// ErrNotTracked indicates a local document has no sync record yet
	ErrNotTracked = New("document not tracked")

	// ErrConflict indicates both sides changed since the last sync
	ErrConflict = New("sync conflict")

	// ErrNotInConflict indicates a resolution was requested for a document that is not in conflict
	ErrNotInConflict = New("document not in conflict")

	// ErrInvalidRecord indicates a record violates the data model invariants
	ErrInvalidRecord = New("invalid record")

	// ErrPathTaken indicates the local path is already mapped to a different remote id
	ErrPathTaken = New("path already mapped")

	// ErrVersionConflict indicates the remote rejected an update because the version moved
	ErrVersionConflict = New("remote version conflict")

	// ErrPollInProgress indicates a poll cycle is already running
	ErrPollInProgress = New("poll already in progress")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRecordError creates an invalid-record error with a formatted message
func NewInvalidRecordError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRecord, Newf(format, args...).Error())
}
