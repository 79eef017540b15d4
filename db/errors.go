package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/pagesync/errors"
)

// ErrClosed marks operations attempted after the database was closed, as
// happens when a watcher callback races shutdown.
var ErrClosed = errors.New("database is closed")

// IsClosed reports whether err comes from a closed database. database/sql
// returns its own unexported error for this, so the message is matched too.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrClosed) || strings.Contains(err.Error(), "sql: database is closed")
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsBusy reports whether err is a lock timeout.
func IsBusy(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
}
