package errors

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(sql.ErrNoRows, "lookup %s", "docs/a.md")

	assert.Equal(t, "lookup docs/a.md: sql: no rows in result set", wrapped.Error())
	assert.True(t, Is(wrapped, sql.ErrNoRows))
}

func TestWithHint(t *testing.T) {
	err := WithHint(ErrNotTracked, "run pagesync push --create")

	require.True(t, Is(err, ErrNotTracked))
	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "run pagesync push --create", hints[0])
}

func TestNotFound(t *testing.T) {
	err := NewNotFoundError("page %s", "123")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "page 123")

	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("something else")))
}

func TestInvalidRecord(t *testing.T) {
	err := NewInvalidRecordError("document %s lists itself as ancestor", "42")
	assert.True(t, Is(err, ErrInvalidRecord))
	assert.False(t, Is(err, ErrNotFound))
}

func TestCombineErrors(t *testing.T) {
	primary := New("insert failed")
	secondary := New("rollback failed")
	combined := CombineErrors(primary, secondary)

	assert.True(t, Is(combined, primary))
	assert.Equal(t, "insert failed", combined.Error())
	assert.Nil(t, CombineErrors(nil, nil))
}
