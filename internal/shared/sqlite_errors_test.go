package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsSQLiteConflictError(t *testing.T) {
	assert.False(t, IsSQLiteConflictError(nil))
	assert.False(t, IsSQLiteConflictError(errors.New("constraint failed")))
	assert.True(t, IsSQLiteConflictError(errors.New("exec: SQLITE_BUSY (5)")))
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked")))
}

func TestRetryOnConflictRetriesBusyOnly(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, time.Millisecond, "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("no such table")
	err = RetryOnConflict(context.Background(), 3, time.Millisecond, "test", func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 2, time.Millisecond, "test", func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	assert.True(t, IsSQLiteBusyError(err))
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflictStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOnConflict(ctx, 5, time.Hour, "test", func() error {
		return errors.New("SQLITE_BUSY")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
