package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_RollbackRunsInReverse(t *testing.T) {
	ctx := context.Background()
	saga := NewSaga(nil)
	var undone []string

	for _, name := range []string{"first", "second", "third"} {
		err := saga.Do(ctx, name,
			func(context.Context) error { return nil },
			func(context.Context) error {
				undone = append(undone, name)
				return nil
			},
		)
		require.NoError(t, err)
	}

	require.NoError(t, saga.Rollback(ctx))
	assert.Equal(t, []string{"third", "second", "first"}, undone)

	// compensations run once
	require.NoError(t, saga.Rollback(ctx))
	assert.Len(t, undone, 3)
}

func TestSaga_FailedActionIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	saga := NewSaga(nil)
	compensated := false

	err := saga.Do(ctx, "insert",
		func(context.Context) error { return errors.New("boom") },
		func(context.Context) error {
			compensated = true
			return nil
		},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert")

	require.NoError(t, saga.Rollback(ctx))
	assert.False(t, compensated)
}

func TestSaga_RollbackContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	saga := NewSaga(nil)
	var undone []string

	require.NoError(t, saga.Do(ctx, "a", func(context.Context) error { return nil }, func(context.Context) error {
		undone = append(undone, "a")
		return nil
	}))
	require.NoError(t, saga.Do(ctx, "b", func(context.Context) error { return nil }, func(context.Context) error {
		return errors.New("cannot undo b")
	}))
	require.NoError(t, saga.Do(ctx, "c", func(context.Context) error { return nil }, nil))

	err := saga.Rollback(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot undo b")
	assert.Equal(t, []string{"a"}, undone)
}

func TestSaga_RollbackIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	saga := NewSaga(nil)

	var undoErr error
	require.NoError(t, saga.Do(ctx, "create", func(context.Context) error { return nil }, func(ctx context.Context) error {
		undoErr = ctx.Err()
		return nil
	}))

	cancel()
	require.NoError(t, saga.Rollback(ctx))
	assert.NoError(t, undoErr)
}
