package notify

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.Event{}
}

func TestMemoryBus_DeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "upload")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ProgressEvent("upload", "Saving document details...")))
	require.NoError(t, bus.Publish(ctx, domain.ProgressEvent("other", "ignored")))
	require.NoError(t, bus.Publish(ctx, domain.CompleteEvent("upload", "d1", "Title")))

	first := receive(t, events)
	assert.Equal(t, domain.EventUploadProgress, first.Name)
	assert.Equal(t, "Saving document details...", first.Payload.Message)

	second := receive(t, events)
	assert.Equal(t, domain.EventUploadComplete, second.Name)
	assert.Equal(t, "d1", second.Payload.ID)
}

func TestMemoryBus_PublishDoesNotBlock(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := bus.Subscribe(ctx, "upload")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = bus.Publish(ctx, domain.ProgressEvent("upload", "tick"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestMemoryBus_UnsubscribeOnCancel(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.Subscribe(ctx, "upload")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}

	assert.NoError(t, bus.Publish(context.Background(), domain.ProgressEvent("upload", "late")))
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())

	events, err := bus.Subscribe(context.Background(), "upload")
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, ok := <-events
	assert.False(t, ok)

	after, err := bus.Subscribe(context.Background(), "upload")
	require.NoError(t, err)
	_, ok = <-after
	assert.False(t, ok)
}
