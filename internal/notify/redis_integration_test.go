//go:build integration

package notify

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/cloo-solutions/medicalchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRedisContainer(ctx, t)
	defer rc.Terminate(ctx)

	opts, err := goredis.ParseURL(rc.URL())
	require.NoError(t, err)
	rdb := goredis.NewClient(opts)
	defer rdb.Close()

	bus := NewRedisBus(rdb, logger.Nop())

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := bus.Subscribe(subCtx, "upload-42")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ProgressEvent("upload-42", "Processing document...")))
	require.NoError(t, bus.Publish(ctx, domain.ErrorEvent("upload-42", "boom")))

	first := receive(t, events)
	assert.Equal(t, "Processing document...", first.Payload.Message)
	second := receive(t, events)
	assert.Equal(t, domain.EventUploadError, second.Name)
	assert.Equal(t, "boom", second.Payload.Error)
}
