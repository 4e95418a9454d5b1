package notify

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
)

const defaultTopicPrefix = "medchat:events:"

// RedisBus relays events through Redis pub/sub so every server instance can
// serve subscribers for uploads processed elsewhere.
type RedisBus struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisBus(rdb goredis.UniversalClient, log *logger.Logger) *RedisBus {
	return &RedisBus{
		log:    log.With("service", "RedisBus"),
		rdb:    rdb,
		prefix: defaultTopicPrefix,
	}
}

func (b *RedisBus) topic(channel string) string {
	return b.prefix + channel
}

func (b *RedisBus) Publish(ctx context.Context, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.topic(event.Channel), raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error) {
	sub := b.rdb.Subscribe(ctx, b.topic(channel))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan domain.Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok || m == nil {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the Redis client is owned by the caller
func (b *RedisBus) Close() error {
	return nil
}
