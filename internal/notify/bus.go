package notify

import (
	"context"

	"github.com/cloo-solutions/medicalchat/internal/domain"
)

const subscriberBuffer = 32

// Bus publishes upload events and lets clients follow a channel
type Bus interface {
	// Publish never waits for subscribers to consume the event
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe delivers events for channel until ctx is done, then closes
	// the returned channel.
	Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error)
	Close() error
}
