package notify

import (
	"context"
	"sync"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
)

// MemoryBus fans events out to subscribers in this process only
type MemoryBus struct {
	log *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{}
	closed      bool
}

func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		log:         log.With("service", "MemoryBus"),
		subscribers: make(map[string]map[chan domain.Event]struct{}),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.Channel] {
		select {
		case ch <- event:
		default:
			b.log.Warn("dropping event; subscriber buffer full", "channel", event.Channel, "event", event.Name)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan domain.Event]struct{})
	}
	b.subscribers[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, ch)
	}()

	return ch, nil
}

func (b *MemoryBus) remove(channel string, ch chan domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(b.subscribers, channel)
	}
	close(ch)
}

// Close ends every subscription
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subs := range b.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
