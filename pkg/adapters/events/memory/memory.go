package memory

import (
	"context"
	"sync"

	"github.com/weftworks/weft/pkg/ports"
)

// Bus implements EventBus with in-process handlers. It backs single-node
// deployments and tests; the redis adapter covers everything distributed.
type Bus struct {
	subscribers map[ports.Category]map[int]ports.EventHandler
	nextID      int
	mu          sync.RWMutex
}

// NewBus creates a new in-memory event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[ports.Category]map[int]ports.EventHandler),
	}
}

// Publish delivers an event to every subscriber of its category. Handlers
// run asynchronously; their errors stay with them.
func (b *Bus) Publish(ctx context.Context, event ports.Event) error {
	if !ports.ValidCategory(event.Category) {
		return ports.ErrUnknownCategory
	}

	b.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(b.subscribers[event.Category]))
	for _, h := range b.subscribers[event.Category] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			_ = h(ctx, event)
		}(handler)
	}

	return nil
}

// Subscribe registers a handler for one category. The subscription is
// removed when the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context, category ports.Category, handler ports.EventHandler) error {
	if !ports.ValidCategory(category) {
		return ports.ErrUnknownCategory
	}

	b.mu.Lock()
	if b.subscribers[category] == nil {
		b.subscribers[category] = make(map[int]ports.EventHandler)
	}
	id := b.nextID
	b.nextID++
	b.subscribers[category][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(category, id)
	}()

	return nil
}

// Unsubscribe removes every handler registered for a category.
func (b *Bus) Unsubscribe(ctx context.Context, category ports.Category) error {
	if !ports.ValidCategory(category) {
		return ports.ErrUnknownCategory
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, category)
	return nil
}

// Close drops every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = make(map[ports.Category]map[int]ports.EventHandler)
	return nil
}

func (b *Bus) remove(category ports.Category, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subscribers[category]; ok {
		delete(handlers, id)
	}
}
