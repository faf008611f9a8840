package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/ports"
)

// Bus implements EventBus on Redis Streams, one stream per category. Every
// daemon in a deployment shares the consumer group, so each event is handled
// once across the fleet.
type Bus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string

	mu      sync.Mutex
	readers map[ports.Category][]context.CancelFunc
}

// NewBus creates a Redis Streams event bus
func NewBus(client *redis.Client, consumerGroup, consumerName string, logger *zap.Logger) (*Bus, error) {
	return &Bus{
		client:        client,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		readers:       make(map[ports.Category][]context.CancelFunc),
	}, nil
}

// Publish appends the event to its category's stream.
func (b *Bus) Publish(ctx context.Context, event ports.Event) error {
	if !ports.ValidCategory(event.Category) {
		return ports.ErrUnknownCategory
	}
	streamKey := getStreamKey(event.Category)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}

	if _, err := b.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("category", string(event.Category)),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe starts a reader on the category's stream. The reader stops when
// the context is cancelled or the category is unsubscribed.
func (b *Bus) Subscribe(ctx context.Context, category ports.Category, handler ports.EventHandler) error {
	if !ports.ValidCategory(category) {
		return ports.ErrUnknownCategory
	}
	streamKey := getStreamKey(category)

	// Create consumer group if it doesn't exist
	err := b.client.XGroupCreateMkStream(ctx, streamKey, b.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.readers[category] = append(b.readers[category], cancel)
	b.mu.Unlock()

	b.logger.Info("subscribed to event stream",
		zap.String("stream", streamKey),
		zap.String("category", string(category)),
		zap.String("consumer_group", b.consumerGroup),
		zap.String("consumer", b.consumerName))

	go b.readStream(readCtx, streamKey, handler)

	return nil
}

// readStream reads events from a stream
func (b *Bus) readStream(ctx context.Context, streamKey string, handler ports.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.consumerGroup,
				Consumer: b.consumerName,
				Streams:  []string{streamKey, ">"},
				Count:    10,
				Block:    time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					// No new messages
					continue
				}
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("failed to read from stream",
					zap.String("stream", streamKey),
					zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					b.processMessage(ctx, streamKey, message, handler)
				}
			}
		}
	}
}

// processMessage processes a single message from the stream
func (b *Bus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handler ports.EventHandler) {
	data, ok := message.Values["data"].(string)
	if !ok {
		b.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		return
	}

	var event ports.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		b.logger.Error("failed to unmarshal event",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, event); err != nil {
		b.logger.Error("handler error",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := b.client.XAck(ctx, streamKey, b.consumerGroup, message.ID).Err(); err != nil {
		b.logger.Error("failed to acknowledge message",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

// Unsubscribe stops every reader on the category. Pending entries stay in
// the consumer group for other daemons to claim.
func (b *Bus) Unsubscribe(ctx context.Context, category ports.Category) error {
	if !ports.ValidCategory(category) {
		return ports.ErrUnknownCategory
	}

	b.mu.Lock()
	cancels := b.readers[category]
	delete(b.readers, category)
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Close stops every reader. The Redis client is closed by its owner.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cancels := range b.readers {
		for _, cancel := range cancels {
			cancel()
		}
	}
	b.readers = make(map[ports.Category][]context.CancelFunc)
	return nil
}

// getStreamKey returns the Redis stream key for a category
func getStreamKey(category ports.Category) string {
	return fmt.Sprintf("weft:events:%s", category)
}
