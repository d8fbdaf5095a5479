package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

const (
	decisionChannel = "decisions"
	decisionStream  = "decisions:stream"

	// streamMaxLen bounds the durable stream via XADD MAXLEN ~.
	streamMaxLen int64 = 10000
)

// DecisionBus fans copy decisions out over Pub/Sub for live subscribers and
// retains them on a capped stream for the operator API.
type DecisionBus struct {
	rdb *redis.Client
}

// NewDecisionBus creates a DecisionBus backed by the given Client.
func NewDecisionBus(c *Client) *DecisionBus {
	return &DecisionBus{rdb: c.Underlying()}
}

// Publish sends one decision payload to live subscribers.
func (b *DecisionBus) Publish(ctx context.Context, payload []byte) error {
	if err := b.rdb.Publish(ctx, decisionChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish decision: %w", err)
	}
	return nil
}

// Subscribe returns a channel of decision payloads. The subscription closes
// with the context, and the returned channel is closed at that point.
func (b *DecisionBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, decisionChannel)

	// Receive the confirmation so a dead Redis fails here, not on first read.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe decisions: %w", err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend appends a decision to the durable stream with approximate
// MAXLEN trimming.
func (b *DecisionBus) StreamAppend(ctx context.Context, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: decisionStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: decision stream append: %w", err)
	}
	return nil
}

// StreamRead returns up to count decisions recorded after lastID, oldest
// first. An empty lastID returns the newest count entries instead, for
// replay on connect. No pending messages is an empty result, not an error.
func (b *DecisionBus) StreamRead(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "" {
		entries, err := b.rdb.XRevRangeN(ctx, decisionStream, "+", "-", int64(count)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: decision stream tail: %w", err)
		}
		// XRevRange yields newest first; flip back to chronological order.
		messages := make([]domain.StreamMessage, 0, len(entries))
		for i := len(entries) - 1; i >= 0; i-- {
			if m, ok := toStreamMessage(entries[i]); ok {
				messages = append(messages, m)
			}
		}
		return messages, nil
	}

	args := &redis.XReadArgs{
		Streams: []string{decisionStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}

	results, err := b.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: decision stream read: %w", err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			if m, ok := toStreamMessage(msg); ok {
				messages = append(messages, m)
			}
		}
	}
	return messages, nil
}

func toStreamMessage(msg redis.XMessage) (domain.StreamMessage, bool) {
	payload, ok := msg.Values["payload"]
	if !ok {
		return domain.StreamMessage{}, false
	}
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return domain.StreamMessage{}, false
	}
	return domain.StreamMessage{ID: msg.ID, Payload: data}, true
}

var _ domain.DecisionBus = (*DecisionBus)(nil)
