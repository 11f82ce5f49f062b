package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus is a Log backed by one Redis stream per session.
type Bus struct {
	client *redis.Client
	block  time.Duration
	maxLen int64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBlock sets how long Tail waits for new entries.
func WithBlock(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.block = d
		}
	}
}

// WithMaxLen caps each stream at roughly n entries.
func WithMaxLen(n int64) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.maxLen = n
		}
	}
}

// NewBus creates a bus for the given redis client.
func NewBus(client *redis.Client, opts ...BusOption) *Bus {
	b := &Bus{client: client, block: defaultBlock, maxLen: defaultMaxLen}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Publish(ctx context.Context, session string, kind Kind, payload any) (string, error) {
	if b == nil || b.client == nil {
		return "", errors.New("event bus not configured")
	}
	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(session),
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":    string(kind),
			"payload": string(data),
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
}

func (b *Bus) Tail(ctx context.Context, session, afterID string) ([]Event, string, error) {
	if b == nil || b.client == nil {
		return nil, afterID, errors.New("event bus not configured")
	}
	if err := ValidateCursor(afterID); err != nil {
		return nil, afterID, err
	}
	stream := StreamKey(session)

	if startsAtEnd(afterID) {
		last, err := b.lastID(ctx, stream)
		if err != nil {
			return nil, afterID, err
		}
		afterID = last
	}

	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, afterID},
		Count:   defaultBatchCount,
		Block:   b.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, afterID, nil
	}
	if err != nil {
		return nil, afterID, fmt.Errorf("tail %s: %w", stream, err)
	}

	out := make([]Event, 0)
	nextID := afterID
	for _, s := range res {
		for _, msg := range s.Messages {
			out = append(out, eventFromMessage(session, msg))
			nextID = msg.ID
		}
	}
	return out, nextID, nil
}

// lastID resolves "$" up front so entries written between two Tail calls
// are not skipped.
func (b *Bus) lastID(ctx context.Context, stream string) (string, error) {
	msgs, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("resolve stream end: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func eventFromMessage(session string, msg redis.XMessage) Event {
	ev := Event{
		ID:      msg.ID,
		Session: session,
		Kind:    Kind(stringVal(msg.Values["kind"])),
		Payload: []byte(stringVal(msg.Values["payload"])),
	}
	if len(ev.Payload) == 0 {
		ev.Payload = []byte("null")
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringVal(msg.Values["ts"])); err == nil {
		ev.Time = ts
	}
	return ev
}

func stringVal(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}
