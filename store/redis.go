package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agent-workspace/plan"
)

// RedisStore persists session state as JSON envelopes under
// workspace:<session>:current_plan and workspace:<session>:plan_history.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires both keys ttl after the last write. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) LoadCurrent(ctx context.Context, session string) (*plan.Plan, error) {
	raw, err := s.load(ctx, currentKey(s.prefix, session))
	if err != nil || raw == nil {
		return nil, err
	}
	var p plan.Plan
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) SaveCurrent(ctx context.Context, session string, p *plan.Plan) error {
	key := currentKey(s.prefix, session)
	if p == nil {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("delete current plan: %w", err)
		}
		return nil
	}
	return s.save(ctx, key, p)
}

func (s *RedisStore) LoadHistory(ctx context.Context, session string) ([]*plan.Plan, error) {
	raw, err := s.load(ctx, historyKey(s.prefix, session))
	if err != nil || raw == nil {
		return nil, err
	}
	var plans []*plan.Plan
	if err := decode(raw, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *RedisStore) SaveHistory(ctx context.Context, session string, plans []*plan.Plan) error {
	if plans == nil {
		plans = []*plan.Plan{}
	}
	return s.save(ctx, historyKey(s.prefix, session), plans)
}

func (s *RedisStore) load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store not initialized")
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return raw, nil
}

func (s *RedisStore) save(ctx context.Context, key string, v any) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not initialized")
	}
	raw, err := encode(v)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
