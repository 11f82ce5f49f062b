package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"agent-workspace/plan"
)

// SchemaVersion is written into every persisted value.
const SchemaVersion = 1

const defaultPrefix = "workspace"

// ErrSchemaVersion is returned when a stored value was written by an
// unknown schema version.
var ErrSchemaVersion = errors.New("unsupported schema version")

// Store persists the current plan and the plan history of a session as two
// independently keyed values.
type Store interface {
	LoadCurrent(ctx context.Context, session string) (*plan.Plan, error)
	// SaveCurrent stores p; a nil plan removes the value.
	SaveCurrent(ctx context.Context, session string, p *plan.Plan) error
	LoadHistory(ctx context.Context, session string) ([]*plan.Plan, error)
	SaveHistory(ctx context.Context, session string, plans []*plan.Plan) error
}

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, Data: data})
}

func decode(raw []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: %d", ErrSchemaVersion, env.SchemaVersion)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

func currentKey(prefix, session string) string {
	return strings.Join([]string{prefix, strings.TrimSpace(session), "current_plan"}, ":")
}

func historyKey(prefix, session string) string {
	return strings.Join([]string{prefix, strings.TrimSpace(session), "plan_history"}, ":")
}

// MemoryStore is a thread-safe in-process Store. Values are kept encoded so
// callers never share plan memory with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) LoadCurrent(ctx context.Context, session string) (*plan.Plan, error) {
	raw, ok := s.get(currentKey(defaultPrefix, session))
	if !ok {
		return nil, nil
	}
	var p plan.Plan
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MemoryStore) SaveCurrent(ctx context.Context, session string, p *plan.Plan) error {
	key := currentKey(defaultPrefix, session)
	if p == nil {
		s.mu.Lock()
		delete(s.values, key)
		s.mu.Unlock()
		return nil
	}
	raw, err := encode(p)
	if err != nil {
		return err
	}
	s.put(key, raw)
	return nil
}

func (s *MemoryStore) LoadHistory(ctx context.Context, session string) ([]*plan.Plan, error) {
	raw, ok := s.get(historyKey(defaultPrefix, session))
	if !ok {
		return nil, nil
	}
	var plans []*plan.Plan
	if err := decode(raw, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *MemoryStore) SaveHistory(ctx context.Context, session string, plans []*plan.Plan) error {
	if plans == nil {
		plans = []*plan.Plan{}
	}
	raw, err := encode(plans)
	if err != nil {
		return err
	}
	s.put(historyKey(defaultPrefix, session), raw)
	return nil
}

func (s *MemoryStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.values[key]
	return raw, ok
}

func (s *MemoryStore) put(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
}
