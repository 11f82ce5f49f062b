package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryLog is an in-process Log with the same ID and blocking semantics as
// the Redis bus. Used when the service runs without Redis.
type MemoryLog struct {
	mu       sync.Mutex
	sessions map[string]*memoryStream
	block    time.Duration
	maxLen   int
}

type memoryStream struct {
	seq     uint64
	events  []Event
	notify  chan struct{} // closed and replaced on every publish
	waiters int
}

// NewMemoryLog creates an empty log. block bounds how long Tail waits.
func NewMemoryLog(block time.Duration) *MemoryLog {
	if block <= 0 {
		block = defaultBlock
	}
	return &MemoryLog{
		sessions: make(map[string]*memoryStream),
		block:    block,
		maxLen:   defaultMaxLen,
	}
}

func (m *MemoryLog) stream(session string) *memoryStream {
	key := StreamKey(session)
	s, ok := m.sessions[key]
	if !ok {
		s = &memoryStream{notify: make(chan struct{})}
		m.sessions[key] = s
	}
	return s
}

func (m *MemoryLog) Publish(ctx context.Context, session string, kind Kind, payload any) (string, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stream(session)
	s.seq++
	ev := Event{
		ID:      fmt.Sprintf("%d-0", s.seq),
		Session: session,
		Kind:    kind,
		Payload: data,
		Time:    time.Now().UTC(),
	}
	s.events = append(s.events, ev)
	if len(s.events) > m.maxLen {
		s.events = s.events[len(s.events)-m.maxLen:]
	}
	close(s.notify)
	s.notify = make(chan struct{})
	return ev.ID, nil
}

func (m *MemoryLog) Tail(ctx context.Context, session, afterID string) ([]Event, string, error) {
	if err := ValidateCursor(afterID); err != nil {
		return nil, afterID, err
	}

	m.mu.Lock()
	s := m.stream(session)
	var after uint64
	if startsAtEnd(afterID) {
		after = s.seq
	} else {
		after, _ = parseSeq(afterID)
	}
	cursor := fmt.Sprintf("%d-0", after)

	out := s.since(after)
	wait := s.notify
	s.waiters++
	m.mu.Unlock()
	defer m.release(session, s)

	if len(out) > 0 {
		return out, out[len(out)-1].ID, nil
	}

	timer := time.NewTimer(m.block)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, cursor, ctx.Err()
	case <-timer.C:
		return nil, cursor, nil
	case <-wait:
	}

	m.mu.Lock()
	out = s.since(after)
	m.mu.Unlock()
	if len(out) == 0 {
		return nil, cursor, nil
	}
	return out, out[len(out)-1].ID, nil
}

// release drops a stream nobody has published to once its last tail returns.
func (m *MemoryLog) release(session string, s *memoryStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.waiters--
	if s.waiters == 0 && s.seq == 0 {
		delete(m.sessions, StreamKey(session))
	}
}

func (s *memoryStream) since(after uint64) []Event {
	out := make([]Event, 0)
	for _, ev := range s.events {
		n, _ := parseSeq(ev.ID)
		if n > after {
			out = append(out, ev)
		}
		if len(out) == defaultBatchCount {
			break
		}
	}
	return out
}

func parseSeq(id string) (uint64, error) {
	if err := ValidateCursor(id); err != nil {
		return 0, err
	}
	head, _, _ := strings.Cut(strings.TrimSpace(id), "-")
	return strconv.ParseUint(head, 10, 64)
}
