package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind labels a workspace event.
type Kind string

const (
	KindAgentStatus Kind = "agent_status"
	KindPlanUpdated Kind = "plan_updated"
	KindMessage     Kind = "message"
	KindReset       Kind = "agents_reset"
)

const (
	streamKeyFormat   = "session:%s:events"
	defaultBlock      = 5 * time.Second
	defaultBatchCount = 50
	defaultMaxLen     = 1000
)

// Event is one entry of a session's event stream.
type Event struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"ts"`
}

// ErrInvalidCursor is returned for a tail position that is not an entry id.
var ErrInvalidCursor = errors.New("invalid event cursor")

// Log appends and tails per-session workspace events.
type Log interface {
	Publish(ctx context.Context, session string, kind Kind, payload any) (string, error)
	// Tail blocks for events after afterID and returns them with the last ID
	// observed. An empty afterID or "$" starts at the current end.
	Tail(ctx context.Context, session, afterID string) ([]Event, string, error)
}

// StreamKey returns the stream key for a session.
func StreamKey(session string) string {
	return fmt.Sprintf(streamKeyFormat, strings.TrimSpace(session))
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %T payload: %w", payload, err)
	}
	return data, nil
}

func startsAtEnd(afterID string) bool {
	afterID = strings.TrimSpace(afterID)
	return afterID == "" || afterID == "$"
}

// ValidateCursor checks a tail position supplied by a client. Empty and "$"
// mean the current end; anything else must be "<ms>" or "<ms>-<seq>".
func ValidateCursor(id string) error {
	id = strings.TrimSpace(id)
	if startsAtEnd(id) {
		return nil
	}
	head, tail, hasSeq := strings.Cut(id, "-")
	if _, err := strconv.ParseUint(head, 10, 64); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCursor, id)
	}
	if hasSeq {
		if _, err := strconv.ParseUint(tail, 10, 64); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidCursor, id)
		}
	}
	return nil
}
