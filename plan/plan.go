package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent-workspace/agents"
)

var (
	// ErrInvalidTransition is returned when a plan status change would skip
	// or reverse the draft → confirmed → executing → complete sequence.
	ErrInvalidTransition = errors.New("invalid plan status transition")
	// ErrResultRecorded is returned when a step result is written twice.
	ErrResultRecorded = errors.New("step result already recorded")
)

// Status is the lifecycle state of a Plan.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusExecuting Status = "executing"
	StatusComplete  Status = "complete"
)

// StepStatus is the lifecycle state of a single Step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in-progress"
	StepComplete   StepStatus = "complete"
	StepError      StepStatus = "error"
)

// Step is one unit of work assigned to a single agent role.
type Step struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Status      StepStatus  `json:"status"`
	AgentType   agents.Role `json:"agent_type"`
	Result      string      `json:"result,omitempty"`
}

// Recorded reports whether the step already holds its result. A terminal
// status counts even when the recorded text was empty.
func (s *Step) Recorded() bool {
	return s.Result != "" || s.Status == StepComplete || s.Status == StepError
}

// Record writes the step result. A result can only be written once.
func (s *Step) Record(result string, status StepStatus) error {
	if s.Recorded() {
		return fmt.Errorf("%s: %w", s.ID, ErrResultRecorded)
	}
	s.Result = result
	s.Status = status
	return nil
}

// Plan is a user request decomposed into ordered steps.
type Plan struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Steps       []Step    `json:"steps"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

var nextStatus = map[Status]Status{
	StatusDraft:     StatusConfirmed,
	StatusConfirmed: StatusExecuting,
	StatusExecuting: StatusComplete,
}

func (p *Plan) advance(to Status) error {
	if nextStatus[p.Status] != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	return nil
}

// Confirm moves a draft plan to confirmed.
func (p *Plan) Confirm() error { return p.advance(StatusConfirmed) }

// Start moves a confirmed plan to executing.
func (p *Plan) Start() error { return p.advance(StatusExecuting) }

// Finish moves an executing plan to complete.
func (p *Plan) Finish() error { return p.advance(StatusComplete) }

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.Steps = append([]Step(nil), p.Steps...)
	return &out
}

// MessageType distinguishes user input from agent output.
type MessageType string

const (
	MessageUser  MessageType = "user"
	MessageAgent MessageType = "agent"
)

// Message is a chat entry shown to the user.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	AgentType agents.Role `json:"agent_type,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	IsVoice   bool        `json:"is_voice,omitempty"`
}

// NewAgentMessage builds an agent-authored message stamped now.
func NewAgentMessage(role agents.Role, content string) Message {
	return Message{
		ID:        newID(),
		Type:      MessageAgent,
		Content:   content,
		AgentType: role,
		Timestamp: time.Now().UTC(),
	}
}

// ConfirmationMessage is the planner's summary asking the user to approve p.
func ConfirmationMessage(p *Plan) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "I've created a plan: **%s**\n\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Description)
	}
	for i, step := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, step.AgentType, step.Description)
	}
	b.WriteString("\nShould I proceed with this plan?")
	return NewAgentMessage(agents.RolePlanner, b.String())
}

func newID() string {
	return uuid.New().String()
}
