package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"agent-workspace/agents"
	"agent-workspace/llm"
	"agent-workspace/metrics"
)

const (
	stepTemperature  = 0.7
	stepMaxTokens    = 1500
	DefaultStepDelay = time.Second
)

var errEmptyCompletion = errors.New("completion returned no text")

// PersistFunc receives a copy of the plan after every state change.
type PersistFunc func(ctx context.Context, p *Plan)

// Executor runs a confirmed plan one step at a time.
type Executor struct {
	completer llm.Completer
	agents    *agents.Registry
	templates RoleTemplates
	model     string
	delay     time.Duration
	persist   PersistFunc
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTemplates replaces the role prompt table.
func WithTemplates(t RoleTemplates) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.templates = t
		}
	}
}

// WithStepDelay sets the pause between steps. Zero disables it.
func WithStepDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithStepModel sets the model id sent with each step request.
func WithStepModel(model string) ExecutorOption {
	return func(e *Executor) {
		e.model = model
	}
}

// WithPersist registers the hook called after each plan mutation.
func WithPersist(fn PersistFunc) ExecutorOption {
	return func(e *Executor) {
		e.persist = fn
	}
}

// NewExecutor wires an executor to a completion provider and the agent roster.
func NewExecutor(completer llm.Completer, registry *agents.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		completer: completer,
		agents:    registry,
		templates: DefaultRoleTemplates(),
		delay:     DefaultStepDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every step of p in order and returns one message per step.
// A plan that is not confirmed is left untouched and yields no messages.
// Step failures never stop the run.
func (e *Executor) Execute(ctx context.Context, p *Plan) []Message {
	if p == nil || p.Status != StatusConfirmed {
		return []Message{}
	}
	if err := p.Start(); err != nil {
		return []Message{}
	}
	e.save(ctx, p)

	logger := log.With().Str("plan", p.ID).Logger()
	logger.Info().Int("steps", len(p.Steps)).Msg("plan execution started")
	started := time.Now()

	messages := make([]Message, 0, len(p.Steps))
	for i := range p.Steps {
		if i > 0 {
			e.pause(ctx)
		}
		messages = append(messages, e.runStep(ctx, p, i))
	}

	if err := p.Finish(); err != nil {
		logger.Error().Err(err).Msg("plan execution could not finish")
	}
	e.save(ctx, p)
	e.agents.ClearCurrent()

	elapsed := time.Since(started)
	metrics.PlanExecutionDuration.Observe(elapsed.Seconds())
	logger.Info().Dur("elapsed", elapsed).Msg("plan execution complete")
	return messages
}

func (e *Executor) runStep(ctx context.Context, p *Plan, i int) Message {
	step := &p.Steps[i]
	role := step.AgentType
	logger := log.With().Str("plan", p.ID).Str("step", step.ID).Str("role", string(role)).Logger()

	e.agents.Activate(role, agents.StatusActive)
	step.Status = StepInProgress
	e.save(ctx, p)

	system, prompt := e.templates.Render(role, step.Description)
	out, err := e.complete(ctx, llm.Request{
		Prompt:        prompt,
		Model:         e.model,
		SystemMessage: system,
		MaxTokens:     stepMaxTokens,
		Temperature:   stepTemperature,
	})
	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		logger.Warn().Err(err).Msg("step failed, recording fallback result")
		e.agents.SetStatus(role, agents.StatusError)
		msg := NewAgentMessage(role, e.fallbackContent(role, step))
		if recErr := step.Record(msg.Content, StepError); recErr != nil {
			logger.Warn().Err(recErr).Msg("step result kept")
		}
		e.save(ctx, p)
		metrics.PlanStepsTotal.WithLabelValues(string(role), "fallback").Inc()
		return msg
	}

	msg := NewAgentMessage(role, out.Text)
	e.agents.SetStatus(role, agents.StatusComplete)
	if recErr := step.Record(out.Text, StepComplete); recErr != nil {
		logger.Warn().Err(recErr).Msg("step result kept")
	}
	e.save(ctx, p)
	metrics.PlanStepsTotal.WithLabelValues(string(role), string(out.Source)).Inc()
	logger.Debug().Str("source", string(out.Source)).Msg("step complete")
	return msg
}

func (e *Executor) complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if e.completer == nil {
		return llm.Completion{}, errNoCompleter
	}
	return e.completer.Complete(ctx, req)
}

func (e *Executor) fallbackContent(role agents.Role, step *Step) string {
	name := string(role)
	if a, ok := e.agents.Get(role); ok {
		name = a.Name
	}
	return fmt.Sprintf("%s completed %q in fallback mode. The model call failed, so no detailed output is available for this step.",
		name, step.Description)
}

func (e *Executor) save(ctx context.Context, p *Plan) {
	if e.persist != nil {
		e.persist(ctx, p.Clone())
	}
}

func (e *Executor) pause(ctx context.Context) {
	if e.delay <= 0 {
		return
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
