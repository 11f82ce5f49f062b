// Package workspace is the per-session orchestration facade: it owns the
// agent roster, the current plan and the plan history, and serializes the
// operations that mutate them.
package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"agent-workspace/agents"
	"agent-workspace/events"
	"agent-workspace/llm"
	"agent-workspace/plan"
	"agent-workspace/store"
)

const publishTimeout = 2 * time.Second

// ErrSessionRequired is returned when a workspace is requested without a session id.
var ErrSessionRequired = errors.New("session id required")

// Config wires a Workspace to its collaborators. Store and Events are optional.
type Config struct {
	Session   string
	Completer llm.Completer
	Store     store.Store
	Events    events.Log
	Model     string
	StepDelay time.Duration
	Templates plan.RoleTemplates
}

// Snapshot is a read-only copy of a workspace's state.
type Snapshot struct {
	Session      string         `json:"session"`
	Agents       []agents.Agent `json:"agents"`
	CurrentPlan  *plan.Plan     `json:"current_plan"`
	Plans        []*plan.Plan   `json:"plans"`
	IsWorking    bool           `json:"is_working"`
	CurrentAgent *agents.Role   `json:"current_agent"`
}

// Workspace coordinates planning and execution for one session.
type Workspace struct {
	session  string
	agents   *agents.Registry
	builder  *plan.Builder
	executor *plan.Executor
	store    store.Store
	events   events.Log
	logger   zerolog.Logger

	// single slot; held for the whole of a mutating operation
	slot chan struct{}

	mu      sync.RWMutex
	current *plan.Plan
	history []*plan.Plan
	working bool
}

// New creates a workspace and rehydrates its plans from the store.
func New(ctx context.Context, cfg Config) (*Workspace, error) {
	session := strings.TrimSpace(cfg.Session)
	if session == "" {
		return nil, ErrSessionRequired
	}

	w := &Workspace{
		session: session,
		store:   cfg.Store,
		events:  cfg.Events,
		logger:  log.With().Str("session", session).Logger(),
		slot:    make(chan struct{}, 1),
	}
	w.agents = agents.NewRegistry(w.agentChanged)
	w.builder = plan.NewBuilder(cfg.Completer, w.agents, plan.WithPlanningModel(cfg.Model))
	w.executor = plan.NewExecutor(cfg.Completer, w.agents,
		plan.WithTemplates(cfg.Templates),
		plan.WithStepDelay(cfg.StepDelay),
		plan.WithStepModel(cfg.Model),
		plan.WithPersist(w.planChanged),
	)

	w.rehydrate(ctx)
	return w, nil
}

// Session returns the session id.
func (w *Workspace) Session() string { return w.session }

// CreatePlan builds a draft plan from input and makes it the current plan,
// replacing whatever was current. It returns the plan and the planner's
// confirmation message.
func (w *Workspace) CreatePlan(ctx context.Context, input string) (*plan.Plan, plan.Message, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, plan.Message{}, err
	}
	defer w.release()

	w.setWorking(true)
	p, path := w.builder.Build(ctx, input)
	msg := plan.ConfirmationMessage(p)

	w.mu.Lock()
	w.current = p
	w.working = false
	w.mu.Unlock()

	w.logger.Info().Str("plan", p.ID).Str("path", string(path)).Msg("plan created")
	w.saveCurrent(ctx, p)
	w.publish(events.KindPlanUpdated, p)
	w.publish(events.KindMessage, msg)
	return p.Clone(), msg, nil
}

// ConfirmPlan moves the current draft to confirmed and appends it to the
// history. It reports false when there is no draft to confirm.
func (w *Workspace) ConfirmPlan(ctx context.Context) (bool, error) {
	if err := w.acquire(ctx); err != nil {
		return false, err
	}
	defer w.release()

	w.mu.Lock()
	if w.current == nil || w.current.Status != plan.StatusDraft {
		w.mu.Unlock()
		return false, nil
	}
	if err := w.current.Confirm(); err != nil {
		w.mu.Unlock()
		return false, nil
	}
	p := w.current.Clone()
	w.history = append(w.history, p.Clone())
	history := cloneAll(w.history)
	w.mu.Unlock()

	w.logger.Info().Str("plan", p.ID).Msg("plan confirmed")
	w.saveCurrent(ctx, p)
	w.saveHistory(ctx, history)
	w.publish(events.KindPlanUpdated, p)
	return true, nil
}

// ExecutePlan runs the current plan if it is confirmed and returns one
// message per step. Any other state yields an empty slice.
func (w *Workspace) ExecutePlan(ctx context.Context) ([]plan.Message, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer w.release()

	w.mu.Lock()
	if w.current == nil || w.current.Status != plan.StatusConfirmed {
		w.mu.Unlock()
		return []plan.Message{}, nil
	}
	p := w.current.Clone()
	w.working = true
	w.mu.Unlock()

	msgs := w.executor.Execute(ctx, p)
	w.setWorking(false)

	for _, msg := range msgs {
		w.publish(events.KindMessage, msg)
	}
	return msgs, nil
}

// ResetAllAgents returns every agent to idle and clears the working flag.
// Plans are left untouched. It does not wait for an in-flight operation.
func (w *Workspace) ResetAllAgents(ctx context.Context) {
	w.agents.Reset()
	w.setWorking(false)
	w.logger.Info().Msg("agents reset")
	w.publish(events.KindReset, w.agents.Agents())
}

// Snapshot returns a copy of the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := Snapshot{
		Session:     w.session,
		Agents:      w.agents.Agents(),
		CurrentPlan: w.current.Clone(),
		Plans:       cloneAll(w.history),
		IsWorking:   w.working,
	}
	if role, ok := w.agents.Current(); ok {
		snap.CurrentAgent = &role
	}
	return snap
}

func (w *Workspace) acquire(ctx context.Context) error {
	select {
	case w.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Workspace) release() {
	<-w.slot
}

func (w *Workspace) setWorking(v bool) {
	w.mu.Lock()
	w.working = v
	w.mu.Unlock()
}

// planChanged receives a copy of the executing plan after every mutation.
func (w *Workspace) planChanged(ctx context.Context, p *plan.Plan) {
	w.mu.Lock()
	w.current = p
	var history []*plan.Plan
	for i, h := range w.history {
		if h.ID == p.ID {
			w.history[i] = p.Clone()
			history = cloneAll(w.history)
			break
		}
	}
	w.mu.Unlock()

	w.saveCurrent(ctx, p)
	if history != nil {
		w.saveHistory(ctx, history)
	}
	w.publish(events.KindPlanUpdated, p)
}

func (w *Workspace) agentChanged(a agents.Agent) {
	w.publish(events.KindAgentStatus, a)
}

func (w *Workspace) rehydrate(ctx context.Context) {
	if w.store == nil {
		return
	}
	current, err := w.store.LoadCurrent(ctx, w.session)
	if err != nil {
		w.logger.Warn().Err(err).Msg("current plan not restored")
		current = nil
	}
	history, err := w.store.LoadHistory(ctx, w.session)
	if err != nil {
		w.logger.Warn().Err(err).Msg("plan history not restored")
		history = nil
	}

	w.mu.Lock()
	w.current = current
	w.history = history
	w.mu.Unlock()

	if current != nil || len(history) > 0 {
		ev := w.logger.Info().Int("history", len(history))
		if current != nil {
			ev = ev.Str("plan", current.ID).Str("status", string(current.Status))
		}
		ev.Msg("workspace restored")
	}
}

func (w *Workspace) saveCurrent(ctx context.Context, p *plan.Plan) {
	if w.store == nil {
		return
	}
	if err := w.store.SaveCurrent(context.WithoutCancel(ctx), w.session, p); err != nil {
		w.logger.Warn().Err(err).Msg("current plan not persisted")
	}
}

func (w *Workspace) saveHistory(ctx context.Context, history []*plan.Plan) {
	if w.store == nil {
		return
	}
	if err := w.store.SaveHistory(context.WithoutCancel(ctx), w.session, history); err != nil {
		w.logger.Warn().Err(err).Msg("plan history not persisted")
	}
}

func (w *Workspace) publish(kind events.Kind, payload any) {
	if w.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := w.events.Publish(ctx, w.session, kind, payload); err != nil {
		w.logger.Debug().Err(err).Str("kind", string(kind)).Msg("event not published")
	}
}

func cloneAll(plans []*plan.Plan) []*plan.Plan {
	out := make([]*plan.Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.Clone())
	}
	return out
}
