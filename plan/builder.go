package plan

import (
	"context"
	"encoding/json"
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
	planningTemperature   = 0.3
	planningMaxTokens     = 1000
	planningSystemMessage = "You are a planning expert. You break requests into clear, ordered steps and respond with valid JSON only."
	maxPlanSteps          = 5
	fallbackTitleRunes    = 50
)

// BuildPath records which branch produced a plan.
type BuildPath string

const (
	PathModel         BuildPath = "model"
	PathFallbackParse BuildPath = "fallback_parse"
	PathFallbackError BuildPath = "fallback_error"
)

var errNoCompleter = errors.New("no completion provider")

// Builder turns free-form user input into a draft Plan.
type Builder struct {
	completer llm.Completer
	agents    *agents.Registry
	model     string
	now       func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPlanningModel sets the model id sent with the decomposition request.
func WithPlanningModel(model string) BuilderOption {
	return func(b *Builder) {
		b.model = strings.TrimSpace(model)
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder wires a builder to a completion provider and the agent roster.
func NewBuilder(completer llm.Completer, registry *agents.Registry, opts ...BuilderOption) *Builder {
	b := &Builder{
		completer: completer,
		agents:    registry,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build always returns a usable draft plan. When the provider fails or its
// answer cannot be parsed, the fixed four-step fallback plan is used.
func (b *Builder) Build(ctx context.Context, input string) (*Plan, BuildPath) {
	b.agents.Activate(agents.RolePlanner, agents.StatusThinking)

	out, err := b.complete(ctx, llm.Request{
		Prompt:        decompositionPrompt(input),
		Model:         b.model,
		SystemMessage: planningSystemMessage,
		MaxTokens:     planningMaxTokens,
		Temperature:   planningTemperature,
	})
	if err != nil {
		log.Warn().Err(err).Msg("plan builder: completion failed, using fallback plan")
		b.agents.SetStatus(agents.RolePlanner, agents.StatusError)
		return b.finish(fallbackDecomposition(input), PathFallbackError)
	}

	d, err := parseDecomposition(out.Text)
	path := PathModel
	if err != nil {
		log.Warn().Err(err).Str("source", string(out.Source)).Msg("plan builder: unusable decomposition, using fallback plan")
		d = fallbackDecomposition(input)
		path = PathFallbackParse
	}
	if d.Title == "" {
		d.Title = fallbackTitle(input)
	}

	b.agents.SetStatus(agents.RolePlanner, agents.StatusComplete)
	return b.finish(d, path)
}

func (b *Builder) complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if b.completer == nil {
		return llm.Completion{}, errNoCompleter
	}
	return b.completer.Complete(ctx, req)
}

func (b *Builder) finish(d decomposition, path BuildPath) (*Plan, BuildPath) {
	steps := make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		steps[i] = Step{
			ID:          fmt.Sprintf("step_%d", i+1),
			Description: s.Description,
			Status:      StepPending,
			AgentType:   s.role,
		}
	}
	p := &Plan{
		ID:          newID(),
		Title:       d.Title,
		Description: d.Description,
		Steps:       steps,
		Status:      StatusDraft,
		CreatedAt:   b.now().UTC(),
	}
	metrics.PlansCreated.WithLabelValues(string(path)).Inc()
	log.Info().Str("plan", p.ID).Str("path", string(path)).Int("steps", len(steps)).Msg("plan built")
	return p, path
}

type decomposition struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Steps       []decomposedStep `json:"steps"`
}

type decomposedStep struct {
	Description  string `json:"description"`
	AgentType    string `json:"agentType"`
	AgentTypeAlt string `json:"agent_type"`

	role agents.Role
}

func decompositionPrompt(input string) string {
	return fmt.Sprintf(`Break down the following request into a plan of 3 to 5 concrete steps.

Request: %s

Respond with ONLY a JSON object in exactly this shape, with no other text:
{
  "title": "short plan title",
  "description": "one or two sentence summary of the plan",
  "steps": [
    {"description": "what to do in this step", "agentType": "planner"}
  ]
}

agentType must be one of:
- planner: requirements analysis
- worker: implementation
- supervisor: quality review
- error-fixer: debugging and final checks`, input)
}

// parseDecomposition accepts the model's answer with or without code
// fences or surrounding prose. Steps beyond the fifth are dropped and
// unknown roles are assigned to the worker.
func parseDecomposition(text string) (decomposition, error) {
	body := extractJSONObject(text)
	if body == "" {
		return decomposition{}, errors.New("no JSON object in response")
	}

	var d decomposition
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return decomposition{}, fmt.Errorf("decode decomposition: %w", err)
	}

	steps := make([]decomposedStep, 0, len(d.Steps))
	for _, s := range d.Steps {
		s.Description = strings.TrimSpace(s.Description)
		if s.Description == "" {
			continue
		}
		role, ok := agents.ParseRole(s.AgentType)
		if !ok {
			role, ok = agents.ParseRole(s.AgentTypeAlt)
		}
		if !ok {
			role = agents.RoleWorker
		}
		s.role = role
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		return decomposition{}, errors.New("decomposition has no steps")
	}
	if len(steps) > maxPlanSteps {
		steps = steps[:maxPlanSteps]
	}

	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Steps = steps
	return d, nil
}

func extractJSONObject(text string) string {
	content := strings.TrimSpace(text)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// fallbackDecomposition is the single canned plan used whenever the model
// cannot produce one.
func fallbackDecomposition(input string) decomposition {
	return decomposition{
		Title:       fallbackTitle(input),
		Description: "Plan generated in fallback mode for: " + strings.TrimSpace(input),
		Steps: []decomposedStep{
			{Description: "Analyze the request and clarify the requirements", role: agents.RolePlanner},
			{Description: "Implement the core solution", role: agents.RoleWorker},
			{Description: "Review the implementation for quality and completeness", role: agents.RoleSupervisor},
			{Description: "Fix any remaining issues and perform a final check", role: agents.RoleErrorFixer},
		},
	}
}

func fallbackTitle(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "Task: untitled request"
	}
	runes := []rune(trimmed)
	if len(runes) <= fallbackTitleRunes {
		return "Task: " + trimmed
	}
	return "Task: " + string(runes[:fallbackTitleRunes]) + "..."
}
