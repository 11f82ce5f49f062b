package agents

import (
	"strings"
	"sync"
)

// Role identifies one of the four cooperating agents.
type Role string

const (
	RolePlanner    Role = "planner"
	RoleWorker     Role = "worker"
	RoleSupervisor Role = "supervisor"
	RoleErrorFixer Role = "error-fixer"
)

// Roles is the fixed roster order.
var Roles = []Role{RolePlanner, RoleWorker, RoleSupervisor, RoleErrorFixer}

// Valid reports whether r is one of the four roster roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlanner, RoleWorker, RoleSupervisor, RoleErrorFixer:
		return true
	}
	return false
}

// ParseRole normalizes a model-supplied role id. Underscore and space
// spellings of error-fixer are accepted.
func ParseRole(raw string) (Role, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	role := Role(normalized)
	if !role.Valid() {
		return "", false
	}
	return role, true
}

// Status is an agent's transient activity state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Agent is the display + status view of a single role.
type Agent struct {
	ID          Role   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
	Status      Status `json:"status"`
}

var roster = map[Role]Agent{
	RolePlanner: {
		ID:          RolePlanner,
		Name:        "Planner Agent",
		Description: "Breaks requests into ordered steps and analyzes requirements",
		Avatar:      "🧠",
	},
	RoleWorker: {
		ID:          RoleWorker,
		Name:        "Worker Agent",
		Description: "Implements the solution for each assigned step",
		Avatar:      "⚙️",
	},
	RoleSupervisor: {
		ID:          RoleSupervisor,
		Name:        "Supervisor Agent",
		Description: "Reviews work for quality and completeness",
		Avatar:      "👁️",
	},
	RoleErrorFixer: {
		ID:          RoleErrorFixer,
		Name:        "Error Fixer Agent",
		Description: "Debugs problems and performs the final check",
		Avatar:      "🔧",
	},
}

// Registry holds the mutable status of the fixed roster plus the
// single active-agent marker. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	agents     map[Role]*Agent
	current    Role
	hasCurrent bool
	observer   func(Agent)
}

// NewRegistry returns the four agents in idle state. observer, if set, is
// called after every status change, outside the registry lock.
func NewRegistry(observer func(Agent)) *Registry {
	r := &Registry{
		agents:   make(map[Role]*Agent, len(Roles)),
		observer: observer,
	}
	for _, role := range Roles {
		a := roster[role]
		a.Status = StatusIdle
		r.agents[role] = &a
	}
	return r
}

// SetStatus updates a role's status without touching the active marker.
func (r *Registry) SetStatus(role Role, status Status) {
	r.update(role, status, false)
}

// Activate updates a role's status and records it as the active agent.
func (r *Registry) Activate(role Role, status Status) {
	r.update(role, status, true)
}

func (r *Registry) update(role Role, status Status, activate bool) {
	r.mu.Lock()
	a, ok := r.agents[role]
	if !ok {
		r.mu.Unlock()
		return
	}
	a.Status = status
	if activate {
		r.current = role
		r.hasCurrent = true
	}
	snapshot := *a
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer(snapshot)
	}
}

// ClearCurrent drops the active-agent marker.
func (r *Registry) ClearCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = ""
	r.hasCurrent = false
}

// Current returns the active agent, if any.
func (r *Registry) Current() (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.hasCurrent
}

// Get returns a copy of one agent.
func (r *Registry) Get(role Role) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[role]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// Agents returns copies of all agents in roster order.
func (r *Registry) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(Roles))
	for _, role := range Roles {
		out = append(out, *r.agents[role])
	}
	return out
}

// Reset puts every agent back to idle and clears the active marker.
func (r *Registry) Reset() {
	r.mu.Lock()
	changed := make([]Agent, 0, len(Roles))
	for _, role := range Roles {
		a := r.agents[role]
		if a.Status != StatusIdle {
			a.Status = StatusIdle
			changed = append(changed, *a)
		}
	}
	r.current = ""
	r.hasCurrent = false
	observer := r.observer
	r.mu.Unlock()

	if observer == nil {
		return
	}
	for _, a := range changed {
		observer(a)
	}
}
