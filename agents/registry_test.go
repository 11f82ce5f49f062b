package agents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistryStartsIdleInRosterOrder(t *testing.T) {
	reg := NewRegistry(nil)

	list := reg.Agents()
	require.Len(t, list, 4)
	for i, a := range list {
		require.Equal(t, Roles[i], a.ID)
		require.Equal(t, StatusIdle, a.Status)
		require.NotEmpty(t, a.Name)
		require.NotEmpty(t, a.Avatar)
	}

	_, ok := reg.Current()
	require.False(t, ok)
}

func TestActivateSetsCurrentAndNotifies(t *testing.T) {
	var seen []Agent
	reg := NewRegistry(func(a Agent) { seen = append(seen, a) })

	reg.Activate(RoleWorker, StatusActive)
	reg.SetStatus(RolePlanner, StatusComplete)

	current, ok := reg.Current()
	require.True(t, ok)
	require.Equal(t, RoleWorker, current)

	worker, ok := reg.Get(RoleWorker)
	require.True(t, ok)
	require.Equal(t, StatusActive, worker.Status)

	require.Len(t, seen, 2)
	require.Equal(t, RoleWorker, seen[0].ID)
	require.Equal(t, StatusComplete, seen[1].Status)
}

func TestResetClearsStatusesAndMarker(t *testing.T) {
	var seen []Agent
	reg := NewRegistry(func(a Agent) { seen = append(seen, a) })
	reg.Activate(RoleSupervisor, StatusActive)
	reg.SetStatus(RoleErrorFixer, StatusError)
	seen = nil

	reg.Reset()

	for _, a := range reg.Agents() {
		require.Equal(t, StatusIdle, a.Status)
	}
	_, ok := reg.Current()
	require.False(t, ok)
	require.Len(t, seen, 2, "only agents that changed are reported")
}

func TestUnknownRoleIsIgnored(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Activate(Role("manager"), StatusActive)

	_, ok := reg.Current()
	require.False(t, ok)
	_, ok = reg.Get(Role("manager"))
	require.False(t, ok)
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"planner":     RolePlanner,
		" Worker ":    RoleWorker,
		"SUPERVISOR":  RoleSupervisor,
		"error-fixer": RoleErrorFixer,
		"error_fixer": RoleErrorFixer,
		"error fixer": RoleErrorFixer,
	}
	for in, want := range cases {
		got, ok := ParseRole(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	_, ok := ParseRole("reviewer")
	require.False(t, ok)
	_, ok = ParseRole("")
	require.False(t, ok)
}
