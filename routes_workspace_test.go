package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"agent-workspace/agents"
	"agent-workspace/llm"
	"agent-workspace/plan"
	"agent-workspace/workspace"
)

const loginFormPlan = `{"title":"Login Form Plan","description":"Build a login form","steps":[{"description":"Analyze requirements","agentType":"planner"},{"description":"Implement form","agentType":"worker"}]}`

// newFakeCompletions serves planning requests with loginFormPlan and every
// other request with "OK".
func newFakeCompletions(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		content := "OK"
		if len(body.Messages) > 0 && strings.Contains(body.Messages[0].Content, "planning expert") {
			content = loginFormPlan
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test/model",
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig() ServerConfig {
	return ServerConfig{RedisURL: memoryStoreToken, LLM: llm.Config{Timeout: 2 * time.Second}}
}

func newTestApp(t *testing.T, cfg ServerConfig) (*app, *mux.Router) {
	t.Helper()
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, a.routes()
}

func liveConfig(t *testing.T) ServerConfig {
	cfg := testConfig()
	cfg.LLM.BaseURL = newFakeCompletions(t).URL
	cfg.LLM.APIKey = "test-key"
	return cfg
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPlanLifecycleOverHTTP(t *testing.T) {
	_, r := newTestApp(t, liveConfig(t))

	rec := doJSON(t, r, http.MethodPost, "/sessions/s1/plans", createPlanRequest{Input: "Build a login form"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[createPlanResponse](t, rec)
	require.Equal(t, "Login Form Plan", created.Plan.Title)
	require.Equal(t, plan.StatusDraft, created.Plan.Status)
	require.Contains(t, created.Message.Content, "Should I proceed")

	rec = doJSON(t, r, http.MethodPost, "/sessions/s1/plans/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	confirmed := decode[confirmResponse](t, rec)
	require.True(t, confirmed.Confirmed)
	require.Equal(t, plan.StatusConfirmed, confirmed.CurrentPlan.Status)
	require.Len(t, confirmed.Plans, 1)

	rec = doJSON(t, r, http.MethodPost, "/sessions/s1/plans/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	executed := decode[executeResponse](t, rec)
	require.Len(t, executed.Messages, 2)
	require.Equal(t, "OK", executed.Messages[0].Content)
	require.Equal(t, agents.RolePlanner, executed.Messages[0].AgentType)
	require.Equal(t, agents.RoleWorker, executed.Messages[1].AgentType)
	require.Equal(t, plan.StatusComplete, executed.Plan.Status)

	rec = doJSON(t, r, http.MethodGet, "/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[workspace.Snapshot](t, rec)
	require.False(t, snap.IsWorking)
	require.Nil(t, snap.CurrentAgent)
	require.Equal(t, plan.StatusComplete, snap.Plans[0].Status)
}

func TestCreatePlanWithoutCredentialUsesFallbackPlan(t *testing.T) {
	_, r := newTestApp(t, testConfig())

	rec := doJSON(t, r, http.MethodPost, "/sessions/s1/plans", createPlanRequest{Input: "fix my bug"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[createPlanResponse](t, rec)
	require.Equal(t, "Task: fix my bug", created.Plan.Title)
	require.Len(t, created.Plan.Steps, 4)
	for i, role := range agents.Roles {
		require.Equal(t, role, created.Plan.Steps[i].AgentType)
	}
}

func TestExecuteWithoutConfirmedPlanReturnsNoMessages(t *testing.T) {
	_, r := newTestApp(t, testConfig())

	rec := doJSON(t, r, http.MethodPost, "/sessions/s1/plans/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[executeResponse](t, rec)
	require.NotNil(t, out.Messages)
	require.Empty(t, out.Messages)
	require.Nil(t, out.Plan)

	rec = doJSON(t, r, http.MethodPost, "/sessions/s1/plans/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[confirmResponse](t, rec).Confirmed)
}

func TestResetAgentsOverHTTP(t *testing.T) {
	_, r := newTestApp(t, liveConfig(t))

	rec := doJSON(t, r, http.MethodPost, "/sessions/s1/plans", createPlanRequest{Input: "Build a login form"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/sessions/s1/agents/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[workspace.Snapshot](t, rec)
	for _, a := range snap.Agents {
		require.Equal(t, agents.StatusIdle, a.Status)
	}
	require.NotNil(t, snap.CurrentPlan)
}

func TestCreatePlanRejectsBadJSON(t *testing.T) {
	_, r := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/plans", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsPersistToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := liveConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()

	a, r := newTestApp(t, cfg)
	require.Equal(t, "redis", a.storeKind)

	rec := doJSON(t, r, http.MethodPost, "/sessions/s1/plans", createPlanRequest{Input: "Build a login form"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/sessions/s1/plans/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.True(t, mr.Exists("workspace:s1:current_plan"))
	require.True(t, mr.Exists("workspace:s1:plan_history"))

	// A fresh process restores the session from Redis.
	_, restarted := newTestApp(t, cfg)
	rec = doJSON(t, restarted, http.MethodGet, "/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[workspace.Snapshot](t, rec)
	require.Equal(t, "Login Form Plan", snap.CurrentPlan.Title)
	require.Equal(t, plan.StatusConfirmed, snap.CurrentPlan.Status)
}

func TestNewAppRejectsMissingRoleTemplates(t *testing.T) {
	cfg := testConfig()
	cfg.PromptsPath = t.TempDir() + "/missing.yaml"
	_, err := newApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestCreatePlanRejectsOversizedBody(t *testing.T) {
	a, r := newTestApp(t, testConfig())

	huge := `{"input":"` + strings.Repeat("a", maxRequestBytes+1) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/plans", strings.NewReader(huge))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	ws, err := a.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Nil(t, ws.Snapshot().CurrentPlan)
}

func TestSnapshotDoesNotRegisterSession(t *testing.T) {
	a, r := newTestApp(t, testConfig())

	rec := doJSON(t, r, http.MethodGet, "/sessions/visitor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, decode[workspace.Snapshot](t, rec).CurrentPlan)
	require.Zero(t, a.sessions.Len())

	rec = doJSON(t, r, http.MethodPost, "/sessions/visitor/plans", createPlanRequest{Input: "Build a login form"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, a.sessions.Len())

	rec = doJSON(t, r, http.MethodGet, "/sessions/visitor", nil)
	require.NotNil(t, decode[workspace.Snapshot](t, rec).CurrentPlan)
}
