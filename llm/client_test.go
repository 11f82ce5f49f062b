package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL: server.URL + "/api/v1",
		APIKey:  "test-key",
		Model:   "test/model",
		Referer: "http://workspace.test",
		Title:   "Workspace Test",
		Timeout: 2 * time.Second,
	})
}

func TestCompleteSendsChatCompletionRequest(t *testing.T) {
	var got chatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "http://workspace.test", r.Header.Get("HTTP-Referer"))
		require.Equal(t, "Workspace Test", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test/model","choices":[{"message":{"role":"assistant","content":"hello there"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	})

	out, err := client.Complete(context.Background(), Request{
		Prompt:        "Say hello",
		SystemMessage: "Be brief.",
		MaxTokens:     100,
		Temperature:   0.3,
	})
	require.NoError(t, err)
	require.Equal(t, SourceLive, out.Source)
	require.Equal(t, "hello there", out.Text)
	require.Equal(t, 7, out.Usage.TotalTokens)

	require.Equal(t, "test/model", got.Model)
	require.False(t, got.Stream)
	require.Equal(t, 100, got.MaxTokens)
	require.InDelta(t, 0.3, got.Temperature, 0.0001)
	require.Len(t, got.Messages, 2)
	require.Equal(t, chatMessage{Role: "system", Content: "Be brief."}, got.Messages[0])
	require.Equal(t, chatMessage{Role: "user", Content: "Say hello"}, got.Messages[1])
}

func TestCompleteDefaultsSystemMessageAndModel(t *testing.T) {
	var got chatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	out, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Text)
	require.Equal(t, "test/model", out.Model)
	require.Equal(t, DefaultSystemMessage, got.Messages[0].Content)
}

func TestCompleteUnconfiguredIsSimulated(t *testing.T) {
	client := NewClient(Config{})
	require.False(t, client.Configured())

	out, err := client.Complete(context.Background(), Request{Prompt: "Implement the login form"})
	require.NoError(t, err)
	require.Equal(t, SourceSimulated, out.Source)
	require.Equal(t, Simulate("Implement the login form"), out.Text)
	require.NotEmpty(t, out.Reason)
}

func TestNilClientIsSimulated(t *testing.T) {
	var client *Client
	out, err := client.Complete(context.Background(), Request{Prompt: "anything"})
	require.NoError(t, err)
	require.Equal(t, SourceSimulated, out.Source)
}

func TestCompleteDegradesOnFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non_2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed_json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices": [`))
			},
		},
		{
			name: "empty_choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "blank_content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  "}}]}`))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			out, err := client.Complete(context.Background(), Request{Prompt: "Review the code"})
			require.NoError(t, err)
			require.Equal(t, SourceDegraded, out.Source)
			require.Equal(t, Simulate("Review the code"), out.Text)
			require.NotEmpty(t, out.Reason)
		})
	}
}

func TestCompleteDegradesOnTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	out, err := client.Complete(context.Background(), Request{Prompt: "plan the work"})
	require.NoError(t, err)
	require.Equal(t, SourceDegraded, out.Source)
	require.Contains(t, out.Text, "Simulated response")
}

func TestCompleteDegradesOnNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, APIKey: "k"})
	out, err := client.Complete(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, SourceDegraded, out.Source)
}

func TestSimulateIsKeywordDriven(t *testing.T) {
	require.Contains(t, Simulate("Fix the bug in checkout"), "Debugging pass")
	require.Contains(t, Simulate("Review the pull request"), "Quality review")
	require.Contains(t, Simulate("Implement a cache"), "Implementation for")
	require.Contains(t, Simulate("Analyze the requirements"), "Analysis of")
	require.Contains(t, Simulate("hello"), "placeholder answer")
	require.Equal(t, Simulate("Implement a cache"), Simulate("Implement a cache"))
}

func TestSimulateUsesFirstLineExcerpt(t *testing.T) {
	long := "\n\n" + strings.Repeat("x", 200) + "\nsecond line"
	out := Simulate(long)
	require.Contains(t, out, strings.Repeat("x", 80)+"...")
	require.NotContains(t, out, "second line")
}
