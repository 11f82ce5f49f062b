package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"agent-workspace/events"
	"agent-workspace/llm"
	"agent-workspace/plan"
	"agent-workspace/store"
	"agent-workspace/streams"
	"agent-workspace/workspace"
)

const memoryTailBlock = 5 * time.Second

// app holds the long-lived collaborators shared by every request.
type app struct {
	cfg       ServerConfig
	completer *llm.Client
	store     store.Store
	storeKind string
	events    events.Log
	sessions  *workspace.Manager
	redis     *redis.Client
}

func newApp(ctx context.Context, cfg ServerConfig, opts ...llm.Option) (*app, error) {
	templates, err := plan.LoadRoleTemplates(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("role templates: %w", err)
	}

	a := &app{
		cfg:       cfg,
		completer: llm.NewClient(cfg.LLM, opts...),
	}

	if cfg.UseMemory() {
		a.store = store.NewMemoryStore()
		a.storeKind = "memory"
		a.events = events.NewMemoryLog(memoryTailBlock)
	} else {
		client, err := streams.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.store = store.NewRedisStore(client, store.WithTTL(cfg.StateTTL))
		a.storeKind = "redis"
		a.events = events.NewBus(client)
	}

	a.sessions = workspace.NewManager(workspace.Config{
		Completer: a.completer,
		Store:     a.store,
		Events:    a.events,
		StepDelay: cfg.StepDelay,
		Templates: templates,
	})

	log.Info().
		Str("store", a.storeKind).
		Bool("completion_configured", a.completer.Configured()).
		Str("model", a.completer.DefaultModel()).
		Msg("workspace service initialized")
	return a, nil
}

func (a *app) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	registerHealthRoutes(r, a)
	registerWorkspaceRoutes(r, a.sessions)
	registerEventRoutes(r, a.events)
	return r
}

func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
