package main

import (
	"os"
	"strings"
	"time"

	"agent-workspace/llm"
	"agent-workspace/plan"
)

const (
	defaultPort      = "8080"
	defaultRedisURL  = "redis://localhost:6379"
	memoryStoreToken = "memory"
)

// ServerConfig holds the settings needed to bootstrap the HTTP service.
type ServerConfig struct {
	Port        string
	RedisURL    string
	StepDelay   time.Duration
	PromptsPath string
	StateTTL    time.Duration
	LogLevel    string
	LogFormat   string
	LLM         llm.Config
}

// ServerConfigFromEnv builds a ServerConfig using environment variables with safe defaults.
func ServerConfigFromEnv() ServerConfig {
	redisURL, set := os.LookupEnv("REDIS_URL")
	if !set {
		redisURL = defaultRedisURL
	}
	return ServerConfig{
		Port:        pickEnv("PORT", defaultPort),
		RedisURL:    strings.TrimSpace(redisURL),
		StepDelay:   parseDurationOrDefault(os.Getenv("WORKSPACE_STEP_DELAY"), plan.DefaultStepDelay),
		PromptsPath: pickEnv("WORKSPACE_PROMPTS_PATH", ""),
		StateTTL:    parseDurationOrDefault(os.Getenv("WORKSPACE_STATE_TTL"), 0),
		LogLevel:    pickEnv("LOG_LEVEL", "info"),
		LogFormat:   pickEnv("LOG_FORMAT", "json"),
		LLM:         llm.ConfigFromEnv(),
	}
}

// UseMemory reports whether state should be kept in process instead of Redis.
func (c ServerConfig) UseMemory() bool {
	url := strings.TrimSpace(c.RedisURL)
	return url == "" || strings.EqualFold(url, memoryStoreToken)
}

func pickEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDurationOrDefault(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	return def
}
