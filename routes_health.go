package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agent-workspace/metrics"
	"agent-workspace/streams"
)

type HealthResponse struct {
	OK                   bool   `json:"ok"`
	Version              string `json:"version"`
	Service              string `json:"service"`
	Store                string `json:"store"`
	CompletionConfigured bool   `json:"completion_configured"`
	Sessions             int    `json:"sessions"`
	Error                string `json:"error,omitempty"`
}

func registerHealthRoutes(r *mux.Router, a *app) {
	r.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		OK:                   true,
		Version:              VERSION,
		Service:              "agent-workspace",
		Store:                a.storeKind,
		CompletionConfigured: a.completer.Configured(),
		Sessions:             a.sessions.Len(),
	}
	status := http.StatusOK
	if a.redis != nil {
		if err := streams.Ping(r.Context(), a.redis); err != nil {
			resp.OK = false
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Agent Workspace API Server",
		"version": VERSION,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// instrument counts requests by route template and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}
