package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"agent-workspace/events"
)

const (
	keepaliveInterval = 25 * time.Second
	tailRetryDelay    = 300 * time.Millisecond
)

type eventsHandler struct {
	log events.Log
}

func registerEventRoutes(r *mux.Router, l events.Log) {
	h := &eventsHandler{log: l}
	r.HandleFunc("/sessions/{session}/events", h.handleSSE).Methods("GET")
	r.HandleFunc("/sessions/{session}/ws", h.handleWebSocket).Methods("GET")
}

func streamParams(r *http.Request) (session, after string, kinds map[events.Kind]bool, err error) {
	session = strings.TrimSpace(mux.Vars(r)["session"])
	if session == "" {
		return "", "", nil, errors.New("session is required")
	}
	after = strings.TrimSpace(r.URL.Query().Get("after"))
	if err := events.ValidateCursor(after); err != nil {
		return "", "", nil, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
		kinds = make(map[events.Kind]bool)
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds[events.Kind(k)] = true
			}
		}
	}
	return session, after, kinds, nil
}

func (h *eventsHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	session, lastID, kinds, err := streamParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
			continue
		default:
		}

		evs, nextID, err := h.log.Tail(ctx, session, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, events.ErrInvalidCursor) {
				log.Warn().Err(err).Str("session", session).Msg("event stream closed")
				return
			}
			log.Warn().Err(err).Str("session", session).Msg("event tail failed")
			time.Sleep(tailRetryDelay)
			continue
		}
		lastID = nextID

		for _, ev := range evs {
			if kinds != nil && !kinds[ev.Kind] {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Warn().Err(err).Msg("event encode failed")
				continue
			}
			fmt.Fprintf(w, "id: %s\n", ev.ID)
			fmt.Fprintf(w, "event: %s\n", ev.Kind)
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		if len(evs) > 0 {
			flusher.Flush()
		}
	}
}

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// output-only surface
		return true
	},
}

func (h *eventsHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	session, lastID, kinds, err := streamParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the client closing the socket.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		evs, nextID, err := h.log.Tail(ctx, session, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, events.ErrInvalidCursor) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid cursor"),
					time.Now().Add(time.Second))
				return
			}
			time.Sleep(tailRetryDelay)
			continue
		}
		lastID = nextID

		for _, ev := range evs {
			if kinds != nil && !kinds[ev.Kind] {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
