package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"livecount/internal/presence"
	"livecount/internal/storage"
)

const (
	snapshotTimeout = 2 * time.Second
	maxHistoryLimit = 500
)

type rosterResponse struct {
	Count     int                        `json:"count"`
	Users     []RosterItem               `json:"users"`
	Countdown presence.CountdownSnapshot `json:"countdown"`
}

type historyResponse struct {
	Sessions []storage.Session `json:"sessions"`
	Events   []storage.Event   `json:"events"`
}

// HandleRoster returns the current count, roster and countdown state.
func (s *Server) HandleRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()
	snap, err := s.hub.Snapshot(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterResponse{
		Count:     snap.Count,
		Users:     rosterItems(snap.Roster),
		Countdown: snap.Countdown,
	})
}

// HandleHistory lists recent journaled sessions and countdown events.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	sessions, err := s.store.RecentSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	events, err := s.store.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Sessions: sessions, Events: events})
}

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-s.hub.Done():
		http.Error(w, "hub stopped", http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
