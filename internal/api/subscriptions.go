package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/feedwatch/internal/journal"
	"github.com/nerrad567/feedwatch/internal/supervisor"
)

// maxSessionsLimit caps the limit query parameter of the sessions route.
const maxSessionsLimit = 500

func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": snap,
		"count":         len(snap),
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	topic, ok := topicParam(w, r)
	if !ok {
		return
	}

	st, err := s.status.Status(topic)
	if errors.Is(err, supervisor.ErrUnknownTopic) {
		writeNotFound(w, "unknown topic: "+topic)
		return
	}
	if err != nil {
		writeInternalError(w, "failed to read status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	topic, ok := topicParam(w, r)
	if !ok {
		return
	}

	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "journal is not enabled")
		return
	}
	if _, err := s.status.Status(topic); errors.Is(err, supervisor.ErrUnknownTopic) {
		writeNotFound(w, "unknown topic: "+topic)
		return
	}

	limit := journal.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSessionsLimit {
			writeBadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxSessionsLimit))
			return
		}
		limit = n
	}

	sessions, err := s.sessions.Sessions(r.Context(), topic, limit)
	if err != nil {
		s.logger.Error("listing sessions failed", "topic", topic, "error", err, "request_id", requestIDFrom(r.Context()))
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topic":    topic,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// topicParam decodes the {topic} URL parameter.
func topicParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	topic, err := url.PathUnescape(chi.URLParam(r, "topic"))
	if err != nil || topic == "" {
		writeBadRequest(w, "invalid topic")
		return "", false
	}
	return topic, true
}
