package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examprep/internal/filter"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/practice"
	"github.com/pavelanni/examprep/internal/session"
)

func (h *Handler) apiRoutes(r chi.Router) {
	r.Use(h.cors.Handler)
	r.Use(h.requireAPIAuth)
	r.Get("/counts", h.handleAPICounts)
	r.Get("/session", h.handleAPISession)
}

func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.authenticate(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode JSON", "error", err)
	}
}

// countsResponse is the body of GET /api/counts.
type countsResponse struct {
	filter.Counts
	Topics []string `json:"topics"`
}

func (h *Handler) handleAPICounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, countsResponse{
		Counts: h.state(r).Counts(),
		Topics: h.topics,
	})
}

// sessionResponse is the body of GET /api/session. Score is set once the
// session has been submitted.
type sessionResponse struct {
	ID        string             `json:"id"`
	State     model.SessionState `json:"state"`
	Position  int                `json:"position"`
	Total     int                `json:"total"`
	Answered  int                `json:"answered"`
	Score     *model.Score       `json:"score,omitempty"`
	Questions []apiQuestion      `json:"questions"`
}

type apiQuestion struct {
	ID       int                      `json:"id"`
	Text     string                   `json:"text"`
	Topic    string                   `json:"topic"`
	Options  [model.NumOptions]string `json:"options"`
	Chosen   string                   `json:"chosen,omitempty"`
	Answered bool                     `json:"answered"`
	Correct  *bool                    `json:"correct,omitempty"`
}

func (h *Handler) handleAPISession(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	err := h.state(r).Snapshot(func(s *session.Session) error {
		resp = sessionResponse{
			ID:       s.ID,
			State:    s.State(),
			Position: s.Position,
			Total:    s.Len(),
			Answered: s.Answered(),
		}
		if s.Submitted {
			score := s.Grade()
			resp.Score = &score
		}
		for _, it := range s.Review() {
			q := apiQuestion{
				ID:       it.Question.ID,
				Text:     it.Question.Text,
				Topic:    it.Question.Topic,
				Options:  it.Question.Options,
				Chosen:   it.Chosen,
				Answered: it.Answered,
			}
			if it.Answered {
				correct := it.Correct
				q.Correct = &correct
			}
			resp.Questions = append(resp.Questions, q)
		}
		return nil
	})
	if errors.Is(err, practice.ErrNoSession) {
		writeJSON(w, http.StatusOK, sessionResponse{State: model.StateEmpty, Questions: []apiQuestion{}})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
