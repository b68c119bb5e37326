package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/datea-app/backend/feed"

	"github.com/go-playground/validator/v10"
)

// feedSessions keeps one feed.Controller per authenticated user. Controllers
// are created lazily from the user's stored preferences and dropped whenever
// those preferences change, so the next request rebuilds the feed.
type feedSessions struct {
	mu          sync.Mutex
	controllers map[int]*feed.Controller

	db       *sql.DB
	notifier feed.Notifier
}

func newFeedSessions(db *sql.DB, notifier feed.Notifier) *feedSessions {
	return &feedSessions{
		controllers: make(map[int]*feed.Controller),
		db:          db,
		notifier:    notifier,
	}
}

func (s *feedSessions) controller(userID int) (*feed.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.controllers[userID]; ok {
		return c, nil
	}
	viewer, err := loadViewer(s.db, userID)
	if err != nil {
		return nil, err
	}
	c := feed.NewController(viewer, &profileStore{db: s.db}, &interactionStore{db: s.db}, s.notifier)
	s.controllers[userID] = c
	return c, nil
}

// invalidate drops a user's controller. Called after preference updates.
func (s *feedSessions) invalidate(userID int) {
	s.mu.Lock()
	delete(s.controllers, userID)
	s.mu.Unlock()
}

// inStack reports whether target is currently queued in me's feed. Used by
// the picture endpoint to scope access to visible candidates.
func (s *feedSessions) inStack(me, target int) bool {
	s.mu.Lock()
	c, ok := s.controllers[me]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return c.Contains(target)
}

type feedResponse struct {
	Profiles []feed.Profile `json:"profiles"`
	Head     *feed.Profile  `json:"head,omitempty"`
	Level    int            `json:"level"`
}

// feedHandler serves GET /feed. An empty stack triggers a synchronous fetch
// cycle before responding, so a fresh session gets profiles on first call.
func feedHandler(sessions *feedSessions) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(int)
		c, err := sessions.controller(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if c.Len() == 0 {
			if err := c.StartFeed(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, "feed_error")
				return
			}
		}
		resp := feedResponse{Profiles: c.Profiles(), Level: c.Level()}
		if head, ok := c.Head(); ok {
			resp.Head = &head
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

type decisionRequest struct {
	ProfileID int    `json:"profile_id" validate:"required"`
	Outcome   string `json:"outcome" validate:"required,oneof=accept reject"`
}

// decisionHandler serves POST /feed/decision. Decisions apply to the head of
// the stack only; anything else is reported as stale so the client can
// resync.
func decisionHandler(sessions *feedSessions) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := validate.Struct(req); err != nil {
			var verr validator.ValidationErrors
			if errors.As(err, &verr) {
				writeError(w, http.StatusBadRequest, "invalid_decision")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		outcome := feed.Accept
		if req.Outcome == "reject" {
			outcome = feed.Reject
		}

		userID := r.Context().Value(userIDKey).(int)
		c, err := sessions.controller(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		matched, err := c.Decide(r.Context(), req.ProfileID, outcome)
		if errors.Is(err, feed.ErrStaleDecision) {
			writeError(w, http.StatusConflict, "stale_decision")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, "decision_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"matched": matched})
	})
}

type filterRequest struct {
	Level *int `json:"level" validate:"required,gte=0,lte=4"`
}

// feedControlHandler dispatches POST /feed/restart and PUT /feed/filter.
func feedControlHandler(sessions *feedSessions) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "feed" {
			http.NotFound(w, r)
			return
		}
		userID := r.Context().Value(userIDKey).(int)
		c, err := sessions.controller(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		switch parts[1] {
		case "restart":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
				return
			}
			if err := c.Restart(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, "feed_error")
				return
			}
			resp := feedResponse{Profiles: c.Profiles(), Level: c.Level()}
			if head, ok := c.Head(); ok {
				resp.Head = &head
			}
			writeJSON(w, http.StatusOK, resp)
		case "filter":
			if r.Method != http.MethodPut && r.Method != http.MethodPatch {
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
				return
			}
			var req filterRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
			if err := validate.Struct(req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_level")
				return
			}
			c.SetScoreLevel(r.Context(), *req.Level)
			writeJSON(w, http.StatusOK, map[string]int{"level": c.Level()})
		default:
			http.NotFound(w, r)
		}
	})
}
