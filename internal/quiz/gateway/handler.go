package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/answers"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/broadcast"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/changefeed"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/results"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

// Server is the participant-facing edge: join, submit, pull state, read
// results, and a WebSocket firehose of session events. It never mutates
// session state itself; the controller owns the state machine.
type Server struct {
	store       store.Store
	submitter   *answers.Submitter
	aggregator  *results.Aggregator
	manager     *ConnectionManager
	broadcaster broadcast.Broadcaster
	clock       clockwork.Clock
}

// NewServer wires the gateway. The aggregator may share the submitter's
// store.
func NewServer(st store.Store, sub *answers.Submitter, agg *results.Aggregator, cm *ConnectionManager, b broadcast.Broadcaster, clock clockwork.Clock) *Server {
	return &Server{
		store:       st,
		submitter:   sub,
		aggregator:  agg,
		manager:     cm,
		broadcaster: b,
		clock:       clock,
	}
}

// Run relays broadcast events into the connection manager until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	unsub, err := s.broadcaster.SubscribeAll(func(env events.Envelope) {
		s.manager.BroadcastToSession(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe to broadcast: %w", err)
	}
	defer unsub()

	s.manager.Start(ctx)
	return nil
}

// ApplyChange forwards a change-feed row to WebSocket clients as a synthetic
// state_changed envelope, so the durable path reaches them even when the
// original broadcast was dropped.
func (s *Server) ApplyChange(change changefeed.Change) {
	env, err := events.NewStateChanged(change.Session.ID, s.clock.Now(), change.Session.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("failed to build change-feed relay event")
		return
	}
	s.manager.BroadcastToSession(env)
}

// Handler builds the routed, CORS-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /sessions/{id}/answers", s.handleSubmitAnswer)
	mux.HandleFunc("GET /sessions/{id}/state", s.handleState)
	mux.HandleFunc("GET /sessions/{id}/results", s.handleQuestionResults)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
}

type joinRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if sess.Status == models.SessionStatusEnded {
		writeError(w, http.StatusConflict, "session has ended")
		return
	}

	p := &models.Participant{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    req.UserID,
		Status:    models.ParticipantStatusWaiting,
		JoinedAt:  s.clock.Now(),
	}
	if err := s.store.JoinParticipant(r.Context(), p); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type submitRequest struct {
	QuestionID    uuid.UUID `json:"question_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	AnswerText    string    `json:"answer_text"`
	TimeRemaining int       `json:"time_remaining"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.QuestionID == uuid.Nil || req.ParticipantID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "question_id and participant_id are required")
		return
	}

	answer, err := s.submitter.Submit(r.Context(), answers.Submission{
		SessionID:             sessionID,
		QuestionID:            req.QuestionID,
		ParticipantID:         req.ParticipantID,
		AnswerText:            req.AnswerText,
		TimeRemainingAtSubmit: req.TimeRemaining,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, answer)
	case errors.Is(err, store.ErrAlreadyAnswered):
		writeError(w, http.StatusConflict, "answer already recorded")
	case errors.Is(err, answers.ErrSessionNotActive):
		writeError(w, http.StatusConflict, "session is not accepting answers")
	case errors.Is(err, answers.ErrUnknownQuestion):
		writeError(w, http.StatusUnprocessableEntity, "question does not match current session state")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("answer submission failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleState is the pull fallback: the authoritative row, always fresh.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleQuestionResults(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	index := sess.CurrentQuestionIndex
	if raw := r.URL.Query().Get("question_index"); raw != "" {
		index, err = strconv.Atoi(raw)
		if err != nil || index < 0 {
			writeError(w, http.StatusBadRequest, "question_index must be a non-negative integer")
			return
		}
	}

	q, err := s.store.GetQuestion(r.Context(), sess.QuizID, index)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	summary, err := s.aggregator.QuestionResults(r.Context(), sessionID, *q)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("question aggregation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	entries, err := s.aggregator.Leaderboard(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Query().Get("session_id")
	if sessionIDStr == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id format")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	if err := s.manager.UpgradeConnection(w, r, userID, sessionID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.manager.Stats(),
	})
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	log.Error().Err(err).Msg("store error")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
