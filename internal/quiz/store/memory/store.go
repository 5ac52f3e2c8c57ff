package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

type answerKey struct {
	sessionID     uuid.UUID
	questionID    uuid.UUID
	participantID uuid.UUID
}

// Store is an in-memory implementation of store.Store with the same
// semantics as the Postgres store: linearizable per-row session writes,
// lost-update-free increments, and storage-level answer uniqueness.
type Store struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]models.Session
	participants map[uuid.UUID]map[uuid.UUID]models.Participant
	answers      map[answerKey]models.Answer
	questions    map[uuid.UUID][]models.Question
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:     make(map[uuid.UUID]models.Session),
		participants: make(map[uuid.UUID]map[uuid.UUID]models.Participant),
		answers:      make(map[answerKey]models.Answer),
		questions:    make(map[uuid.UUID][]models.Question),
	}
}

// SeedQuestions loads authoring-owned quiz content, ordered by OrderNumber.
func (s *Store) SeedQuestions(quizID uuid.UUID, questions []models.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := make([]models.Question, len(questions))
	copy(qs, questions)
	sort.Slice(qs, func(i, j int) bool { return qs[i].OrderNumber < qs[j].OrderNumber })
	s.questions[quizID] = qs
}

func (s *Store) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := sess
	return &out, nil
}

func (s *Store) UpdateSessionState(_ context.Context, id uuid.UUID, status models.SessionStatus, questionIndex, timeRemaining int, endedAt *time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sess.Status = status
	sess.CurrentQuestionIndex = questionIndex
	sess.TimeRemaining = timeRemaining
	sess.EndedAt = endedAt
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	out := sess
	return &out, nil
}

func (s *Store) UpdateCountdown(_ context.Context, id uuid.UUID, questionIndex, timeRemaining int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != models.SessionStatusActive || sess.CurrentQuestionIndex != questionIndex {
		return false, nil
	}
	sess.TimeRemaining = timeRemaining
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	return true, nil
}

// JoinParticipant inserts the participant or, when the user already joined
// this session, refreshes the existing row. Either way p is populated with
// the canonical row so callers hand out the stored participant id.
func (s *Store) JoinParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participants[p.SessionID] == nil {
		s.participants[p.SessionID] = make(map[uuid.UUID]models.Participant)
	}
	for _, existing := range s.participants[p.SessionID] {
		if existing.UserID == p.UserID {
			existing.Status = p.Status
			s.participants[p.SessionID][existing.ID] = existing
			*p = existing
			return nil
		}
	}
	s.participants[p.SessionID][p.ID] = *p
	return nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Participant, 0, len(s.participants[sessionID]))
	for _, p := range s.participants[sessionID] {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) IncrementScore(_ context.Context, sessionID, participantID uuid.UUID, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(sessionID, participantID, points)
}

func (s *Store) incrementLocked(sessionID, participantID uuid.UUID, points int) error {
	p, ok := s.participants[sessionID][participantID]
	if !ok {
		return store.ErrNotFound
	}
	p.TotalPoints += points
	s.participants[sessionID][participantID] = p
	return nil
}

func (s *Store) SubmitAnswer(_ context.Context, a *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{a.SessionID, a.QuestionID, a.ParticipantID}
	if _, exists := s.answers[key]; exists {
		return store.ErrAlreadyAnswered
	}
	s.answers[key] = *a
	if a.PointsEarned > 0 {
		if err := s.incrementLocked(a.SessionID, a.ParticipantID, a.PointsEarned); err != nil {
			delete(s.answers, key)
			return err
		}
	}
	return nil
}

func (s *Store) ListAnswers(_ context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Answer
	for key, a := range s.answers {
		if key.sessionID == sessionID && key.questionID == questionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) GetAnswer(_ context.Context, sessionID, questionID, participantID uuid.UUID) (*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerKey{sessionID, questionID, participantID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := a
	return &out, nil
}

func (s *Store) GetQuestion(_ context.Context, quizID uuid.UUID, orderNumber int) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions[quizID] {
		if q.OrderNumber == orderNumber {
			out := q
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CountQuestions(_ context.Context, quizID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions[quizID]), nil
}
