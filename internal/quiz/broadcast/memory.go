package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
)

// Memory is an in-process Broadcaster for tests and single-node setups.
// Delivery is synchronous and per-publish, so tests can count sends.
type Memory struct {
	mu        sync.Mutex
	nextID    int
	session   map[uuid.UUID]map[int]Handler
	all       map[int]Handler
	published []events.Envelope
}

// NewMemory returns an empty in-process broadcaster.
func NewMemory() *Memory {
	return &Memory{
		session: make(map[uuid.UUID]map[int]Handler),
		all:     make(map[int]Handler),
	}
}

// Publish dispatches env synchronously to all matching handlers.
func (m *Memory) Publish(_ context.Context, env events.Envelope) error {
	m.mu.Lock()
	m.published = append(m.published, env)
	handlers := make([]Handler, 0, len(m.all)+len(m.session[env.SessionID]))
	for _, h := range m.session[env.SessionID] {
		handlers = append(handlers, h)
	}
	for _, h := range m.all {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

// Subscribe registers h for one session.
func (m *Memory) Subscribe(sessionID uuid.UUID, h Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	if m.session[sessionID] == nil {
		m.session[sessionID] = make(map[int]Handler)
	}
	m.session[sessionID][id] = h
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.session[sessionID], id)
	}, nil
}

// SubscribeAll registers h for every session.
func (m *Memory) SubscribeAll(h Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.all[id] = h
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.all, id)
	}, nil
}

// Published returns a copy of every envelope published so far.
func (m *Memory) Published() []events.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Envelope, len(m.published))
	copy(out, m.published)
	return out
}
