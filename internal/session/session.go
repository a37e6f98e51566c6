// Package session serializes assistant requests per user and holds each
// user's plan state between requests.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/agent"
)

// DefaultIdleTTL is how long an untouched session survives before Purge
// reclaims it. An expired session simply restarts with an idle plan state.
const DefaultIdleTTL = 30 * time.Minute

type session struct {
	mu       sync.Mutex
	plan     agent.PlanState
	lastUsed time.Time
}

// Manager owns the per-user sessions. Requests for the same user run one
// at a time in arrival order; requests for different users run
// concurrently.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	idleTTL  time.Duration
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*session), idleTTL: DefaultIdleTTL}
}

func (m *Manager) get(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &session{plan: agent.NewPlanState()}
		m.sessions[userID] = s
	}
	s.lastUsed = time.Now()
	return s
}

// Do runs fn with the user's current plan state and stores the state fn
// returns. The per-session lock makes concurrent requests for one user
// queue up instead of interleaving mid-plan.
func (m *Manager) Do(ctx context.Context, userID string, fn func(agent.PlanState) (agent.Response, agent.PlanState)) agent.Response {
	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return agent.Response{Type: agent.TypeError, Message: "request cancelled", Actions: []agent.Action{}}
	}
	resp, next := fn(s.plan)
	s.plan = next
	s.lastUsed = time.Now()
	return resp
}

// PlanState returns a copy of the user's current plan state.
func (m *Manager) PlanState(userID string) agent.PlanState {
	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Reset discards the user's session, cancelling any in-flight plan state.
func (m *Manager) Reset(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Purge drops sessions idle past the TTL. Sessions mid-request hold their
// own lock, not the manager's, so purging never blocks on a running
// request; a purged-then-revived user just starts from an idle state.
func (m *Manager) Purge() int {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// PurgeLoop runs Purge on an interval until ctx is cancelled.
func (m *Manager) PurgeLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Purge()
		}
	}
}
