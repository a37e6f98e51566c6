package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/agent"
)

func respondWith(state agent.PlanState) (agent.Response, agent.PlanState) {
	return agent.Response{Type: agent.TypeResponse, Actions: []agent.Action{}}, state
}

func TestDo_StateCarriesAcrossCalls(t *testing.T) {
	m := NewManager()
	plan := agent.Plan{Summary: "s", Groups: []agent.Group{{
		Title:      "g",
		Operations: []agent.Operation{{Type: "create_page", Params: map[string]any{"name": "P"}}},
	}}}

	m.Do(context.Background(), "u1", func(state agent.PlanState) (agent.Response, agent.PlanState) {
		if state.Mode != agent.ModeIdle {
			t.Errorf("fresh session mode = %v", state.Mode)
		}
		return respondWith(agent.NextGroup(agent.StartPlan(state, plan)))
	})

	m.Do(context.Background(), "u1", func(state agent.PlanState) (agent.Response, agent.PlanState) {
		if state.Mode != agent.ModeConfirming || state.Plan == nil {
			t.Errorf("second call did not see stored state: %+v", state)
		}
		return respondWith(state)
	})

	// A different user gets an independent session.
	m.Do(context.Background(), "u2", func(state agent.PlanState) (agent.Response, agent.PlanState) {
		if state.Plan != nil {
			t.Error("u2 saw u1's plan")
		}
		return respondWith(state)
	})
}

func TestDo_SerializesPerUser(t *testing.T) {
	m := NewManager()
	var active, maxActive int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Do(context.Background(), "u1", func(state agent.PlanState) (agent.Response, agent.PlanState) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return respondWith(state)
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent requests for one user = %d, want 1", maxActive)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := m.Do(ctx, "u1", func(state agent.PlanState) (agent.Response, agent.PlanState) {
		t.Error("fn ran despite cancelled context")
		return respondWith(state)
	})
	if resp.Type != agent.TypeError {
		t.Errorf("resp = %+v", resp)
	}
}

func TestReset(t *testing.T) {
	m := NewManager()
	plan := agent.Plan{Summary: "s", Groups: []agent.Group{{Title: "g"}}}
	m.Do(context.Background(), "u1", func(state agent.PlanState) (agent.Response, agent.PlanState) {
		return respondWith(agent.NextGroup(agent.StartPlan(state, plan)))
	})

	m.Reset("u1")

	if state := m.PlanState("u1"); state.Plan != nil || state.Mode != agent.ModeIdle {
		t.Errorf("state after reset = %+v", state)
	}
}

func TestPurge_DropsOnlyIdleSessions(t *testing.T) {
	m := NewManager()
	m.idleTTL = 50 * time.Millisecond

	m.Do(context.Background(), "stale", respondWith)
	m.sessions["stale"].lastUsed = time.Now().Add(-time.Minute)
	m.Do(context.Background(), "fresh", respondWith)

	if n := m.Purge(); n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
	if _, ok := m.sessions["stale"]; ok {
		t.Error("stale session survived the purge")
	}
	if _, ok := m.sessions["fresh"]; !ok {
		t.Error("fresh session was purged")
	}
}
