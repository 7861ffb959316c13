// File: internal/agent/session.go
package agent

import (
	"fmt"
	"sync"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// SessionState is the lifecycle of an agent session. Transitions are guarded
// so a second run can never start while one is in flight.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionPlanning SessionState = "planning"
	SessionRunning  SessionState = "running"
	SessionFinished SessionState = "finished"
)

// Session owns the run history of one logical agent. Exactly one run is
// current at a time; starting a new run while one is active fails with
// ErrRunActive rather than orphaning the live run's timeline.
type Session struct {
	mu      sync.Mutex
	state   SessionState
	current *schemas.AgentRun
	history []*schemas.AgentRun
}

// NewSession creates an idle session with no runs.
func NewSession() *Session {
	return &Session{state: SessionIdle}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// begin creates a new current run. Only an idle or finished session can start
// one; a previous current run is retired into the history.
func (s *Session) begin(title string) (*schemas.AgentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionIdle, SessionFinished:
	default:
		return nil, fmt.Errorf("%w: session is %s", schemas.ErrRunActive, s.state)
	}

	run := schemas.NewAgentRun(title)
	if s.current != nil {
		s.history = append(s.history, s.current)
	}
	s.current = run
	s.state = SessionPlanning
	return run, nil
}

// markRunning transitions planning to running once the first turn starts.
func (s *Session) markRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionPlanning {
		s.state = SessionRunning
	}
}

// finish terminates the current run, stamping finishedAt exactly once.
func (s *Session) finish(run *schemas.AgentRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run != nil {
		run.Finish()
	}
	if s.current == run {
		s.state = SessionFinished
	}
}

// Current returns the current run, or nil before the first one starts.
func (s *Session) Current() *schemas.AgentRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns snapshots of all runs, oldest first, including the current
// one.
func (s *Session) History() []schemas.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]schemas.RunSnapshot, 0, len(s.history)+1)
	for _, r := range s.history {
		out = append(out, r.Snapshot())
	}
	if s.current != nil {
		out = append(out, s.current.Snapshot())
	}
	return out
}
