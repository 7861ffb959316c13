package schemas

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepState tracks a timeline step through its lifecycle. Transitions only
// move forward: planned -> running -> success|failure.
type StepState string

const (
	StepPlanned StepState = "planned"
	StepRunning StepState = "running"
	StepSuccess StepState = "success"
	StepFailure StepState = "failure"
)

// rank orders states so that regressions can be rejected.
func (s StepState) rank() int {
	switch s {
	case StepPlanned:
		return 0
	case StepRunning:
		return 1
	case StepSuccess, StepFailure:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the state is final.
func (s StepState) Terminal() bool { return s == StepSuccess || s == StepFailure }

// AgentStep is one entry in the run timeline.
type AgentStep struct {
	ID      string    `json:"id"`
	Action  Action    `json:"action"`
	State   StepState `json:"state"`
	Message string    `json:"message,omitempty"`
}

// AgentRun is the observable record of one agent run. Steps are append-only
// except for in-place state transitions by id. The loop mutates the run from
// its own sequential context; concurrent readers use Snapshot.
type AgentRun struct {
	mu         sync.RWMutex
	id         string
	title      string
	steps      []AgentStep
	startedAt  time.Time
	finishedAt *time.Time
}

// NewAgentRun creates a run with a synthetic first step recording the user
// instruction, so callers can always render what was asked.
func NewAgentRun(title string) *AgentRun {
	r := &AgentRun{
		id:        uuid.NewString(),
		title:     title,
		startedAt: time.Now().UTC(),
	}
	r.steps = append(r.steps, AgentStep{
		ID:      uuid.NewString(),
		Action:  Action{Type: ActionAskUser, Question: title},
		State:   StepSuccess,
		Message: "instruction received",
	})
	return r
}

// ID returns the run identifier.
func (r *AgentRun) ID() string { return r.id }

// Title returns the originating instruction.
func (r *AgentRun) Title() string { return r.title }

// StartedAt returns the run creation time.
func (r *AgentRun) StartedAt() time.Time { return r.startedAt }

// AppendStep adds a new timeline step and returns its id.
func (r *AgentRun) AppendStep(action Action, state StepState, message string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	step := AgentStep{
		ID:      uuid.NewString(),
		Action:  action,
		State:   state,
		Message: message,
	}
	r.steps = append(r.steps, step)
	return step.ID
}

// TransitionStep advances a step's state in place. Backward transitions and
// transitions out of a terminal state are ignored, keeping the timeline
// monotonic for observers.
func (r *AgentRun) TransitionStep(id string, state StepState, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.steps {
		if r.steps[i].ID != id {
			continue
		}
		if r.steps[i].State.Terminal() || state.rank() <= r.steps[i].State.rank() {
			return false
		}
		r.steps[i].State = state
		if message != "" {
			r.steps[i].Message = message
		}
		return true
	}
	return false
}

// FailPending marks every non-terminal step failed with a uniform message.
// Used when the backend disappears mid-run.
func (r *AgentRun) FailPending(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.steps {
		if !r.steps[i].State.Terminal() {
			r.steps[i].State = StepFailure
			r.steps[i].Message = message
		}
	}
}

// Finish stamps the completion time exactly once and reports whether this
// call was the one that finished the run.
func (r *AgentRun) Finish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt != nil {
		return false
	}
	now := time.Now().UTC()
	r.finishedAt = &now
	return true
}

// Finished reports whether the run has terminated.
func (r *AgentRun) Finished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt != nil
}

// FinishedAt returns the completion time, or nil while the run is live.
func (r *AgentRun) FinishedAt() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.finishedAt == nil {
		return nil
	}
	t := *r.finishedAt
	return &t
}

// Steps returns a copy of the timeline in execution order.
func (r *AgentRun) Steps() []AgentStep {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// RunSnapshot is the read model handed to UI callers.
type RunSnapshot struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Steps      []AgentStep `json:"steps"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}

// Snapshot copies the run state for cross-thread readers.
func (r *AgentRun) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := RunSnapshot{
		ID:        r.id,
		Title:     r.title,
		StartedAt: r.startedAt,
		Steps:     make([]AgentStep, len(r.steps)),
	}
	copy(snap.Steps, r.steps)
	if r.finishedAt != nil {
		t := *r.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}
