package schemas

import "errors"

// Error taxonomy shared by the planner and the agent loop. Recoverable
// conditions (duplicate navigation, stalled no-op, repeated identical tool)
// are handled locally by the loop and never surface as errors unless they
// escalate.
var (
	// ErrInvalidAction marks a decode failure on the action vocabulary.
	ErrInvalidAction = errors.New("invalid action")

	// ErrPlanning means no decodable plan and no heuristic match.
	ErrPlanning = errors.New("planning failed")

	// ErrPolicyDenied means the gate refused and consent was declined or
	// timed out.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrLoopExhausted means the iteration budget was reached without an
	// explicit done.
	ErrLoopExhausted = errors.New("agent loop exhausted iteration budget")

	// ErrBackendUnavailable means no active page session exists.
	ErrBackendUnavailable = errors.New("page backend unavailable")

	// ErrRunActive rejects starting a run while another is in flight on the
	// same session.
	ErrRunActive = errors.New("a run is already active on this session")
)
