package schemas

import "time"

// PermissionDecision is the result of evaluating one (action type, host)
// pair against the active policy. Stateless; recomputed each time since
// policy may depend on runtime settings.
type PermissionDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow builds an allowing decision.
func Allow() PermissionDecision { return PermissionDecision{Allowed: true} }

// Deny builds a denying decision with a reason.
func Deny(reason string) PermissionDecision {
	return PermissionDecision{Allowed: false, Reason: reason}
}

// AuditEntry records one gated action attempt. A denied-then-consented
// action produces two entries (initial denial, then consent resolution) so
// the trail stays tamper-evident; a third entry correlates the decision with
// the eventual outcome.
type AuditEntry struct {
	ID               string            `json:"id"`
	RunID            string            `json:"run_id,omitempty"`
	Host             string            `json:"host,omitempty"`
	Action           ActionType        `json:"action"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	PolicyAllowed    bool              `json:"policy_allowed"`
	PolicyReason     string            `json:"policy_reason,omitempty"`
	RequestedConsent bool              `json:"requested_consent"`
	UserConsented    *bool             `json:"user_consented,omitempty"`
	OutcomeSuccess   *bool             `json:"outcome_success,omitempty"`
	OutcomeMessage   string            `json:"outcome_message,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}
