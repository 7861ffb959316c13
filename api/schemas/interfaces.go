package schemas

import "context"

// ModelTier selects which underlying model a generation request is routed to.
type ModelTier string

const (
	// TierFast is used for the per-turn decisions of the agent loop, where
	// latency dominates.
	TierFast ModelTier = "fast"
	// TierPowerful is used for one-shot planning.
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions holds parameters for controlling LLM generation.
type GenerationOptions struct {
	// Temperature controls the creativity of the response. Lower is more
	// deterministic.
	Temperature float32
	// MaxTokens sets the maximum length of the generated response.
	MaxTokens int
	// ForceJSONFormat asks the provider to enforce JSON output mode when
	// available. All JSON robustness still lives in the planner/loop.
	ForceJSONFormat bool
}

// GenerationRequest encapsulates all inputs for a single LLM call.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Tier         ModelTier
	Options      GenerationOptions
}

// LLMClient abstracts the language model provider. It has no structural
// contract beyond returning text.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}

// StreamingLLMClient is implemented by providers that can stream chunks.
type StreamingLLMClient interface {
	LLMClient
	GenerateStreaming(ctx context.Context, req GenerationRequest) (<-chan string, error)
}

// PageBackend performs the actual DOM query/manipulation for one action and
// returns structured results. Read-only actions (findElements, extract,
// waitFor) must be safe to call repeatedly.
type PageBackend interface {
	Execute(ctx context.Context, action Action) ToolObservation
	// FocusedElement returns a summary of the focused element, or nil when
	// nothing useful has focus.
	FocusedElement(ctx context.Context) *FocusSummary
	// Extract returns page text for the given mode ("article", "full") and
	// optional selector.
	Extract(ctx context.Context, mode, selector string) (string, error)
}

// SnapshotProvider supplies the current URL, title and a text excerpt of
// visible content. A nil result means no page is attached.
type SnapshotProvider interface {
	CurrentContext(ctx context.Context) *PageContext
}

// Prompter carries askUser exchanges to the human. The returned index points
// into choices; implementations must honor the default on timeout.
type Prompter interface {
	Ask(ctx context.Context, question string, choices []string, defaultChoice int, timeoutMs int) (int, error)
}

// PermissionGate is the policy decision point consulted before every
// side-effecting action.
type PermissionGate interface {
	Evaluate(intent ActionType, host string) PermissionDecision
}

// AuditLog is the append-only record of gated decisions and outcomes.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}
