// File: internal/agent/loop.go
package agent

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/audit"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/planner"
	"github.com/xkilldash9x/webpilot/internal/policy"
)

const (
	defaultMaxSteps       = 24
	defaultFailureLimit   = 3
	defaultConsentTimeout = 15000
	dedupWaitTimeoutMs    = 2000
	bootstrapWaitMs       = 8000
	auditTextPreviewLen   = 120
)

// Deps are the external collaborators an Agent drives. Backend and LLM are
// required for the loop; Audit defaults to a no-op sink and a nil Prompter
// means consent rounds always resolve to Cancel.
type Deps struct {
	LLM       schemas.LLMClient
	Backend   schemas.PageBackend
	Snapshots schemas.SnapshotProvider
	Gate      schemas.PermissionGate
	Audit     schemas.AuditLog
	Prompter  schemas.Prompter
}

// Agent executes instructions against a live page, either through a one-shot
// plan or the iterative model-directed loop. One Agent can serve many
// sessions; all per-run state lives in the Session and the loop frame.
type Agent struct {
	logger    *zap.Logger
	cfg       config.AgentConfig
	llm       schemas.LLMClient
	backend   schemas.PageBackend
	snapshots schemas.SnapshotProvider
	gate      schemas.PermissionGate
	audit     schemas.AuditLog
	prompter  schemas.Prompter
	planner   *planner.Planner
}

// New wires an Agent from configuration and collaborators.
func New(logger *zap.Logger, cfg config.AgentConfig, deps Deps) *Agent {
	sink := deps.Audit
	if sink == nil {
		sink = audit.NopLog{}
	}
	return &Agent{
		logger:    logger.Named("agent_loop"),
		cfg:       cfg,
		llm:       deps.LLM,
		backend:   deps.Backend,
		snapshots: deps.Snapshots,
		gate:      deps.Gate,
		audit:     sink,
		prompter:  deps.Prompter,
		planner:   planner.New(logger, deps.LLM),
	}
}

func (a *Agent) maxSteps() int {
	if a.cfg.MaxSteps > 0 {
		return a.cfg.MaxSteps
	}
	return defaultMaxSteps
}

func (a *Agent) failureLimit() int {
	if a.cfg.FailureLimit > 0 {
		return a.cfg.FailureLimit
	}
	return defaultFailureLimit
}

func (a *Agent) consentTimeoutMs() int {
	if a.cfg.ConsentTimeoutMs > 0 {
		return a.cfg.ConsentTimeoutMs
	}
	return defaultConsentTimeout
}

// PlanAndRun plans the instruction once and executes the resulting steps in
// order. Planning failure leaves a single failed timeline step rather than an
// empty run.
func (a *Agent) PlanAndRun(ctx context.Context, session *Session, instruction string) (*schemas.AgentRun, error) {
	run, err := session.begin(instruction)
	if err != nil {
		return nil, err
	}
	if a.backend == nil {
		run.FailPending("no active page session")
		session.finish(run)
		return run, schemas.ErrBackendUnavailable
	}

	plan, err := a.planner.Plan(ctx, instruction)
	if err != nil {
		run.AppendStep(schemas.Action{Type: schemas.ActionAskUser, Question: instruction}, schemas.StepFailure, err.Error())
		session.finish(run)
		return run, err
	}

	session.markRunning()
	st := newLoopState(a.cfg.ScratchLines)
	for _, action := range plan {
		obs, fatal := a.performAction(ctx, run, st, action, a.currentHost(ctx))
		if fatal != nil {
			session.finish(run)
			return run, fatal
		}
		if st.consecutiveFailures >= a.failureLimit() {
			session.finish(run)
			return run, fmt.Errorf("plan aborted after %d consecutive failures: %s", st.consecutiveFailures, obs.Message)
		}
	}
	session.finish(run)
	return run, nil
}

// RunLoop executes the instruction with the iterative observe-decide-act
// loop. The returned run is fully populated and finished on every path.
func (a *Agent) RunLoop(ctx context.Context, session *Session, instruction string) (*schemas.AgentRun, error) {
	run, _, err := a.runLoop(ctx, session, instruction)
	return run, err
}

// runLoop is the loop body behind RunLoop, additionally returning the final
// loop state for inspection.
func (a *Agent) runLoop(ctx context.Context, session *Session, instruction string) (*schemas.AgentRun, *loopState, error) {
	run, err := session.begin(instruction)
	if err != nil {
		return nil, nil, err
	}

	st := newLoopState(a.cfg.ScratchLines)
	if a.backend == nil || a.llm == nil {
		run.FailPending("no active page session")
		session.finish(run)
		return run, st, schemas.ErrBackendUnavailable
	}

	goals := subGoalsFor(instruction)
	session.markRunning()

	if err := a.bootstrap(ctx, run, st, instruction); err != nil {
		session.finish(run)
		return run, st, err
	}

	maxSteps := a.maxSteps()
	budget := maxSteps + 4
	realSteps := 0

	for turn := 0; turn < budget && realSteps < maxSteps; turn++ {
		if st.consecutiveFailures >= a.failureLimit() {
			a.logger.Warn("Aborting run on failure streak",
				zap.String("run_id", run.ID()),
				zap.Int("consecutive_failures", st.consecutiveFailures))
			session.finish(run)
			return run, st, fmt.Errorf("run aborted after %d consecutive failures", st.consecutiveFailures)
		}

		pc := a.currentContext(ctx)
		host := ""
		if pc != nil {
			host = policy.NormalizeHost(pc.URL)
		}
		focused := a.backend.FocusedElement(ctx)

		raw, err := a.llm.GenerateResponse(ctx, schemas.GenerationRequest{
			SystemPrompt: loopSystemPrompt,
			UserPrompt:   buildObservation(instruction, pc, focused, host, st),
			Tier:         schemas.TierFast,
			Options: schemas.GenerationOptions{
				Temperature:     0.2,
				ForceJSONFormat: true,
			},
		})
		if err != nil {
			st.consecutiveFailures++
			st.note("model error: " + err.Error())
			continue
		}

		decision, err := decodeTurn(raw)
		if err != nil {
			st.consecutiveFailures++
			st.note("previous response was malformed, respond with exactly one JSON decision object")
			continue
		}

		if decision.Tool == toolDone {
			if reason := goals.unmet(st); reason != "" {
				st.note("refusing to finish: " + reason)
				a.attachFreshSample(ctx, st)
				continue
			}
			run.AppendStep(schemas.Action{Type: schemas.ActionAskUser, Question: decision.summary()}, schemas.StepSuccess, "run complete")
			session.finish(run)
			return run, st, nil
		}

		action, err := decision.action()
		if err != nil {
			st.consecutiveFailures++
			st.note(err.Error())
			continue
		}
		// Model-origin locators never carry raw selectors into execution.
		action.Locator.StripSelectors()

		if action.Type == schemas.ActionNavigate && pc != nil && sameDestination(action.URL, pc.URL) {
			a.collapseDuplicateNavigation(ctx, run, st, pc.URL)
			continue
		}

		if action.Type == schemas.ActionAskUser {
			a.relayQuestion(ctx, run, st, action)
			continue
		}

		obs, fatal := a.performAction(ctx, run, st, action, host)
		if fatal != nil {
			session.finish(run)
			return run, st, fatal
		}
		realSteps++

		st.note(summarizeObservation(action, obs))
		if action.Type == schemas.ActionFindElements && obs.OK {
			st.recordFind(action.Locator, obs)
		}
		if streak := st.observeToolUse(decision.Tool, action.Locator); streak >= 2 && action.Type == schemas.ActionFindElements {
			st.note("hint: stop re-querying, pick an element index from the sample and act on it")
		}
		if obs.OK && isMutating(action.Type) {
			if noops := st.recordSignature(a.freshSignature(ctx)); noops >= 2 {
				st.note("hint: the page did not change, try scrolling or acting on a different element")
				a.attachFreshSample(ctx, st)
			}
		}
	}

	session.finish(run)
	return run, st, schemas.ErrLoopExhausted
}

// bootstrap runs before the first model turn: it seeds the scratch memory
// with element samples, dismisses consent overlays and performs the heuristic
// plan's navigation step eagerly so the model starts on the right page.
func (a *Agent) bootstrap(ctx context.Context, run *schemas.AgentRun, st *loopState, instruction string) error {
	for _, loc := range []*schemas.Locator{nil, {Role: "article"}, {Role: "textbox"}} {
		action := schemas.Action{Type: schemas.ActionFindElements, Locator: loc}
		obs := a.backend.Execute(ctx, action)
		st.note("bootstrap " + summarizeObservation(action, obs))
		if obs.OK && obs.Count() > 0 {
			st.recordFind(loc, obs)
		}
	}

	a.dismissOverlays(ctx, run, st)

	if plan, ok := planner.HeuristicPlan(instruction); ok && len(plan) > 0 && plan[0].Type == schemas.ActionNavigate {
		if _, fatal := a.performAction(ctx, run, st, plan[0], a.currentHost(ctx)); fatal != nil {
			return fatal
		}
		wait := schemas.Action{Type: schemas.ActionWaitFor, Value: "ready", TimeoutMs: bootstrapWaitMs}
		if _, fatal := a.performAction(ctx, run, st, wait, a.currentHost(ctx)); fatal != nil {
			return fatal
		}
		st.note("navigated to " + plan[0].URL + " before the first turn")
	}
	return nil
}

// dismissOverlays clicks an accept button when a cookie/consent overlay is
// detected. Best effort; the click still passes the permission gate.
func (a *Agent) dismissOverlays(ctx context.Context, run *schemas.AgentRun, st *loopState) {
	probe := schemas.Action{Type: schemas.ActionFindElements, Locator: &schemas.Locator{Role: "button", Text: "accept"}}
	obs := a.backend.Execute(ctx, probe)
	if !obs.OK || obs.Count() == 0 {
		return
	}
	click := schemas.Action{Type: schemas.ActionClick, Locator: &schemas.Locator{Role: "button", Text: "accept"}}
	if _, fatal := a.performAction(ctx, run, st, click, a.currentHost(ctx)); fatal == nil {
		st.note("dismissed a cookie/consent overlay")
	}
}

// collapseDuplicateNavigation substitutes a short ready-wait for a navigation
// to the page the agent is already on.
func (a *Agent) collapseDuplicateNavigation(ctx context.Context, run *schemas.AgentRun, st *loopState, currentURL string) {
	st.skippedDuplicateNavigations++
	wait := schemas.Action{Type: schemas.ActionWaitFor, Value: "ready", TimeoutMs: dedupWaitTimeoutMs}
	stepID := run.AppendStep(wait, schemas.StepRunning, "duplicate navigation collapsed to wait")
	obs := a.backend.Execute(ctx, wait)
	a.transitionStep(run, stepID, obs)
	st.note("already on " + currentURL + ", collapsed a repeat navigation")
	if st.skippedDuplicateNavigations >= 2 {
		st.note("hint: you are already on the target page, act on its content instead of navigating")
	}
}

// relayQuestion carries a model-initiated askUser to the human.
func (a *Agent) relayQuestion(ctx context.Context, run *schemas.AgentRun, st *loopState, action schemas.Action) {
	stepID := run.AppendStep(action, schemas.StepRunning, "")
	if a.prompter == nil {
		run.TransitionStep(stepID, schemas.StepFailure, "no prompter attached")
		st.note("askUser failed: no prompter attached")
		return
	}
	timeout := action.TimeoutMs
	if timeout <= 0 {
		timeout = a.consentTimeoutMs()
	}
	idx, err := a.prompter.Ask(ctx, action.Question, action.Choices, action.DefaultChoice, timeout)
	if err != nil {
		run.TransitionStep(stepID, schemas.StepFailure, err.Error())
		st.note("askUser failed: " + err.Error())
		return
	}
	answer := strconv.Itoa(idx)
	if idx >= 0 && idx < len(action.Choices) {
		answer = action.Choices[idx]
	}
	run.TransitionStep(stepID, schemas.StepSuccess, answer)
	st.note(fmt.Sprintf("user answered %q to %q", answer, action.Question))
}

// performAction runs one action through gate, audit, backend and timeline.
// The returned error is fatal for the run (currently only a policy denial
// that consent did not override); execution failures are reported through the
// observation and the failure counter instead.
func (a *Agent) performAction(ctx context.Context, run *schemas.AgentRun, st *loopState, action schemas.Action, currentHost string) (schemas.ToolObservation, error) {
	host := policy.HostOf(action, currentHost)
	gated := action.Type.SideEffecting() && a.gate != nil

	var entry schemas.AuditEntry
	if gated {
		decision := a.gate.Evaluate(action.Type, host)
		entry = schemas.AuditEntry{
			RunID:         run.ID(),
			Host:          host,
			Action:        action.Type,
			Parameters:    auditParams(action),
			PolicyAllowed: decision.Allowed,
			PolicyReason:  decision.Reason,
		}
		if decision.Allowed {
			a.appendAudit(ctx, entry)
		} else {
			entry.RequestedConsent = true
			a.appendAudit(ctx, entry)

			consented := a.requestConsent(ctx, action, host)
			resolution := entry
			resolution.UserConsented = &consented
			a.appendAudit(ctx, resolution)

			if !consented {
				run.AppendStep(action, schemas.StepFailure, "blocked by policy: "+decision.Reason)
				st.note("policy blocked " + action.String())
				return schemas.Failure(decision.Reason), fmt.Errorf("%w: %s", schemas.ErrPolicyDenied, decision.Reason)
			}
		}
	}

	stepID := run.AppendStep(action, schemas.StepRunning, "")
	obs := a.backend.Execute(ctx, action)
	a.transitionStep(run, stepID, obs)

	if gated {
		ok := obs.OK
		outcome := entry
		outcome.OutcomeSuccess = &ok
		outcome.OutcomeMessage = obs.Message
		a.appendAudit(ctx, outcome)
	}

	st.recordOutcome(action, obs.OK)
	return obs, nil
}

// requestConsent runs the single consent round allowed per denied action.
// Default is Cancel, both on timeout and when no prompter is attached.
func (a *Agent) requestConsent(ctx context.Context, action schemas.Action, host string) bool {
	if a.prompter == nil {
		return false
	}
	question := fmt.Sprintf("Policy blocks %s on %q. Allow it once?", action.Type, host)
	idx, err := a.prompter.Ask(ctx, question, []string{"Allow once", "Cancel"}, 1, a.consentTimeoutMs())
	if err != nil {
		a.logger.Warn("Consent prompt failed, treating as Cancel", zap.Error(err))
		return false
	}
	return idx == 0
}

func (a *Agent) transitionStep(run *schemas.AgentRun, stepID string, obs schemas.ToolObservation) {
	if obs.OK {
		run.TransitionStep(stepID, schemas.StepSuccess, obs.Message)
	} else {
		run.TransitionStep(stepID, schemas.StepFailure, obs.Message)
	}
}

func (a *Agent) appendAudit(ctx context.Context, entry schemas.AuditEntry) {
	if err := a.audit.Append(ctx, entry); err != nil {
		a.logger.Error("Failed to append audit entry", zap.Error(err))
	}
}

// attachFreshSample re-queries the page for a generic element sample and
// makes it the "last find" for the next observation.
func (a *Agent) attachFreshSample(ctx context.Context, st *loopState) {
	action := schemas.Action{Type: schemas.ActionFindElements}
	obs := a.backend.Execute(ctx, action)
	if obs.OK {
		st.recordFind(nil, obs)
		st.note("fresh sample: " + summarizeObservation(action, obs))
	}
}

func (a *Agent) currentContext(ctx context.Context) *schemas.PageContext {
	if a.snapshots == nil {
		return nil
	}
	return a.snapshots.CurrentContext(ctx)
}

func (a *Agent) currentHost(ctx context.Context) string {
	if pc := a.currentContext(ctx); pc != nil {
		return policy.NormalizeHost(pc.URL)
	}
	return ""
}

// freshSignature recomputes the page signature from the live page, feeding
// the no-op detector.
func (a *Agent) freshSignature(ctx context.Context) string {
	pc := a.currentContext(ctx)
	if pc == nil {
		return ""
	}
	excerpt, err := a.backend.Extract(ctx, "article", "")
	if err != nil || excerpt == "" {
		excerpt = pc.TextExcerpt
	}
	return pageSignature(pc.URL, pc.Title, excerpt)
}

// sameDestination reports whether a navigation target points at the page the
// agent is already on, by exact URL or by normalized host.
func sameDestination(target, current string) bool {
	if target == "" || current == "" {
		return false
	}
	if target == current {
		return true
	}
	th := policy.NormalizeHost(target)
	return th != "" && th == policy.NormalizeHost(current)
}

func isMutating(t schemas.ActionType) bool {
	switch t {
	case schemas.ActionNavigate, schemas.ActionClick, schemas.ActionTypeText, schemas.ActionSelect:
		return true
	default:
		return false
	}
}

// auditParams flattens the interesting action fields into the string map the
// audit schema stores.
func auditParams(action schemas.Action) map[string]string {
	params := map[string]string{}
	if action.URL != "" {
		params["url"] = action.URL
	}
	if action.Text != "" {
		text := action.Text
		if len(text) > auditTextPreviewLen {
			text = text[:auditTextPreviewLen]
		}
		params["text"] = text
	}
	if action.Value != "" {
		params["value"] = action.Value
	}
	if action.Direction != "" {
		params["direction"] = action.Direction
	}
	if action.Submit {
		params["submit"] = "true"
	}
	if action.Locator != nil {
		if action.Locator.Role != "" {
			params["role"] = action.Locator.Role
		}
		if action.Locator.Name != "" {
			params["name"] = action.Locator.Name
		}
	}
	return params
}
