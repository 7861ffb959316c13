// File: internal/planner/augment.go
package planner

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
)

const (
	readyTimeoutMs    = 8000
	presenceTimeoutMs = 8000
	idleTimeoutMs     = 1200
)

// Augment makes a raw plan resilient against slow pages by weaving in wait
// steps: a readiness wait after every navigation, a presence probe before
// every element interaction, and a short idle wait after side effects that
// can trigger page mutations. Plans that already carry an adjacent wait are
// left alone.
func Augment(plan []schemas.Action) []schemas.Action {
	out := make([]schemas.Action, 0, len(plan)*2)

	for i, action := range plan {
		switch action.Type {
		case schemas.ActionNavigate:
			out = append(out, action)
			if !isWait(next(plan, i)) {
				out = append(out, readyWait())
			}

		case schemas.ActionClick, schemas.ActionTypeText, schemas.ActionSelect, schemas.ActionFindElements:
			if action.Locator != nil && !action.Locator.IsZero() && !isPresenceWait(prev(out)) {
				out = append(out, presenceWait(action.Locator))
			}
			out = append(out, action)
			if action.Type.SideEffecting() && !isWait(next(plan, i)) {
				out = append(out, idleWait())
			}

		default:
			out = append(out, action)
		}
	}

	return out
}

func next(plan []schemas.Action, i int) *schemas.Action {
	if i+1 < len(plan) {
		return &plan[i+1]
	}
	return nil
}

func prev(out []schemas.Action) *schemas.Action {
	if len(out) > 0 {
		return &out[len(out)-1]
	}
	return nil
}

func isWait(a *schemas.Action) bool {
	return a != nil && a.Type == schemas.ActionWaitFor
}

func isPresenceWait(a *schemas.Action) bool {
	return isWait(a) && a.Locator != nil
}

func readyWait() schemas.Action {
	return schemas.Action{
		Type:      schemas.ActionWaitFor,
		Value:     "ready",
		TimeoutMs: readyTimeoutMs,
	}
}

func idleWait() schemas.Action {
	return schemas.Action{
		Type:      schemas.ActionWaitFor,
		Value:     "idle",
		TimeoutMs: idleTimeoutMs,
	}
}

// presenceWait builds a wait step probing for an element of the upcoming
// interaction's role. Planner-inserted steps may carry CSS selectors; only
// model-emitted locators are stripped of them.
func presenceWait(loc *schemas.Locator) schemas.Action {
	return schemas.Action{
		Type:      schemas.ActionWaitFor,
		Locator:   &schemas.Locator{CSS: roleProbeSelector(loc.Role)},
		TimeoutMs: presenceTimeoutMs,
	}
}

func roleProbeSelector(role string) string {
	switch role {
	case "textbox", "searchbox":
		return `input:not([type=hidden]), textarea, [contenteditable=true], [role=textbox], [role=searchbox]`
	case "button":
		return `button, input[type=submit], input[type=button], [role=button]`
	case "link":
		return `a[href], [role=link]`
	case "combobox", "listbox":
		return `select, [role=combobox], [role=listbox]`
	case "article":
		return `article, [role=article], main`
	default:
		return `body`
	}
}
