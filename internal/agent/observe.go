// File: internal/agent/observe.go
package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const observationExcerptLen = 500

// stateSummary is the machine-readable block embedded into each observation.
type stateSummary struct {
	LastToolKey    string                `json:"last_tool_key"`
	SameToolStreak int                   `json:"same_tool_streak"`
	Host           string                `json:"host"`
	FocusedElement *schemas.FocusSummary `json:"focused_element,omitempty"`
}

// buildObservation assembles the compact text block the model decides from:
// recent scratch lines, the page context, a state object, the last element
// sample and the original instruction.
func buildObservation(instruction string, pc *schemas.PageContext, focused *schemas.FocusSummary, host string, st *loopState) string {
	var b strings.Builder

	if block := st.scratchBlock(); block != "" {
		b.WriteString("## Recent activity\n")
		b.WriteString(block)
		b.WriteString("\n\n")
	}

	b.WriteString("## Page\n")
	if pc != nil {
		fmt.Fprintf(&b, "url: %s\ntitle: %s\n", pc.URL, pc.Title)
		if excerpt := pc.TextExcerpt; excerpt != "" {
			if len(excerpt) > observationExcerptLen {
				excerpt = excerpt[:observationExcerptLen]
			}
			fmt.Fprintf(&b, "snippet: %s\n", excerpt)
		}
	} else {
		b.WriteString("no page attached\n")
	}
	b.WriteString("\n")

	state := stateSummary{
		LastToolKey:    st.lastToolKey,
		SameToolStreak: st.sameToolStreak,
		Host:           host,
		FocusedElement: focused,
	}
	if data, err := json.Marshal(state); err == nil {
		fmt.Fprintf(&b, "## State\n%s\n\n", data)
	}

	if st.lastFind != nil {
		fmt.Fprintf(&b, "## Last element sample (role=%q, count=%d)\n", st.lastFind.role, st.lastFind.count)
		for _, el := range st.lastFind.items {
			fmt.Fprintf(&b, "  [%d] %s %s %s\n", el.Index, el.Role, el.Name, el.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Instruction\n%s\n", instruction)
	return b.String()
}

const loopSystemPrompt = `You drive a web browser one action at a time for 'webpilot'.
Each turn you receive an observation and must respond with EXACTLY ONE JSON object:
{"tool":"<name>","arguments":{...}} - never an array, never more than one object, no prose.
Tools:
- navigate {"url":"<absolute URL>"}
- findElements {"locator":{"role":"...","name":"...","text":"..."}}
- click {"locator":{...}}
- typeText {"locator":{...},"text":"...","submit":true|false}
- select {"locator":{...},"value":"..."}
- scroll {"direction":"up|down","amountPx":600}
- waitFor {"value":"ready|idle","timeoutMs":5000}
- extract {"value":"article|full"}
- switchTab {"value":"<tab hint>"}
- askUser {"question":"...","choices":["..."]}
- done {"summary":"<what you accomplished>"} when the instruction is complete
Locators use role/name/text/nth only. Prefer acting on elements from the last
sample by role and name instead of re-querying. Finish with done as soon as
the instruction is satisfied.`

// subGoals are lightweight requirements mined from the instruction text. The
// done tool is refused while one is unmet.
type subGoals struct {
	needComment bool
	needOpen    bool
}

var openGoalRe = regexp.MustCompile(`(?i)\b(?:open|click)\b.*?\b(?:post|article|link|result|story|video|thread)\b|\bpost\b`)

func subGoalsFor(instruction string) subGoals {
	lower := strings.ToLower(instruction)
	return subGoals{
		needComment: strings.Contains(lower, "comment"),
		needOpen:    openGoalRe.MatchString(instruction),
	}
}

// unmet names the first outstanding sub-goal, or "" when the run may finish.
func (g subGoals) unmet(st *loopState) string {
	if g.needComment && !st.typedUnsubmitted {
		return "the instruction asks for a comment but no comment text has been typed yet"
	}
	if g.needOpen && !st.clicked {
		return "the instruction asks to open content but nothing has been clicked yet"
	}
	return ""
}
