// File: internal/agent/state.go
package agent

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const (
	// signatureExcerptLen bounds the article-text prefix that feeds the page
	// signature, so long pages hash in constant work.
	signatureExcerptLen = 400
	// lastFindMaxItems bounds the element descriptors carried between turns.
	lastFindMaxItems = 8
)

// lastFindRecord is a compact snapshot of the most recent findElements result
// so the next turn can reference element indices without re-querying.
type lastFindRecord struct {
	role  string
	count int
	items []schemas.ElementSummary
}

// loopState is the per-run scratch memory of the agent loop. It lives only
// for the duration of one run and is owned exclusively by the loop goroutine.
type loopState struct {
	scratch    []string
	maxScratch int

	lastToolKey    string
	sameToolStreak int

	lastPageSignature string
	stableNoopCount   int

	consecutiveFailures         int
	skippedDuplicateNavigations int

	lastFind *lastFindRecord

	// Sub-goal progress flags, fed by successful executions.
	typedUnsubmitted bool
	typedSubmitted   bool
	clicked          bool
}

func newLoopState(scratchLines int) *loopState {
	if scratchLines <= 0 {
		scratchLines = 12
	}
	return &loopState{maxScratch: scratchLines}
}

// note appends a line to the bounded scratch transcript, evicting the oldest
// line when full.
func (s *loopState) note(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	s.scratch = append(s.scratch, line)
	if len(s.scratch) > s.maxScratch {
		s.scratch = s.scratch[len(s.scratch)-s.maxScratch:]
	}
}

func (s *loopState) scratchBlock() string {
	return strings.Join(s.scratch, "\n")
}

// toolKey identifies a tool call for streak tracking. The locator role is
// included so "findElements(article)" and "findElements(textbox)" do not
// count as the same repeated call.
func toolKey(tool string, loc *schemas.Locator) string {
	role := ""
	if loc != nil {
		role = loc.Role
	}
	return tool + "/" + role
}

// observeToolUse updates the same-tool streak and returns the streak length
// after this turn.
func (s *loopState) observeToolUse(tool string, loc *schemas.Locator) int {
	key := toolKey(tool, loc)
	if key == s.lastToolKey {
		s.sameToolStreak++
	} else {
		s.lastToolKey = key
		s.sameToolStreak = 1
	}
	return s.sameToolStreak
}

// recordOutcome maintains the consecutive-failure counter and the sub-goal
// progress flags.
func (s *loopState) recordOutcome(action schemas.Action, ok bool) {
	if !ok {
		s.consecutiveFailures++
		return
	}
	s.consecutiveFailures = 0

	switch action.Type {
	case schemas.ActionTypeText:
		if action.Submit {
			s.typedSubmitted = true
		} else {
			s.typedUnsubmitted = true
		}
	case schemas.ActionClick:
		s.clicked = true
	}
}

// recordFind persists a bounded element sample from a find-like observation.
func (s *loopState) recordFind(loc *schemas.Locator, obs schemas.ToolObservation) {
	role := ""
	if loc != nil {
		role = loc.Role
	}
	elements := obs.Elements()
	rec := &lastFindRecord{role: role, count: obs.Count()}
	for i, el := range elements {
		if i == lastFindMaxItems {
			break
		}
		rec.items = append(rec.items, el)
	}
	s.lastFind = rec
}

// recordSignature compares the fresh page signature with the previous one.
// It returns the no-op count after this observation: unchanged signatures
// increment it once per repeat, a changed signature resets it.
func (s *loopState) recordSignature(sig string) int {
	if sig != "" && sig == s.lastPageSignature {
		s.stableNoopCount++
	} else {
		s.stableNoopCount = 0
	}
	s.lastPageSignature = sig
	return s.stableNoopCount
}

// pageSignature hashes the parts of a page that change when an action had a
// visible effect. Two equal signatures around a mutating action mean the
// action was a no-op.
func pageSignature(url, title, excerpt string) string {
	if len(excerpt) > signatureExcerptLen {
		excerpt = excerpt[:signatureExcerptLen]
	}
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", url, title, excerpt)
	return hex.EncodeToString(h.Sum(nil))
}

// summarizeObservation renders one scratch line for an executed action.
func summarizeObservation(action schemas.Action, obs schemas.ToolObservation) string {
	switch action.Type {
	case schemas.ActionFindElements:
		elements := obs.Elements()
		previews := make([]string, 0, len(elements))
		for i, el := range elements {
			if i == 3 {
				break
			}
			previews = append(previews, fmt.Sprintf("[%d]%s:%s", el.Index, el.Role, firstNonEmpty(el.Name, el.Text)))
		}
		return fmt.Sprintf("%s -> count=%d %s", action.String(), obs.Count(), strings.Join(previews, " "))
	case schemas.ActionExtract:
		text, _ := obs.Data.Str("text")
		return fmt.Sprintf("%s -> ok=%t len=%d", action.String(), obs.OK, len(text))
	default:
		if obs.OK {
			return fmt.Sprintf("%s -> ok", action.String())
		}
		return fmt.Sprintf("%s -> FAILED: %s", action.String(), obs.Message)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
