// File: internal/planner/heuristic.go
package planner

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// The heuristic planner is a deliberately small grammar over common browsing
// instructions. Rules are evaluated in order and the first match wins; an
// instruction that matches no rule is not guessable and planning fails.

var (
	domainTokenRe = regexp.MustCompile(`(?i)\b(?:https?://)?((?:[a-z0-9][a-z0-9-]*\.)+[a-z]{2,})(?:/[^\s]*)?`)
	searchTermRe  = regexp.MustCompile(`(?i)\b(?:search(?:\s+for)?|find|look\s+up)\s+(.+?)(?:\s+(?:and|then)\b.*|[,.]\s.*)?$`)
	openItemRe    = regexp.MustCompile(`(?i)\b(?:open|click)(?:\s+(?:on|the|a))*\s+(?:first\s+|top\s+)?(post|article|link|result|story|video|thread)`)
	commentTextRe = regexp.MustCompile(`(?i)\bcomment(?:ing)?\s+(?:with\s+|saying\s+)?"([^"]+)"`)
)

var navigateVerbs = []string{"enter ", "open ", "go to ", "goto ", "visit ", "navigate to ", "browse to "}

type heuristicRule struct {
	name  string
	apply func(instr, lower string) ([]schemas.Action, bool)
}

// Ordered rule table. Navigation outranks search because an instruction like
// "open reddit.com and search for cats" must start on the right site.
var heuristicRules = []heuristicRule{
	{name: "navigate", apply: navigateRule},
	{name: "search", apply: searchRule},
}

// HeuristicPlan derives a plan from recognizable instruction shapes without
// calling a model. Returns false when no rule matches.
func HeuristicPlan(instruction string) ([]schemas.Action, bool) {
	instr := strings.TrimSpace(instruction)
	if instr == "" {
		return nil, false
	}
	lower := strings.ToLower(instr)

	for _, rule := range heuristicRules {
		if actions, ok := rule.apply(instr, lower); ok {
			return actions, true
		}
	}
	return nil, false
}

// navigateRule fires on a navigation verb plus a domain-like token and emits
// navigate + ready wait, then extends the plan with search, content-open and
// comment steps when the instruction asks for them.
func navigateRule(instr, lower string) ([]schemas.Action, bool) {
	hasVerb := false
	for _, verb := range navigateVerbs {
		if strings.Contains(lower, verb) {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		return nil, false
	}

	m := domainTokenRe.FindStringSubmatch(instr)
	if m == nil {
		return nil, false
	}
	domain := strings.ToLower(m[1])

	actions := []schemas.Action{
		{Type: schemas.ActionNavigate, URL: "https://" + domain},
		readyWait(),
	}

	if term := searchTerm(instr, domain); term != "" {
		actions = append(actions,
			schemas.Action{
				Type:    schemas.ActionTypeText,
				Locator: &schemas.Locator{Role: "textbox"},
				Text:    term,
				Submit:  true,
			},
			readyWait(),
		)
	}

	if om := openItemRe.FindStringSubmatch(instr); om != nil {
		actions = append(actions, schemas.Action{
			Type:    schemas.ActionClick,
			Locator: &schemas.Locator{Role: "link", Text: strings.ToLower(om[1])},
		})
	}

	if cm := commentTextRe.FindStringSubmatch(instr); cm != nil {
		actions = append(actions, schemas.Action{
			Type:    schemas.ActionTypeText,
			Locator: &schemas.Locator{Role: "textbox", Name: "comment"},
			Text:    cm[1],
		})
	}

	return actions, true
}

// searchRule fires on an explicit search verb when no navigation was asked
// for. The plan assumes the current page already exposes a search box.
func searchRule(instr, lower string) ([]schemas.Action, bool) {
	term := searchTerm(instr, "")
	if term == "" {
		return nil, false
	}
	return []schemas.Action{
		readyWait(),
		{
			Type:    schemas.ActionTypeText,
			Locator: &schemas.Locator{Role: "textbox"},
			Text:    term,
			Submit:  true,
		},
		readyWait(),
	}, true
}

// searchTerm extracts what should be typed into a search box, trimming the
// domain token and quoting from the capture.
func searchTerm(instr, domain string) string {
	m := searchTermRe.FindStringSubmatch(instr)
	if m == nil {
		return ""
	}
	term := strings.TrimSpace(m[1])
	term = strings.Trim(term, `"'`)
	if domain != "" {
		// "find cats on reddit.com": the domain belongs to navigation,
		// not to the query.
		term = strings.TrimSpace(domainTokenRe.ReplaceAllString(term, ""))
		term = strings.TrimSuffix(strings.TrimSpace(term), " on")
		term = strings.TrimSuffix(strings.TrimSpace(term), " at")
	}
	return strings.TrimSpace(term)
}
