// File: internal/agent/decode.go
package agent

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/planner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// toolDone is the sentinel tool the model uses to end a run. It is not part
// of the action vocabulary and never reaches the page backend.
const toolDone = "done"

// turnDecision is the model's per-turn output: exactly one tool call.
type turnDecision struct {
	Tool string       `json:"tool"`
	Args schemas.Args `json:"arguments"`
}

// decodeTurn parses one model turn. The contract is strict: exactly one JSON
// object of the form {"tool": ..., "arguments": {...}}. Arrays, multiple
// concatenated objects and empty responses are rejected so a misbehaving
// model can never smuggle a batch of actions into a single turn.
func decodeTurn(raw string) (*turnDecision, error) {
	text := planner.StripCodeFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty model turn", schemas.ErrInvalidAction)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var d turnDecision
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: model turn is not a JSON object: %v", schemas.ErrInvalidAction, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: model emitted more than one decision in a single turn", schemas.ErrInvalidAction)
	}
	if d.Tool == "" {
		return nil, fmt.Errorf("%w: decision carries no tool", schemas.ErrInvalidAction)
	}
	return &d, nil
}

// summary returns the done tool's summary string, when present.
func (d *turnDecision) summary() string {
	s, _ := d.Args.Str("summary")
	return s
}

// action maps the decision onto an Action. Unknown tools are rejected; the
// locator, if any, is carried over verbatim and sanitized by the loop.
func (d *turnDecision) action() (schemas.Action, error) {
	t := schemas.ActionType(d.Tool)
	if !t.Valid() {
		return schemas.Action{}, fmt.Errorf("%w: unknown tool %q", schemas.ErrInvalidAction, d.Tool)
	}

	a := schemas.Action{Type: t}
	if loc, ok := d.Args.Obj("locator"); ok {
		a.Locator = locatorFromValues(loc)
	}
	if s, ok := d.Args.Str("url"); ok {
		a.URL = s
	}
	if b, ok := d.Args.Bool("newTab"); ok {
		a.NewTab = b
	}
	if s, ok := d.Args.Str("text"); ok {
		a.Text = s
	}
	if s, ok := d.Args.Str("value"); ok {
		a.Value = s
	}
	if s, ok := d.Args.Str("direction"); ok {
		a.Direction = s
	}
	if n, ok := d.Args.Int("amountPx"); ok {
		a.AmountPx = n
	}
	if b, ok := d.Args.Bool("submit"); ok {
		a.Submit = b
	}
	if n, ok := d.Args.Int("timeoutMs"); ok {
		a.TimeoutMs = n
	}
	if s, ok := d.Args.Str("question"); ok {
		a.Question = s
	}
	if arr, ok := d.Args.Arr("choices"); ok {
		for _, v := range arr {
			if s, ok := v.Str(); ok {
				a.Choices = append(a.Choices, s)
			}
		}
	}
	if n, ok := d.Args.Int("defaultChoice"); ok {
		a.DefaultChoice = n
	}
	return a, nil
}

func locatorFromValues(m map[string]schemas.Value) *schemas.Locator {
	loc := &schemas.Locator{
		Role:  m["role"].StringOr(""),
		Name:  m["name"].StringOr(""),
		Text:  m["text"].StringOr(""),
		CSS:   m["css"].StringOr(""),
		XPath: m["xpath"].StringOr(""),
		Near:  m["near"].StringOr(""),
		Nth:   m["nth"].IntOr(0),
	}
	if loc.IsZero() {
		return nil
	}
	return loc
}
