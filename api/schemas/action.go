package schemas

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ActionType defines the categories of page-level operations the agent can request.
type ActionType string

const (
	ActionNavigate     ActionType = "navigate"
	ActionFindElements ActionType = "findElements"
	ActionClick        ActionType = "click"
	ActionTypeText     ActionType = "typeText"
	ActionSelect       ActionType = "select"
	ActionScroll       ActionType = "scroll"
	ActionWaitFor      ActionType = "waitFor"
	ActionExtract      ActionType = "extract"
	ActionSwitchTab    ActionType = "switchTab"
	ActionAskUser      ActionType = "askUser"
)

// allActionTypes is the closed set accepted by the decoder. Unknown types are
// rejected rather than passed through to the executor.
var allActionTypes = map[ActionType]bool{
	ActionNavigate:     true,
	ActionFindElements: true,
	ActionClick:        true,
	ActionTypeText:     true,
	ActionSelect:       true,
	ActionScroll:       true,
	ActionWaitFor:      true,
	ActionExtract:      true,
	ActionSwitchTab:    true,
	ActionAskUser:      true,
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool { return allActionTypes[t] }

// SideEffecting reports whether executing an action of this type can mutate
// page or browser state. Only side-effecting types pass through the
// permission gate.
func (t ActionType) SideEffecting() bool {
	switch t {
	case ActionNavigate, ActionClick, ActionTypeText, ActionSelect, ActionScroll, ActionSwitchTab:
		return true
	default:
		return false
	}
}

// UnmarshalJSON enforces the closed action vocabulary at decode time.
func (t *ActionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: action type must be a string: %v", ErrInvalidAction, err)
	}
	at := ActionType(s)
	if !at.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, s)
	}
	*t = at
	return nil
}

// Locator semantically identifies a target element. CSS and XPath are only
// honored for plans produced by the one-shot planner; locators sourced from a
// model turn are stripped of raw selectors before execution.
type Locator struct {
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Text  string `json:"text,omitempty"`
	CSS   string `json:"css,omitempty"`
	XPath string `json:"xpath,omitempty"`
	Near  string `json:"near,omitempty"`
	Nth   int    `json:"nth,omitempty"`
}

// StripSelectors removes the raw-selector fields. The model may only select
// elements by role, name, text or position.
func (l *Locator) StripSelectors() {
	if l == nil {
		return
	}
	l.CSS = ""
	l.XPath = ""
}

// IsZero reports whether the locator carries no constraints at all.
func (l *Locator) IsZero() bool {
	return l == nil || *l == Locator{}
}

// Action is a single requested operation. Fields irrelevant to Type are
// carried verbatim but ignored by the executor; the model is not trusted to
// omit them.
type Action struct {
	Type      ActionType `json:"type"`
	Locator   *Locator   `json:"locator,omitempty"`
	URL       string     `json:"url,omitempty"`
	NewTab    bool       `json:"newTab,omitempty"`
	Text      string     `json:"text,omitempty"`
	Value     string     `json:"value,omitempty"`
	Direction string     `json:"direction,omitempty"`
	AmountPx  int        `json:"amountPx,omitempty"`
	Submit    bool       `json:"submit,omitempty"`
	TimeoutMs int        `json:"timeoutMs,omitempty"`

	// askUser-only fields.
	Question      string   `json:"question,omitempty"`
	Choices       []string `json:"choices,omitempty"`
	DefaultChoice int      `json:"defaultChoice,omitempty"`
}

// DecodeActions unmarshals a JSON array of actions, rejecting unknown types.
func DecodeActions(data []byte) ([]Action, error) {
	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, err
	}
	for i := range actions {
		if !actions[i].Type.Valid() {
			return nil, fmt.Errorf("%w: action %d missing type", ErrInvalidAction, i)
		}
	}
	return actions, nil
}

// String renders a compact human-readable form used in logs and scratch notes.
func (a Action) String() string {
	switch a.Type {
	case ActionNavigate:
		return fmt.Sprintf("navigate(%s)", a.URL)
	case ActionWaitFor:
		if a.Value != "" {
			return fmt.Sprintf("waitFor(%s)", a.Value)
		}
		return fmt.Sprintf("waitFor(role=%s)", locatorRole(a.Locator))
	case ActionTypeText:
		return fmt.Sprintf("typeText(role=%s, submit=%t)", locatorRole(a.Locator), a.Submit)
	case ActionScroll:
		return fmt.Sprintf("scroll(%s)", a.Direction)
	default:
		if a.Locator != nil {
			return fmt.Sprintf("%s(role=%s)", a.Type, locatorRole(a.Locator))
		}
		return string(a.Type)
	}
}

func locatorRole(l *Locator) string {
	if l == nil {
		return ""
	}
	return l.Role
}
