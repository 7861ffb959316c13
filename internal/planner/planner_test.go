package planner

import (
	"context"
	"errors"
	"testing"

	gofuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

type scriptedLLM struct {
	response string
	err      error
}

func (s scriptedLLM) GenerateResponse(context.Context, schemas.GenerationRequest) (string, error) {
	return s.response, s.err
}

func actionTypes(actions []schemas.Action) []schemas.ActionType {
	types := make([]schemas.ActionType, 0, len(actions))
	for _, a := range actions {
		types = append(types, a.Type)
	}
	return types
}

func TestHeuristicPlan_Navigate(t *testing.T) {
	actions, ok := HeuristicPlan("enter reddit.com")
	require.True(t, ok)
	require.Len(t, actions, 2)

	assert.Equal(t, schemas.ActionNavigate, actions[0].Type)
	assert.Equal(t, "https://reddit.com", actions[0].URL)
	assert.Equal(t, schemas.ActionWaitFor, actions[1].Type)
	assert.Equal(t, "ready", actions[1].Value)
}

func TestHeuristicPlan_Search(t *testing.T) {
	actions, ok := HeuristicPlan("search for cats")
	require.True(t, ok)
	require.Len(t, actions, 3)

	assert.Equal(t, schemas.ActionWaitFor, actions[0].Type)
	assert.Equal(t, schemas.ActionTypeText, actions[1].Type)
	require.NotNil(t, actions[1].Locator)
	assert.Equal(t, "textbox", actions[1].Locator.Role)
	assert.Equal(t, "cats", actions[1].Text)
	assert.True(t, actions[1].Submit)
	assert.Equal(t, schemas.ActionWaitFor, actions[2].Type)
}

func TestHeuristicPlan_NavigateThenSearch(t *testing.T) {
	actions, ok := HeuristicPlan("open news.ycombinator.com and search for rust")
	require.True(t, ok)

	assert.Equal(t, []schemas.ActionType{
		schemas.ActionNavigate,
		schemas.ActionWaitFor,
		schemas.ActionTypeText,
		schemas.ActionWaitFor,
	}, actionTypes(actions))
	assert.Equal(t, "https://news.ycombinator.com", actions[0].URL)
	assert.Equal(t, "rust", actions[2].Text)
}

func TestHeuristicPlan_NavigateWithContentOpen(t *testing.T) {
	actions, ok := HeuristicPlan("go to reddit.com and open the first post")
	require.True(t, ok)
	require.Len(t, actions, 3)

	click := actions[2]
	assert.Equal(t, schemas.ActionClick, click.Type)
	require.NotNil(t, click.Locator)
	assert.Equal(t, "link", click.Locator.Role)
}

func TestHeuristicPlan_CommentText(t *testing.T) {
	actions, ok := HeuristicPlan(`visit example.com, open the first article and comment "nice read"`)
	require.True(t, ok)

	last := actions[len(actions)-1]
	assert.Equal(t, schemas.ActionTypeText, last.Type)
	assert.Equal(t, "nice read", last.Text)
	assert.False(t, last.Submit)
}

func TestHeuristicPlan_NoMatch(t *testing.T) {
	for _, instr := range []string{
		"",
		"do something clever",
		"summarize the page",
		"go to reddit", // no domain-like token
	} {
		_, ok := HeuristicPlan(instr)
		assert.False(t, ok, "instruction %q should not match", instr)
	}
}

func TestHeuristicPlan_SearchShape(t *testing.T) {
	actions, ok := HeuristicPlan("search for golang generics")
	require.True(t, ok)

	want := []schemas.Action{
		{Type: schemas.ActionWaitFor, Value: "ready", TimeoutMs: 8000},
		{Type: schemas.ActionTypeText, Locator: &schemas.Locator{Role: "textbox"}, Text: "golang generics", Submit: true},
		{Type: schemas.ActionWaitFor, Value: "ready", TimeoutMs: 8000},
	}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePlan_Fallbacks(t *testing.T) {
	want := `[{"type":"navigate","url":"https://reddit.com"}]`

	tests := []struct {
		name string
		raw  string
	}{
		{"direct array", want},
		{"fenced", "```json\n" + want + "\n```"},
		{"fenced without language", "```\n" + want + "\n```"},
		{"prose wrapped", "Here is the plan:\n" + want + "\nLet me know."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actions, err := decodePlan(tc.raw)
			require.NoError(t, err)
			require.Len(t, actions, 1)
			assert.Equal(t, schemas.ActionNavigate, actions[0].Type)
		})
	}
}

func TestDecodePlan_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here",
		`{"type":"navigate"}`, // object, not array
		`[{"type":"launchMissiles"}]`,
	} {
		_, err := decodePlan(raw)
		assert.Error(t, err, "raw %q should not decode", raw)
	}
}

func TestPlanner_ModelPlanPreferred(t *testing.T) {
	p := New(zap.NewNop(), scriptedLLM{response: `[{"type":"navigate","url":"https://example.com"}]`})

	actions, err := p.Plan(context.Background(), "enter reddit.com")
	require.NoError(t, err)
	// The model plan wins over the heuristic one, augmented with a ready wait.
	require.Len(t, actions, 2)
	assert.Equal(t, "https://example.com", actions[0].URL)
	assert.Equal(t, schemas.ActionWaitFor, actions[1].Type)
}

func TestPlanner_FallsBackToHeuristicsOnModelError(t *testing.T) {
	p := New(zap.NewNop(), scriptedLLM{err: errors.New("quota exceeded")})

	actions, err := p.Plan(context.Background(), "enter reddit.com")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "https://reddit.com", actions[0].URL)
}

func TestPlanner_FallsBackToHeuristicsOnGarbage(t *testing.T) {
	p := New(zap.NewNop(), scriptedLLM{response: "I cannot help with that."})

	actions, err := p.Plan(context.Background(), "search for cats")
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionTypeText, actions[2].Type)
}

func TestPlanner_ErrPlanningWhenNothingMatches(t *testing.T) {
	p := New(zap.NewNop(), nil)

	_, err := p.Plan(context.Background(), "do something clever")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrPlanning)
}

func TestAugment_InsertsWaits(t *testing.T) {
	plan := []schemas.Action{
		{Type: schemas.ActionNavigate, URL: "https://example.com"},
		{Type: schemas.ActionClick, Locator: &schemas.Locator{Role: "link", Text: "post"}},
	}

	out := Augment(plan)
	assert.Equal(t, []schemas.ActionType{
		schemas.ActionNavigate,
		schemas.ActionWaitFor, // ready after navigate
		schemas.ActionWaitFor, // presence probe before click
		schemas.ActionClick,
		schemas.ActionWaitFor, // idle after side effect
	}, actionTypes(out))

	probe := out[2]
	require.NotNil(t, probe.Locator)
	assert.Contains(t, probe.Locator.CSS, "a[href]")
}

func TestAugment_NoDoubleWaits(t *testing.T) {
	plan := []schemas.Action{
		{Type: schemas.ActionNavigate, URL: "https://example.com"},
		{Type: schemas.ActionWaitFor, Value: "ready", TimeoutMs: 8000},
	}

	out := Augment(plan)
	assert.Equal(t, []schemas.ActionType{
		schemas.ActionNavigate,
		schemas.ActionWaitFor,
	}, actionTypes(out))
}

func TestAugment_Idempotent(t *testing.T) {
	plan, ok := HeuristicPlan("search for cats")
	require.True(t, ok)

	once := Augment(plan)
	twice := Augment(once)
	assert.Equal(t, actionTypes(once), actionTypes(twice))
}

// FuzzDecodePlan checks that arbitrary model output never panics the decode
// chain and that anything it accepts is a valid action list.
func FuzzDecodePlan(f *testing.F) {
	f.Add([]byte(`[{"type":"navigate","url":"https://reddit.com"}]`))
	f.Add([]byte("```json\n[{\"type\":\"waitFor\",\"value\":\"ready\"}]\n```"))
	f.Add([]byte("plan: [not json]"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fz := gofuzzheaders.NewConsumer(data)
		raw, err := fz.GetString()
		if err != nil {
			return
		}
		actions, err := decodePlan(raw)
		if err != nil {
			return
		}
		for _, a := range actions {
			if !a.Type.Valid() {
				t.Fatalf("decoded invalid action type %q from %q", a.Type, raw)
			}
		}
	})
}
