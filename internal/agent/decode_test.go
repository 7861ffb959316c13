package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestDecodeTurn_SingleObject(t *testing.T) {
	d, err := decodeTurn(`{"tool":"click","arguments":{"locator":{"role":"button","name":"Submit"}}}`)
	require.NoError(t, err)
	assert.Equal(t, "click", d.Tool)

	action, err := d.action()
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, action.Type)
	require.NotNil(t, action.Locator)
	assert.Equal(t, "button", action.Locator.Role)
	assert.Equal(t, "Submit", action.Locator.Name)
}

func TestDecodeTurn_StripsFences(t *testing.T) {
	d, err := decodeTurn("```json\n{\"tool\":\"done\",\"arguments\":{\"summary\":\"all set\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, toolDone, d.Tool)
	assert.Equal(t, "all set", d.summary())
}

func TestDecodeTurn_RejectsBatches(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"array", `[{"tool":"click"},{"tool":"scroll"}]`},
		{"two objects", `{"tool":"click"} {"tool":"scroll"}`},
		{"empty", ""},
		{"prose", "I think we should click the button."},
		{"missing tool", `{"arguments":{"url":"https://x.test"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeTurn(tc.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrInvalidAction)
		})
	}
}

func TestTurnDecision_ActionMapping(t *testing.T) {
	d, err := decodeTurn(`{
		"tool": "typeText",
		"arguments": {
			"locator": {"role":"textbox","nth":2,"css":"#q"},
			"text": "cats",
			"submit": true,
			"timeoutMs": 5000
		}
	}`)
	require.NoError(t, err)

	action, err := d.action()
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionTypeText, action.Type)
	assert.Equal(t, "cats", action.Text)
	assert.True(t, action.Submit)
	assert.Equal(t, 5000, action.TimeoutMs)
	require.NotNil(t, action.Locator)
	assert.Equal(t, 2, action.Locator.Nth)
	// The raw selector survives decoding; the loop strips it before execution.
	assert.Equal(t, "#q", action.Locator.CSS)
}

func TestTurnDecision_UnknownToolRejected(t *testing.T) {
	d, err := decodeTurn(`{"tool":"launchMissiles","arguments":{}}`)
	require.NoError(t, err)

	_, err = d.action()
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInvalidAction)
}

func TestTurnDecision_AskUserFields(t *testing.T) {
	d, err := decodeTurn(`{"tool":"askUser","arguments":{"question":"Which one?","choices":["a","b"],"defaultChoice":1}}`)
	require.NoError(t, err)

	action, err := d.action()
	require.NoError(t, err)
	assert.Equal(t, "Which one?", action.Question)
	assert.Equal(t, []string{"a", "b"}, action.Choices)
	assert.Equal(t, 1, action.DefaultChoice)
}
