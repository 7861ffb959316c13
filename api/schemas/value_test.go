package schemas

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_DecodeModelArguments(t *testing.T) {
	raw := `{
		"count": 3,
		"submit": true,
		"note": null,
		"elements": [
			{"i": 0, "role": "link", "name": "Top post"},
			{"i": 1, "role": "button", "name": "Reply"}
		]
	}`

	var args Args
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(raw), &args))

	count, ok := args.Int("count")
	require.True(t, ok)
	assert.Equal(t, 3, count)

	submit, ok := args.Bool("submit")
	require.True(t, ok)
	assert.True(t, submit)

	assert.True(t, args["note"].IsNull())

	elements, ok := args.Arr("elements")
	require.True(t, ok)
	require.Len(t, elements, 2)
	first, ok := elements[0].Obj()
	require.True(t, ok)
	assert.Equal(t, "link", first["role"].StringOr(""))
}

func TestValue_AccessorsAreStrict(t *testing.T) {
	v := StringValue("42")

	_, ok := v.Int()
	assert.False(t, ok, "a string must not coerce to a number")
	_, ok = v.Bool()
	assert.False(t, ok)
	assert.Equal(t, 7, v.IntOr(7))

	n := NumberValue(2.5)
	f, ok := n.Num()
	require.True(t, ok)
	assert.Equal(t, 2.5, f)
}

func TestValue_JSONRoundTrip(t *testing.T) {
	in := ObjectValue(map[string]Value{
		"tool": StringValue("click"),
		"nth":  IntValue(2),
		"tags": ArrayValue(StringValue("a"), StringValue("b")),
	})

	data, err := in.MarshalJSON()
	require.NoError(t, err)

	var out Value
	require.NoError(t, out.UnmarshalJSON(data))
	obj, ok := out.Obj()
	require.True(t, ok)
	assert.Equal(t, "click", obj["tool"].StringOr(""))
	assert.Equal(t, 2, obj["nth"].IntOr(0))
	arr, ok := obj["tags"].Arr()
	require.True(t, ok)
	assert.Len(t, arr, 2)
}

func TestValue_StringPreviewIsDeterministic(t *testing.T) {
	v := ObjectValue(map[string]Value{
		"b": IntValue(2),
		"a": IntValue(1),
	})
	// Keys render sorted so scratch notes and audit parameters are stable.
	assert.Equal(t, "{a=1 b=2}", v.String())
}
