package schemas

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValueKind enumerates the JSON shapes a tool argument can take.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged variant holding one model-originated JSON value. It
// preserves the flexibility of untyped argument maps while keeping the call
// sites that consume counts, element lists and the like type-safe.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	a    []Value
	o    map[string]Value
}

// Args is the argument/result map attached to tool calls and observations.
type Args map[string]Value

// -- Constructors --

func Null() Value                       { return Value{kind: KindNull} }
func BoolValue(b bool) Value            { return Value{kind: KindBool, b: b} }
func NumberValue(n float64) Value       { return Value{kind: KindNumber, n: n} }
func IntValue(n int) Value              { return Value{kind: KindNumber, n: float64(n)} }
func StringValue(s string) Value        { return Value{kind: KindString, s: s} }
func ArrayValue(items ...Value) Value   { return Value{kind: KindArray, a: items} }
func ObjectValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, o: m}
}

// -- Accessors --

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Num() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

func (v Value) Int() (int, bool) {
	if v.kind != KindNumber || math.IsNaN(v.n) || math.IsInf(v.n, 0) {
		return 0, false
	}
	return int(v.n), true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Arr() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.a, true
}

func (v Value) Obj() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.o, true
}

// StringOr returns the string content or def when the value is not a string.
func (v Value) StringOr(def string) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return def
}

// IntOr returns the integer content or def when the value is not numeric.
func (v Value) IntOr(def int) int {
	if n, ok := v.Int(); ok {
		return n
	}
	return def
}

// BoolOr returns the boolean content or def when the value is not a bool.
func (v Value) BoolOr(def bool) bool {
	if b, ok := v.Bool(); ok {
		return b
	}
	return def
}

// -- Args helpers --

func (a Args) Str(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

func (a Args) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}

func (a Args) Bool(key string) (bool, bool) {
	v, ok := a[key]
	if !ok {
		return false, false
	}
	return v.Bool()
}

func (a Args) Arr(key string) ([]Value, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	return v.Arr()
}
func (a Args) Obj(key string) (map[string]Value, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	return v.Obj()
}

// -- JSON round-trip --

// UnmarshalJSON accepts any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// MarshalJSON renders the underlying value with its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// FromAny converts a decoded interface{} tree into a Value.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case int:
		return IntValue(t)
	case int64:
		return NumberValue(float64(t))
	case string:
		return StringValue(t)
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			items = append(items, FromAny(e))
		}
		return ArrayValue(items...)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromAny(e)
		}
		return ObjectValue(m)
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// ToAny converts the Value back into the interface{} tree encoding/json expects.
func (v Value) ToAny() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, 0, len(v.a))
		for _, e := range v.a {
			out = append(out, e.ToAny())
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.o))
		for k, e := range v.o {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// String produces a compact, deterministic preview used in scratch notes and
// audit parameter maps. Objects render keys in sorted order.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		if v.n == math.Trunc(v.n) {
			return fmt.Sprintf("%d", int64(v.n))
		}
		return fmt.Sprintf("%g", v.n)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, 0, len(v.a))
		for _, e := range v.a {
			parts = append(parts, e.String())
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.o))
		for k := range v.o {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+v.o[k].String())
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return ""
	}
}
