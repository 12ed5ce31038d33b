package clinicalcalc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return "null"
	}
}

// ErrNotNumeric is returned when a present value cannot be read as a number.
var ErrNotNumeric = errors.New("value is not numeric")

// Value is a loosely typed clinical input: a number, string, boolean or null.
// The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

func Null() Value { return Value{} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Present reports whether the value carries data: not null and, for
// strings, not blank.
func (v Value) Present() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindString:
		return strings.TrimSpace(v.str) != ""
	default:
		return true
	}
}

// Float coerces the value to a finite number. Numbers are returned as is and
// numeric strings are parsed; everything else yields ErrNotNumeric.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0, ErrNotNumeric
		}
		return v.num, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q: %w", v.str, ErrNotNumeric)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s: %w", v.kind, ErrNotNumeric)
	}
}

// Text returns the string payload. Only string values report ok.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return strings.TrimSpace(v.str), true
}

// Interface converts the value to a plain Go value (nil, float64, string, bool).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String renders the value the way it appears in exports.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	parsed, err := valueFromToken(tok)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts a decoded JSON scalar into a Value.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported clinical value of type %T", x)
	}
}

func valueFromToken(tok json.Token) (Value, error) {
	if d, ok := tok.(json.Delim); ok {
		return Value{}, fmt.Errorf("clinical values must be scalars, got %q", d.String())
	}
	return FromInterface(tok)
}
