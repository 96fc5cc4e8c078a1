package preprocess

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the scalar held by a Value.
type Kind uint8

const (
	Missing Kind = iota
	Number
	String
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case String:
		return "string"
	default:
		return "missing"
	}
}

// Value is a single cell of a record: missing, a number, or a string.
// The zero Value is missing.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Num returns a numeric Value. NaN is treated as missing.
func Num(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: Number, num: f}
}

// Str returns a string Value.
func Str(s string) Value { return Value{kind: String, str: s} }

// Null returns a missing Value.
func Null() Value { return Value{} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsMissing() bool { return v.kind == Missing }
func (v Value) Float() float64  { return v.num }
func (v Value) Text() string    { return v.str }

func (v Value) String() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case String:
		return strconv.Quote(v.str)
	default:
		return "null"
	}
}

// MarshalJSON encodes missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Number:
		return json.Marshal(v.num)
	case String:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// ValueOf converts a decoded JSON or database/sql scan value.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case float64:
		return Num(x), nil
	case float32:
		return Num(float64(x)), nil
	case int:
		return Num(float64(x)), nil
	case int16:
		return Num(float64(x)), nil
	case int32:
		return Num(float64(x)), nil
	case int64:
		return Num(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("preprocess: bad number %q: %w", x, err)
		}
		return Num(f), nil
	case string:
		return Str(x), nil
	case []byte:
		return Str(string(x)), nil
	default:
		return Value{}, fmt.Errorf("preprocess: unsupported value type %T", raw)
	}
}

// Record is one loan application keyed by column name.
type Record map[string]Value

// RecordFromMap converts a generic map, e.g. a decoded request body.
func RecordFromMap(m map[string]any) (Record, error) {
	r := make(Record, len(m))
	for k, raw := range m {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		r[k] = v
	}
	return r, nil
}

// RecordSet is an ordered sequence of records. Output rows keep this order.
type RecordSet []Record
