package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
)

/* Kind identifies which variant a Value holds
 * The zero Value is KindNull
 */
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

/* Value is the event payload union: null, bool, number, string, list or map
 * Maps keep insertion order so the canonical encoding is deterministic
 * Uses value semantics, a Value is never mutated after construction
 */
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []Value
	fields []Field
}

// Field is one key/value pair of a map Value
type Field struct {
	Key   string
	Value Value
}

// Null returns the null value
func Null() Value {
	return Value{}
}

// Bool wraps a boolean
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Number wraps a float, non-finite numbers become null
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Int wraps an integer
func Int(i int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

// String wraps a string
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// List builds a list value
func List(items ...Value) Value {
	return Value{kind: KindList, items: append([]Value{}, items...)}
}

// Map builds a map value, a repeated key replaces the earlier entry in place
func Map(fields ...Field) Value {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		out = setField(out, f)
	}
	return Value{kind: KindMap, fields: out}
}

// F is shorthand for a Field
func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

func setField(fields []Field, f Field) []Field {
	for i := range fields {
		if fields[i].Key == f.Key {
			fields[i].Value = f.Value
			return fields
		}
	}
	return append(fields, f)
}

// Kind returns the variant held by v
func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Bool returns the boolean held by v, false for other kinds
func (v Value) Bool() bool {
	return v.b
}

// Text returns the string held by v, empty for other kinds
func (v Value) Text() string {
	return v.str
}

// NumberText returns the number held by v in its JSON form
func (v Value) NumberText() string {
	return string(v.num)
}

func (v Value) Float() float64 {
	f, _ := v.num.Float64()
	return f
}

func (v Value) Items() []Value {
	return v.items
}

func (v Value) Fields() []Field {
	return v.fields
}

// Len returns the number of items or fields, zero for scalars
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindMap:
		return len(v.fields)
	default:
		return 0
	}
}

// Get looks up a map field by key
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// String returns the JSON encoding of the value
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid payload: %v>", err)
	}
	return string(b)
}

// Equal reports whether two values hold the same data, numbers compare numerically
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		if a.num == b.num {
			return true
		}
		fa, errA := a.num.Float64()
		fb, errB := b.num.Float64()
		return errA == nil && errB == nil && fa == fb
	case KindString:
		return a.str == b.str
	case KindList:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for i := range a.fields {
			if a.fields[i].Key != b.fields[i].Key || !Equal(a.fields[i].Value, b.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// FromAny converts plain Go data (as produced by encoding/json) into a Value
// Go maps have no order, their keys are sorted
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if _, err := t.Float64(); err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Value{kind: KindNumber, num: t}, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Value{kind: KindNumber, num: json.Number(strconv.FormatUint(uint64(t), 10))}, nil
	case uint64:
		return Value{kind: KindNumber, num: json.Number(strconv.FormatUint(t, 10))}, nil
	case []Value:
		return List(t...), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, v)
		}
		return Value{kind: KindList, items: items}, nil
	case []string:
		items := make([]Value, 0, len(t))
		for _, s := range t {
			items = append(items, String(s))
		}
		return Value{kind: KindList, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields = append(fields, Field{Key: k, Value: v})
		}
		return Value{kind: KindMap, fields: fields}, nil
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: String(t[k])})
		}
		return Value{kind: KindMap, fields: fields}, nil
	default:
		return Value{}, fmt.Errorf("unsupported payload type %s", reflect.TypeOf(in))
	}
}

// MarshalJSON encodes the value, map fields in insertion order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(string(v.num))
	case KindString:
		return writeJSONString(buf, v.str)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown payload kind %d", v.kind)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding string: %w", err)
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// UnmarshalJSON decodes JSON keeping object key order
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes a single JSON document into a Value
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("decoding payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("decoding payload: trailing data after value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindList, items: items}, nil
		case '{':
			fields := []Field{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = setField(fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindMap, fields: fields}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
