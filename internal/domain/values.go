package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Field is a single snapshot entry. The value is kept as the raw JSON the backend sent.
type Field struct {
	Name string
	Raw  json.RawMessage
}

// Values is a field snapshot that keeps keys in the order they arrived.
// The backend orders fields meaningfully, so nothing here ever sorts them.
// A nil *Values means the snapshot was absent, which is not the same as empty.
type Values struct {
	fields []Field
	index  map[string]int
}

// NewValues returns an empty, present snapshot.
func NewValues() *Values {
	return &Values{index: make(map[string]int)}
}

// ParseValues reads a snapshot payload. It accepts an object, an empty array
// (how Laravel serializes an empty snapshot) or a string holding an encoded object.
// Empty input and JSON null return a nil snapshot.
func ParseValues(data []byte) (*Values, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidSnapshot)
	}
	return ValuesFromResult(gjson.ParseBytes(data))
}

// ValuesFromResult builds a snapshot from an already parsed gjson value.
func ValuesFromResult(res gjson.Result) (*Values, error) {
	return valuesFromResult(res, true)
}

func valuesFromResult(res gjson.Result, allowEncoded bool) (*Values, error) {
	switch {
	case !res.Exists() || res.Type == gjson.Null:
		return nil, nil
	case res.Type == gjson.String:
		inner := strings.TrimSpace(res.String())
		if inner == "" {
			return nil, nil
		}
		if !allowEncoded || !gjson.Valid(inner) {
			return nil, fmt.Errorf("%w: expected an object, got a string", ErrInvalidSnapshot)
		}
		return valuesFromResult(gjson.Parse(inner), false)
	case res.IsArray():
		if len(res.Array()) == 0 {
			return NewValues(), nil
		}
		return nil, fmt.Errorf("%w: expected an object, got a non-empty array", ErrInvalidSnapshot)
	case res.IsObject():
		v := NewValues()
		res.ForEach(func(key, value gjson.Result) bool {
			v.Set(key.String(), json.RawMessage(value.Raw))
			return true
		})
		return v, nil
	default:
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalidSnapshot, res.Type)
	}
}

// Set stores raw under name. A repeated name keeps its first position and takes the new value.
func (v *Values) Set(name string, raw json.RawMessage) {
	if v.index == nil {
		v.index = make(map[string]int)
	}
	if i, ok := v.index[name]; ok {
		v.fields[i].Raw = raw
		return
	}
	v.index[name] = len(v.fields)
	v.fields = append(v.fields, Field{Name: name, Raw: raw})
}

// Lookup returns the raw JSON stored under name. It is safe on a nil snapshot.
func (v *Values) Lookup(name string) (json.RawMessage, bool) {
	if v == nil {
		return nil, false
	}
	i, ok := v.index[name]
	if !ok {
		return nil, false
	}
	return v.fields[i].Raw, true
}

// Get returns the decoded value under name, or Undefined when the key is missing.
func (v *Values) Get(name string) any {
	raw, ok := v.Lookup(name)
	if !ok {
		return Undefined
	}
	return decodeRaw(raw)
}

// Len returns the number of fields; a nil snapshot has none.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.fields)
}

// IsEmpty reports whether the snapshot is absent or has no fields.
func (v *Values) IsEmpty() bool {
	return v.Len() == 0
}

// Keys returns field names in arrival order.
func (v *Values) Keys() []string {
	if v == nil {
		return nil
	}
	keys := make([]string, len(v.fields))
	for i, f := range v.fields {
		keys[i] = f.Name
	}
	return keys
}

// Fields returns a copy of the snapshot entries in arrival order.
func (v *Values) Fields() []Field {
	if v == nil {
		return nil
	}
	out := make([]Field, len(v.fields))
	copy(out, v.fields)
	return out
}

// MarshalJSON writes the snapshot as an object, keys in arrival order.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range v.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Raw) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Raw)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the same shapes as ParseValues.
func (v *Values) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValues(data)
	if err != nil {
		return err
	}
	if parsed == nil {
		parsed = NewValues()
	}
	*v = *parsed
	return nil
}

type undefined struct{}

func (undefined) String() string { return "undefined" }

func (undefined) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined stands for a key missing from a snapshot. It is distinct from JSON null.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// decodeRaw turns a raw JSON value into plain Go values, keeping numbers as json.Number.
func decodeRaw(raw json.RawMessage) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return string(raw)
	}
	return out
}
