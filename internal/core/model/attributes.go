package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// AttributeValue is a tagged attribute value from the joined attribute table.
type AttributeValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) AttributeValue  { return AttributeValue{Kind: KindString, Str: s} }
func NumberValue(f float64) AttributeValue { return AttributeValue{Kind: KindNumber, Num: f} }
func BoolValue(b bool) AttributeValue      { return AttributeValue{Kind: KindBool, Bool: b} }

// Display renders the value for the result panel. Booleans render as yes/no.
func (v AttributeValue) Display() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "yes"
		}
		return "no"
	default:
		return "-"
	}
}

func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts strings, numbers, booleans and null. Nested objects or
// arrays are kept as their raw JSON text.
func (v *AttributeValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("attribute value: empty input")
	}
	switch b[0] {
	case 'n':
		*v = AttributeValue{}
		return nil
	case 't', 'f':
		var x bool
		if err := json.Unmarshal(b, &x); err != nil {
			return fmt.Errorf("attribute value: %w", err)
		}
		*v = BoolValue(x)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("attribute value: %w", err)
		}
		*v = StringValue(s)
		return nil
	case '{', '[':
		if !json.Valid(b) {
			return errors.New("attribute value: invalid JSON")
		}
		*v = StringValue(string(b))
		return nil
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("attribute value: %w", err)
		}
		*v = NumberValue(f)
		return nil
	}
}

// Attributes is an insertion-ordered mapping of attribute name to value.
// The zero value is an empty mapping.
type Attributes struct {
	keys []string
	vals map[string]AttributeValue
}

// Set adds or replaces a value. Replacing keeps the original position.
func (a *Attributes) Set(key string, v AttributeValue) {
	if a.vals == nil {
		a.vals = make(map[string]AttributeValue)
	}
	if _, ok := a.vals[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.vals[key] = v
}

func (a Attributes) Get(key string) (AttributeValue, bool) {
	v, ok := a.vals[key]
	return v, ok
}

func (a Attributes) Len() int { return len(a.keys) }

// Keys returns the attribute names in source order.
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Each calls fn for every pair in source order.
func (a Attributes) Each(fn func(key string, v AttributeValue)) {
	for _, k := range a.keys {
		fn(k, a.vals[k])
	}
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal attribute key: %w", err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := a.vals[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal attribute %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order. null decodes to empty.
func (a *Attributes) UnmarshalJSON(b []byte) error {
	*a = Attributes{}
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("attributes: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("attributes %q: %w", key, err)
		}
		var v AttributeValue
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("attributes %q: %w", key, err)
		}
		a.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	return nil
}
