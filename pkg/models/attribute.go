// Package models defines the normalized telemetry entity model shared by
// the mapper, the storage layer and the query API.
package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ValueKind identifies which variant of a Value is set.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindInt
	KindDouble
	KindBytes
	KindList
	KindMap
)

// Value is a recursive attribute value: string, bool, int64, float64,
// bytes, an ordered list of values, or a nested map. It mirrors the OTLP
// AnyValue union without flattening nested structure.
type Value struct {
	Kind   ValueKind
	Str    string
	Bool   bool
	Int    int64
	Double float64
	Bytes  []byte
	List   []Value
	Map    map[string]Value
}

// Attributes is an unordered attribute set keyed by attribute name.
type Attributes map[string]Value

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value      { return Value{Kind: KindInt, Int: i} }
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Double: f} }
func BytesValue(b []byte) Value   { return Value{Kind: KindBytes, Bytes: b} }
func ListValue(vs ...Value) Value { return Value{Kind: KindList, List: vs} }

// MapValue wraps a nested attribute map.
func MapValue(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// AsString renders a value for display and label matching. Composite
// values render as their JSON document.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// valueJSON is the self-describing persisted form: a type tag plus the
// variant payload. Integers are carried as decimal strings so 64-bit
// precision survives JSON number handling; bytes are base64.
type valueJSON struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

// MarshalJSON encodes the value in the tagged document format used both
// for row persistence and for canonical identity hashing.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	var tag string

	switch v.Kind {
	case KindString:
		tag, payload = "str", v.Str
	case KindBool:
		tag, payload = "bool", v.Bool
	case KindInt:
		tag, payload = "int", strconv.FormatInt(v.Int, 10)
	case KindDouble:
		tag, payload = "dbl", v.Double
	case KindBytes:
		tag, payload = "bytes", base64.StdEncoding.EncodeToString(v.Bytes)
	case KindList:
		tag, payload = "list", v.List
	case KindMap:
		tag, payload = "map", v.Map
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: tag, Value: raw})
}

// UnmarshalJSON decodes the tagged document format back into the same
// variant that was marshaled.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wrapper valueJSON
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}

	switch wrapper.Type {
	case "str":
		v.Kind = KindString
		return json.Unmarshal(wrapper.Value, &v.Str)
	case "bool":
		v.Kind = KindBool
		return json.Unmarshal(wrapper.Value, &v.Bool)
	case "int":
		var s string
		if err := json.Unmarshal(wrapper.Value, &s); err != nil {
			return err
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int value: %w", err)
		}
		v.Kind, v.Int = KindInt, i
		return nil
	case "dbl":
		v.Kind = KindDouble
		return json.Unmarshal(wrapper.Value, &v.Double)
	case "bytes":
		var s string
		if err := json.Unmarshal(wrapper.Value, &s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("decoding bytes value: %w", err)
		}
		v.Kind, v.Bytes = KindBytes, b
		return nil
	case "list":
		v.Kind = KindList
		return json.Unmarshal(wrapper.Value, &v.List)
	case "map":
		v.Kind = KindMap
		return json.Unmarshal(wrapper.Value, &v.Map)
	default:
		return fmt.Errorf("unknown value type tag %q", wrapper.Type)
	}
}

// EncodeAttributes serializes an attribute set to its JSON document.
// encoding/json writes map keys in sorted order, so the output is
// deterministic for identical sets.
func EncodeAttributes(attrs Attributes) (string, error) {
	if attrs == nil {
		attrs = Attributes{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(b), nil
}

// DecodeAttributes parses a persisted attribute document.
func DecodeAttributes(doc string) (Attributes, error) {
	if doc == "" {
		return Attributes{}, nil
	}
	var attrs Attributes
	if err := json.Unmarshal([]byte(doc), &attrs); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	return attrs, nil
}
