package repository

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ValueKind identifies the type of a property value.
type ValueKind int

const (
	KindString ValueKind = iota + 1
	KindBool
	KindDate
	KindStrings
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindStrings:
		return "strings"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a typed property value.
type Value struct {
	kind    ValueKind
	str     string
	boolean bool
	date    time.Time
	strs    []string
}

func StringValue(s string) Value     { return Value{kind: KindString, str: s} }
func BoolValue(b bool) Value         { return Value{kind: KindBool, boolean: b} }
func DateValue(t time.Time) Value    { return Value{kind: KindDate, date: t.UTC()} }
func StringsValue(s []string) Value  { return Value{kind: KindStrings, strs: slices.Clone(s)} }
func (v Value) Kind() ValueKind      { return v.kind }
func (v Value) Bool() bool           { return v.boolean }
func (v Value) Date() time.Time      { return v.date }
func (v Value) Strings() []string    { return slices.Clone(v.strs) }

// String returns the string form of the value. Multi-valued properties
// return their first element.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindDate:
		return v.date.Format(time.RFC3339Nano)
	case KindStrings:
		if len(v.strs) == 0 {
			return ""
		}
		return v.strs[0]
	default:
		return v.str
	}
}

// Interface returns the value as a plain Go value, suitable for JSON output.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindDate:
		return v.date
	case KindStrings:
		return v.Strings()
	default:
		return v.str
	}
}

func (v Value) encode() (string, error) {
	var raw any
	switch v.kind {
	case KindString:
		raw = v.str
	case KindBool:
		raw = v.boolean
	case KindDate:
		raw = v.date.UnixNano()
	case KindStrings:
		raw = v.strs
		if v.strs == nil {
			raw = []string{}
		}
	default:
		return "", fmt.Errorf("unsupported value kind %s", v.kind)
	}
	b, err := json.Marshal(raw)
	return string(b), err
}

func decodeValue(kind ValueKind, data string) (Value, error) {
	var err error
	switch kind {
	case KindString:
		var s string
		err = json.Unmarshal([]byte(data), &s)
		return StringValue(s), err
	case KindBool:
		var b bool
		err = json.Unmarshal([]byte(data), &b)
		return BoolValue(b), err
	case KindDate:
		var n int64
		err = json.Unmarshal([]byte(data), &n)
		return DateValue(time.Unix(0, n)), err
	case KindStrings:
		var s []string
		err = json.Unmarshal([]byte(data), &s)
		return StringsValue(s), err
	default:
		return Value{}, fmt.Errorf("unsupported value kind %d", int(kind))
	}
}
