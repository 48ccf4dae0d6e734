package powersource

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strconv"
)

// ValueKind tells which variant a Value holds.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindString
	KindData
	KindInts
	KindDict
)

// Value is a typed published attribute.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	s    string
	data []byte
	ints []int64
	dict map[string]int64
}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Uint(u uint32) Value { return Value{kind: KindInt, i: int64(u)} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Data(b []byte) Value { return Value{kind: KindData, data: append([]byte{}, b...)} }
func Ints(v ...int64) Value { return Value{kind: KindInts, ints: slices.Clone(v)} }
func Dict(m map[string]int64) Value {
	return Value{kind: KindDict, dict: maps.Clone(m)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Str() string { return v.s }
func (v Value) Data() []byte { return slices.Clone(v.data) }
func (v Value) Ints() []int64 {
	return slices.Clone(v.ints)
}
func (v Value) Dict() map[string]int64 { return maps.Clone(v.dict) }

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindString:
		return v.s
	case KindData:
		return v.Data()
	case KindInts:
		return v.Ints()
	case KindDict:
		return v.Dict()
	}
	return nil
}

// Text renders the value for text-only consumers such as Redis hashes.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports whether v and o hold the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindString:
		return v.s == o.s
	case KindData:
		return bytes.Equal(v.data, o.data)
	case KindInts:
		return slices.Equal(v.ints, o.ints)
	case KindDict:
		return maps.Equal(v.dict, o.dict)
	}
	return false
}
