package acpi

import (
	"bytes"
	"fmt"
	"strings"
)

// Kind tells which variant a Value holds.
type Kind int

const (
	KindInteger Kind = iota
	KindText
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// UnknownText is returned for text fields the firmware did not provide.
const UnknownText = "Unknown"

// Value is one element of a firmware field package.
type Value struct {
	kind    Kind
	integer uint64
	text    string
	data    []byte
}

// Integer returns an integer Value.
func Integer(v uint64) Value {
	return Value{kind: KindInteger, integer: v}
}

// Text returns a text Value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Bytes returns an opaque byte block Value. The slice is copied.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, data: append([]byte(nil), b...)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return fmt.Sprintf("0x%x", v.integer)
	case KindText:
		return fmt.Sprintf("%q", v.text)
	case KindBytes:
		parts := make([]string, 0, len(v.data))
		for _, b := range v.data {
			parts = append(parts, fmt.Sprintf("0x%02x", b))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<invalid>"
}

// Package is an ordered, positionally indexed sequence of values returned
// by one firmware method.
type Package []Value

// Uint32 returns the integer at index i truncated to 32 bits. Missing or
// non-integer fields read as zero.
func (p Package) Uint32(i int) uint32 {
	if i < 0 || i >= len(p) {
		return 0
	}
	v := p[i]
	switch v.kind {
	case KindInteger:
		return uint32(v.integer)
	case KindText, KindBytes:
		return 0
	}
	return 0
}

// Text returns the text at index i. A byte block is read as a NUL
// terminated string. Anything else yields UnknownText and false.
func (p Package) Text(i int) (string, bool) {
	if i < 0 || i >= len(p) {
		return UnknownText, false
	}
	v := p[i]
	switch v.kind {
	case KindText:
		return v.text, true
	case KindBytes:
		b := v.data
		if n := bytes.IndexByte(b, 0); n >= 0 {
			b = b[:n]
		}
		return string(b), true
	case KindInteger:
		return UnknownText, false
	}
	return UnknownText, false
}

// Data returns the field at index i as raw bytes. Text is returned
// without a terminator; integers yield nil.
func (p Package) Data(i int) []byte {
	if i < 0 || i >= len(p) {
		return nil
	}
	v := p[i]
	switch v.kind {
	case KindBytes:
		return append([]byte(nil), v.data...)
	case KindText:
		return []byte(v.text)
	case KindInteger:
		return nil
	}
	return nil
}

func (p Package) String() string {
	parts := make([]string, 0, len(p))
	for _, v := range p {
		parts = append(parts, v.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
