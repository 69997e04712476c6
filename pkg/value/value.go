// Package value defines the engine's closed runtime value set.
//
// A Value is one of exactly seven variants: null, bool, i64, f32, string,
// bytes, or f32vec. Values are plain data; comparison is structural.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the tag identifying a Value variant.
type Type uint8

const (
	TypeNull Type = iota
	TypeBool
	TypeI64
	TypeF32
	TypeString
	TypeBytes
	TypeF32Vec
)

// String returns the registry spelling of the type ("i64", "f32vec", ...).
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeF32Vec:
		return "f32vec"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType parses a registry type string. Null is not a declarable key type.
func ParseType(s string) (Type, error) {
	switch s {
	case "bool":
		return TypeBool, nil
	case "i64":
		return TypeI64, nil
	case "f32":
		return TypeF32, nil
	case "string":
		return TypeString, nil
	case "bytes":
		return TypeBytes, nil
	case "f32vec":
		return TypeF32Vec, nil
	default:
		return TypeNull, fmt.Errorf("unknown key type %q", s)
	}
}

// Value is a tagged union over the engine's value set.
// The zero Value is null.
type Value struct {
	typ Type
	b   bool
	i   int64
	f   float32
	s   string
	by  []byte
	vec []float32
}

func Null() Value              { return Value{} }
func Bool(v bool) Value        { return Value{typ: TypeBool, b: v} }
func I64(v int64) Value        { return Value{typ: TypeI64, i: v} }
func F32(v float32) Value      { return Value{typ: TypeF32, f: v} }
func String(v string) Value    { return Value{typ: TypeString, s: v} }
func Bytes(v []byte) Value     { return Value{typ: TypeBytes, by: v} }
func F32Vec(v []float32) Value { return Value{typ: TypeF32Vec, vec: v} }

// Type returns the variant tag.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.typ == TypeNull }

// AsBool returns the bool payload; ok is false for any other variant.
func (v Value) AsBool() (bool, bool) { return v.b, v.typ == TypeBool }

// AsI64 returns the i64 payload; ok is false for any other variant.
func (v Value) AsI64() (int64, bool) { return v.i, v.typ == TypeI64 }

// AsF32 returns the f32 payload; ok is false for any other variant.
func (v Value) AsF32() (float32, bool) { return v.f, v.typ == TypeF32 }

// AsString returns the string payload; ok is false for any other variant.
func (v Value) AsString() (string, bool) { return v.s, v.typ == TypeString }

// AsBytes returns the bytes payload; ok is false for any other variant.
// The returned slice is the value's backing storage; callers must not mutate it.
func (v Value) AsBytes() ([]byte, bool) { return v.by, v.typ == TypeBytes }

// AsF32Vec returns the f32vec payload; ok is false for any other variant.
// The returned slice is the value's backing storage; callers must not mutate it.
func (v Value) AsF32Vec() ([]float32, bool) { return v.vec, v.typ == TypeF32Vec }

// Equal reports structural equality. Floats compare with strict equality.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBool:
		return v.b == o.b
	case TypeI64:
		return v.i == o.i
	case TypeF32:
		return v.f == o.f
	case TypeString:
		return v.s == o.s
	case TypeBytes:
		if len(v.by) != len(o.by) {
			return false
		}
		for i := range v.by {
			if v.by[i] != o.by[i] {
				return false
			}
		}
		return true
	case TypeF32Vec:
		if len(v.vec) != len(o.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != o.vec[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Format renders the value for logging and result dumps.
func (v Value) Format() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeI64:
		return strconv.FormatInt(v.i, 10)
	case TypeF32:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case TypeString:
		return strconv.Quote(v.s)
	case TypeBytes:
		return fmt.Sprintf("bytes[%d]", len(v.by))
	case TypeF32Vec:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, f := range v.vec {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i == 4 && len(v.vec) > 5 {
				fmt.Fprintf(&sb, "... %d floats", len(v.vec))
				break
			}
			sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
		}
		sb.WriteByte(']')
		return sb.String()
	}
	return "?"
}
