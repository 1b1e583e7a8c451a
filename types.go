// Package shardframe implements an in-memory, columnar, distributed table
// store: typed column storage with concurrency control, a Parquet ingest
// pipeline, and a scatter-gather query engine that fans queries out across
// a small cluster of peer nodes and merges their partial results.
package shardframe

import (
	"fmt"
	"strings"
)

// DataType is the closed set of primitive column types this store
// understands. New types are never added dynamically; every operation
// dispatches on this tag instead of relying on interface polymorphism.
type DataType int

const (
	Integer DataType = iota
	Long
	Float
	Double
	Boolean
	String
	Date
	Timestamp
)

func (t DataType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Long:
		return "LONG"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Boolean:
		return "BOOLEAN"
	case String:
		return "STRING"
	case Date:
		return "DATE"
	case Timestamp:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ParseDataType maps the wire/config spelling of a type name onto a
// DataType, case-insensitively.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(s) {
	case "INTEGER", "INT", "INT32":
		return Integer, nil
	case "LONG", "INT64", "BIGINT":
		return Long, nil
	case "FLOAT", "FLOAT32":
		return Float, nil
	case "DOUBLE", "FLOAT64":
		return Double, nil
	case "BOOLEAN", "BOOL":
		return Boolean, nil
	case "STRING", "VARCHAR", "TEXT":
		return String, nil
	case "DATE":
		return Date, nil
	case "TIMESTAMP":
		return Timestamp, nil
	default:
		return 0, fmt.Errorf("shardframe: unknown data type %q", s)
	}
}

// isNumeric reports whether values of t participate in natural numeric
// widening (SUM/AVG accumulation).
func (t DataType) isNumeric() bool {
	switch t {
	case Integer, Long, Float, Double:
		return true
	default:
		return false
	}
}

// Value is a tagged union over a single cell. Only the field matching Type
// carries meaning; reading the wrong field is a programming error in this
// package, never a caller-visible one.
type Value struct {
	Type DataType
	Null bool

	i32 int32
	i64 int64 // also carries Date/Timestamp, both signed 64-bit milliseconds
	f32 float32
	f64 float64
	b   bool
	s   string
}

func IntValue(v int32) Value       { return Value{Type: Integer, i32: v} }
func LongValue(v int64) Value      { return Value{Type: Long, i64: v} }
func FloatValue(v float32) Value   { return Value{Type: Float, f32: v} }
func DoubleValue(v float64) Value  { return Value{Type: Double, f64: v} }
func BoolValue(v bool) Value       { return Value{Type: Boolean, b: v} }
func StringValue(v string) Value   { return Value{Type: String, s: v} }
func DateValue(v int64) Value      { return Value{Type: Date, i64: v} }
func TimestampValue(v int64) Value { return Value{Type: Timestamp, i64: v} }

// NullOf returns a null Value of the given type.
func NullOf(t DataType) Value { return Value{Type: t, Null: true} }

func (v Value) Int32() int32     { return v.i32 }
func (v Value) Int64() int64     { return v.i64 }
func (v Value) Float32() float32 { return v.f32 }
func (v Value) Float64() float64 { return v.f64 }
func (v Value) Bool() bool       { return v.b }
func (v Value) String2() string  { return v.s }

// AsFloat64 widens any numeric value to float64, for SUM/AVG accumulation.
func (v Value) AsFloat64() float64 {
	switch v.Type {
	case Integer:
		return float64(v.i32)
	case Long:
		return float64(v.i64)
	case Float:
		return float64(v.f32)
	case Double:
		return v.f64
	default:
		return 0
	}
}

// AsInt64 widens an integer-family value to int64.
func (v Value) AsInt64() int64 {
	switch v.Type {
	case Integer:
		return int64(v.i32)
	case Long, Date, Timestamp:
		return v.i64
	default:
		return 0
	}
}

// Raw returns a comparable representation suitable for use as a map key in
// the equality index; it is defined for every non-null, non-float type and
// for float types too (exact-match equality, the only kind the index
// serves).
func (v Value) Raw() any {
	switch v.Type {
	case Integer:
		return v.i32
	case Long, Date, Timestamp:
		return v.i64
	case Float:
		return v.f32
	case Double:
		return v.f64
	case Boolean:
		return v.b
	case String:
		return v.s
	default:
		return nil
	}
}

// Equal implements SQL equality semantics: a null never equals anything,
// including another null.
func (v Value) Equal(other Value) bool {
	if v.Null || other.Null {
		return false
	}
	if v.Type != other.Type {
		return false
	}
	return v.Raw() == other.Raw()
}

// Compare implements the natural order for v.Type, with nulls sorting
// strictly below every non-null value. The result follows the usual
// comparator convention: negative if v < other, zero if equal, positive if
// v > other.
func (v Value) Compare(other Value) int {
	if v.Null && other.Null {
		return 0
	}
	if v.Null {
		return -1
	}
	if other.Null {
		return 1
	}

	switch v.Type {
	case Integer:
		return cmpInt64(int64(v.i32), int64(other.i32))
	case Long, Date, Timestamp:
		return cmpInt64(v.i64, other.i64)
	case Float:
		return cmpFloat64(float64(v.f32), float64(other.f32))
	case Double:
		return cmpFloat64(v.f64, other.f64)
	case Boolean:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case String:
		return strings.Compare(v.s, other.s)
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
