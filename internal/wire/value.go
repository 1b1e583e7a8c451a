// Package wire defines the JSON shapes exchanged over HTTP: both the
// client-facing query/table API and the node-to-node forwarding
// protocol used by the distribution and query coordinators. Keeping
// both in one leaf package lets internal/api and cluster share a single
// encoding without an import cycle between them.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/shardframe/shardframe"
)

// Value is the wire form of shardframe.Value: a type tag plus a raw JSON
// value, since encoding/json has no notion of our closed DataType set.
type Value struct {
	Type  string `json:"type"`
	Null  bool   `json:"null,omitempty"`
	Value any    `json:"value"`
}

// FromDomain converts a shardframe.Value to its wire form.
func FromDomain(v shardframe.Value) Value {
	w := Value{Type: v.Type.String(), Null: v.Null}
	if v.Null {
		return w
	}
	switch v.Type {
	case shardframe.Integer:
		w.Value = v.Int32()
	case shardframe.Long, shardframe.Date, shardframe.Timestamp:
		w.Value = v.Int64()
	case shardframe.Float:
		w.Value = v.Float32()
	case shardframe.Double:
		w.Value = v.Float64()
	case shardframe.Boolean:
		w.Value = v.Bool()
	case shardframe.String:
		w.Value = v.String2()
	}
	return w
}

// ToDomain converts a wire Value back to shardframe.Value. Numbers decode
// from JSON as float64 regardless of their wire Type, since encoding/json
// has no integer-specific number type.
func (w Value) ToDomain() (shardframe.Value, error) {
	dt, err := shardframe.ParseDataType(w.Type)
	if err != nil {
		return shardframe.Value{}, fmt.Errorf("wire: value has %w", err)
	}
	if w.Null {
		return shardframe.NullOf(dt), nil
	}

	switch dt {
	case shardframe.Integer:
		n, err := asFloat64(w.Value)
		if err != nil {
			return shardframe.Value{}, err
		}
		return shardframe.IntValue(int32(n)), nil
	case shardframe.Long:
		n, err := asFloat64(w.Value)
		if err != nil {
			return shardframe.Value{}, err
		}
		return shardframe.LongValue(int64(n)), nil
	case shardframe.Float:
		n, err := asFloat64(w.Value)
		if err != nil {
			return shardframe.Value{}, err
		}
		return shardframe.FloatValue(float32(n)), nil
	case shardframe.Double:
		n, err := asFloat64(w.Value)
		if err != nil {
			return shardframe.Value{}, err
		}
		return shardframe.DoubleValue(n), nil
	case shardframe.Boolean:
		b, ok := w.Value.(bool)
		if !ok {
			return shardframe.Value{}, fmt.Errorf("wire: expected boolean value, got %T", w.Value)
		}
		return shardframe.BoolValue(b), nil
	case shardframe.String:
		s, ok := w.Value.(string)
		if !ok {
			return shardframe.Value{}, fmt.Errorf("wire: expected string value, got %T", w.Value)
		}
		return shardframe.StringValue(s), nil
	case shardframe.Date:
		n, err := asFloat64(w.Value)
		if err != nil {
			return shardframe.Value{}, err
		}
		return shardframe.DateValue(int64(n)), nil
	case shardframe.Timestamp:
		n, err := asFloat64(w.Value)
		if err != nil {
			return shardframe.Value{}, err
		}
		return shardframe.TimestampValue(int64(n)), nil
	default:
		return shardframe.Value{}, fmt.Errorf("wire: unsupported type %q", w.Type)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("wire: expected numeric value, got %T", v)
	}
}
