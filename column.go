package shardframe

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// ColumnStore is an appendable, typed, dense vector of values plus a
// parallel null bitmap. It is the tagged-variant leaf of the storage
// model: exactly one of the typed slices below is populated, selected by
// dataType, and every operation dispatches on that tag rather than on Go
// interface polymorphism.
//
// append_value/append_null are not safe to call concurrently with
// themselves or with reads on the same store; TableData provides mutual
// exclusion via its writer lock. get_typed/is_null may run concurrently
// with each other under TableData's reader lock.
type ColumnStore struct {
	name     string
	dataType DataType
	nullable bool
	indexed  bool

	nulls []bool

	ints    []int32
	longs   []int64
	floats  []float32
	doubles []float64
	bools   []bool
	strs    []string

	// index maps a non-null raw value to the set of row indices holding
	// it. Present only when indexed is true.
	index map[any]*roaring.Bitmap
}

// NewColumnStore allocates an empty column of the given shape.
func NewColumnStore(col Column) *ColumnStore {
	cs := &ColumnStore{
		name:     col.Name,
		dataType: col.Type,
		nullable: col.Nullable,
		indexed:  col.Indexed,
	}
	if col.Indexed {
		cs.index = make(map[any]*roaring.Bitmap)
	}
	return cs
}

func (c *ColumnStore) Name() string     { return c.name }
func (c *ColumnStore) Type() DataType   { return c.dataType }
func (c *ColumnStore) Nullable() bool   { return c.nullable }
func (c *ColumnStore) Indexed() bool    { return c.indexed }
func (c *ColumnStore) Len() int         { return len(c.nulls) }

// Append adds one value to the end of the column. It is the caller's
// (TableData's) responsibility to serialize this against all other
// appends and reads on the column.
func (c *ColumnStore) Append(v Value) error {
	if v.Null {
		return c.appendNull()
	}
	if v.Type != c.dataType {
		return fmt.Errorf("shardframe: column %q expects %s, got %s", c.name, c.dataType, v.Type)
	}

	row := len(c.nulls)
	switch c.dataType {
	case Integer:
		c.ints = append(c.ints, v.i32)
	case Long:
		c.longs = append(c.longs, v.i64)
	case Float:
		c.floats = append(c.floats, v.f32)
	case Double:
		c.doubles = append(c.doubles, v.f64)
	case Boolean:
		c.bools = append(c.bools, v.b)
	case String:
		c.strs = append(c.strs, v.s)
	case Date, Timestamp:
		c.longs = append(c.longs, v.i64)
	default:
		return fmt.Errorf("shardframe: column %q has unknown type %s", c.name, c.dataType)
	}
	c.nulls = append(c.nulls, false)

	if c.indexed {
		key := v.Raw()
		bm, ok := c.index[key]
		if !ok {
			bm = roaring.New()
			c.index[key] = bm
		}
		bm.Add(uint32(row))
	}
	return nil
}

func (c *ColumnStore) appendNull() error {
	if !c.nullable {
		return fmt.Errorf("shardframe: column %q is not nullable", c.name)
	}
	switch c.dataType {
	case Integer:
		c.ints = append(c.ints, 0)
	case Long, Date, Timestamp:
		c.longs = append(c.longs, 0)
	case Float:
		c.floats = append(c.floats, 0)
	case Double:
		c.doubles = append(c.doubles, 0)
	case Boolean:
		c.bools = append(c.bools, false)
	case String:
		c.strs = append(c.strs, "")
	}
	c.nulls = append(c.nulls, true)
	return nil
}

// truncate drops every row at or beyond n. Used to unwind a partially
// applied batch when TableData.AppendRows fails mid-way.
func (c *ColumnStore) truncate(n int) {
	c.nulls = c.nulls[:n]
	switch c.dataType {
	case Integer:
		c.ints = c.ints[:n]
	case Long, Date, Timestamp:
		c.longs = c.longs[:n]
	case Float:
		c.floats = c.floats[:n]
	case Double:
		c.doubles = c.doubles[:n]
	case Boolean:
		c.bools = c.bools[:n]
	case String:
		c.strs = c.strs[:n]
	}
	if c.indexed {
		for key, bm := range c.index {
			bm.RemoveRange(uint64(n), uint64(bm.Maximum())+1)
			if bm.IsEmpty() {
				delete(c.index, key)
			}
		}
	}
}

// Get reads the value at row i.
func (c *ColumnStore) Get(i int) (Value, error) {
	if i < 0 || i >= len(c.nulls) {
		return Value{}, fmt.Errorf("shardframe: row index %d out of range [0,%d)", i, len(c.nulls))
	}
	if c.nulls[i] {
		return NullOf(c.dataType), nil
	}
	switch c.dataType {
	case Integer:
		return IntValue(c.ints[i]), nil
	case Long:
		return LongValue(c.longs[i]), nil
	case Float:
		return FloatValue(c.floats[i]), nil
	case Double:
		return DoubleValue(c.doubles[i]), nil
	case Boolean:
		return BoolValue(c.bools[i]), nil
	case String:
		return StringValue(c.strs[i]), nil
	case Date:
		return DateValue(c.longs[i]), nil
	case Timestamp:
		return TimestampValue(c.longs[i]), nil
	default:
		return Value{}, fmt.Errorf("shardframe: column %q has unknown type %s", c.name, c.dataType)
	}
}

// NullCount returns the number of null rows currently stored.
func (c *ColumnStore) NullCount() int {
	n := 0
	for _, isNull := range c.nulls {
		if isNull {
			n++
		}
	}
	return n
}

// IsNull reports whether row i is null.
func (c *ColumnStore) IsNull(i int) (bool, error) {
	if i < 0 || i >= len(c.nulls) {
		return false, fmt.Errorf("shardframe: row index %d out of range [0,%d)", i, len(c.nulls))
	}
	return c.nulls[i], nil
}

// FindEqual returns the set of row indices whose value equals v. Only
// valid on indexed columns; the returned bitmap is owned by the index and
// must not be mutated by the caller.
func (c *ColumnStore) FindEqual(v Value) (*roaring.Bitmap, error) {
	if !c.indexed {
		return nil, fmt.Errorf("shardframe: column %q is not indexed", c.name)
	}
	if v.Null {
		return roaring.New(), nil
	}
	bm, ok := c.index[v.Raw()]
	if !ok {
		return roaring.New(), nil
	}
	return bm, nil
}
