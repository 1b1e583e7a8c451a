package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"

	"github.com/shardframe/shardframe"
)

// Row is a fully materialized, projected result row.
type Row map[string]shardframe.Value

// AvgPair is the intermediate, mandatory-for-correctness representation
// of an in-flight AVG: the local sum and count, combined component-wise
// across peers and only converted to a scalar after every contribution
// has been merged.
type AvgPair struct {
	Sum   float64
	Count int64
}

// PartialRow is one group's contribution to an aggregate query. It is
// "partial" even for a single, non-distributed query: finalization
// (resolving AvgPairs to scalars, applying ORDER BY/LIMIT) always happens
// one level up, after any merging across peers.
type PartialRow struct {
	GroupKey []shardframe.Value // empty when the query has no GROUP BY
	Values   map[string]shardframe.Value
	AvgPairs map[string]AvgPair
}

// Result is the local engine's output: either plain rows (no GROUP BY, no
// aggregates) or partial aggregate rows.
type Result struct {
	Aggregated bool
	Rows       []Row
	Partials   []*PartialRow
}

// Execute runs q against one table's data and returns its local,
// unfinalized result. It acquires and releases the table's reader lock,
// computes the matching row set (using the equality index when
// available), and either projects rows or accumulates grouped
// aggregates. ORDER BY and LIMIT are applied later, by Finalize, after
// any cross-peer merge — applying them here would be correct only for a
// single, non-distributed node and would silently corrupt a distributed
// LIMIT/ORDER BY.
func Execute(td *shardframe.TableData, schema *shardframe.Schema, q *Query) (*Result, error) {
	td.RLock()
	defer td.RUnlock()

	matches, err := matchingRows(td, schema, q.Conditions)
	if err != nil {
		return nil, err
	}

	if !q.HasAggregation() {
		rows, err := projectRows(td, schema, q, matches)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	}

	partials, err := aggregateRows(td, schema, q, matches)
	if err != nil {
		return nil, err
	}
	return &Result{Aggregated: true, Partials: partials}, nil
}

// matchingRows computes the row set satisfying every condition
// conjunctively. Equality conditions on indexed columns are intersected
// via the column's roaring bitmap index before any row-by-row evaluation,
// so a selective indexed equality filter need not scan the full table.
func matchingRows(td *shardframe.TableData, schema *shardframe.Schema, conditions []Condition) (*roaring.Bitmap, error) {
	var indexed *roaring.Bitmap
	var remaining []Condition

	for _, c := range conditions {
		if c.Op != OpEq {
			remaining = append(remaining, c)
			continue
		}
		col, ok := schema.Column(c.Column)
		if !ok || !col.Indexed {
			remaining = append(remaining, c)
			continue
		}
		idx, _ := schema.IndexOf(c.Column)
		bm, err := td.Store(idx).FindEqual(c.Value)
		if err != nil {
			return nil, err
		}
		if indexed == nil {
			indexed = bm.Clone()
		} else {
			indexed.And(bm)
		}
	}

	var candidates *roaring.Bitmap
	if indexed != nil {
		candidates = indexed
	} else {
		candidates = roaring.New()
		n := uint64(td.RowCount())
		if n > 0 {
			candidates.AddRange(0, n)
		}
	}

	if len(remaining) == 0 {
		return candidates, nil
	}

	final := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		row := int(it.Next())
		ok, err := evalConditions(td, schema, remaining, row)
		if err != nil {
			return nil, err
		}
		if ok {
			final.Add(uint32(row))
		}
	}
	return final, nil
}

// evalConditions evaluates the conjunction of conditions against one row,
// short-circuiting on the first failing condition.
func evalConditions(td *shardframe.TableData, schema *shardframe.Schema, conditions []Condition, row int) (bool, error) {
	for _, c := range conditions {
		ok, err := evalCondition(td, schema, c, row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(td *shardframe.TableData, schema *shardframe.Schema, c Condition, row int) (bool, error) {
	idx, ok := schema.IndexOf(c.Column)
	if !ok {
		return false, fmt.Errorf("query: unknown column %q", c.Column)
	}
	store := td.Store(idx)

	if c.Op == OpIsNull || c.Op == OpNotNull {
		isNull, err := store.IsNull(row)
		if err != nil {
			return false, err
		}
		if c.Op == OpIsNull {
			return isNull, nil
		}
		return !isNull, nil
	}

	v, err := store.Get(row)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case OpEq:
		return v.Equal(c.Value), nil
	case OpNeq:
		if v.Null || c.Value.Null {
			return false, nil
		}
		return !v.Equal(c.Value), nil
	case OpLt:
		return !v.Null && !c.Value.Null && v.Compare(c.Value) < 0, nil
	case OpLte:
		return !v.Null && !c.Value.Null && v.Compare(c.Value) <= 0, nil
	case OpGt:
		return !v.Null && !c.Value.Null && v.Compare(c.Value) > 0, nil
	case OpGte:
		return !v.Null && !c.Value.Null && v.Compare(c.Value) >= 0, nil
	case OpLike:
		if v.Null || v.Type != shardframe.String {
			return false, nil
		}
		return likeMatch(v.String2(), c.Value.String2()), nil
	default:
		return false, fmt.Errorf("query: unsupported operator %q", c.Op)
	}
}

var likePatternCache = map[string]*regexp.Regexp{}

// likeMatch implements SQL LIKE with % (any run) and _ (single char)
// wildcards, case-sensitive, anchored to the full string.
func likeMatch(s, pattern string) bool {
	re, ok := likePatternCache[pattern]
	if !ok {
		var b strings.Builder
		b.WriteString("^")
		for _, r := range pattern {
			switch r {
			case '%':
				b.WriteString(".*")
			case '_':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re = regexp.MustCompile(b.String())
		likePatternCache[pattern] = re
	}
	return re.MatchString(s)
}

func projectRows(td *shardframe.TableData, schema *shardframe.Schema, q *Query, matches *roaring.Bitmap) ([]Row, error) {
	columns := q.Columns
	if q.ProjectsAll() {
		columns = schema.Names()
	}

	rows := make([]Row, 0, matches.GetCardinality())
	it := matches.Iterator()
	for it.HasNext() {
		r := int(it.Next())
		row := make(Row, len(columns))
		for _, name := range columns {
			idx, ok := schema.IndexOf(name)
			if !ok {
				return nil, fmt.Errorf("query: unknown column %q", name)
			}
			v, err := td.Store(idx).Get(r)
			if err != nil {
				return nil, err
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// groupBucket chains entries that hash to the same xxhash bucket, so
// correctness never depends on the hash being collision-free.
type groupBucket struct {
	key   []shardframe.Value
	accum *accumulator
}

type accumulator struct {
	counts map[string]int64
	sums   map[string]float64
	sumInt map[string]bool // true while the SUM accumulator is still integer-only
	sumI   map[string]int64
	mins   map[string]shardframe.Value
	maxs   map[string]shardframe.Value
	avgs   map[string]AvgPair
}

func newAccumulator() *accumulator {
	return &accumulator{
		counts: map[string]int64{},
		sums:   map[string]float64{},
		sumInt: map[string]bool{},
		sumI:   map[string]int64{},
		mins:   map[string]shardframe.Value{},
		maxs:   map[string]shardframe.Value{},
		avgs:   map[string]AvgPair{},
	}
}

func aggregateRows(td *shardframe.TableData, schema *shardframe.Schema, q *Query, matches *roaring.Bitmap) ([]*PartialRow, error) {
	buckets := map[uint64][]*groupBucket{}

	groupIdx := make([]int, len(q.GroupBy))
	for i, name := range q.GroupBy {
		idx, ok := schema.IndexOf(name)
		if !ok {
			return nil, fmt.Errorf("query: unknown group by column %q", name)
		}
		groupIdx[i] = idx
	}

	it := matches.Iterator()
	for it.HasNext() {
		r := int(it.Next())

		key := make([]shardframe.Value, len(groupIdx))
		for i, idx := range groupIdx {
			v, err := td.Store(idx).Get(r)
			if err != nil {
				return nil, err
			}
			key[i] = v
		}

		bucket := findOrCreateBucket(buckets, key)

		for _, agg := range q.Aggregates {
			if err := accumulate(td, schema, bucket.accum, agg, r); err != nil {
				return nil, err
			}
		}
	}

	var out []*PartialRow
	for _, chain := range buckets {
		for _, b := range chain {
			out = append(out, finalizeBucketToPartial(q, b))
		}
	}

	if len(q.GroupBy) == 0 && len(out) == 0 {
		// COUNT with no GROUP BY over zero matching rows still produces
		// one row (count 0); other aggregates stay null/zero because no
		// row ever touched their accumulators.
		out = []*PartialRow{finalizeBucketToPartial(q, &groupBucket{accum: newAccumulator()})}
	}
	return out, nil
}

func hashKey(key []shardframe.Value) uint64 {
	h := xxhash.New()
	for _, v := range key {
		if v.Null {
			_, _ = h.Write([]byte{0})
			continue
		}
		_, _ = h.Write([]byte{1})
		fmt.Fprintf(h, "%d|%v", v.Type, v.Raw())
	}
	return h.Sum64()
}

func findOrCreateBucket(buckets map[uint64][]*groupBucket, key []shardframe.Value) *groupBucket {
	h := hashKey(key)
	for _, b := range buckets[h] {
		if sameKey(b.key, key) {
			return b
		}
	}
	b := &groupBucket{key: key, accum: newAccumulator()}
	buckets[h] = append(buckets[h], b)
	return b
}

func sameKey(a, b []shardframe.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Null != b[i].Null {
			return false
		}
		if a[i].Null {
			continue
		}
		if a[i].Type != b[i].Type || a[i].Raw() != b[i].Raw() {
			return false
		}
	}
	return true
}

func accumulate(td *shardframe.TableData, schema *shardframe.Schema, acc *accumulator, agg Aggregate, row int) error {
	if agg.Func == Count {
		acc.counts[agg.Alias]++
		return nil
	}

	idx, ok := schema.IndexOf(agg.Column)
	if !ok {
		return fmt.Errorf("query: unknown aggregate column %q", agg.Column)
	}
	v, err := td.Store(idx).Get(row)
	if err != nil {
		return err
	}
	if v.Null {
		return nil
	}

	switch agg.Func {
	case Sum:
		wide := v.Type == shardframe.Float || v.Type == shardframe.Double
		isInt, seen := acc.sumInt[agg.Alias]
		switch {
		case !seen:
			acc.sumInt[agg.Alias] = !wide
			if wide {
				acc.sums[agg.Alias] = v.AsFloat64()
			} else {
				acc.sumI[agg.Alias] = v.AsInt64()
			}
		case isInt && wide:
			// a float touches a previously integer-only accumulator:
			// widen the running total once, then continue in float64.
			acc.sumInt[agg.Alias] = false
			acc.sums[agg.Alias] = float64(acc.sumI[agg.Alias]) + v.AsFloat64()
		case isInt:
			acc.sumI[agg.Alias] += v.AsInt64()
		default:
			acc.sums[agg.Alias] += v.AsFloat64()
		}
	case Min:
		cur, ok := acc.mins[agg.Alias]
		if !ok || v.Compare(cur) < 0 {
			acc.mins[agg.Alias] = v
		}
	case Max:
		cur, ok := acc.maxs[agg.Alias]
		if !ok || v.Compare(cur) > 0 {
			acc.maxs[agg.Alias] = v
		}
	case Avg:
		pair := acc.avgs[agg.Alias]
		pair.Sum += v.AsFloat64()
		pair.Count++
		acc.avgs[agg.Alias] = pair
	default:
		return fmt.Errorf("query: unsupported aggregate function %q", agg.Func)
	}
	return nil
}

func finalizeBucketToPartial(q *Query, b *groupBucket) *PartialRow {
	p := &PartialRow{
		GroupKey: b.key,
		Values:   map[string]shardframe.Value{},
		AvgPairs: map[string]AvgPair{},
	}

	for _, agg := range q.Aggregates {
		switch agg.Func {
		case Count:
			p.Values[agg.Alias] = shardframe.LongValue(b.accum.counts[agg.Alias])
		case Sum:
			if isInt, seen := b.accum.sumInt[agg.Alias]; seen && isInt {
				p.Values[agg.Alias] = shardframe.LongValue(b.accum.sumI[agg.Alias])
			} else if seen {
				p.Values[agg.Alias] = shardframe.DoubleValue(b.accum.sums[agg.Alias])
			} else {
				p.Values[agg.Alias] = shardframe.LongValue(0)
			}
		case Min:
			if v, ok := b.accum.mins[agg.Alias]; ok {
				p.Values[agg.Alias] = v
			} else {
				p.Values[agg.Alias] = shardframe.NullOf(shardframe.Double)
			}
		case Max:
			if v, ok := b.accum.maxs[agg.Alias]; ok {
				p.Values[agg.Alias] = v
			} else {
				p.Values[agg.Alias] = shardframe.NullOf(shardframe.Double)
			}
		case Avg:
			p.AvgPairs[agg.Alias] = b.accum.avgs[agg.Alias]
		}
	}
	return p
}
