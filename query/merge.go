package query

import (
	"fmt"

	"github.com/JohnCGriffin/overflow"

	"github.com/shardframe/shardframe"
)

// Merge combines the partial-aggregate algebra across every surviving
// result (the local engine's own contribution plus zero or more peers'
// forwarded results; a peer that errored or timed out is simply absent
// from results before Merge is ever called).
//
// Merge needs q to know, per alias, which aggregate function produced a
// partial value: COUNT and SUM both sum, MIN/MAX compare, and AVG is
// combined component-wise as a {sum,count} pair and never resolved to a
// scalar here. That resolution, plus ORDER BY/LIMIT, stays in Finalize.
func Merge(q *Query, results []*Result) (*Result, error) {
	if len(results) == 0 {
		return &Result{}, nil
	}
	if len(results) == 1 {
		return results[0], nil
	}

	aggregated := results[0].Aggregated
	for _, r := range results[1:] {
		if r.Aggregated != aggregated {
			return nil, fmt.Errorf("query: cannot merge aggregate and non-aggregate results")
		}
	}

	if !aggregated {
		var rows []Row
		for _, r := range results {
			rows = append(rows, r.Rows...)
		}
		return &Result{Rows: rows}, nil
	}

	funcs := make(map[string]AggFunc, len(q.Aggregates))
	for _, agg := range q.Aggregates {
		funcs[agg.Alias] = agg.Func
	}

	buckets := map[uint64][]*groupBucketMerge{}
	for _, r := range results {
		for _, p := range r.Partials {
			if err := mergePartial(buckets, funcs, p); err != nil {
				return nil, err
			}
		}
	}

	var out []*PartialRow
	for _, chain := range buckets {
		for _, b := range chain {
			out = append(out, &PartialRow{GroupKey: b.key, Values: b.values, AvgPairs: b.avgPairs})
		}
	}
	if len(out) == 0 && len(q.GroupBy) == 0 {
		// No peer produced even the synthetic zero-row accumulator
		// (every result list was empty) — nothing to merge.
		return &Result{Aggregated: true}, nil
	}
	return &Result{Aggregated: true, Partials: out}, nil
}

type groupBucketMerge struct {
	key      []shardframe.Value
	values   map[string]shardframe.Value
	avgPairs map[string]AvgPair
}

func mergePartial(buckets map[uint64][]*groupBucketMerge, funcs map[string]AggFunc, p *PartialRow) error {
	h := hashKey(p.GroupKey)
	var b *groupBucketMerge
	for _, cand := range buckets[h] {
		if sameKey(cand.key, p.GroupKey) {
			b = cand
			break
		}
	}
	if b == nil {
		b = &groupBucketMerge{key: p.GroupKey, values: map[string]shardframe.Value{}, avgPairs: map[string]AvgPair{}}
		buckets[h] = append(buckets[h], b)
	}

	for alias, v := range p.Values {
		cur, ok := b.values[alias]
		if !ok {
			b.values[alias] = v
			continue
		}
		merged, err := mergeScalar(funcs[alias], cur, v)
		if err != nil {
			return err
		}
		b.values[alias] = merged
	}
	for alias, pair := range p.AvgPairs {
		cur := b.avgPairs[alias]
		cur.Sum += pair.Sum
		cur.Count += pair.Count
		b.avgPairs[alias] = cur
	}
	return nil
}

// mergeScalar combines two partial values of the same alias according to
// the aggregate function that produced them. COUNT sums as LONG; integer
// SUM sums with an overflow-checked add that widens to DOUBLE rather than
// wrapping; float SUM sums as DOUBLE; MIN/MAX compare and keep the
// extreme, skipping whichever side is null (a peer whose matching rows
// for a group were all null, or that matched no rows for a query without
// GROUP BY, reports a null extreme).
func mergeScalar(fn AggFunc, a, b shardframe.Value) (shardframe.Value, error) {
	switch fn {
	case Count:
		return shardframe.LongValue(a.Int64() + b.Int64()), nil
	case Sum:
		return mergeSum(a, b)
	case Min:
		return mergeExtreme(a, b, true), nil
	case Max:
		return mergeExtreme(a, b, false), nil
	default:
		return shardframe.NullOf(shardframe.Double), fmt.Errorf("query: cannot merge scalar for aggregate function %s", fn)
	}
}

func mergeSum(a, b shardframe.Value) (shardframe.Value, error) {
	if a.Type == shardframe.Double || b.Type == shardframe.Double {
		return shardframe.DoubleValue(a.AsFloat64() + b.AsFloat64()), nil
	}
	sum, ok := overflow.Add64(a.Int64(), b.Int64())
	if !ok {
		return shardframe.DoubleValue(a.AsFloat64() + b.AsFloat64()), nil
	}
	return shardframe.LongValue(sum), nil
}

func mergeExtreme(a, b shardframe.Value, wantMin bool) shardframe.Value {
	if a.Null {
		return b
	}
	if b.Null {
		return a
	}
	c := a.Compare(b)
	if wantMin {
		if c <= 0 {
			return a
		}
		return b
	}
	if c >= 0 {
		return a
	}
	return b
}
