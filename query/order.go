package query

import (
	"sort"

	"github.com/shardframe/shardframe"
)

// Finalize combines every contributing Result (one per node that answered
// the query — just the local engine for a non-distributed query, or the
// local engine plus one per surviving peer for a distributed one), merges
// partial aggregates with Merge, resolves AVG pairs to scalars, strips
// every internal key, and applies the query's global ORDER BY and LIMIT.
//
// Merging, ordering, and limiting are deliberately kept as one code path
// so a single-node query and a distributed query apply identical
// ordering/limit semantics.
func Finalize(q *Query, results []*Result) ([]Row, error) {
	merged, err := Merge(q, results)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if merged.Aggregated {
		rows = make([]Row, 0, len(merged.Partials))
		for _, p := range merged.Partials {
			rows = append(rows, finalizePartialRow(q, p))
		}
	} else {
		rows = merged.Rows
	}

	orderRows(rows, q.OrderBy)

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func finalizePartialRow(q *Query, p *PartialRow) Row {
	row := make(Row, len(q.GroupBy)+len(q.Aggregates))
	for i, name := range q.GroupBy {
		row[name] = p.GroupKey[i]
	}
	for _, agg := range q.Aggregates {
		if agg.Func == Avg {
			pair := p.AvgPairs[agg.Alias]
			if pair.Count == 0 {
				row[agg.Alias] = shardframe.NullOf(shardframe.Double)
			} else {
				row[agg.Alias] = shardframe.DoubleValue(pair.Sum / float64(pair.Count))
			}
			continue
		}
		row[agg.Alias] = p.Values[agg.Alias]
	}
	return row
}

func orderRows(rows []Row, orderBy []OrderKey) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range orderBy {
			a, aok := rows[i][key.Column]
			b, bok := rows[j][key.Column]
			if !aok || !bok {
				continue
			}
			c := a.Compare(b)
			if c == 0 {
				continue
			}
			if key.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}
