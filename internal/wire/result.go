package wire

import (
	"fmt"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/query"
)

// Row is the wire form of query.Row.
type Row map[string]Value

// AvgPair mirrors query.AvgPair: the running sum/count that must be
// combined component-wise across peers before it is ever divided.
type AvgPair struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

// PartialRow is the wire form of query.PartialRow.
type PartialRow struct {
	GroupKey []Value            `json:"groupKey,omitempty"`
	Values   map[string]Value   `json:"values,omitempty"`
	AvgPairs map[string]AvgPair `json:"avgPairs,omitempty"`
}

// Result is what a node returns from POST /query when forwardedQuery was
// set: either plain rows or, when the query aggregates, this node's
// unfinalized partial aggregate rows. Sending partials rather than finalized scalars is what lets the
// coordinator compute a correct distributed AVG instead of averaging
// per-peer averages.
type Result struct {
	Aggregated bool         `json:"aggregated"`
	Rows       []Row        `json:"rows,omitempty"`
	Partials   []PartialRow `json:"partials,omitempty"`
}

// FromResult converts a local engine result to its wire form.
func FromResult(r *query.Result) Result {
	out := Result{Aggregated: r.Aggregated}
	for _, row := range r.Rows {
		wr := make(Row, len(row))
		for k, v := range row {
			wr[k] = FromDomain(v)
		}
		out.Rows = append(out.Rows, wr)
	}
	for _, p := range r.Partials {
		wp := PartialRow{Values: map[string]Value{}, AvgPairs: map[string]AvgPair{}}
		for _, v := range p.GroupKey {
			wp.GroupKey = append(wp.GroupKey, FromDomain(v))
		}
		for alias, v := range p.Values {
			wp.Values[alias] = FromDomain(v)
		}
		for alias, pair := range p.AvgPairs {
			wp.AvgPairs[alias] = AvgPair{Sum: pair.Sum, Count: pair.Count}
		}
		out.Partials = append(out.Partials, wp)
	}
	return out
}

// ToResult converts a wire result back to the in-memory representation
// consumed by query.Merge/query.Finalize.
func (r Result) ToResult() (*query.Result, error) {
	out := &query.Result{Aggregated: r.Aggregated}

	for _, row := range r.Rows {
		dr := make(query.Row, len(row))
		for k, v := range row {
			dv, err := v.ToDomain()
			if err != nil {
				return nil, fmt.Errorf("row column %q: %w", k, err)
			}
			dr[k] = dv
		}
		out.Rows = append(out.Rows, dr)
	}

	for _, p := range r.Partials {
		dp := &query.PartialRow{
			Values:   map[string]shardframe.Value{},
			AvgPairs: map[string]query.AvgPair{},
		}
		for _, v := range p.GroupKey {
			dv, err := v.ToDomain()
			if err != nil {
				return nil, fmt.Errorf("group key: %w", err)
			}
			dp.GroupKey = append(dp.GroupKey, dv)
		}
		for alias, v := range p.Values {
			dv, err := v.ToDomain()
			if err != nil {
				return nil, fmt.Errorf("aggregate %q: %w", alias, err)
			}
			dp.Values[alias] = dv
		}
		for alias, pair := range p.AvgPairs {
			dp.AvgPairs[alias] = query.AvgPair{Sum: pair.Sum, Count: pair.Count}
		}
		out.Partials = append(out.Partials, dp)
	}

	return out, nil
}
