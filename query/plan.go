// Package query implements the local query engine and the
// partial-aggregate merge algebra used by the distributed query
// coordinator. Both halves share one Query plan type and one
// row/partial-row representation so that a local, single-node query and a
// distributed one produce identical results for identical inputs.
package query

import "github.com/shardframe/shardframe"

// Operator is a condition's comparison operator.
type Operator string

const (
	OpEq       Operator = "="
	OpNeq      Operator = "!="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLike     Operator = "LIKE"
	OpIsNull   Operator = "IS_NULL"
	OpNotNull  Operator = "IS_NOT_NULL"
)

// Condition is one conjunct of a query's WHERE clause.
type Condition struct {
	Column   string
	Op       Operator
	Value    shardframe.Value
}

// AggFunc is a supported aggregate function.
type AggFunc string

const (
	Count AggFunc = "COUNT"
	Sum   AggFunc = "SUM"
	Min   AggFunc = "MIN"
	Max   AggFunc = "MAX"
	Avg   AggFunc = "AVG"
)

// Aggregate names one requested aggregate: alias -> (function, column).
// COUNT's Column may be empty, meaning COUNT(*).
type Aggregate struct {
	Alias  string
	Func   AggFunc
	Column string
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Column    string
	Ascending bool
}

// Query is the in-memory query plan (not a wire form; HTTP DTOs translate
// into this type at the API boundary).
type Query struct {
	Table      string
	Columns    []string // nil or ["*"] means every column
	Conditions []Condition
	GroupBy    []string
	Aggregates []Aggregate
	OrderBy    []OrderKey
	Limit      int // <= 0 means unbounded

	// Forwarded marks a query a coordinator has already fanned out to a
	// peer. A node that receives a forwarded query runs only the local
	// engine and never fans out again, which is what breaks the
	// coordinator/peer cycle.
	Forwarded bool
}

// HasAggregation reports whether this query groups or aggregates, i.e.
// whether its result is a set of partial rows rather than plain rows.
func (q *Query) HasAggregation() bool {
	return len(q.GroupBy) > 0 || len(q.Aggregates) > 0
}

// ProjectsAll reports whether Columns selects every column.
func (q *Query) ProjectsAll() bool {
	return len(q.Columns) == 0 || (len(q.Columns) == 1 && q.Columns[0] == "*")
}
