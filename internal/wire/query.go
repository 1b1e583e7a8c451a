package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shardframe/shardframe/query"
)

// Condition is the wire form of query.Condition.
type Condition struct {
	ColumnName string `json:"columnName"`
	Operator   string `json:"operator"`
	Value      Value  `json:"value"`
}

// OrderTerm is one multi-key ORDER BY term.
type OrderTerm struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

// Query is the JSON shape accepted by POST /query: every field is
// optional except tableName. orderBy accepts either a bare column name
// string (paired with the top-level orderByAscending) or an array of
// {column,ascending} terms for a multi-key sort.
type Query struct {
	TableName        string            `json:"tableName"`
	Columns          []string          `json:"columns,omitempty"`
	Conditions       []Condition       `json:"conditions,omitempty"`
	GroupBy          []string          `json:"groupBy,omitempty"`
	Aggregates       map[string]string `json:"aggregates,omitempty"`
	OrderBy          json.RawMessage   `json:"orderBy,omitempty"`
	OrderByAscending bool              `json:"orderByAscending,omitempty"`
	Limit            int               `json:"limit,omitempty"`
	Distributed      bool              `json:"distributed,omitempty"`
	ForwardedQuery   bool              `json:"forwardedQuery,omitempty"`
}

// ToDomain builds an in-memory query.Query plan from the wire request.
// Aggregates are specified as "FUNC(column)", e.g. "SUM(fare)" or
// "COUNT(*)"; the column is empty (and ignored) for COUNT(*).
func (q Query) ToDomain() (*query.Query, error) {
	if q.TableName == "" {
		return nil, fmt.Errorf("tableName is required")
	}

	plan := &query.Query{
		Table:     q.TableName,
		Columns:   q.Columns,
		GroupBy:   q.GroupBy,
		Limit:     q.Limit,
		Forwarded: q.ForwardedQuery,
	}

	for _, c := range q.Conditions {
		v, err := c.Value.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("condition on %q: %w", c.ColumnName, err)
		}
		plan.Conditions = append(plan.Conditions, query.Condition{
			Column: c.ColumnName,
			Op:     query.Operator(c.Operator),
			Value:  v,
		})
	}

	for alias, spec := range q.Aggregates {
		agg, err := parseAggregateSpec(alias, spec)
		if err != nil {
			return nil, err
		}
		plan.Aggregates = append(plan.Aggregates, agg)
	}

	orderBy, err := q.parseOrderBy()
	if err != nil {
		return nil, err
	}
	plan.OrderBy = orderBy

	return plan, nil
}

func (q Query) parseOrderBy() ([]query.OrderKey, error) {
	if len(q.OrderBy) == 0 {
		return nil, nil
	}

	var column string
	if err := json.Unmarshal(q.OrderBy, &column); err == nil {
		return []query.OrderKey{{Column: column, Ascending: q.OrderByAscending}}, nil
	}

	var terms []OrderTerm
	if err := json.Unmarshal(q.OrderBy, &terms); err != nil {
		return nil, fmt.Errorf("orderBy: expected a column name or an array of terms: %w", err)
	}
	keys := make([]query.OrderKey, len(terms))
	for i, t := range terms {
		keys[i] = query.OrderKey{Column: t.Column, Ascending: t.Ascending}
	}
	return keys, nil
}

// parseAggregateSpec parses "FUNC(column)" / "FUNC(*)" into a query.Aggregate.
func parseAggregateSpec(alias, spec string) (query.Aggregate, error) {
	spec = strings.TrimSpace(spec)
	open := strings.IndexByte(spec, '(')
	if open < 0 || !strings.HasSuffix(spec, ")") {
		return query.Aggregate{}, fmt.Errorf("aggregate %q: expected FUNC(column), got %q", alias, spec)
	}
	fn := strings.ToUpper(strings.TrimSpace(spec[:open]))
	column := strings.TrimSpace(spec[open+1 : len(spec)-1])
	if column == "*" {
		column = ""
	}

	var f query.AggFunc
	switch fn {
	case "COUNT":
		f = query.Count
	case "SUM":
		f = query.Sum
	case "MIN":
		f = query.Min
	case "MAX":
		f = query.Max
	case "AVG":
		f = query.Avg
	default:
		return query.Aggregate{}, fmt.Errorf("aggregate %q: unknown function %q", alias, fn)
	}
	if f != query.Count && column == "" {
		return query.Aggregate{}, fmt.Errorf("aggregate %q: %s requires a target column", alias, fn)
	}
	return query.Aggregate{Alias: alias, Func: f, Column: column}, nil
}
