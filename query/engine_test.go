package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardframe/shardframe"
)

func newFareSchema(t *testing.T) *shardframe.Schema {
	t.Helper()
	schema, err := shardframe.NewSchema([]shardframe.Column{
		{Name: "city", Type: shardframe.String, Indexed: true},
		{Name: "fare", Type: shardframe.Double, Nullable: true},
	})
	require.NoError(t, err)
	return schema
}

func newFareTable(t *testing.T, rows [][]shardframe.Value) (*shardframe.TableData, *shardframe.Schema) {
	t.Helper()
	schema := newFareSchema(t)
	td := shardframe.NewTableData(schema, nil, nil)
	require.NoError(t, td.AppendRows(rows))
	return td, schema
}

func TestExecuteProjectsMatchingRows(t *testing.T) {
	td, schema := newFareTable(t, [][]shardframe.Value{
		{shardframe.StringValue("nyc"), shardframe.DoubleValue(10)},
		{shardframe.StringValue("sf"), shardframe.DoubleValue(20)},
		{shardframe.StringValue("nyc"), shardframe.DoubleValue(30)},
	})

	q := &Query{
		Table:      "rides",
		Columns:    []string{"fare"},
		Conditions: []Condition{{Column: "city", Op: OpEq, Value: shardframe.StringValue("nyc")}},
	}
	result, err := Execute(td, schema, q)
	require.NoError(t, err)
	require.False(t, result.Aggregated)
	require.Len(t, result.Rows, 2)
}

func TestExecuteCountWithNoMatchesStillReturnsOneRow(t *testing.T) {
	td, schema := newFareTable(t, nil)

	q := &Query{
		Table:      "rides",
		Aggregates: []Aggregate{{Alias: "n", Func: Count}},
	}
	result, err := Execute(td, schema, q)
	require.NoError(t, err)
	require.True(t, result.Aggregated)
	require.Len(t, result.Partials, 1)

	rows, err := Finalize(q, []*Result{result})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(0), rows[0]["n"].Int64())
}

func TestExecuteGroupByWithAvg(t *testing.T) {
	td, schema := newFareTable(t, [][]shardframe.Value{
		{shardframe.StringValue("nyc"), shardframe.DoubleValue(10)},
		{shardframe.StringValue("nyc"), shardframe.DoubleValue(30)},
		{shardframe.StringValue("sf"), shardframe.DoubleValue(100)},
	})

	q := &Query{
		Table:      "rides",
		GroupBy:    []string{"city"},
		Aggregates: []Aggregate{{Alias: "avg_fare", Func: Avg, Column: "fare"}},
		OrderBy:    []OrderKey{{Column: "city", Ascending: true}},
	}
	result, err := Execute(td, schema, q)
	require.NoError(t, err)

	rows, err := Finalize(q, []*Result{result})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "nyc", rows[0]["city"].String2())
	require.Equal(t, 20.0, rows[0]["avg_fare"].Float64())
	require.Equal(t, "sf", rows[1]["city"].String2())
	require.Equal(t, 100.0, rows[1]["avg_fare"].Float64())
}

func TestExecuteLikeOperator(t *testing.T) {
	td, schema := newFareTable(t, [][]shardframe.Value{
		{shardframe.StringValue("new york"), shardframe.DoubleValue(10)},
		{shardframe.StringValue("sf"), shardframe.DoubleValue(20)},
	})

	q := &Query{
		Table:      "rides",
		Conditions: []Condition{{Column: "city", Op: OpLike, Value: shardframe.StringValue("new%")}},
	}
	result, err := Execute(td, schema, q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}

func TestExecuteIsNullOperator(t *testing.T) {
	td, schema := newFareTable(t, [][]shardframe.Value{
		{shardframe.StringValue("nyc"), shardframe.NullOf(shardframe.Double)},
		{shardframe.StringValue("sf"), shardframe.DoubleValue(20)},
	})

	q := &Query{
		Table:      "rides",
		Conditions: []Condition{{Column: "fare", Op: OpIsNull}},
	}
	result, err := Execute(td, schema, q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "nyc", result.Rows[0]["city"].String2())
}
