package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"

	"github.com/shardframe/shardframe"
)

// TestScenarios runs scenario files under testdata/ against the local
// engine. Each file builds one table (via a "schema" command naming
// "name:TYPE[=indexed][=nullable]" columns), loads rows (via "insert",
// one JSON array per line), and runs queries (via "query", a small
// argument syntax: columns=, eq=(column,value), isnull=, groupby=,
// agg=(alias,FUNC,col), orderby=(column,asc|desc), limit=), comparing
// rendered rows against the expected text.
func TestScenarios(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		var td *shardframe.TableData
		var schema *shardframe.Schema

		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "schema":
				cols := parseSchemaLine(t, d.CmdArgs)
				s, err := shardframe.NewSchema(cols)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				schema = s
				td = shardframe.NewTableData(schema, nil, nil)
				return ""

			case "insert":
				rows, err := parseInsertRows(schema, d.Input)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				if err := td.AppendRows(rows); err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				return ""

			case "query":
				q, err := parseQueryArgs(t, d.CmdArgs)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				result, err := Execute(td, schema, q)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				rows, err := Finalize(q, []*Result{result})
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				return renderRows(q, rows)

			default:
				t.Fatalf("unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}

func parseSchemaLine(t *testing.T, args []datadriven.CmdArg) []shardframe.Column {
	cols := make([]shardframe.Column, 0, len(args))
	for _, a := range args {
		parts := strings.Split(a.Key, ":")
		if len(parts) != 2 {
			t.Fatalf("expected name:TYPE, got %q", a.Key)
		}
		dt, err := shardframe.ParseDataType(parts[1])
		if err != nil {
			t.Fatal(err)
		}
		col := shardframe.Column{Name: parts[0], Type: dt}
		for _, v := range a.Vals {
			switch v {
			case "indexed":
				col.Indexed = true
			case "nullable":
				col.Nullable = true
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// parseQueryArgs builds a Query from a datadriven command line such as:
//
//	query columns=fare eq=(city,nyc) groupby=city agg=(avg_fare,AVG,fare) orderby=(city,asc) limit=10
//
// table is fixed to "rides" since these scenarios exercise a single table.
func parseQueryArgs(t *testing.T, args []datadriven.CmdArg) (*Query, error) {
	t.Helper()
	q := &Query{Table: "rides"}

	for _, a := range args {
		switch a.Key {
		case "columns":
			q.Columns = a.Vals

		case "eq":
			if len(a.Vals) != 2 {
				return nil, fmt.Errorf("eq expects column,value, got %v", a.Vals)
			}
			q.Conditions = append(q.Conditions, Condition{Column: a.Vals[0], Op: OpEq, Value: shardframe.StringValue(a.Vals[1])})

		case "isnull":
			q.Conditions = append(q.Conditions, Condition{Column: a.Vals[0], Op: OpIsNull})

		case "groupby":
			q.GroupBy = a.Vals

		case "agg":
			if len(a.Vals) != 3 {
				return nil, fmt.Errorf("agg expects alias,FUNC,column, got %v", a.Vals)
			}
			fn, err := parseAggFunc(a.Vals[1])
			if err != nil {
				return nil, err
			}
			q.Aggregates = append(q.Aggregates, Aggregate{Alias: a.Vals[0], Func: fn, Column: a.Vals[2]})

		case "orderby":
			if len(a.Vals) != 2 {
				return nil, fmt.Errorf("orderby expects column,asc|desc, got %v", a.Vals)
			}
			q.OrderBy = append(q.OrderBy, OrderKey{Column: a.Vals[0], Ascending: a.Vals[1] == "asc"})

		case "limit":
			n, err := strconv.Atoi(a.Vals[0])
			if err != nil {
				return nil, err
			}
			q.Limit = n

		default:
			return nil, fmt.Errorf("unknown query arg %q", a.Key)
		}
	}
	return q, nil
}

func parseAggFunc(s string) (AggFunc, error) {
	switch s {
	case "COUNT":
		return Count, nil
	case "SUM":
		return Sum, nil
	case "AVG":
		return Avg, nil
	case "MIN":
		return Min, nil
	case "MAX":
		return Max, nil
	default:
		return "", fmt.Errorf("unknown aggregate function %q", s)
	}
}

func parseInsertRows(schema *shardframe.Schema, input string) ([][]shardframe.Value, error) {
	var rows [][]shardframe.Value
	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		if line == "" {
			continue
		}
		var raw []any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, err
		}
		if len(raw) != len(schema.Columns) {
			return nil, fmt.Errorf("row has %d values, schema has %d columns", len(raw), len(schema.Columns))
		}
		row := make([]shardframe.Value, len(raw))
		for i, col := range schema.Columns {
			row[i] = rawToValue(col.Type, raw[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rawToValue(dt shardframe.DataType, raw any) shardframe.Value {
	if raw == nil {
		return shardframe.NullOf(dt)
	}
	switch dt {
	case shardframe.Integer:
		return shardframe.IntValue(int32(raw.(float64)))
	case shardframe.Long, shardframe.Date, shardframe.Timestamp:
		return shardframe.LongValue(int64(raw.(float64)))
	case shardframe.Float:
		return shardframe.FloatValue(float32(raw.(float64)))
	case shardframe.Double:
		return shardframe.DoubleValue(raw.(float64))
	case shardframe.Boolean:
		return shardframe.BoolValue(raw.(bool))
	case shardframe.String:
		return shardframe.StringValue(raw.(string))
	default:
		return shardframe.NullOf(dt)
	}
}

func renderRows(q *Query, rows []Row) string {
	var cols []string
	if len(q.GroupBy) > 0 || len(q.Aggregates) > 0 {
		cols = append(cols, q.GroupBy...)
		for _, agg := range q.Aggregates {
			cols = append(cols, agg.Alias)
		}
	} else if !q.ProjectsAll() {
		cols = q.Columns
	} else if len(rows) > 0 {
		for k := range rows[0] {
			cols = append(cols, k)
		}
	}

	var b strings.Builder
	for _, row := range rows {
		parts := make([]string, len(cols))
		for i, c := range cols {
			v, ok := row[c]
			if !ok || v.Null {
				parts[i] = "NULL"
				continue
			}
			parts[i] = renderValue(v)
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func renderValue(v shardframe.Value) string {
	switch v.Type {
	case shardframe.String:
		return v.String2()
	case shardframe.Double:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case shardframe.Long, shardframe.Date, shardframe.Timestamp:
		return strconv.FormatInt(v.Int64(), 10)
	case shardframe.Integer:
		return strconv.Itoa(int(v.Int32()))
	case shardframe.Boolean:
		return strconv.FormatBool(v.Bool())
	default:
		return ""
	}
}
