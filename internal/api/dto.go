package api

import (
	"sort"
	"time"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
	"github.com/shardframe/shardframe/query"
)

// createTableRequest is POST /tables's body.
type createTableRequest struct {
	Name    string            `json:"name"`
	Columns []wire.ColumnSpec `json:"columns"`
}

// createTableResponse is POST /tables's 201 body.
type createTableResponse struct {
	Name        string `json:"name"`
	ColumnCount int    `json:"columnCount"`
}

// tableListEntry is one element of GET /tables's response array.
type tableListEntry struct {
	Name    string            `json:"name"`
	Columns []wire.ColumnSpec `json:"columns"`
}

// columnStats is one column's entry in GET /tables/{name}/stats.
type columnStats struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Nullable  bool   `json:"nullable"`
	NullCount int    `json:"nullCount"`
	NonNull   int    `json:"nonNullCount"`
}

// tableStatsResponse is GET /tables/{name}/stats's body.
type tableStatsResponse struct {
	TableName string        `json:"tableName"`
	RowCount  int           `json:"rowCount"`
	Columns   []columnStats `json:"columns"`
}

// loadParquetResponse is POST /tables/{name}/load's body.
type loadParquetResponse struct {
	DistributionStats map[string]int64 `json:"distributionStats"`
	TotalRowsLoaded   int64            `json:"totalRowsLoaded"`
	ElapsedMs         int64            `json:"elapsedMs"`
}

// queryResponse is POST /query's body: a {columns, data} DTO that avoids
// repeating every column name on every row.
type queryResponse struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// clusterHealthResponse is GET /health's body.
type clusterHealthResponse struct {
	Status string           `json:"status"`
	Nodes  []clusterNodeDTO `json:"nodes"`
}

type clusterNodeDTO struct {
	ID       string    `json:"id"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

func toClusterHealthResponse(selfID, selfHost string, selfPort int, peers []peer.Info) clusterHealthResponse {
	nodes := make([]clusterNodeDTO, 0, len(peers)+1)
	nodes = append(nodes, clusterNodeDTO{ID: selfID, Host: selfHost, Port: selfPort, Status: string(peer.Online), LastSeen: time.Now()})
	for _, p := range peers {
		nodes = append(nodes, clusterNodeDTO{ID: p.ID, Host: p.Host, Port: p.Port, Status: string(p.Status), LastSeen: p.LastSeen})
	}
	return clusterHealthResponse{Status: "ok", Nodes: nodes}
}

// toQueryResponse flattens rows into the columns/data DTO. The column
// order is the GROUP BY columns followed by the aggregate aliases when
// the query aggregates, else the query's requested projection when
// given; otherwise it is derived from the first row's keys, sorted for
// determinism.
func toQueryResponse(q *query.Query, rows []query.Row) queryResponse {
	columns := queryResultColumns(q, rows)

	data := make([][]any, len(rows))
	for i, row := range rows {
		values := make([]any, len(columns))
		for j, col := range columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			values[j] = plainValue(v)
		}
		data[i] = values
	}
	return queryResponse{Columns: columns, Data: data}
}

func queryResultColumns(q *query.Query, rows []query.Row) []string {
	if len(q.GroupBy) > 0 || len(q.Aggregates) > 0 {
		cols := append([]string{}, q.GroupBy...)
		for _, agg := range q.Aggregates {
			cols = append(cols, agg.Alias)
		}
		return cols
	}
	if !q.ProjectsAll() {
		return q.Columns
	}
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// plainValue unwraps a shardframe.Value into a plain JSON-native value.
func plainValue(v shardframe.Value) any {
	if v.Null {
		return nil
	}
	switch v.Type {
	case shardframe.Integer:
		return v.Int32()
	case shardframe.Long, shardframe.Date, shardframe.Timestamp:
		return v.Int64()
	case shardframe.Float:
		return v.Float32()
	case shardframe.Double:
		return v.Float64()
	case shardframe.Boolean:
		return v.Bool()
	case shardframe.String:
		return v.String2()
	default:
		return nil
	}
}
