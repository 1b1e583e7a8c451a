package wire

import "github.com/shardframe/shardframe"

// HeartbeatRequest is POST /peers/heartbeat's body: a periodic (id,
// address, port) announcement.
type HeartbeatRequest struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ReplicateRequest is POST /peers/replicate's body: a forwarded create or
// drop table request.
type ReplicateRequest struct {
	Op     string       `json:"op"` // "create" or "drop"
	Table  string       `json:"table"`
	Schema []ColumnSpec `json:"schema,omitempty"`
}

// ColumnSpec is the wire form of one schema column, shared between table
// creation and replication.
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Indexed  bool   `json:"indexed,omitempty"`
}

// ToSchema builds a shardframe.Schema from a column spec list.
func ToSchema(cols []ColumnSpec) (*shardframe.Schema, error) {
	columns := make([]shardframe.Column, len(cols))
	for i, c := range cols {
		dt, err := shardframe.ParseDataType(c.Type)
		if err != nil {
			return nil, err
		}
		columns[i] = shardframe.Column{Name: c.Name, Type: dt, Nullable: c.Nullable, Indexed: c.Indexed}
	}
	return shardframe.NewSchema(columns)
}

// FromSchema converts a shardframe.Schema to its wire form.
func FromSchema(s *shardframe.Schema) []ColumnSpec {
	out := make([]ColumnSpec, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = ColumnSpec{Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable, Indexed: c.Indexed}
	}
	return out
}

// LoadRangeRequest is POST /tables/{name}/load-range's body: a per-peer
// "load range" request.
type LoadRangeRequest struct {
	FileKey   string `json:"filePath"`
	StartRow  int64  `json:"startRow"`
	RowCount  int64  `json:"rowCount"`
	BatchSize int    `json:"batchSize"`
}

// LoadRangeResponse reports one peer's ingest of its assigned row range.
type LoadRangeResponse struct {
	LoadedRows int64 `json:"loadedRows"`
	ElapsedMs  int64 `json:"elapsedMs"`
}
