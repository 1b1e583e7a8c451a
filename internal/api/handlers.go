package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/cluster"
	"github.com/shardframe/shardframe/errs"
	"github.com/shardframe/shardframe/ingest"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
	"github.com/shardframe/shardframe/query"
)

// Server holds every dependency the HTTP binding needs to serve its
// endpoint table. It has no state of its own beyond what is injected:
// the catalog, peer directory, and coordinators own all mutable state.
type Server struct {
	Catalog      *shardframe.Catalog
	Directory    *peer.Directory
	QueryCoord   *cluster.QueryCoordinator
	Distribution *cluster.DistributionCoordinator
	Cache        *cluster.FileCache

	SelfID   string
	SelfHost string
	SelfPort int

	DefaultBatchSize int
	Logger           log.Logger
}

func (s *Server) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

func (s *Server) defaultBatchSize() int {
	if s.DefaultBatchSize <= 0 {
		return 1000
	}
	return s.DefaultBatchSize
}

// createTable handles POST /tables.
func (s *Server) createTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, s.logger(), errs.Validation("malformed request body"))
		return
	}
	if req.Name == "" {
		fail(w, s.logger(), errs.Validation("name is required"))
		return
	}
	schema, err := wire.ToSchema(req.Columns)
	if err != nil {
		fail(w, s.logger(), errs.Validationf("invalid columns: %v", err))
		return
	}
	if err := s.Catalog.CreateTable(req.Name, schema, false); err != nil {
		fail(w, s.logger(), err)
		return
	}
	created(w, createTableResponse{Name: req.Name, ColumnCount: len(schema.Columns)})
}

// dropTable handles DELETE /tables/{name}.
func (s *Server) dropTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Catalog.DropTable(name, false); err != nil {
		fail(w, s.logger(), err)
		return
	}
	noContent(w)
}

// listTables handles GET /tables.
func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	names := s.Catalog.List()
	out := make([]tableListEntry, 0, len(names))
	for _, name := range names {
		schema, err := s.Catalog.GetSchema(name)
		if err != nil {
			continue
		}
		out = append(out, tableListEntry{Name: name, Columns: wire.FromSchema(schema)})
	}
	ok(w, out)
}

// tableStats handles GET /tables/{name}/stats.
func (s *Server) tableStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	schema, err := s.Catalog.GetSchema(name)
	if err != nil {
		fail(w, s.logger(), err)
		return
	}
	td, err := s.Catalog.GetData(name)
	if err != nil {
		fail(w, s.logger(), err)
		return
	}

	td.RLock()
	rowCount := td.RowCount()
	cols := make([]columnStats, len(schema.Columns))
	for i, c := range schema.Columns {
		store := td.Store(i)
		nullCount := store.NullCount()
		cols[i] = columnStats{
			Name:      c.Name,
			Type:      c.Type.String(),
			Nullable:  c.Nullable,
			NullCount: nullCount,
			NonNull:   store.Len() - nullCount,
		}
	}
	td.RUnlock()

	ok(w, tableStatsResponse{TableName: name, RowCount: rowCount, Columns: cols})
}

// loadParquet handles POST /tables/{name}/load: a multipart upload that
// triggers the full distribution protocol.
func (s *Server) loadParquet(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "name")
	if _, err := s.Catalog.GetSchema(table); err != nil {
		fail(w, s.logger(), err)
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		fail(w, s.logger(), errs.Validationf("malformed multipart request: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, s.logger(), errs.Validation("file is required"))
		return
	}
	defer file.Close()

	opts := ingest.LoadOptions{BatchSize: s.defaultBatchSize()}
	if v := r.FormValue("rowLimit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fail(w, s.logger(), errs.Validation("rowLimit must be an integer"))
			return
		}
		opts.RowLimit = n
	}
	if v := r.FormValue("batchSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(w, s.logger(), errs.Validation("batchSize must be an integer"))
			return
		}
		opts.BatchSize = n
	}

	fileKey := header.Filename
	path, _, err := s.Cache.Store(fileKey, file)
	if err != nil {
		fail(w, s.logger(), errs.Ingest("failed to stage uploaded file", err, 0))
		return
	}

	stats, elapsed, err := s.Distribution.Distribute(r.Context(), table, fileKey, path, opts)
	if err != nil {
		fail(w, s.logger(), err)
		return
	}

	var total int64
	for _, n := range stats {
		total += n
	}
	ok(w, loadParquetResponse{DistributionStats: stats, TotalRowsLoaded: total, ElapsedMs: elapsed.Milliseconds()})
}

// loadRange handles POST /tables/{name}/load-range: the per-peer range
// load, issued by a remote Distribution Coordinator or directly by an
// operator for testing.
func (s *Server) loadRange(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "name")
	schema, err := s.Catalog.GetSchema(table)
	if err != nil {
		fail(w, s.logger(), err)
		return
	}
	td, err := s.Catalog.GetData(table)
	if err != nil {
		fail(w, s.logger(), err)
		return
	}

	var req wire.LoadRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, s.logger(), errs.Validation("malformed request body"))
		return
	}

	f, size, err := s.Cache.Open(req.FileKey)
	if err != nil {
		fail(w, s.logger(), errs.NotFoundf("no cached file for key %q", req.FileKey))
		return
	}
	defer f.Close()

	opts := ingest.LoadOptions{
		BatchSize: req.BatchSize,
		RowLimit:  -1,
		Filter:    ingest.Filter{Kind: ingest.FilterRowRange, Start: req.StartRow, Count: req.RowCount},
	}

	start := time.Now()
	report, err := ingest.LoadWithLogger(r.Context(), td, schema, f, size, opts, s.logger())
	if err != nil {
		fail(w, s.logger(), err)
		return
	}

	ok(w, wire.LoadRangeResponse{LoadedRows: report.RowsProcessed, ElapsedMs: time.Since(start).Milliseconds()})
}

// runQuery handles POST /query with a three-way branch: a forwarded
// query runs only the local engine; a distributed, non-forwarded query
// fans out to every peer; a plain, non-distributed query still goes
// through Finalize so AVG pairs resolve and ORDER BY/LIMIT apply.
func (s *Server) runQuery(w http.ResponseWriter, r *http.Request) {
	var wq wire.Query
	if err := json.NewDecoder(r.Body).Decode(&wq); err != nil {
		fail(w, s.logger(), errs.Validation("malformed request body"))
		return
	}
	q, err := wq.ToDomain()
	if err != nil {
		fail(w, s.logger(), errs.Validationf("invalid query: %v", err))
		return
	}

	if q.Forwarded {
		result, err := s.QueryCoord.RunLocal(q)
		if err != nil {
			fail(w, s.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromResult(result))
		return
	}

	var rows []query.Row
	if wq.Distributed {
		rows, err = s.QueryCoord.RunDistributed(r.Context(), q)
	} else {
		var local *query.Result
		local, err = s.QueryCoord.RunLocal(q)
		if err == nil {
			rows, err = query.Finalize(q, []*query.Result{local})
		}
	}
	if err != nil {
		fail(w, s.logger(), err)
		return
	}

	ok(w, toQueryResponse(q, rows))
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ok(w, toClusterHealthResponse(s.SelfID, s.SelfHost, s.SelfPort, s.Directory.Peers()))
}

// receiveHeartbeat handles POST /peers/heartbeat.
func (s *Server) receiveHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req wire.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, s.logger(), errs.Validation("malformed request body"))
		return
	}
	s.Directory.Announce(req.ID, req.Host, req.Port, time.Now())
	noContent(w)
}

// receiveReplicate handles POST /peers/replicate: a forwarded table
// create or drop. Forwarded mutations are idempotent and never trigger
// another round of replication.
func (s *Server) receiveReplicate(w http.ResponseWriter, r *http.Request) {
	var req wire.ReplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, s.logger(), errs.Validation("malformed request body"))
		return
	}

	var err error
	switch req.Op {
	case "create":
		var schema *shardframe.Schema
		schema, err = wire.ToSchema(req.Schema)
		if err == nil {
			err = s.Catalog.CreateTable(req.Table, schema, true)
		}
	case "drop":
		err = s.Catalog.DropTable(req.Table, true)
	default:
		err = errs.Validationf("unknown replication op %q", req.Op)
	}

	if err != nil {
		level.Warn(s.logger()).Log("msg", "replication request failed", "op", req.Op, "table", req.Table, "err", err)
	}
	noContent(w)
}

// receiveFile handles POST /peers/files/{key}: the propagated-file push.
func (s *Server) receiveFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	defer r.Body.Close()
	if _, _, err := s.Cache.Store(key, io.LimitReader(r.Body, 1<<40)); err != nil {
		fail(w, s.logger(), errs.Ingest("failed to stage propagated file", err, 0))
		return
	}
	noContent(w)
}

// probeFile handles HEAD /peers/files/{key}.
func (s *Server) probeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.Cache.Has(key) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}
