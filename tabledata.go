package shardframe

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TableData holds one table's column stores behind a single reader/writer
// lock. All column stores share row_count; row i of the logical table is
// the tuple (store[0][i], store[1][i], ...). Appends are atomic at row
// granularity: AppendRows either commits every buffered row or leaves
// row_count, and every column store, exactly where it found them.
type TableData struct {
	schema *Schema
	stores []*ColumnStore

	mu       sync.RWMutex
	rowCount atomic.Int64

	logger  log.Logger
	metrics *tableDataMetrics
}

type tableDataMetrics struct {
	rowsAppended prometheus.Counter
	appendBatch  prometheus.Histogram
}

// NewTableData allocates an empty TableData for schema.
func NewTableData(schema *Schema, reg prometheus.Registerer, logger log.Logger) *TableData {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	stores := make([]*ColumnStore, len(schema.Columns))
	for i, c := range schema.Columns {
		stores[i] = NewColumnStore(c)
	}

	return &TableData{
		schema: schema,
		stores: stores,
		logger: logger,
		metrics: &tableDataMetrics{
			rowsAppended: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "shardframe_table_rows_appended_total",
				Help: "Number of rows appended to this table.",
			}),
			appendBatch: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
				Name:    "shardframe_table_append_batch_size",
				Help:    "Size of row batches appended in a single writer-lock critical section.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			}),
		},
	}
}

func (t *TableData) Schema() *Schema { return t.schema }

// RowCount is a lock-free read of the current row count. It is always a
// value that was true at some committed point in the table's history
// (never a torn/partial read), which is what lets a concurrent reader
// observe a monotonically non-decreasing count while an ingest is running.
func (t *TableData) RowCount() int { return int(t.rowCount.Load()) }

// RLock/RUnlock expose the table's reader lock to the query engine, which
// owns the full scan window and must release the lock on every exit path.
func (t *TableData) RLock()   { t.mu.RLock() }
func (t *TableData) RUnlock() { t.mu.RUnlock() }

// Store returns the i-th column store. Callers must hold RLock or the
// writer lock (via AppendRows) while using it.
func (t *TableData) Store(i int) *ColumnStore { return t.stores[i] }

// AppendRow appends a single row. See AppendRows for the atomicity
// contract.
func (t *TableData) AppendRow(values []Value) error {
	return t.AppendRows([][]Value{values})
}

// AppendRows takes the writer lock once and appends every row in rows.
// Every row is validated against the schema before any column store is
// mutated, so a validation failure leaves the table completely unchanged.
// If a column append fails unexpectedly after validation (an Internal
// invariant violation), every column store is truncated back to its
// pre-call length and row_count is left unchanged.
func (t *TableData) AppendRows(rows [][]Value) error {
	if len(rows) == 0 {
		return nil
	}

	for r, row := range rows {
		if len(row) != len(t.stores) {
			return fmt.Errorf("shardframe: row %d has %d values, table has %d columns", r, len(row), len(t.stores))
		}
		for i, v := range row {
			col := t.schema.Columns[i]
			if v.Null && !col.Nullable {
				return fmt.Errorf("shardframe: row %d: column %q is not nullable", r, col.Name)
			}
			if !v.Null && v.Type != col.Type {
				return fmt.Errorf("shardframe: row %d: column %q expects %s, got %s", r, col.Name, col.Type, v.Type)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	base := t.stores[0].Len()

	for _, row := range rows {
		for i, v := range row {
			if err := t.stores[i].Append(v); err != nil {
				level.Error(t.logger).Log("msg", "internal invariant violated during append, rolling back batch", "err", err)
				for j := range t.stores {
					t.stores[j].truncate(base)
				}
				return fmt.Errorf("shardframe: internal: %w", err)
			}
		}
	}

	t.rowCount.Store(int64(t.stores[0].Len()))
	t.metrics.rowsAppended.Add(float64(len(rows)))
	t.metrics.appendBatch.Observe(float64(len(rows)))
	return nil
}
