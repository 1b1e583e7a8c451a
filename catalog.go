package shardframe

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shardframe/shardframe/errs"
)

type catalogEntry struct {
	schema *Schema
	data   *TableData
}

// Catalog is the unique-key mapping table_name -> (Schema, TableData). The
// Catalog exclusively owns every TableData and every ColumnStore;
// everything else holds only read borrows through TableData's reader
// lock.
//
// Mutations are serialized per table name: creating or dropping table A
// never blocks a concurrent create/drop of table B.
type Catalog struct {
	mu      sync.RWMutex
	tables  map[string]*catalogEntry
	locks   map[string]*sync.Mutex
	reg     prometheus.Registerer
	logger  log.Logger
	metrics *catalogMetrics

	// onCreate/onDrop are set by the cluster-replication layer. They are
	// invoked asynchronously, and only for non-forwarded mutations, so a
	// replication request received from a peer never re-triggers
	// replication (this is what breaks the peer-to-peer fan-out cycle).
	onCreate func(name string, schema *Schema)
	onDrop   func(name string)
}

type catalogMetrics struct {
	tablesCreated prometheus.Counter
	tablesDropped prometheus.Counter
}

// NewCatalog constructs an empty Catalog.
func NewCatalog(reg prometheus.Registerer, logger log.Logger) *Catalog {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Catalog{
		tables: make(map[string]*catalogEntry),
		locks:  make(map[string]*sync.Mutex),
		reg:    reg,
		logger: logger,
		metrics: &catalogMetrics{
			tablesCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "shardframe_catalog_tables_created_total",
				Help: "Number of create_table operations accepted.",
			}),
			tablesDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "shardframe_catalog_tables_dropped_total",
				Help: "Number of drop_table operations accepted.",
			}),
		},
	}
}

// SetReplicationHooks wires the asynchronous schema-replication callbacks
// fired on table create/drop. Must be called once during node startup,
// before any client traffic is accepted.
func (c *Catalog) SetReplicationHooks(onCreate func(name string, schema *Schema), onDrop func(name string)) {
	c.onCreate = onCreate
	c.onDrop = onDrop
}

func (c *Catalog) nameLock(name string) *sync.Mutex {
	c.mu.Lock()
	l, ok := c.locks[name]
	if !ok {
		l = &sync.Mutex{}
		c.locks[name] = l
	}
	c.mu.Unlock()
	return l
}

// CreateTable inserts a new table. A non-forwarded create on an existing
// name is a ConflictError. A forwarded create is idempotent: if the table
// already exists its local state is left as-is (the replication protocol
// guarantees the schema that produced it matches).
func (c *Catalog) CreateTable(name string, schema *Schema, forwarded bool) error {
	lock := c.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	c.mu.RLock()
	_, exists := c.tables[name]
	c.mu.RUnlock()

	if exists {
		if forwarded {
			return nil
		}
		return errs.Conflictf("table %q already exists", name)
	}

	reg := prometheus.WrapRegistererWith(prometheus.Labels{"table": name}, c.reg)
	data := NewTableData(schema, reg, log.With(c.logger, "table", name))

	c.mu.Lock()
	c.tables[name] = &catalogEntry{schema: schema, data: data}
	c.mu.Unlock()

	c.metrics.tablesCreated.Inc()
	level.Info(c.logger).Log("msg", "table created", "table", name, "forwarded", forwarded)

	if !forwarded && c.onCreate != nil {
		go c.onCreate(name, schema)
	}
	return nil
}

// DropTable removes a table and destroys its TableData. A non-forwarded
// drop of an unknown table is a NotFoundError. A forwarded drop of an
// unknown table is a no-op.
func (c *Catalog) DropTable(name string, forwarded bool) error {
	lock := c.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	_, exists := c.tables[name]
	if exists {
		delete(c.tables, name)
	}
	c.mu.Unlock()

	if !exists {
		if forwarded {
			return nil
		}
		return errs.NotFoundf("table %q does not exist", name)
	}

	c.metrics.tablesDropped.Inc()
	level.Info(c.logger).Log("msg", "table dropped", "table", name, "forwarded", forwarded)

	if !forwarded && c.onDrop != nil {
		go c.onDrop(name)
	}
	return nil
}

// List returns every known table name, unordered.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// GetSchema returns the schema for name.
func (c *Catalog) GetSchema(name string) (*Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tables[name]
	if !ok {
		return nil, errs.NotFoundf("table %q does not exist", name)
	}
	return e.schema, nil
}

// GetData returns the TableData for name.
func (c *Catalog) GetData(name string) (*TableData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tables[name]
	if !ok {
		return nil, errs.NotFoundf("table %q does not exist", name)
	}
	return e.data, nil
}
