package cluster

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/ingest"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// shard is one peer's assigned, contiguous row range.
type shard struct {
	peer  peer.Info
	start int64
	count int64
}

// planShards divides total rows round-robin across n peers: peer k gets
// floor(total/n) + (1 if k < total mod n else 0) rows, starting at
// k*floor(total/n) + min(k, total mod n).
func planShards(peers []peer.Info, total int64) []shard {
	n := int64(len(peers))
	if n == 0 {
		return nil
	}
	base := total / n
	rem := total % n

	shards := make([]shard, len(peers))
	offset := int64(0)
	for k, p := range peers {
		count := base
		if int64(k) < rem {
			count++
		}
		shards[k] = shard{peer: p, start: offset, count: count}
		offset += count
	}
	return shards
}

// DistributionCoordinator shards an uploaded Parquet file round-robin
// across the known peer set, propagating the file to any peer that
// doesn't already have it, then runs ingest locally and via "load range"
// calls to every other peer.
type DistributionCoordinator struct {
	Catalog   *shardframe.Catalog
	Directory *peer.Directory
	Client    PeerClient
	Cache     *FileCache
	SelfHost  string
	SelfPort  int
	// WorkerLimit bounds concurrent peer file-propagation and load-range
	// calls (defaults to 10).
	WorkerLimit int
	Logger      log.Logger
}

// Distribute runs the full protocol against a local Parquet file at path,
// returning each peer's id mapped to the row count it ingested. A peer
// that fails to ingest its slice is reported with zero rows and does not
// fail the overall call.
func (d *DistributionCoordinator) Distribute(ctx context.Context, table, fileKey, path string, opts ingest.LoadOptions) (map[string]int64, time.Duration, error) {
	start := time.Now()
	logger := d.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	schema, err := d.Catalog.GetSchema(table)
	if err != nil {
		return nil, 0, err
	}

	peers := d.Directory.PeersIncludingSelf(d.SelfHost, d.SelfPort)

	if err := d.ensureAvailability(ctx, peers, fileKey, path, logger); err != nil {
		return nil, 0, err
	}

	total, err := d.totalRows(path, opts)
	if err != nil {
		return nil, 0, err
	}

	shards := planShards(peers, total)

	results := make(map[string]int64, len(shards))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workerLimit())

	for _, s := range shards {
		s := s
		g.Go(func() error {
			rows := d.loadShard(gctx, table, schema, fileKey, path, s, opts, logger)
			mu.Lock()
			results[s.peer.ID] = rows
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-shard errors are already isolated inside loadShard

	return results, time.Since(start), nil
}

func (d *DistributionCoordinator) workerLimit() int {
	if d.WorkerLimit <= 0 {
		return 10
	}
	return d.WorkerLimit
}

// ensureAvailability asks every peer other than self whether it already
// has fileKey and pushes the bytes if not.
func (d *DistributionCoordinator) ensureAvailability(ctx context.Context, peers []peer.Info, fileKey, path string, logger log.Logger) error {
	selfID := d.Directory.SelfID()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workerLimit())

	for _, p := range peers {
		if p.ID == selfID {
			continue
		}
		p := p
		g.Go(func() error {
			has, err := d.Client.HasFile(gctx, p, fileKey)
			if err != nil {
				level.Warn(logger).Log("msg", "failed to probe peer for file, will attempt push", "peer", p.ID, "err", err)
			}
			if has {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("cluster: failed to open %s for propagation: %w", path, err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			if err := d.Client.PushFile(gctx, p, fileKey, f, info.Size()); err != nil {
				level.Warn(logger).Log("msg", "failed to push file to peer", "peer", p.ID, "err", err)
				return nil // peer errors are isolated, not fatal to the whole distribution
			}
			return nil
		})
	}
	return g.Wait()
}

// totalRows returns the row count to shard across peers: RowLimit
// short-circuits a full count; otherwise the Parquet footer's own
// row-group metadata gives the total without a full record scan.
func (d *DistributionCoordinator) totalRows(path string, opts ingest.LoadOptions) (int64, error) {
	if opts.RowLimit > 0 {
		return opts.RowLimit, nil
	}
	return countParquetRows(path)
}

func (d *DistributionCoordinator) loadShard(ctx context.Context, table string, schema *shardframe.Schema, fileKey, path string, s shard, opts ingest.LoadOptions, logger log.Logger) int64 {
	shardOpts := opts
	shardOpts.Filter = ingest.Filter{Kind: ingest.FilterRowRange, Start: s.start, Count: s.count}
	shardOpts.RowLimit = -1
	shardOpts.SkipRows = 0

	if s.peer.ID == d.Directory.SelfID() {
		td, err := d.Catalog.GetData(table)
		if err != nil {
			level.Error(logger).Log("msg", "self shard failed: no table data", "table", table, "err", err)
			return 0
		}
		f, err := os.Open(path)
		if err != nil {
			level.Error(logger).Log("msg", "self shard failed to open file", "err", err)
			return 0
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			level.Error(logger).Log("msg", "self shard failed to stat file", "err", err)
			return 0
		}
		report, err := ingest.LoadWithLogger(ctx, td, schema, f, info.Size(), shardOpts, logger)
		if err != nil {
			level.Error(logger).Log("msg", "self shard ingest failed", "err", err)
			return 0
		}
		return report.RowsProcessed
	}

	resp, err := d.Client.LoadRange(ctx, s.peer, table, wire.LoadRangeRequest{
		FileKey:   fileKey,
		StartRow:  s.start,
		RowCount:  s.count,
		BatchSize: opts.BatchSize,
	})
	if err != nil {
		level.Warn(logger).Log("msg", "peer failed to load its shard", "peer", s.peer.ID, "err", err)
		return 0
	}
	return resp.LoadedRows
}
