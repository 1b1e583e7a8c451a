package cluster

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
	"github.com/shardframe/shardframe/query"
)

// QueryCoordinator runs a query against this node's local engine and,
// unless the query is already forwarded, fans the same query (tagged
// forwarded) out to every known peer, merging the surviving partial
// results.
type QueryCoordinator struct {
	Catalog     *shardframe.Catalog
	Directory   *peer.Directory
	Client      PeerClient
	WorkerLimit int
	Logger      log.Logger
}

func (qc *QueryCoordinator) logger() log.Logger {
	if qc.Logger == nil {
		return log.NewNopLogger()
	}
	return qc.Logger
}

func (qc *QueryCoordinator) workerLimit() int {
	if qc.WorkerLimit <= 0 {
		return 10
	}
	return qc.WorkerLimit
}

// RunLocal executes q against this node's own table data only. Used both
// for a forwarded query (the caller returns this result as-is) and as the
// local contribution to a distributed fan-out.
func (qc *QueryCoordinator) RunLocal(q *query.Query) (*query.Result, error) {
	td, err := qc.Catalog.GetData(q.Table)
	if err != nil {
		return nil, err
	}
	schema, err := qc.Catalog.GetSchema(q.Table)
	if err != nil {
		return nil, err
	}
	return query.Execute(td, schema, q)
}

// RunDistributed runs the non-forwarded path: the local result plus one
// forwarded query per peer, merged and finalized (ORDER BY, LIMIT, AVG
// resolution) into the rows returned to the client.
// A peer error is logged and its contribution dropped; the coordinator
// still returns a result built from the local engine and any surviving
// peers.
func (qc *QueryCoordinator) RunDistributed(ctx context.Context, q *query.Query) ([]query.Row, error) {
	logger := qc.logger()
	peers := qc.Directory.Peers()

	results := make([]*query.Result, 0, 1+len(peers))
	var mu sync.Mutex

	local, err := qc.RunLocal(q)
	if err != nil {
		return nil, err
	}
	results = append(results, local)

	forwarded := *q
	forwarded.Forwarded = true
	wireQuery := toWireQuery(&forwarded)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(qc.workerLimit())

	for _, p := range peers {
		p := p
		g.Go(func() error {
			resp, err := qc.Client.ForwardQuery(gctx, p, wireQuery)
			if err != nil {
				level.Warn(logger).Log("msg", "peer query failed, dropping its contribution", "peer", p.ID, "err", err)
				return nil
			}
			r, err := resp.ToResult()
			if err != nil {
				level.Warn(logger).Log("msg", "peer returned an undecodable result, dropping its contribution", "peer", p.ID, "err", err)
				return nil
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-peer errors are already isolated above

	return query.Finalize(q, results)
}

// toWireQuery builds the minimal wire.Query this package needs to forward
// a query plan to a peer, reusing the same JSON shape the client-facing
// HTTP handler parses.
func toWireQuery(q *query.Query) wire.Query {
	wq := wire.Query{
		TableName:      q.Table,
		Columns:        q.Columns,
		GroupBy:        q.GroupBy,
		Limit:          q.Limit,
		ForwardedQuery: q.Forwarded,
	}
	for _, c := range q.Conditions {
		wq.Conditions = append(wq.Conditions, wire.Condition{
			ColumnName: c.Column,
			Operator:   string(c.Op),
			Value:      wire.FromDomain(c.Value),
		})
	}
	if len(q.Aggregates) > 0 {
		wq.Aggregates = make(map[string]string, len(q.Aggregates))
		for _, a := range q.Aggregates {
			col := a.Column
			if col == "" {
				col = "*"
			}
			wq.Aggregates[a.Alias] = string(a.Func) + "(" + col + ")"
		}
	}
	return wq
}
