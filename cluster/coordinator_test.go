package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
	"github.com/shardframe/shardframe/query"
)

func newRidesCatalog(t *testing.T) *shardframe.Catalog {
	t.Helper()
	cat := shardframe.NewCatalog(nil, nil)
	schema, err := shardframe.NewSchema([]shardframe.Column{
		{Name: "city", Type: shardframe.String, Indexed: true},
		{Name: "fare", Type: shardframe.Double, Nullable: true},
	})
	require.NoError(t, err)
	require.NoError(t, cat.CreateTable("rides", schema, false))

	td, err := cat.GetData("rides")
	require.NoError(t, err)
	require.NoError(t, td.AppendRows([][]shardframe.Value{
		{shardframe.StringValue("nyc"), shardframe.DoubleValue(10)},
		{shardframe.StringValue("sf"), shardframe.DoubleValue(20)},
	}))
	return cat
}

func TestQueryCoordinatorRunLocalReturnsPlainRows(t *testing.T) {
	defer goleak.VerifyNone(t)
	cat := newRidesCatalog(t)
	qc := &QueryCoordinator{Catalog: cat, Directory: peer.NewDirectory("self", 15*time.Second, nil, nil), Client: newFakePeerClient()}

	result, err := qc.RunLocal(&query.Query{Table: "rides"})
	require.NoError(t, err)
	require.False(t, result.Aggregated)
	require.Len(t, result.Rows, 2)
}

func TestQueryCoordinatorRunDistributedMergesPeerContribution(t *testing.T) {
	defer goleak.VerifyNone(t)
	cat := newRidesCatalog(t)
	dir := peer.NewDirectory("self", 15*time.Second, nil, nil)
	dir.Announce("peer-1", "10.0.0.1", 9000, time.Now())

	client := newFakePeerClient()
	client.forwardFn = func(target peer.Info, q wire.Query) (wire.Result, error) {
		return wire.Result{Rows: []wire.Row{{
			"city": wire.FromDomain(shardframe.StringValue("la")),
			"fare": wire.FromDomain(shardframe.DoubleValue(99)),
		}}}, nil
	}

	qc := &QueryCoordinator{Catalog: cat, Directory: dir, Client: client}
	rows, err := qc.RunDistributed(context.Background(), &query.Query{Table: "rides"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestQueryCoordinatorRunDistributedDropsFailingPeer(t *testing.T) {
	defer goleak.VerifyNone(t)
	cat := newRidesCatalog(t)
	dir := peer.NewDirectory("self", 15*time.Second, nil, nil)
	dir.Announce("peer-1", "10.0.0.1", 9000, time.Now())

	client := newFakePeerClient()
	client.forwardFn = func(target peer.Info, q wire.Query) (wire.Result, error) {
		return wire.Result{}, context.DeadlineExceeded
	}

	qc := &QueryCoordinator{Catalog: cat, Directory: dir, Client: client}
	rows, err := qc.RunDistributed(context.Background(), &query.Query{Table: "rides"})
	require.NoError(t, err)
	require.Len(t, rows, 2, "a failing peer's contribution is dropped, not fatal")
}
