package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/peer"
)

func drainCall(t *testing.T, calls chan string) string {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a peer call")
		return ""
	}
}

func TestReplicationHubBroadcastsCreateToEveryPeer(t *testing.T) {
	defer goleak.VerifyNone(t)

	cat := shardframe.NewCatalog(nil, nil)
	dir := peer.NewDirectory("self", 15*time.Second, nil, nil)
	dir.Announce("peer-1", "10.0.0.1", 9000, time.Now())
	dir.Announce("peer-2", "10.0.0.2", 9000, time.Now())

	client := newFakePeerClient()
	hub := &ReplicationHub{Catalog: cat, Directory: dir, Client: client}
	hub.Install()

	schema, err := shardframe.NewSchema([]shardframe.Column{{Name: "id", Type: shardframe.Long}})
	require.NoError(t, err)
	require.NoError(t, cat.CreateTable("rides", schema, false))

	seen := map[string]bool{drainCall(t, client.calls): true, drainCall(t, client.calls): true}
	require.True(t, seen["replicate:peer-1:create:rides"])
	require.True(t, seen["replicate:peer-2:create:rides"])
}

func TestReplicationHubForwardedCreateDoesNotBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t)

	cat := shardframe.NewCatalog(nil, nil)
	dir := peer.NewDirectory("self", 15*time.Second, nil, nil)
	dir.Announce("peer-1", "10.0.0.1", 9000, time.Now())

	client := newFakePeerClient()
	hub := &ReplicationHub{Catalog: cat, Directory: dir, Client: client}
	hub.Install()

	schema, err := shardframe.NewSchema([]shardframe.Column{{Name: "id", Type: shardframe.Long}})
	require.NoError(t, err)
	require.NoError(t, cat.CreateTable("rides", schema, true))

	select {
	case c := <-client.calls:
		t.Fatalf("forwarded create must not trigger replication, got call %q", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReplicationHubCatchesUpNewPeerWithExistingTables(t *testing.T) {
	defer goleak.VerifyNone(t)

	cat := shardframe.NewCatalog(nil, nil)
	dir := peer.NewDirectory("self", 15*time.Second, nil, nil)

	client := newFakePeerClient()
	hub := &ReplicationHub{Catalog: cat, Directory: dir, Client: client}
	hub.Install()

	schema, err := shardframe.NewSchema([]shardframe.Column{{Name: "id", Type: shardframe.Long}})
	require.NoError(t, err)
	require.NoError(t, cat.CreateTable("rides", schema, false)) // no peers exist yet, so the broadcast reaches no one

	dir.Announce("peer-1", "10.0.0.1", 9000, time.Now())
	require.Equal(t, "replicate:peer-1:create:rides", drainCall(t, client.calls))
}
