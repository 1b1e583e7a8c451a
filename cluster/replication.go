package cluster

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// replicationTimeout bounds each individual replicate call. Replication
// is best-effort and asynchronous; a slow or dead peer must never block
// the catalog mutation that triggered it.
const replicationTimeout = 5 * time.Second

// ReplicationHub wires schema replication: catalog mutations fan out a
// forwarded create/drop to every known peer, and a newly discovered peer
// gets caught up with every table this node currently owns.
type ReplicationHub struct {
	Catalog   *shardframe.Catalog
	Directory *peer.Directory
	Client    PeerClient
	Logger    log.Logger
}

func (h *ReplicationHub) logger() log.Logger {
	if h.Logger == nil {
		return log.NewNopLogger()
	}
	return h.Logger
}

// Install registers this hub's callbacks with the catalog and directory.
// Call once during node startup, before accepting client traffic.
func (h *ReplicationHub) Install() {
	h.Catalog.SetReplicationHooks(h.onCreate, h.onDrop)
	h.Directory.SetOnNewPeer(h.onNewPeer)
}

func (h *ReplicationHub) onCreate(name string, schema *shardframe.Schema) {
	req := wire.ReplicateRequest{Op: "create", Table: name, Schema: wire.FromSchema(schema)}
	h.broadcast(req)
}

func (h *ReplicationHub) onDrop(name string) {
	h.broadcast(wire.ReplicateRequest{Op: "drop", Table: name})
}

func (h *ReplicationHub) broadcast(req wire.ReplicateRequest) {
	for _, p := range h.Directory.Peers() {
		p := p
		go h.send(p, req)
	}
}

func (h *ReplicationHub) onNewPeer(p peer.Info) {
	for _, name := range h.Catalog.List() {
		schema, err := h.Catalog.GetSchema(name)
		if err != nil {
			continue
		}
		go h.send(p, wire.ReplicateRequest{Op: "create", Table: name, Schema: wire.FromSchema(schema)})
	}
}

func (h *ReplicationHub) send(p peer.Info, req wire.ReplicateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), replicationTimeout)
	defer cancel()
	if err := h.Client.Replicate(ctx, p, req); err != nil {
		level.Warn(h.logger()).Log("msg", "schema replication to peer failed, best-effort only", "peer", p.ID, "op", req.Op, "table", req.Table, "err", err)
	}
}
