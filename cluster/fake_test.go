package cluster

import (
	"context"
	"io"
	"sync"

	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// fakePeerClient is a PeerClient stand-in exercised by this package's
// tests, with each call recorded for assertions and a channel that fires
// once per call so tests can wait for fire-and-forget goroutines (e.g.
// ReplicationHub.broadcast) without a sleep.
type fakePeerClient struct {
	mu sync.Mutex

	heartbeats  []peer.Info
	replicates  []wire.ReplicateRequest
	hasFile     map[string]bool
	pushed      []string
	loadRangeFn func(target peer.Info, table string, req wire.LoadRangeRequest) (wire.LoadRangeResponse, error)
	forwardFn   func(target peer.Info, q wire.Query) (wire.Result, error)

	errHeartbeat error
	errReplicate error
	errHasFile   error
	errPushFile  error

	calls chan string
}

func newFakePeerClient() *fakePeerClient {
	return &fakePeerClient{
		hasFile: map[string]bool{},
		calls:   make(chan string, 64),
	}
}

func (f *fakePeerClient) Heartbeat(_ context.Context, target peer.Info, _ wire.HeartbeatRequest) error {
	f.mu.Lock()
	f.heartbeats = append(f.heartbeats, target)
	f.mu.Unlock()
	f.calls <- "heartbeat:" + target.ID
	return f.errHeartbeat
}

func (f *fakePeerClient) Replicate(_ context.Context, target peer.Info, req wire.ReplicateRequest) error {
	f.mu.Lock()
	f.replicates = append(f.replicates, req)
	f.mu.Unlock()
	f.calls <- "replicate:" + target.ID + ":" + req.Op + ":" + req.Table
	return f.errReplicate
}

func (f *fakePeerClient) HasFile(_ context.Context, target peer.Info, key string) (bool, error) {
	f.mu.Lock()
	has := f.hasFile[target.ID+"/"+key]
	f.mu.Unlock()
	f.calls <- "hasfile:" + target.ID
	return has, f.errHasFile
}

func (f *fakePeerClient) PushFile(_ context.Context, target peer.Info, key string, body io.Reader, _ int64) error {
	_, _ = io.Copy(io.Discard, body)
	f.mu.Lock()
	f.pushed = append(f.pushed, target.ID+"/"+key)
	f.mu.Unlock()
	f.calls <- "pushfile:" + target.ID
	return f.errPushFile
}

func (f *fakePeerClient) LoadRange(_ context.Context, target peer.Info, table string, req wire.LoadRangeRequest) (wire.LoadRangeResponse, error) {
	f.calls <- "loadrange:" + target.ID
	if f.loadRangeFn != nil {
		return f.loadRangeFn(target, table, req)
	}
	return wire.LoadRangeResponse{LoadedRows: req.RowCount}, nil
}

func (f *fakePeerClient) ForwardQuery(_ context.Context, target peer.Info, q wire.Query) (wire.Result, error) {
	f.calls <- "forwardquery:" + target.ID
	if f.forwardFn != nil {
		return f.forwardFn(target, q)
	}
	return wire.Result{}, nil
}
