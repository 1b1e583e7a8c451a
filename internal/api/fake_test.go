package api

import (
	"context"
	"io"

	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// noopPeerClient is a cluster.PeerClient that answers every call with a
// success with no contribution, enough to exercise the HTTP binding
// without a real peer listening.
type noopPeerClient struct{}

func (noopPeerClient) Heartbeat(context.Context, peer.Info, wire.HeartbeatRequest) error { return nil }
func (noopPeerClient) Replicate(context.Context, peer.Info, wire.ReplicateRequest) error  { return nil }
func (noopPeerClient) HasFile(context.Context, peer.Info, string) (bool, error)           { return false, nil }
func (noopPeerClient) PushFile(context.Context, peer.Info, string, io.Reader, int64) error {
	return nil
}
func (noopPeerClient) LoadRange(context.Context, peer.Info, string, wire.LoadRangeRequest) (wire.LoadRangeResponse, error) {
	return wire.LoadRangeResponse{}, nil
}
func (noopPeerClient) ForwardQuery(context.Context, peer.Info, wire.Query) (wire.Result, error) {
	return wire.Result{}, nil
}
