package cluster

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// HeartbeatSender is the sending half of peer membership: every Interval
// (5s by default) it sweeps the directory for entries past the offline
// threshold, then announces this node to every statically configured
// peer and every peer still in the directory.
type HeartbeatSender struct {
	SelfID      string
	SelfHost    string
	SelfPort    int
	Directory   *peer.Directory
	Client      PeerClient
	Interval    time.Duration
	StaticPeers []peer.Info
	WorkerLimit int
	Logger      log.Logger
}

func (h *HeartbeatSender) logger() log.Logger {
	if h.Logger == nil {
		return log.NewNopLogger()
	}
	return h.Logger
}

func (h *HeartbeatSender) interval() time.Duration {
	if h.Interval <= 0 {
		return 5 * time.Second
	}
	return h.Interval
}

func (h *HeartbeatSender) workerLimit() int {
	if h.WorkerLimit <= 0 {
		return 10
	}
	return h.WorkerLimit
}

// Run blocks, sending heartbeats on a fixed interval, until ctx is
// canceled. Callers run it in its own goroutine and cancel ctx to stop it
// as part of graceful shutdown.
func (h *HeartbeatSender) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *HeartbeatSender) tick(ctx context.Context) {
	h.Directory.Sweep(time.Now())

	targets := h.targets()
	req := wire.HeartbeatRequest{ID: h.SelfID, Host: h.SelfHost, Port: h.SelfPort}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workerLimit())

	for _, p := range targets {
		p := p
		g.Go(func() error {
			if err := h.Client.Heartbeat(gctx, p, req); err != nil {
				level.Debug(h.logger()).Log("msg", "heartbeat to peer failed, will retry next interval", "peer", p.ID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// targets is the union of statically configured peers and peers currently
// known to the directory, deduplicated by ID.
func (h *HeartbeatSender) targets() []peer.Info {
	seen := make(map[string]bool)
	var out []peer.Info
	for _, p := range h.Directory.Peers() {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	for _, p := range h.StaticPeers {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}
