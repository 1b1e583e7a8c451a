package cluster

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/shardframe/shardframe/internal/wire"
	"github.com/shardframe/shardframe/peer"
)

// MulticastAnnouncer periodically writes this node's heartbeat to a UDP
// multicast group, an alternative to the static peer list for discovery
// on networks where multicast reaches every node.
type MulticastAnnouncer struct {
	Group    string
	Port     int
	SelfID   string
	SelfHost string
	SelfPort int
	Logger   log.Logger

	conn *net.UDPConn
}

func (m *MulticastAnnouncer) logger() log.Logger {
	if m.Logger == nil {
		return log.NewNopLogger()
	}
	return m.Logger
}

// Run dials the multicast group and announces this node on every interval
// until ctx is canceled. A dial failure is logged and Run returns; the
// caller's static peer list and direct heartbeats still function without
// multicast.
func (m *MulticastAnnouncer) Run(ctx context.Context, interval time.Duration) {
	addr := &net.UDPAddr{IP: net.ParseIP(m.Group), Port: m.Port}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		level.Warn(m.logger()).Log("msg", "multicast announcer failed to dial group, discovery falls back to static peers", "group", m.Group, "port", m.Port, "err", err)
		return
	}
	m.conn = conn
	defer conn.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.announce()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *MulticastAnnouncer) announce() {
	payload, err := json.Marshal(wire.HeartbeatRequest{ID: m.SelfID, Host: m.SelfHost, Port: m.SelfPort})
	if err != nil {
		return
	}
	if _, err := m.conn.Write(payload); err != nil {
		level.Debug(m.logger()).Log("msg", "multicast announce failed, will retry next interval", "err", err)
	}
}

// MulticastListener listens on a UDP multicast group for heartbeats from
// other nodes and announces them to a Directory, mirroring what the HTTP
// heartbeat receiver does for direct and static-list discovery.
type MulticastListener struct {
	Group     string
	Port      int
	Directory *peer.Directory
	Logger    log.Logger
}

func (m *MulticastListener) logger() log.Logger {
	if m.Logger == nil {
		return log.NewNopLogger()
	}
	return m.Logger
}

// Run listens until ctx is canceled or the socket fails to open. A bind
// failure is logged and Run returns without blocking startup; multicast
// is one of several discovery transports and its absence is non-fatal.
func (m *MulticastListener) Run(ctx context.Context) {
	addr := &net.UDPAddr{IP: net.ParseIP(m.Group), Port: m.Port}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		level.Warn(m.logger()).Log("msg", "multicast listener failed to bind group, discovery falls back to static peers", "group", m.Group, "port", m.Port, "err", err)
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			level.Debug(m.logger()).Log("msg", "multicast read failed, will retry", "err", err)
			continue
		}

		var req wire.HeartbeatRequest
		if err := json.Unmarshal(buf[:n], &req); err != nil {
			continue
		}
		m.Directory.Announce(req.ID, req.Host, req.Port, time.Now())
	}
}
