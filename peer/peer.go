// Package peer tracks the cluster's peer directory: which nodes exist,
// their liveness, and the callbacks triggered when a new peer is first
// seen. It is transport-agnostic — heartbeat delivery (multicast, a
// static list, or direct HTTP) lives in package cluster.
package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status is a peer's last-announced lifecycle state.
type Status string

const (
	Online       Status = "online"
	Offline      Status = "offline"
	Starting     Status = "starting"
	ShuttingDown Status = "shutting_down"
	Maintenance  Status = "maintenance"
	Error        Status = "error"
)

// Info is a point-in-time snapshot of one peer. Identity is ID-equality;
// Host/Port may change across restarts of the same ID.
type Info struct {
	ID       string
	Host     string
	Port     int
	Status   Status
	LastSeen time.Time
}

// Directory is the concurrent-safe, process-wide table of known peers. A
// peer is removed once its LastSeen is older than offlineThreshold; the
// reference configuration uses 15 seconds against a 5-second heartbeat
// interval.
type Directory struct {
	mu sync.RWMutex

	selfID           string
	offlineThreshold time.Duration
	peers            map[string]*Info

	logger  log.Logger
	metrics *directoryMetrics

	// onNewPeer fires (asynchronously, outside the lock) the first time a
	// peer ID is announced. The cluster layer uses this to catch the new
	// peer's catalog up with every table this node currently owns.
	onNewPeer func(Info)
}

type directoryMetrics struct {
	knownPeers prometheus.GaugeFunc
	reaped     prometheus.Counter
}

// NewDirectory constructs a Directory for a node identified by selfID.
func NewDirectory(selfID string, offlineThreshold time.Duration, reg prometheus.Registerer, logger log.Logger) *Directory {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	d := &Directory{
		selfID:           selfID,
		offlineThreshold: offlineThreshold,
		peers:            make(map[string]*Info),
		logger:           logger,
	}
	d.metrics = &directoryMetrics{
		knownPeers: promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "shardframe_peer_directory_size",
			Help: "Number of peers currently tracked as reachable.",
		}, func() float64 {
			return float64(len(d.Peers()))
		}),
		reaped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "shardframe_peer_directory_reaped_total",
			Help: "Number of peers removed for exceeding the offline threshold.",
		}),
	}
	return d
}

func (d *Directory) SelfID() string { return d.selfID }

// SetOnNewPeer installs the callback invoked the first time a peer is
// announced. Must be set before Announce is first called from a live
// heartbeat receiver.
func (d *Directory) SetOnNewPeer(fn func(Info)) {
	d.mu.Lock()
	d.onNewPeer = fn
	d.mu.Unlock()
}

// Announce records a heartbeat from (id, host, port), marking the peer
// online and refreshing its LastSeen. It returns true the first time this
// ID is seen.
func (d *Directory) Announce(id, host string, port int, now time.Time) bool {
	if id == d.selfID {
		return false
	}

	d.mu.Lock()
	info, existed := d.peers[id]
	if !existed {
		info = &Info{ID: id}
		d.peers[id] = info
	}
	info.Host = host
	info.Port = port
	info.Status = Online
	info.LastSeen = now
	snapshot := *info
	onNewPeer := d.onNewPeer
	d.mu.Unlock()

	if !existed {
		level.Info(d.logger).Log("msg", "new peer discovered", "peer", id, "addr", host, "port", port)
		if onNewPeer != nil {
			go onNewPeer(snapshot)
		}
	}
	return !existed
}

// Remove deletes a peer immediately, e.g. on an explicit shutdown
// announcement.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	delete(d.peers, id)
	d.mu.Unlock()
}

// Sweep removes every peer whose LastSeen is older than offlineThreshold
// as of now. Callers run this periodically (see cluster.HeartbeatSender).
func (d *Directory) Sweep(now time.Time) {
	var reaped []string

	d.mu.Lock()
	for id, info := range d.peers {
		if now.Sub(info.LastSeen) > d.offlineThreshold {
			delete(d.peers, id)
			reaped = append(reaped, id)
		}
	}
	d.mu.Unlock()

	for _, id := range reaped {
		d.metrics.reaped.Inc()
		level.Warn(d.logger).Log("msg", "peer exceeded offline threshold, removed", "peer", id)
	}
}

// Peers returns a stable-ordered (by ID) snapshot of every currently known
// peer, excluding self.
func (d *Directory) Peers() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Info, 0, len(d.peers))
	for _, info := range d.peers {
		out = append(out, *info)
	}
	sortInfosByID(out)
	return out
}

// PeersIncludingSelf returns Peers() plus a synthesized Info for this
// node, in stable ID order. The Distribution Coordinator uses this to
// build the ordered peer list that round-robin sharding indexes into.
func (d *Directory) PeersIncludingSelf(selfHost string, selfPort int) []Info {
	peers := d.Peers()
	self := Info{ID: d.selfID, Host: selfHost, Port: selfPort, Status: Online, LastSeen: time.Now()}
	peers = append(peers, self)
	sortInfosByID(peers)
	return peers
}

func sortInfosByID(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}
