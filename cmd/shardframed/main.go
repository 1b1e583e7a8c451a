// Command shardframed runs one node of a shardframe cluster: it owns a
// Catalog, participates in peer heartbeating and schema replication, and
// serves the HTTP binding.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/cluster"
	"github.com/shardframe/shardframe/internal/api"
	"github.com/shardframe/shardframe/peer"
)

type config struct {
	nodeID           string
	host             string
	port             int
	metricsPort      int
	staticPeers      []string
	heartbeatSeconds int
	offlineSeconds   int
	workerPoolSize   int
	batchSize        int
	tempDir          string
	multicastGroup   string
	multicastPort    int
	multicastEnabled bool
}

func main() {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "shardframed",
		Short: "Runs one node of a shardframe cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.nodeID, "node-id", "", "unique id for this node (default: a generated random UUID)")
	flags.StringVar(&cfg.host, "host", "127.0.0.1", "address this node advertises to peers")
	flags.IntVar(&cfg.port, "port", 8080, "port the HTTP binding listens on")
	flags.IntVar(&cfg.metricsPort, "metrics-port", 9090, "port the Prometheus /metrics endpoint listens on")
	flags.StringSliceVar(&cfg.staticPeers, "peer", nil, "static peer as id@host:port, repeatable")
	flags.IntVar(&cfg.heartbeatSeconds, "heartbeat-interval-seconds", 5, "interval between heartbeat announcements")
	flags.IntVar(&cfg.offlineSeconds, "offline-threshold-seconds", 15, "how long since a peer's last heartbeat before it is reaped")
	flags.IntVar(&cfg.workerPoolSize, "worker-pool-size", 10, "bounded concurrency for peer fan-out (heartbeats, distribution, distributed queries)")
	flags.IntVar(&cfg.batchSize, "batch-size", 1000, "default row batch size for Parquet ingest")
	flags.StringVar(&cfg.tempDir, "temp-dir", "", "directory for propagated Parquet files (default: a temp dir under os.TempDir)")
	flags.StringVar(&cfg.multicastGroup, "multicast-group", "230.0.0.1", "UDP multicast group address for peer discovery")
	flags.IntVar(&cfg.multicastPort, "multicast-port", 4446, "UDP multicast port for peer discovery")
	flags.BoolVar(&cfg.multicastEnabled, "multicast-enabled", false, "announce and listen for peers over UDP multicast in addition to the static peer list")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if cfg.nodeID == "" {
		cfg.nodeID = uuid.NewString()
	}
	if cfg.tempDir == "" {
		dir, err := os.MkdirTemp("", "shardframe-")
		if err != nil {
			return fmt.Errorf("shardframed: failed to create temp dir: %w", err)
		}
		cfg.tempDir = dir
	}
	logger = log.With(logger, "node", cfg.nodeID)

	reg := prometheus.NewRegistry()

	catalog := shardframe.NewCatalog(reg, log.With(logger, "component", "catalog"))
	directory := peer.NewDirectory(cfg.nodeID, time.Duration(cfg.offlineSeconds)*time.Second, reg, log.With(logger, "component", "directory"))

	httpClient := cluster.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})

	fileCache, err := cluster.NewFileCache(cfg.tempDir, log.With(logger, "component", "filecache"))
	if err != nil {
		return err
	}

	queryCoord := &cluster.QueryCoordinator{
		Catalog:     catalog,
		Directory:   directory,
		Client:      httpClient,
		WorkerLimit: cfg.workerPoolSize,
		Logger:      log.With(logger, "component", "query_coordinator"),
	}
	distribution := &cluster.DistributionCoordinator{
		Catalog:     catalog,
		Directory:   directory,
		Client:      httpClient,
		Cache:       fileCache,
		SelfHost:    cfg.host,
		SelfPort:    cfg.port,
		WorkerLimit: cfg.workerPoolSize,
		Logger:      log.With(logger, "component", "distribution_coordinator"),
	}
	replication := &cluster.ReplicationHub{
		Catalog:   catalog,
		Directory: directory,
		Client:    httpClient,
		Logger:    log.With(logger, "component", "replication"),
	}
	replication.Install()

	heartbeat := &cluster.HeartbeatSender{
		SelfID:      cfg.nodeID,
		SelfHost:    cfg.host,
		SelfPort:    cfg.port,
		Directory:   directory,
		Client:      httpClient,
		Interval:    time.Duration(cfg.heartbeatSeconds) * time.Second,
		StaticPeers: parseStaticPeers(cfg.staticPeers),
		WorkerLimit: cfg.workerPoolSize,
		Logger:      log.With(logger, "component", "heartbeat"),
	}

	server := &api.Server{
		Catalog:          catalog,
		Directory:        directory,
		QueryCoord:       queryCoord,
		Distribution:     distribution,
		Cache:            fileCache,
		SelfID:           cfg.nodeID,
		SelfHost:         cfg.host,
		SelfPort:         cfg.port,
		DefaultBatchSize: cfg.batchSize,
		Logger:           log.With(logger, "component", "api"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go heartbeat.Run(ctx)

	if cfg.multicastEnabled {
		announcer := &cluster.MulticastAnnouncer{
			Group:    cfg.multicastGroup,
			Port:     cfg.multicastPort,
			SelfID:   cfg.nodeID,
			SelfHost: cfg.host,
			SelfPort: cfg.port,
			Logger:   log.With(logger, "component", "multicast_announcer"),
		}
		listener := &cluster.MulticastListener{
			Group:     cfg.multicastGroup,
			Port:      cfg.multicastPort,
			Directory: directory,
			Logger:    log.With(logger, "component", "multicast_listener"),
		}
		go announcer.Run(ctx, time.Duration(cfg.heartbeatSeconds)*time.Second)
		go listener.Run(ctx)
	}

	httpServer := &http.Server{Addr: net.JoinHostPort("", strconv.Itoa(cfg.port)), Handler: server.Router()}
	metricsServer := &http.Server{Addr: net.JoinHostPort("", strconv.Itoa(cfg.metricsPort)), Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}

	go func() {
		level.Info(logger).Log("msg", "metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "node listening", "addr", httpServer.Addr, "node", cfg.nodeID)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("shardframed: http server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	level.Info(logger).Log("msg", "shutdown complete")
	return nil
}

// parseStaticPeers parses "id@host:port" entries from --peer flags.
func parseStaticPeers(entries []string) []peer.Info {
	var out []peer.Info
	for _, e := range entries {
		at := strings.IndexByte(e, '@')
		if at < 0 {
			continue
		}
		id := e[:at]
		hostPort := e[at+1:]
		host, portStr, err := net.SplitHostPort(hostPort)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, peer.Info{ID: id, Host: host, Port: port, Status: peer.Starting})
	}
	return out
}
