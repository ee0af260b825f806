// Command animicad runs a single Animica node: the block-anchor ledger, the
// penalty/SLA/matcher provider pipeline, the blob store and its GC, the
// gossip mesh, the rate limiter guarding ingress, and the two HTTP
// surfaces (data-availability REST and JSON-RPC). Flag/App shape follows
// go-ethereum's cmd/geth convention, built on urfave/cli/v2.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/animicaorg/animica/internal/anchor"
	"github.com/animicaorg/animica/internal/blobstore"
	"github.com/animicaorg/animica/internal/common"
	"github.com/animicaorg/animica/internal/config"
	"github.com/animicaorg/animica/internal/gossip"
	"github.com/animicaorg/animica/internal/log"
	"github.com/animicaorg/animica/internal/matcher"
	"github.com/animicaorg/animica/internal/metrics"
	"github.com/animicaorg/animica/internal/penalty"
	"github.com/animicaorg/animica/internal/ratelimit"
	"github.com/animicaorg/animica/internal/retrieval"
	"github.com/animicaorg/animica/internal/rpcserver"
	"github.com/animicaorg/animica/internal/sla"
	"github.com/animicaorg/animica/internal/template"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to a TOML config file (defaults used when omitted)",
}

func main() {
	app := &cli.App{
		Name:  "animicad",
		Usage: "run an Animica data-availability and compute-matching node",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			return run(c.String("config"))
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Root().Crit("animicad exited with error", "err", err)
		os.Exit(1)
	}
}

// node bundles every long-lived component this process owns, so shutdown
// can close them in one place.
type node struct {
	anchorStore *anchor.Store
	blobStore   *blobstore.Store
	daServer    *http.Server
	rpcSrv      *http.Server
	cfg         config.Config
	logger      log.Logger
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := log.New("component", "animicad")
	reg := metrics.NewRegistry()
	clock := common.SystemClock{}

	anchorStore, err := anchor.Open(cfg.AnchorDB)
	if err != nil {
		return fmt.Errorf("open anchor store: %w", err)
	}
	blobStore, err := blobstore.Open(cfg.BlobDB, cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	penaltyEngine := penalty.NewEngine(penalty.Config{
		Multiplier:        cfg.Penalty.Multiplier,
		OffenseWindowSecs: cfg.Penalty.OffenseWindowSecs,
		MinSlash:          uint256.NewInt(cfg.Penalty.MinSlash),
		MaxSlash:          uint256.NewInt(cfg.Penalty.MaxSlash),
		MaxJailSeconds:    cfg.Penalty.MaxJailSeconds,
	}, clock, noopStakeReader{}, loggingSlashHook{logger: logger})

	slaTracker := sla.NewTracker(sla.Config{
		WindowSeconds: cfg.SLA.WindowSeconds,
		EWMAAlpha:     cfg.SLA.EWMAAlpha,
	})
	_ = slaTracker // wired in by the provider-health feed once one exists

	_ = matcher.NewMatcher(nil, map[string]float64{}, penaltyEngine, nil, nil)

	rateLimiter := ratelimit.NewDualLimiter(clock,
		ratelimit.Config{PeerRate: cfg.RateLimit.PeerRate, PeerBurst: cfg.RateLimit.PeerBurst, GlobalRate: cfg.RateLimit.GlobalRate, GlobalBurst: cfg.RateLimit.GlobalBurst},
		ratelimit.Config{PeerRate: cfg.RateLimit.PeerRate, PeerBurst: cfg.RateLimit.PeerBurst, GlobalRate: cfg.RateLimit.GlobalRate, GlobalBurst: cfg.RateLimit.GlobalBurst},
	)

	mesh := gossip.New(cfg.Gossip.Fanout, cfg.Gossip.RandomSeed, noopTransport{}, cfg.Gossip.DedupeCacheSize)
	_ = mesh

	_ = template.NewManager(clock, 30)

	daServer := &http.Server{
		Addr:    cfg.DAAddr,
		Handler: rateLimitedRouter(rateLimiter, retrieval.NewServer(blobStore, retrieval.ErasureParams{K: cfg.Erasure.K, N: cfg.Erasure.N, ShardSize: cfg.Erasure.ShardSize}, clock, reg, logger).Router()),
	}
	rpcSrv := &http.Server{
		Addr:    cfg.RPCAddr,
		Handler: rpcserver.NewServer(rpcserver.NewPool(), cfg.ChainID, reg, logger).Router(),
	}

	n := &node{anchorStore: anchorStore, blobStore: blobStore, daServer: daServer, rpcSrv: rpcSrv, cfg: cfg, logger: logger}
	return n.serve()
}

func (n *node) serve() error {
	errCh := make(chan error, 2)
	go func() {
		n.logger.Info("starting data-availability server", "addr", n.cfg.DAAddr)
		if err := n.daServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("da server: %w", err)
		}
	}()
	go func() {
		n.logger.Info("starting JSON-RPC server", "addr", n.cfg.RPCAddr)
		if err := n.rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		n.shutdown()
		return err
	case <-sigCh:
		n.logger.Info("received shutdown signal")
		n.shutdown()
		return nil
	}
}

func (n *node) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = n.daServer.Shutdown(ctx)
	_ = n.rpcSrv.Shutdown(ctx)
	_ = n.anchorStore.Close()
	_ = n.blobStore.Close()
}

// rateLimitedRouter gates every request through the dual byte/request-count
// limiter, keyed by remote address, before handing off to next.
func rateLimitedRouter(limiter *ratelimit.DualLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(r.RemoteAddr, 1) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// noopStakeReader stands in until a staking ledger is wired; every provider
// reports a fixed stake so the penalty ramp's ratio math stays well-defined.
type noopStakeReader struct{}

func (noopStakeReader) Stake(string) *uint256.Int { return uint256.NewInt(1_000_000) }

type loggingSlashHook struct{ logger log.Logger }

func (h loggingSlashHook) Slash(providerID string, amount *uint256.Int) {
	h.logger.Warn("provider slashed", "provider", providerID, "amount", amount.String())
}

// noopTransport stands in until the peer-to-peer wire layer is attached;
// publishes are accepted but never actually delivered off-process.
type noopTransport struct{}

func (noopTransport) Send(string, string, []byte) error { return nil }
