package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/aabundler/bundler/grpcapi"
	"github.com/aabundler/bundler/rpcapi"
	"github.com/aabundler/bundler/validate"
)

// nodeCommand runs every subsystem in one process: validator, pool,
// bundler, the HTTP/WS-RPC facade, the internal gRPC service, the
// block-stream subscriber, and the hourly reputation-decay timer
// (spec §5: "one task per long-lived loop"). This is the topology a
// single-operator deployment runs; the uopool/bundler/rpc subcommands
// split the same pieces across processes joined by grpcapi.
var nodeCommand = &cli.Command{
	Name:  "node",
	Usage: "Run the pool, bundler, and RPC facade in one process",
	Flags: sharedFlags,
	Action: func(ctx *cli.Context) error {
		cfg, err := buildConfig(ctx)
		if err != nil {
			return err
		}
		applyLogRotation(cfg)
		rootCtx, cancel := signalContext()
		defer cancel()

		d, err := buildDaemon(rootCtx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(d)

		signer, err := loadSigner(ctx)
		if err != nil {
			return err
		}
		d.buildBundler(signer)

		backend := &rpcapi.Backend{
			Pool:                 d.pool,
			Bundler:              d.bundler,
			EntryPoint:           d.entryPoint,
			Validator:            d.validator,
			Logs:                 d.chain,
			ChainID:              d.chainID,
			SupportedEntryPoints: d.entryPointAddresses(),
			MaxVerificationGas:   validate.DefaultConfig.MaxVerificationGas,
			MaxCallGas:           cfg.Bundling.BlockGasTarget,
		}
		rpcSrv, err := rpcapi.NewServer(backend)
		if err != nil {
			return fmt.Errorf("aabundler: build rpc server: %w", err)
		}
		grpcSrv := grpcapi.NewServer(d.pool, validate.Full, d.bundler)

		var g errgroup.Group
		g.Go(func() error { return logServe("http-rpc", rpcSrv.ListenAndServeHTTP(cfg.RPC.HTTPAddr)) })
		g.Go(func() error { return logServe("ws-rpc", rpcSrv.ListenAndServeWS(cfg.RPC.WSAddr)) })
		g.Go(func() error { return logServe("grpc", grpcSrv.ListenAndServe(cfg.GRPC.Addr)) })
		g.Go(func() error { d.onNewHead(rootCtx); return nil })

		d.bundler.Start(rootCtx)
		go reputationDecayLoop(rootCtx, d)

		log.Info("aabundler: node started", "entry_point", d.entryPoint.Address(), "chain_id", d.chainID)
		<-rootCtx.Done()
		log.Info("aabundler: shutting down")

		d.bundler.Stop()
		rpcSrv.Shutdown()
		grpcSrv.Stop()
		if d.metricsProvider != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = d.metricsProvider.Shutdown(shutdownCtx)
		}
		_ = g.Wait()
		return nil
	},
}

// signalContext returns a context canceled on SIGINT/SIGTERM, the
// process-wide shutdown signal named in spec §5.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// reputationDecayLoop runs Manager.UpdateHourly once per hour, driven
// by a fixed one-hour ticker until ctx is cancelled.
func reputationDecayLoop(ctx context.Context, d *daemon) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.rep.UpdateHourly()
		}
	}
}

// logServe logs a listener's terminal error, if any, and returns it to
// the errgroup.Group that started it. After Shutdown/Stop every
// listener returns nil (rpcapi's HTTP/WS listeners map
// http.ErrServerClosed to nil themselves); a bare http.ErrServerClosed
// is treated the same, as an expected stop rather than a failure.
func logServe(name string, err error) error {
	if err != nil && err != http.ErrServerClosed {
		log.Error("aabundler: listener stopped", "listener", name, "err", err)
		return err
	}
	return nil
}
