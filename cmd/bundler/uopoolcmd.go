package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/aabundler/bundler/grpcapi"
	"github.com/aabundler/bundler/validate"
)

// uopoolCommand runs only the validator, mempool, and reputation
// manager behind the internal gRPC service, with no RPC facade and no
// bundler loop. A "bundler" and/or "rpc" process elsewhere points
// --uopool-grpc-url at this one (spec §6 CLI surface, split topology).
var uopoolCommand = &cli.Command{
	Name:  "uopool",
	Usage: "Run the pool/validator behind the internal gRPC service only",
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

		grpcSrv := grpcapi.NewServer(d.pool, validate.Full, nil)

		var g errgroup.Group
		g.Go(func() error { return logServe("grpc", grpcSrv.ListenAndServe(cfg.GRPC.Addr)) })
		g.Go(func() error { d.onNewHead(rootCtx); return nil })
		go reputationDecayLoop(rootCtx, d)

		log.Info("aabundler: uopool started", "entry_point", d.entryPoint.Address(), "grpc_addr", cfg.GRPC.Addr)
		<-rootCtx.Done()
		log.Info("aabundler: shutting down")

		grpcSrv.Stop()
		if d.metricsProvider != nil {
			_ = d.metricsProvider.Shutdown(rootCtx)
		}
		_ = g.Wait()
		return nil
	},
}

// errNoUoPoolGRPCURL is returned by the rpc/bundler subcommands when
// started without a remote pool to attach to.
var errNoUoPoolGRPCURL = fmt.Errorf("aabundler: --uopool-grpc-url is required")
