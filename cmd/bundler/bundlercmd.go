package main

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aabundler/bundler/grpcapi"
)

// bundlerCommand runs only the bundler loop and its own gRPC control
// surface (SetMode/SendBundleNow), sourcing candidate UserOperations
// from a remote "uopool" process over --uopool-grpc-url rather than
// running a mempool/validator locally (spec §6 CLI surface, split
// topology).
var bundlerCommand = &cli.Command{
	Name:  "bundler",
	Usage: "Run the bundler loop against a remote uopool process",
	Flags: sharedFlags,
	Action: func(ctx *cli.Context) error {
		cfg, err := buildConfig(ctx)
		if err != nil {
			return err
		}
		applyLogRotation(cfg)
		if ctx.String(uopoolGRPCURLFlag.Name) == "" {
			return errNoUoPoolGRPCURL
		}
		rootCtx, cancel := signalContext()
		defer cancel()

		d, err := buildChainDaemon(rootCtx, cfg)
		if err != nil {
			return err
		}

		conn, err := grpc.Dial(ctx.String(uopoolGRPCURLFlag.Name), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()
		pool := grpcapi.NewUoPoolClient(conn, d.entryPoint.Address(), d.chainID)

		signer, err := loadSigner(ctx)
		if err != nil {
			return err
		}
		bdl := d.buildBundlerWithPool(pool, signer)

		grpcSrv := grpcapi.NewServer(nil, 0, bdl)

		var g errgroup.Group
		g.Go(func() error { return logServe("grpc", grpcSrv.ListenAndServe(cfg.GRPC.Addr)) })

		bdl.Start(rootCtx)

		log.Info("aabundler: bundler started", "entry_point", d.entryPoint.Address(), "uopool", ctx.String(uopoolGRPCURLFlag.Name))
		<-rootCtx.Done()
		log.Info("aabundler: shutting down")

		bdl.Stop()
		grpcSrv.Stop()
		if d.metricsProvider != nil {
			_ = d.metricsProvider.Shutdown(rootCtx)
		}
		_ = g.Wait()
		return nil
	},
}
