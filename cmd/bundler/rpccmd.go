package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aabundler/bundler/grpcapi"
	"github.com/aabundler/bundler/rpcapi"
	"github.com/aabundler/bundler/validate"
)

// rpcCommand runs only the HTTP/WS-RPC facade, sourcing pool reads and
// writes from a remote "uopool" process over --uopool-grpc-url (spec
// §6 CLI surface, split topology). debug_bundler_setBundlingMode and
// debug_bundler_sendBundleNow are unavailable in this topology: they
// call through Backend.Bundler, a concrete *bundler.Bundler this
// process never constructs since it runs no local bundler loop. Use
// the combined "node" subcommand, or drive those two methods against
// the "bundler" process's own gRPC control surface instead, when that
// distinction matters.
var rpcCommand = &cli.Command{
	Name:  "rpc",
	Usage: "Run only the HTTP/WS-RPC facade against a remote uopool process",
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

		backend := &rpcapi.Backend{
			Pool: pool,
			Validator: validate.New(validate.Deps{
				Config:     validate.DefaultConfig,
				Chain:      d.chain,
				EntryPoint: d.entryPoint,
				Tracer:     d.chainRPC,
				Metrics:    d.metricsRecorder,
			}),
			EntryPoint:           d.entryPoint,
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

		var g errgroup.Group
		g.Go(func() error { return logServe("http-rpc", rpcSrv.ListenAndServeHTTP(cfg.RPC.HTTPAddr)) })
		g.Go(func() error { return logServe("ws-rpc", rpcSrv.ListenAndServeWS(cfg.RPC.WSAddr)) })

		log.Info("aabundler: rpc started", "http_addr", cfg.RPC.HTTPAddr, "ws_addr", cfg.RPC.WSAddr, "uopool", ctx.String(uopoolGRPCURLFlag.Name))
		<-rootCtx.Done()
		log.Info("aabundler: shutting down")

		rpcSrv.Shutdown()
		if d.metricsProvider != nil {
			_ = d.metricsProvider.Shutdown(rootCtx)
		}
		_ = g.Wait()
		return nil
	},
}
