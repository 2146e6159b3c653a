package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aabundler/bundler/grpcapi"
)

// debugCommand drives a running node/uopool/bundler process's gRPC
// control surface directly, a lower-level counterpart to the
// debug_bundler_* JSON-RPC namespace (rpcapi/debug.go) for operators
// without an RPC client handy (spec §6 CLI surface).
var debugCommand = &cli.Command{
	Name:  "debug",
	Usage: "Inspect or control a running bundler over its gRPC service",
	Subcommands: []*cli.Command{
		debugClearStateCommand,
		debugDumpReputationCommand,
		debugSetModeCommand,
		debugSendBundleNowCommand,
	},
}

var debugTargetFlag = &cli.StringFlag{
	Name:     "target",
	Category: flagCategory,
	Usage:    "Target process's gRPC address (node/uopool --grpc-addr, or bundler --grpc-addr)",
	Value:    "127.0.0.1:3002",
}

func dialDebugTarget(ctx *cli.Context) (*grpc.ClientConn, error) {
	return grpc.Dial(ctx.String(debugTargetFlag.Name), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

var debugClearStateCommand = &cli.Command{
	Name:  "clear-state",
	Usage: "Empty the target's mempool",
	Flags: []cli.Flag{debugTargetFlag},
	Action: func(ctx *cli.Context) error {
		conn, err := dialDebugTarget(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		grpcapi.NewUoPoolClient(conn, common.Address{}, nil).Clear()
		fmt.Println("ok")
		return nil
	},
}

var debugDumpReputationCommand = &cli.Command{
	Name:  "dump-reputation",
	Usage: "Print every reputation row the target tracks",
	Flags: []cli.Flag{debugTargetFlag},
	Action: func(ctx *cli.Context) error {
		conn, err := dialDebugTarget(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		rows := grpcapi.NewUoPoolClient(conn, common.Address{}, nil).DumpReputation()
		for _, r := range rows {
			fmt.Printf("%s seen=%d included=%d status=%d\n", r.Address, r.OpsSeen, r.OpsIncluded, r.Status)
		}
		return nil
	},
}

var debugSetModeCommand = &cli.Command{
	Name:      "set-mode",
	Usage:     "Switch the target bundler between auto and manual bundling",
	ArgsUsage: "<auto|manual>",
	Flags:     []cli.Flag{debugTargetFlag},
	Action: func(ctx *cli.Context) error {
		mode := ctx.Args().First()
		if mode != "auto" && mode != "manual" {
			return fmt.Errorf("aabundler: mode must be \"auto\" or \"manual\"")
		}
		conn, err := dialDebugTarget(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := grpcapi.NewBundlerClient(conn).SetMode(ctx.Context, mode); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var debugSendBundleNowCommand = &cli.Command{
	Name:  "send-bundle-now",
	Usage: "Force one bundle-formation pass regardless of the target's mode",
	Flags: []cli.Flag{debugTargetFlag},
	Action: func(ctx *cli.Context) error {
		conn, err := dialDebugTarget(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		hash, err := grpcapi.NewBundlerClient(conn).SendBundleNow(ctx.Context)
		if err != nil {
			return err
		}
		fmt.Println(hash.Hex())
		return nil
	},
}
