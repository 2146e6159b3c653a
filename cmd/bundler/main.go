package main

import (
	"fmt"
	"os"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aabundler/bundler/internal/config"
)

var gitVersion = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "bundler"
	app.Usage = "ERC-4337 account-abstraction bundler"
	app.Version = gitVersion
	app.Flags = append([]cli.Flag{}, sharedFlags...)
	app.Before = setupLogging
	app.Commands = []*cli.Command{
		nodeCommand,
		bundlerCommand,
		uopoolCommand,
		rpcCommand,
		createWalletCLICommand,
		debugCommand,
	}
	app.CommandNotFound = func(ctx *cli.Context, cmd string) {
		fmt.Fprintf(os.Stderr, "aabundler: unknown subcommand %q\n", cmd)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "aabundler:", err)
		os.Exit(1)
	}
}

// setupLogging configures go-ethereum's slog-based root logger at the
// verbosity named by --verbosity, the same log.GlogHandler wrapping
// cmd/geth's own --verbosity flag uses (spec §1: "RUST_LOG-equivalent
// verbosity variable").
func setupLogging(ctx *cli.Context) error {
	glogger := gethlog.NewGlogHandler(gethlog.NewTerminalHandler(os.Stderr, false))
	glogger.Verbosity(gethlog.FromLegacyLevel(ctx.Int(verbosityFlag.Name)))
	gethlog.SetDefault(gethlog.NewLogger(glogger))
	return nil
}

// newLogRotator builds a lumberjack.Logger for --config-specified log
// rotation (spec §1 ambient logging), used by daemon subcommands that
// load a full config.Config rather than bare flags.
func newLogRotator(path string, maxSizeMB, maxBackups int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

// applyLogRotation re-points the root logger at cfg.Logging.File, once
// buildConfig has resolved the full Config (app.Before's setupLogging
// runs before any --config file is loaded, so it only ever sees the
// bare --verbosity flag). A no-op when no log file is configured.
func applyLogRotation(cfg *config.Config) {
	if cfg.Logging.File == "" {
		return
	}
	rotator := newLogRotator(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	glogger := gethlog.NewGlogHandler(gethlog.NewTerminalHandler(rotator, false))
	glogger.Verbosity(gethlog.FromLegacyLevel(cfg.Logging.Verbosity))
	gethlog.SetDefault(gethlog.NewLogger(glogger))
}
