package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/aabundler/bundler/internal/config"
	"github.com/aabundler/bundler/internal/flags"
)

const defaultBundleInterval = 10 * time.Second

// buildConfig loads --config if given, then overlays any flag the
// user explicitly set, the same file-then-CLI layering cmd/geth's own
// loadConfig applies.
func buildConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if ctx.IsSet(chainNameFlag.Name) {
		cfg.Chain.Name = ctx.String(chainNameFlag.Name)
	}
	if ctx.IsSet(chainIDFlag.Name) {
		cfg.Chain.ChainID = ctx.Uint64(chainIDFlag.Name)
	}
	if ctx.IsSet(rpcURLFlag.Name) {
		cfg.Chain.RPCURL = ctx.String(rpcURLFlag.Name)
	}

	if ctx.IsSet(entryPointsFlag.Name) {
		cfg.EntryPoints = nil
		for _, addr := range parseAddressList(ctx.StringSlice(entryPointsFlag.Name)) {
			cfg.EntryPoints = append(cfg.EntryPoints, config.EntryPointConfig{
				Address:         addr,
				MinUnstakeDelay: ctx.Uint64(minUnstakeDelayFlag.Name),
			})
		}
	}
	if ctx.IsSet(minStakeFlag.Name) {
		minStake := flags.GlobalBig(ctx, minStakeFlag.Name)
		for i := range cfg.EntryPoints {
			cfg.EntryPoints[i].MinStake = minStake
		}
	}
	if ctx.IsSet(whitelistFlag.Name) {
		wl := parseAddressList(ctx.StringSlice(whitelistFlag.Name))
		for i := range cfg.EntryPoints {
			cfg.EntryPoints[i].Whitelist = wl
		}
	}

	if ctx.IsSet(beneficiaryFlag.Name) {
		cfg.Bundling.Beneficiary = common.HexToAddress(ctx.String(beneficiaryFlag.Name))
	}
	if ctx.IsSet(bundleIntervalFlag.Name) {
		cfg.Bundling.Interval = ctx.Duration(bundleIntervalFlag.Name)
	} else if cfg.Bundling.Interval == 0 {
		cfg.Bundling.Interval = defaultBundleInterval
	}
	if ctx.IsSet(sendModeFlag.Name) {
		cfg.Bundling.SendMode = ctx.String(sendModeFlag.Name)
	}
	if ctx.IsSet(flashbotsRelayFlag.Name) {
		cfg.Bundling.FlashbotsRelay = ctx.String(flashbotsRelayFlag.Name)
	}

	if ctx.IsSet(httpAddrFlag.Name) {
		cfg.RPC.HTTPAddr = ctx.String(httpAddrFlag.Name)
	}
	if ctx.IsSet(wsAddrFlag.Name) {
		cfg.RPC.WSAddr = ctx.String(wsAddrFlag.Name)
	}
	if ctx.IsSet(grpcAddrFlag.Name) {
		cfg.GRPC.Addr = ctx.String(grpcAddrFlag.Name)
	}

	if ctx.IsSet(dataDirFlag.Name) || cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(durableFlag.Name) {
		cfg.Storage.Durable = ctx.Bool(durableFlag.Name)
	}

	if ctx.IsSet(metricsEndpointFlag.Name) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Endpoint = ctx.String(metricsEndpointFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Logging.Verbosity = ctx.Int(verbosityFlag.Name)
	}

	if len(cfg.EntryPoints) == 0 {
		return nil, fmt.Errorf("aabundler: at least one --entry-points address is required")
	}
	if cfg.Chain.RPCURL == "" {
		return nil, fmt.Errorf("aabundler: --rpc-url is required")
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
