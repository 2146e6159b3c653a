// Command bundler is the ERC-4337 bundler daemon's CLI entrypoint,
// laid out the way cmd/geth's main.go is: a package-level app built
// from shared flags plus one cli.Command per subcommand (spec §6).
package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/aabundler/bundler/internal/flags"
)

const flagCategory = "AABUNDLER"

var (
	dataDirFlag = &flags.DirectoryFlag{
		Name:     "datadir",
		Category: flagCategory,
		Usage:    "Data directory for the durable mempool/reputation store and the P2P node-key/ENR file pair",
		Value:    flags.DirectoryString{Value: defaultDataDir()},
		EnvVars:  []string{"AABUNDLER_DATADIR"},
	}
	configFlag = &cli.StringFlag{
		Name:     "config",
		Category: flagCategory,
		Usage:    "TOML configuration file (CLI flags override its values)",
	}
	rpcURLFlag = &cli.StringFlag{
		Name:     "rpc-url",
		Category: flagCategory,
		Usage:    "Execution-client JSON-RPC URL (eth_*/debug_* upstream)",
		EnvVars:  []string{"AABUNDLER_RPC_URL"},
	}
	chainNameFlag = &cli.StringFlag{
		Name:     "chain",
		Category: flagCategory,
		Usage:    "Chain name this daemon's EntryPoint(s) are deployed on",
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:     "chain-id",
		Category: flagCategory,
		Usage:    "Chain ID of the network the EntryPoint(s) are deployed on",
	}
	entryPointsFlag = &cli.StringSliceFlag{
		Name:     "entry-points",
		Category: flagCategory,
		Usage:    "Supported EntryPoint contract addresses (comma-separated, checksummed)",
	}
	minStakeFlag = &flags.BigFlag{
		Name:     "min-stake",
		Category: flagCategory,
		Usage:    "Minimum stake (wei) an unstaked entity must clear to avoid throttling",
	}
	minUnstakeDelayFlag = &cli.Uint64Flag{
		Name:     "min-unstake-delay",
		Category: flagCategory,
		Usage:    "Minimum unstake delay (seconds) the EntryPoint must report for a staked entity",
		Value:    86400,
	}
	bundleIntervalFlag = &cli.DurationFlag{
		Name:     "bundle-interval",
		Category: flagCategory,
		Usage:    "Interval between automatic bundle-formation passes",
		Value:    defaultBundleInterval,
	}
	beneficiaryFlag = &cli.StringFlag{
		Name:     "beneficiary",
		Category: flagCategory,
		Usage:    "Address credited with the bundle's collected fees in handleOps",
	}
	whitelistFlag = &cli.StringSliceFlag{
		Name:     "whitelist",
		Category: flagCategory,
		Usage:    "Addresses always treated as reputation OK regardless of counters",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:     "http-addr",
		Category: flagCategory,
		Usage:    "HTTP-RPC listen address",
		Value:    "127.0.0.1:3000",
	}
	wsAddrFlag = &cli.StringFlag{
		Name:     "ws-addr",
		Category: flagCategory,
		Usage:    "WS-RPC listen address",
		Value:    "127.0.0.1:3001",
	}
	grpcAddrFlag = &cli.StringFlag{
		Name:     "grpc-addr",
		Category: flagCategory,
		Usage:    "Internal UoPool/Bundler gRPC listen address",
		Value:    "127.0.0.1:3002",
	}
	uopoolGRPCURLFlag = &cli.StringFlag{
		Name:     "uopool-grpc-url",
		Category: flagCategory,
		Usage:    "Remote uopool process's gRPC address, for a split-process \"rpc\" or \"bundler\" subcommand",
	}
	mnemonicFileFlag = &cli.StringFlag{
		Name:     "mnemonic-file",
		Category: flagCategory,
		Usage:    "Path to the signer's encrypted keystore file (see the create-wallet subcommand)",
	}
	signerPasswordFileFlag = &cli.StringFlag{
		Name:     "signer-password-file",
		Category: flagCategory,
		Usage:    "Path to a file containing the signer keystore's decryption passphrase",
	}
	sendModeFlag = &cli.StringFlag{
		Name:     "send-bundle-mode",
		Category: flagCategory,
		Usage:    "\"auto\" bundles on a timer, \"manual\" only bundles on debug_bundler_sendBundleNow",
		Value:    "auto",
	}
	flashbotsRelayFlag = &cli.StringFlag{
		Name:     "flashbots-relay",
		Category: flagCategory,
		Usage:    "Flashbots-style relay URL; when set, bundles submit there instead of directly",
	}
	durableFlag = &cli.BoolFlag{
		Name:     "durable",
		Category: flagCategory,
		Usage:    "Back the mempool store with the pebble-based durable implementation instead of the in-memory one",
	}
	metricsEndpointFlag = &cli.StringFlag{
		Name:     "metrics-endpoint",
		Category: flagCategory,
		Usage:    "OTLP/gRPC collector endpoint; empty disables metrics export",
	}
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Category: flagCategory,
		Usage:    "Log verbosity: 0=crit 1=error 2=warn 3=info 4=debug 5=trace",
		Value:    3,
	}
)

// sharedFlags is every flag common to node/bundler/uopool/rpc: the
// full daemon config surface named in spec §6.
var sharedFlags = []cli.Flag{
	dataDirFlag,
	configFlag,
	rpcURLFlag,
	chainNameFlag,
	chainIDFlag,
	entryPointsFlag,
	minStakeFlag,
	minUnstakeDelayFlag,
	bundleIntervalFlag,
	beneficiaryFlag,
	whitelistFlag,
	httpAddrFlag,
	wsAddrFlag,
	grpcAddrFlag,
	uopoolGRPCURLFlag,
	mnemonicFileFlag,
	signerPasswordFileFlag,
	sendModeFlag,
	flashbotsRelayFlag,
	durableFlag,
	metricsEndpointFlag,
	verbosityFlag,
}

func defaultDataDir() string {
	home := flags.HomeDir()
	if home == "" {
		return ".aabundler"
	}
	return home + "/.aabundler"
}

// parseAddressList parses a comma-separated (via cli.StringSlice,
// already split) list of checksummed addresses, skipping blanks.
func parseAddressList(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		out = append(out, common.HexToAddress(s))
	}
	return out
}
