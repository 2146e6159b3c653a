// Package config defines the on-disk configuration struct tree
// loaded by every cmd/bundler subcommand, layered as
// file-defaults-then-CLI-overrides the way cmd/geth's own
// loadConfig does, backed by BurntSushi/toml rather than geth's
// deprecated internal gen_config machinery.
package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/ethereum/go-ethereum/common"
)

// Chain names the network this daemon's EntryPoint(s) are deployed on.
type Chain struct {
	Name    string `toml:"name" validate:"required"`
	ChainID uint64 `toml:"chain_id" validate:"required"`
	RPCURL  string `toml:"rpc_url" validate:"required,url"`
}

// EntryPointConfig names one supported EntryPoint contract and the
// per-mempool policy knobs around it.
type EntryPointConfig struct {
	Address        common.Address `toml:"address" validate:"required"`
	MinStake       *big.Int       `toml:"-"`
	MinStakeStr    string         `toml:"min_stake"`
	MinUnstakeDelay uint64        `toml:"min_unstake_delay" validate:"required"`
	Whitelist      []common.Address `toml:"whitelist"`
	Blacklist      []common.Address `toml:"blacklist"`
}

// Bundling groups the bundler loop's tunables (spec §4.G).
type Bundling struct {
	Beneficiary    common.Address `toml:"beneficiary" validate:"required"`
	IntervalStr    string         `toml:"interval" validate:"required"`
	Interval       time.Duration  `toml:"-"`
	BlockGasTarget uint64         `toml:"block_gas_target" validate:"required"`
	MaxBundleSize  int            `toml:"max_bundle_size" validate:"gte=1"`
	MinBalanceStr  string         `toml:"min_balance"`
	MinBalance     *big.Int       `toml:"-"`
	SendMode       string         `toml:"send_mode" validate:"oneof=auto manual"`
	FlashbotsRelay string         `toml:"flashbots_relay"`
}

// RPC groups the JSON-RPC facade's listener addresses (spec §5).
type RPC struct {
	HTTPAddr string `toml:"http_addr" validate:"required"`
	WSAddr   string `toml:"ws_addr" validate:"required"`
}

// GRPC groups the internal UoPool/Bundler gRPC service's listener.
type GRPC struct {
	Addr string `toml:"addr"`
}

// Metrics groups the OTLP exporter's target.
type Metrics struct {
	Enabled           bool          `toml:"enabled"`
	Endpoint          string        `toml:"endpoint"`
	ExportIntervalStr string        `toml:"export_interval"`
	ExportInterval    time.Duration `toml:"-"`
	Insecure          bool          `toml:"insecure"`
}

// Storage groups the mempool/reputation persistence layout.
type Storage struct {
	DataDir string `toml:"data_dir" validate:"required"`
	Durable bool   `toml:"durable"`
}

// Logging groups verbosity and optional file rotation.
type Logging struct {
	Verbosity int    `toml:"verbosity" validate:"gte=0,lte=5"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxBackups int   `toml:"max_backups"`
}

// Config is the full daemon configuration tree (spec §6 CLI surface,
// §1 persisted-state layout).
type Config struct {
	Chain       Chain              `toml:"chain" validate:"required"`
	EntryPoints []EntryPointConfig `toml:"entry_points" validate:"required,min=1,dive"`
	Bundling    Bundling           `toml:"bundling"`
	RPC         RPC                `toml:"rpc"`
	GRPC        GRPC               `toml:"grpc"`
	Metrics     Metrics            `toml:"metrics"`
	Storage     Storage            `toml:"storage" validate:"required"`
	Logging     Logging            `toml:"logging"`
}

// Default returns a Config with every non-required field set to the
// reference bundler's published defaults.
func Default() Config {
	return Config{
		Bundling: Bundling{
			IntervalStr:   "10s",
			MaxBundleSize: 128,
			SendMode:      "auto",
		},
		RPC: RPC{
			HTTPAddr: "127.0.0.1:3000",
			WSAddr:   "127.0.0.1:3001",
		},
		GRPC: GRPC{Addr: "127.0.0.1:3002"},
		Metrics: Metrics{
			ExportIntervalStr: "15s",
		},
		Logging: Logging{Verbosity: 3},
	}
}

// Load reads path as TOML into a Config seeded from Default, resolves
// the string-encoded big.Int fields TOML cannot represent natively,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := resolveDerived(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveDerived fills every field TOML cannot decode natively
// (big.Int amounts, time.Duration strings) from its string-typed
// source field.
func resolveDerived(cfg *Config) error {
	if cfg.Bundling.IntervalStr != "" {
		d, err := time.ParseDuration(cfg.Bundling.IntervalStr)
		if err != nil {
			return fmt.Errorf("config: bundling.interval: %w", err)
		}
		cfg.Bundling.Interval = d
	}
	if cfg.Metrics.ExportIntervalStr != "" {
		d, err := time.ParseDuration(cfg.Metrics.ExportIntervalStr)
		if err != nil {
			return fmt.Errorf("config: metrics.export_interval: %w", err)
		}
		cfg.Metrics.ExportInterval = d
	}
	for i := range cfg.EntryPoints {
		ep := &cfg.EntryPoints[i]
		if ep.MinStakeStr == "" {
			ep.MinStake = new(big.Int)
			continue
		}
		v, ok := new(big.Int).SetString(ep.MinStakeStr, 10)
		if !ok {
			return fmt.Errorf("config: entry_points[%d].min_stake: invalid integer %q", i, ep.MinStakeStr)
		}
		ep.MinStake = v
	}
	if cfg.Bundling.MinBalanceStr == "" {
		cfg.Bundling.MinBalance = new(big.Int)
	} else {
		v, ok := new(big.Int).SetString(cfg.Bundling.MinBalanceStr, 10)
		if !ok {
			return fmt.Errorf("config: bundling.min_balance: invalid integer %q", cfg.Bundling.MinBalanceStr)
		}
		cfg.Bundling.MinBalance = v
	}
	return nil
}

var validatorInstance = validator.New()

// Validate runs go-playground/validator tags over cfg, surfacing the
// first structural problem (missing chain id, malformed RPC url,
// empty entry-point list) before the daemon ever dials its execution
// client.
func Validate(cfg *Config) error {
	if err := validatorInstance.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

// WriteDefault writes a Default()-valued config to path, for a
// first-run `bundler init`-style workflow.
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	cfg := Default()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode default config: %w", err)
	}
	return nil
}
