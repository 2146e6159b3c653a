package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/aabundler/bundler/bundler"
	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/internal/config"
	"github.com/aabundler/bundler/mempool"
	"github.com/aabundler/bundler/metrics"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uopool"
	"github.com/aabundler/bundler/validate"
)

// daemon bundles every collaborator a single (entry_point, chain_id)
// mempool is built from, plus the transport-layer servers a CLI
// subcommand starts a subset of (spec §6 CLI surface).
type daemon struct {
	cfg *config.Config

	chain      *ethclient.Client
	chainRPC   *gethrpc.Client
	chainID    *big.Int
	entryPoint *entrypoint.Client

	store mempool.Store
	rep   *reputation.Manager

	metricsProvider *metrics.Provider
	metricsRecorder *metrics.Recorder

	validator *validate.Validator
	pool      *uopool.Pool
	bundler   *bundler.Bundler
}

// buildDaemon dials the execution client and constructs every
// collaborator for cfg.EntryPoints[0], the primary mempool this
// process's subcommand serves. A production deployment with multiple
// supported EntryPoints runs one process per EntryPoint, mirroring the
// "one logical mempool per (entry_point, chain_id)" invariant of spec §3.
func buildDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	rpcClient, err := gethrpc.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("aabundler: dial execution client %s: %w", cfg.Chain.RPCURL, err)
	}
	chain := ethclient.NewClient(rpcClient)

	chainID := new(big.Int).SetUint64(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		chainID, err = chain.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("aabundler: query chain id: %w", err)
		}
	}

	epCfg := cfg.EntryPoints[0]
	ep := entrypoint.NewClient(epCfg.Address, chain, chainID)

	var store mempool.Store
	if cfg.Storage.Durable {
		store, err = mempool.OpenPebble(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("aabundler: open durable mempool store: %w", err)
		}
	} else {
		store = mempool.NewMemory()
	}

	rep := reputation.NewManager(reputation.DefaultConfig)
	for _, addr := range epCfg.Whitelist {
		rep.AddWhitelist(addr)
	}
	for _, addr := range epCfg.Blacklist {
		rep.AddBlacklist(addr)
	}

	d := &daemon{
		cfg:        cfg,
		chain:      chain,
		chainRPC:   rpcClient,
		chainID:    chainID,
		entryPoint: ep,
		store:      store,
		rep:        rep,
	}

	if cfg.Metrics.Enabled {
		provider, err := metrics.NewProvider(ctx, metrics.Config{
			Endpoint:       cfg.Metrics.Endpoint,
			ExportInterval: cfg.Metrics.ExportInterval,
			Insecure:       cfg.Metrics.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("aabundler: build metrics provider: %w", err)
		}
		recorder, err := metrics.New(provider.Meter("aabundler"))
		if err != nil {
			return nil, fmt.Errorf("aabundler: build metrics recorder: %w", err)
		}
		d.metricsProvider = provider
		d.metricsRecorder = recorder
	}

	validatorCfg := validate.DefaultConfig
	d.validator = validate.New(validate.Deps{
		Config:     validatorCfg,
		Chain:      chain,
		EntryPoint: ep,
		Mempool:    store,
		Reputation: rep,
		Tracer:     rpcClient,
		Metrics:    d.metricsRecorder,
	})

	d.pool = uopool.New(uopool.Config{
		EntryPoint: ep,
		ChainID:    chainID,
		Validator:  d.validator,
		Store:      store,
		Reputation: rep,
		Chain:      chain,
		Metrics:    d.metricsRecorder,
	})

	return d, nil
}

// buildChainDaemon dials the execution client and resolves chainID/
// EntryPoint only, skipping the mempool/validator/pool collaborators a
// split-process "rpc" or "bundler" subcommand doesn't run locally
// (those live in a separate "uopool" process, reached over
// grpcapi.UoPoolClient instead).
func buildChainDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	rpcClient, err := gethrpc.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("aabundler: dial execution client %s: %w", cfg.Chain.RPCURL, err)
	}
	chain := ethclient.NewClient(rpcClient)

	chainID := new(big.Int).SetUint64(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		chainID, err = chain.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("aabundler: query chain id: %w", err)
		}
	}

	epCfg := cfg.EntryPoints[0]
	ep := entrypoint.NewClient(epCfg.Address, chain, chainID)

	rep := reputation.NewManager(reputation.DefaultConfig)
	for _, addr := range epCfg.Whitelist {
		rep.AddWhitelist(addr)
	}
	for _, addr := range epCfg.Blacklist {
		rep.AddBlacklist(addr)
	}

	d := &daemon{
		cfg:        cfg,
		chain:      chain,
		chainRPC:   rpcClient,
		chainID:    chainID,
		entryPoint: ep,
		rep:        rep,
	}

	if cfg.Metrics.Enabled {
		provider, err := metrics.NewProvider(ctx, metrics.Config{
			Endpoint:       cfg.Metrics.Endpoint,
			ExportInterval: cfg.Metrics.ExportInterval,
			Insecure:       cfg.Metrics.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("aabundler: build metrics provider: %w", err)
		}
		recorder, err := metrics.New(provider.Meter("aabundler"))
		if err != nil {
			return nil, fmt.Errorf("aabundler: build metrics recorder: %w", err)
		}
		d.metricsProvider = provider
		d.metricsRecorder = recorder
	}

	return d, nil
}

// buildBundler wires a Bundler over d's local pool against the signer
// and transport selected by cfg.Bundling (direct send vs. Flashbots
// relay, spec §4.G.5). Used by the "node" subcommand, which runs its
// own pool in-process.
func (d *daemon) buildBundler(signer bundler.Signer) *bundler.Bundler {
	return d.buildBundlerWithPool(d.pool, signer)
}

// buildBundlerWithPool is buildBundler generalized over the pool
// collaborator, so the split-process "bundler" subcommand can pass a
// *grpcapi.UoPoolClient (bundler.PoolView is satisfied structurally by
// both) instead of a local *uopool.Pool.
func (d *daemon) buildBundlerWithPool(pool bundler.PoolView, signer bundler.Signer) *bundler.Bundler {
	var transport bundler.Transport
	if d.cfg.Bundling.FlashbotsRelay != "" {
		transport = bundler.NewFlashbotsTransport(d.cfg.Bundling.FlashbotsRelay, d.chain, signerHex(signer))
	} else {
		transport = bundler.NewDirectTransport(d.chain)
	}

	b := bundler.New(bundler.Config{
		Pool:           pool,
		EntryPoint:     d.entryPoint,
		Reputation:     d.rep,
		Fees:           d.chain,
		Signer:         signer,
		Transport:      transport,
		Beneficiary:    d.cfg.Bundling.Beneficiary,
		BundleInterval: d.cfg.Bundling.Interval,
		BlockGasTarget: d.cfg.Bundling.BlockGasTarget,
		MinBalance:     d.cfg.Bundling.MinBalance,
		MaxBundleSize:  d.cfg.Bundling.MaxBundleSize,
		Metrics:        d.metricsRecorder,
	})
	if d.cfg.Bundling.SendMode == "manual" {
		b.SetMode(bundler.ModeManual)
	}
	d.bundler = b
	return b
}

// signerHex is a placeholder deriving the Flashbots reputation key
// from the fund signer's address when no distinct relay-auth key is
// configured; a real deployment should configure its own via
// --flashbots-relay plus a dedicated signing key (spec §9 Open
// Questions leaves the relay wire encoding unmandated).
func signerHex(signer bundler.Signer) string {
	return signer.Address().Hex()
}

// onNewHead subscribes to the execution client's head feed and drives
// uopool.Pool.OnNewBlock per spec §4.F / §5 ("Block stream → F.react").
func (d *daemon) onNewHead(ctx context.Context) {
	headers := make(chan *types.Header)
	sub, err := d.chain.SubscribeNewHead(ctx, headers)
	if err != nil {
		log.Warn("aabundler: subscribe new head failed, block-triggered eviction disabled", "err", err)
		return
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			log.Warn("aabundler: new head subscription error", "err", err)
			return
		case h := <-headers:
			if err := d.pool.OnNewBlock(ctx, h.Hash()); err != nil {
				log.Warn("aabundler: on_new_block failed", "hash", h.Hash(), "err", err)
			}
		}
	}
}

// entryPointAddresses returns every configured EntryPoint address,
// for the eth_supportedEntryPoints facade (multi-EntryPoint daemons
// still advertise every configured address even though this process
// only maintains a pool for the first).
func (d *daemon) entryPointAddresses() []common.Address {
	out := make([]common.Address, len(d.cfg.EntryPoints))
	for i, ep := range d.cfg.EntryPoints {
		out[i] = ep.Address
	}
	return out
}

// closeStore releases the durable store's file handles, if this
// daemon was built with one; the in-memory store has nothing to close.
func closeStore(d *daemon) {
	if closer, ok := d.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("aabundler: close mempool store", "err", err)
		}
	}
}

var _ bind.ContractBackend = (*ethclient.Client)(nil)
