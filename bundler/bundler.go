// Package bundler implements the periodic bundling loop (spec §4.G):
// pull a sorted candidate set from the pool, drop entries that would
// overflow the block-gas target, re-simulate each survivor against
// the current head, sign a handleOps transaction, and submit it
// through a pluggable transport.
package bundler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/metrics"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uop"
)

// Mode selects how the bundler loop is driven: Auto ticks on its own
// interval; Manual only builds/submits a bundle when SendBundleNow is
// called (debug_bundler_setBundlingMode, spec §4.H).
type Mode uint8

const (
	ModeAuto Mode = iota
	ModeManual
)

// PoolView is the subset of *uopool.Pool the bundler consumes.
type PoolView interface {
	// RankedCandidates returns an approximately fee-ordered,
	// per-sender-deduped prefix of up to limit entries: the bundler's
	// candidate-preview pass (spec §4.G.1).
	RankedCandidates(limit int) []*uop.Entry
	Remove(hash common.Hash) bool
}

// candidatePreviewOverscan multiplies MaxBundleSize to size the
// candidate-preview pass: enough headroom that ops dropped by
// filterGasTarget/filterSimulation still leave a full bundle behind,
// without pulling the entire mempool through RankedCandidates.
const candidatePreviewOverscan = 4

// Signer abstracts wallet key management per spec §1's Non-goal:
// "treat signer as a trait with sign(hash) → signature". SignerFn
// matches bind.TransactOpts.Signer's shape so it plugs directly into
// the EntryPoint client's bound-contract transactor.
type Signer interface {
	Address() common.Address
	SignerFn(chainID *big.Int) bind.SignerFn
}

// FeeSource supplies the current fee market the bundler fills a
// handleOps transaction's gas fields from.
type FeeSource interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Transport submits a finished handleOps transaction, either directly
// to the execution client's mempool or through a private-orderflow
// relay (spec §4.G.5, §9 Open Questions).
type Transport interface {
	Submit(ctx context.Context, tx *types.Transaction) error
}

// Config bundles every collaborator and tunable of one Bundler.
type Config struct {
	Pool       PoolView
	EntryPoint *entrypoint.Client
	Reputation *reputation.Manager
	Fees       FeeSource
	Signer     Signer
	Transport  Transport

	Beneficiary       common.Address
	BundleInterval    time.Duration
	BlockGasTarget    uint64
	MinBalance        *big.Int
	MaxBundleSize     int
	Metrics           *metrics.Recorder
}

// Bundler runs the bundle-formation loop described in spec §4.G.
type Bundler struct {
	cfg Config

	mu   sync.Mutex
	mode Mode

	stop chan struct{}
	done chan struct{}
}

// New builds a Bundler in auto mode.
func New(cfg Config) *Bundler {
	if cfg.MaxBundleSize == 0 {
		cfg.MaxBundleSize = 128
	}
	return &Bundler{cfg: cfg, mode: ModeAuto}
}

// SetMode switches between automatic ticking and manual triggering
// (debug_bundler_setBundlingMode).
func (b *Bundler) SetMode(mode Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
}

// Mode returns the bundler's current mode.
func (b *Bundler) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Start runs the ticking loop until ctx is cancelled. In ModeManual
// ticks are skipped; SendBundleNow must be called explicitly.
func (b *Bundler) Start(ctx context.Context) {
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.loop(ctx)
}

// Stop signals the loop to exit and waits for it to return.
func (b *Bundler) Stop() {
	if b.stop == nil {
		return
	}
	close(b.stop)
	<-b.done
}

func (b *Bundler) loop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.BundleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			if b.Mode() != ModeAuto {
				continue
			}
			if _, err := b.SendBundleNow(ctx); err != nil {
				log.Warn("bundler: tick failed", "err", err)
			}
		}
	}
}

// SendBundleNow runs one full bundle-formation pass: select, filter,
// re-simulate, sign, submit. Returns the submitted tx hash, or a zero
// hash if no candidates survived filtering (not an error).
func (b *Bundler) SendBundleNow(ctx context.Context) (common.Hash, error) {
	candidates := b.cfg.Pool.RankedCandidates(b.cfg.MaxBundleSize * candidatePreviewOverscan)
	candidates = b.filterGasTarget(candidates)
	candidates = b.filterSimulation(ctx, candidates)
	if len(candidates) == 0 {
		return common.Hash{}, nil
	}

	ops := make([]*uop.UserOperation, len(candidates))
	for i, e := range candidates {
		ops[i] = e.Op
	}

	if err := b.checkBeneficiaryBalance(ctx, ops); err != nil {
		return common.Hash{}, err
	}

	tx, err := b.submitHandleOps(ctx, ops)
	if err != nil {
		b.cfg.Metrics.BundleSubmitFailed(ctx)
		b.handleSubmissionFailure(candidates, err)
		return common.Hash{}, err
	}
	b.cfg.Metrics.BundleSubmitted(ctx, len(ops))
	log.Info("bundler: submitted bundle", "tx", tx.Hash(), "ops", len(ops))
	return tx.Hash(), nil
}

// filterGasTarget drops entries whose verification_gas_limit +
// call_gas_limit would push the accumulated bundle above the chain's
// block-gas target, and caps the bundle at MaxBundleSize (spec §4.G.2).
func (b *Bundler) filterGasTarget(entries []*uop.Entry) []*uop.Entry {
	var total uint64
	out := make([]*uop.Entry, 0, len(entries))
	for _, e := range entries {
		if len(out) >= b.cfg.MaxBundleSize {
			break
		}
		opGas := e.Op.VerificationGasLimit.Uint64() + e.Op.CallGasLimit.Uint64()
		if total+opGas > b.cfg.BlockGasTarget {
			continue
		}
		total += opGas
		out = append(out, e)
	}
	return out
}

// filterSimulation re-runs simulate_handle_op against the current head
// for each candidate, dropping (and requesting removal of) any that
// revert (spec §4.G.3).
func (b *Bundler) filterSimulation(ctx context.Context, entries []*uop.Entry) []*uop.Entry {
	out := make([]*uop.Entry, 0, len(entries))
	for _, e := range entries {
		if _, err := b.cfg.EntryPoint.SimulateHandleOp(ctx, e.Op, common.Address{}, nil); err != nil {
			log.Warn("bundler: dropping op that reverted on re-simulation", "hash", e.Hash, "err", err)
			b.cfg.Pool.Remove(e.Hash)
			continue
		}
		out = append(out, e)
	}
	return out
}

// checkBeneficiaryBalance ensures the beneficiary's account balance
// (BalanceAt on the latest block) stays at or above MinBalance after
// the bundle is collected
// (spec §4.G.4). Real post-bundle balance cannot be known ahead of
// execution, so this checks the pre-bundle floor: a beneficiary
// already below MinBalance must not be used.
func (b *Bundler) checkBeneficiaryBalance(ctx context.Context, ops []*uop.UserOperation) error {
	if b.cfg.MinBalance == nil || b.cfg.MinBalance.Sign() == 0 {
		return nil
	}
	balance, err := b.cfg.Fees.BalanceAt(ctx, b.cfg.Beneficiary, nil)
	if err != nil {
		return fmt.Errorf("bundler: balance_at(beneficiary): %w", err)
	}
	if balance.Cmp(b.cfg.MinBalance) < 0 {
		return fmt.Errorf("bundler: beneficiary %s balance %s below minimum %s", b.cfg.Beneficiary, balance, b.cfg.MinBalance)
	}
	return nil
}

// submitHandleOps fills gas fields from the current fee market, signs
// handleOps(ops, beneficiary), and hands it to the configured
// Transport.
func (b *Bundler) submitHandleOps(ctx context.Context, ops []*uop.UserOperation) (*types.Transaction, error) {
	tip, err := b.cfg.Fees.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundler: suggest_gas_tip_cap: %w", err)
	}
	head, err := b.cfg.Fees.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bundler: header_by_number: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	chainID, err := b.cfg.EntryPoint.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundler: chain_id: %w", err)
	}

	opts := &bind.TransactOpts{
		From:      b.cfg.Signer.Address(),
		Signer:    b.cfg.Signer.SignerFn(chainID),
		Context:   ctx,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		NoSend:    true,
	}
	tx, err := b.cfg.EntryPoint.HandleOps(ctx, opts, ops, b.cfg.Beneficiary)
	if err != nil {
		return nil, fmt.Errorf("bundler: build handleOps tx: %w", err)
	}
	if err := b.cfg.Transport.Submit(ctx, tx); err != nil {
		return nil, fmt.Errorf("bundler: submit: %w", err)
	}
	return tx, nil
}

// handleSubmissionFailure applies the reputation penalty on relay
// rejection or a bundle-time revert and drops the implicated ops
// (spec §4.G.6, §7 Bundle error kind).
func (b *Bundler) handleSubmissionFailure(entries []*uop.Entry, err error) {
	log.Warn("bundler: bundle submission failed", "ops", len(entries), "err", err)
	for _, e := range entries {
		b.cfg.Reputation.HandleOpsRevertedPenalty(e.Op.Sender)
		b.cfg.Pool.Remove(e.Hash)
	}
}
