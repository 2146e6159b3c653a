// Package uopool implements the UserOpPool orchestrator (spec §4.F):
// it sequences validation, admission, block-triggered eviction, and
// the sorted-batch view the bundler consumes. Every mempool-store
// mutation is serialized under one pool write lock, and store reads
// take it for reading. Reputation counters are not covered by that
// lock: the pool updates them after releasing it, under the reputation
// manager's own lock.
package uopool

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/mempool"
	"github.com/aabundler/bundler/metrics"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uop"
	"github.com/aabundler/bundler/validate"
)

// BlockSource is the subset of execution-client access the block
// update path needs: the new head's transaction list, pulled back by
// hash so the pool can decode only the ones addressed to its
// EntryPoint.
type BlockSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
}

// Sink is the P2P publish surface the pool hands newly admitted
// operations to (spec §1 Non-goals: the gossip transport itself is
// external; the pool only ever calls Publish).
type Sink interface {
	Publish(ctx context.Context, entryPoint common.Address, op *uop.UserOperation) error
}

// noopSink is used when no P2P sink is attached.
type noopSink struct{}

func (noopSink) Publish(context.Context, common.Address, *uop.UserOperation) error { return nil }

// Pool is the long-lived per-(EntryPoint, chain) orchestrator.
type Pool struct {
	entryPoint *entrypoint.Client
	chainID    *big.Int
	mempoolID  common.Hash

	validator *validate.Validator
	store     mempool.Store
	rep       *reputation.Manager
	chain     BlockSource
	sink      Sink
	metrics   *metrics.Recorder

	mu sync.RWMutex
}

// Config bundles the collaborators a Pool is built from.
type Config struct {
	EntryPoint *entrypoint.Client
	ChainID    *big.Int
	Validator  *validate.Validator
	Store      mempool.Store
	Reputation *reputation.Manager
	Chain      BlockSource
	Sink       Sink
	Metrics    *metrics.Recorder
}

// New builds a Pool for one (entry_point, chain_id) mempool.
func New(cfg Config) *Pool {
	sink := cfg.Sink
	if sink == nil {
		sink = noopSink{}
	}
	return &Pool{
		entryPoint: cfg.EntryPoint,
		chainID:    cfg.ChainID,
		mempoolID:  uop.MempoolID(cfg.EntryPoint.Address(), cfg.ChainID),
		validator:  cfg.Validator,
		store:      cfg.Store,
		rep:        cfg.Reputation,
		chain:      cfg.Chain,
		sink:       sink,
		metrics:    cfg.Metrics,
	}
}

// MempoolID returns keccak(checksum(entry_point) ∥ chain_id), the
// logical mempool identifier used on the gossip topic (spec §3, §6).
func (p *Pool) MempoolID() common.Hash { return p.mempoolID }

// ChainID returns the chain this pool's EntryPoint is bound to.
func (p *Pool) ChainID() *big.Int { return p.chainID }

// EntryPointAddress returns the EntryPoint this pool admits ops against.
func (p *Pool) EntryPointAddress() common.Address { return p.entryPoint.Address() }

// Add runs the validator in mode, then atomically admits op: on a
// sender/nonce collision the prior entry is removed from every index
// before the new one is inserted, so no observer ever sees both or
// neither (spec §4.F, testable property 2). On success it updates
// ops_seen for every present entity, persists code hashes and the
// verified block hash, and publishes op to the attached sink.
func (p *Pool) Add(ctx context.Context, op *uop.UserOperation, mode validate.Mode) (common.Hash, error) {
	outcome, err := p.validator.Validate(ctx, op, p.entryPoint.Address(), p.chainID, mode)
	if err != nil {
		return common.Hash{}, err
	}

	entry, err := uop.NewEntry(op, p.entryPoint.Address(), p.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("uopool: derive entry: %w", err)
	}
	if outcome.ValidatedAt != nil {
		entry.VerifiedBlock = outcome.ValidatedAt.Hash()
	}
	if outcome.CodeHashes != nil {
		entry.CodeHashes = outcome.CodeHashes
	}

	p.mu.Lock()
	if prev, ok := p.store.GetPrevBySender(op); ok {
		p.store.Remove(prev.Hash)
		p.store.RemoveCodeHashes(prev.Hash)
	}
	hash, err := p.store.Add(entry)
	if err == nil && len(entry.CodeHashes) > 0 {
		p.store.SetCodeHashes(hash, validateCodeHashSlice(entry.CodeHashes))
	}
	p.mu.Unlock()
	if err != nil {
		return common.Hash{}, fmt.Errorf("uopool: store add: %w", err)
	}
	p.metrics.SetPoolSize(ctx, 1)

	statusBefore := p.rep.StatusOf(op.Sender)
	p.rep.IncrementSeen(op.Sender)
	if status := p.rep.StatusOf(op.Sender); status != statusBefore {
		p.metrics.ReputationTransition(ctx, status.String())
	}
	if f, ok := op.Factory(); ok {
		p.rep.IncrementSeen(f)
	}
	if pm, ok := op.Paymaster(); ok {
		p.rep.IncrementSeen(pm)
	}

	if err := p.sink.Publish(ctx, p.entryPoint.Address(), op); err != nil {
		log.Warn("uopool: publish to p2p sink failed", "hash", hash, "err", err)
	}

	log.Info("uopool: admitted user operation", "hash", hash, "sender", op.Sender, "nonce", op.Nonce)
	return hash, nil
}

func validateCodeHashSlice(m map[common.Address]common.Hash) []mempool.CodeHash {
	out := make([]mempool.CodeHash, 0, len(m))
	for addr, h := range m {
		out = append(out, mempool.CodeHash{Address: addr, Hash: h})
	}
	return out
}

// Remove cascade-removes hash from the store. It never mutates
// reputation (spec §4.F).
func (p *Pool) Remove(hash common.Hash) bool {
	p.mu.Lock()
	p.store.RemoveCodeHashes(hash)
	removed := p.store.Remove(hash)
	p.mu.Unlock()
	if removed {
		p.metrics.SetPoolSize(context.Background(), -1)
	}
	return removed
}

// RemoveByEntity cascade-removes every op referencing addr in any
// entity role.
func (p *Pool) RemoveByEntity(addr common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.RemoveByEntity(addr)
}

// Get returns the mempool entry for hash, if present.
func (p *Pool) Get(hash common.Hash) (*uop.Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.Get(hash)
}

// GetStakeInfo reads addr's current EntryPoint deposit/stake record.
func (p *Pool) GetStakeInfo(ctx context.Context, addr common.Address) (*entrypoint.DepositInfo, error) {
	return p.entryPoint.GetDepositInfo(ctx, addr)
}

// GetSorted returns the mempool's priority-fee-ordered view, with the
// additional pool-level invariant that no two returned entries share a
// sender: the first occurrence of each sender in the store's order
// (priority fee descending, then nonce ascending) is kept and later
// duplicates are dropped, so a sender is represented by its
// highest-fee entry, the lowest nonce among equal fees (spec §4.F,
// testable property 3).
func (p *Pool) GetSorted() []*uop.Entry {
	p.mu.RLock()
	all := p.store.GetSorted()
	p.mu.RUnlock()

	seen := make(map[common.Address]bool, len(all))
	out := make([]*uop.Entry, 0, len(all))
	for _, e := range all {
		if seen[e.Op.Sender] {
			continue
		}
		seen[e.Op.Sender] = true
		out = append(out, e)
	}
	return out
}

// RankedCandidates returns an approximately fee-ordered, per-sender
// deduped prefix of up to limit entries, cheaper to produce than the
// full GetSorted() view over the whole mempool. The bundler's
// candidate-preview pass (spec §4.G.1) calls this instead of
// GetSorted so a large mempool doesn't pay a full sort on every tick;
// the returned slice is exactly re-sorted before use, since the
// underlying ranking is only approximate.
func (p *Pool) RankedCandidates(limit int) []*uop.Entry {
	p.mu.RLock()
	hashes := p.store.RankedHashes(limit)
	out := make([]*uop.Entry, 0, len(hashes))
	seen := make(map[common.Address]bool, len(hashes))
	for _, h := range hashes {
		entry, ok := p.store.Get(h)
		if !ok || seen[entry.Op.Sender] {
			continue
		}
		seen[entry.Op.Sender] = true
		out = append(out, entry)
	}
	p.mu.RUnlock()

	mempool.SortEntries(out)
	return out
}

// Clear empties the mempool store.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Clear()
}

// DumpReputation returns every known reputation row.
func (p *Pool) DumpReputation() []reputation.Entry {
	return p.rep.Dump()
}

// SetReputation overwrites/creates reputation rows wholesale.
func (p *Pool) SetReputation(entries []reputation.Entry) {
	p.rep.SetEntries(entries)
}

// OnNewBlock fetches blockHash's transactions and, for every one
// addressed to the EntryPoint, reads the included operations from the
// EntryPoint logs in its receipt (the transaction input is not
// decoded); each included operation is removed from the mempool and
// ops_included is incremented for its entities (spec §4.F).
func (p *Pool) OnNewBlock(ctx context.Context, blockHash common.Hash) error {
	p.entryPoint.PurgeDepositCache()

	block, err := p.chain.BlockByHash(ctx, blockHash)
	if err != nil {
		return fmt.Errorf("uopool: block_by_hash(%s): %w", blockHash, err)
	}

	entryPoint := p.entryPoint.Address()
	for _, tx := range block.Transactions() {
		if tx.To() == nil || *tx.To() != entryPoint {
			continue
		}
		receipt, err := p.chain.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			log.Warn("uopool: fetch receipt for handleOps tx", "tx", tx.Hash(), "err", err)
			continue
		}
		included, err := p.entryPoint.ParseReceipt(receipt)
		if err != nil {
			log.Warn("uopool: parse handleOps receipt", "tx", tx.Hash(), "err", err)
			continue
		}
		for _, op := range included {
			p.settleIncluded(op)
		}
	}
	return nil
}

func (p *Pool) settleIncluded(included entrypoint.IncludedOp) {
	p.mu.Lock()
	entry, ok := p.store.Get(included.UserOpHash)
	if ok {
		p.store.Remove(included.UserOpHash)
		p.store.RemoveCodeHashes(included.UserOpHash)
	}
	p.mu.Unlock()

	if ok {
		p.metrics.SetPoolSize(context.Background(), -1)
		p.rep.IncrementIncluded(entry.Op.Sender)
		if f, okF := entry.Op.Factory(); okF {
			p.rep.IncrementIncluded(f)
		}
		if pm, okP := entry.Op.Paymaster(); okP {
			p.rep.IncrementIncluded(pm)
		}
	} else if included.Sender != (common.Address{}) {
		// the op landed via a peer bundler or a prior process; still
		// settle reputation against the decoded sender.
		p.rep.IncrementIncluded(included.Sender)
		if included.Paymaster != (common.Address{}) {
			p.rep.IncrementIncluded(included.Paymaster)
		}
	}
	log.Info("uopool: settled included user operation", "hash", included.UserOpHash, "success", included.Success)
}
