// Package mempool holds validated user operations and their derived
// indices: by hash, by sender, by entity (factory/paymaster), and a
// per-op code-hash set used for the CodeHashes simulation-trace check
// (spec §4.C).
package mempool

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/aabundler/bundler/uop"
)

// CodeHash pins one address to the code hash observed the first time
// an op was simulated, so a later simulation can detect that a
// contract it depends on changed underneath it.
type CodeHash struct {
	Address common.Address
	Hash    common.Hash
}

// Store is a mempool backend: either the in-memory implementation or
// the pebble-backed durable one. Both obey identical observable
// semantics; persistence is opportunistic, not a correctness
// requirement (spec §4.C).
type Store interface {
	// Add inserts entry into the primary map and every derived index,
	// returning its canonical hash.
	Add(entry *uop.Entry) (common.Hash, error)
	Get(hash common.Hash) (*uop.Entry, bool)
	GetBySender(sender common.Address) []*uop.Entry
	GetNumberBySender(sender common.Address) int
	GetNumberByEntity(entity common.Address) int
	// GetPrevBySender returns the existing entry sharing op's
	// (sender, nonce), if any, for the replace-by-fee rule.
	GetPrevBySender(op *uop.UserOperation) (*uop.Entry, bool)
	Remove(hash common.Hash) bool
	RemoveByEntity(entity common.Address)

	HasCodeHashes(hash common.Hash) bool
	SetCodeHashes(hash common.Hash, hashes []CodeHash)
	GetCodeHashes(hash common.Hash) []CodeHash
	RemoveCodeHashes(hash common.Hash)

	// GetSorted returns every entry ordered by max priority fee
	// descending, nonce ascending.
	GetSorted() []*uop.Entry
	// RankedHashes returns up to limit op hashes ordered by priority
	// fee. The in-memory store reads its live, approximate fee-ranked
	// index instead of sorting the whole store; the durable store sorts
	// every entry exactly and truncates. Used as the bundler's candidate-preview
	// pass (spec §4.G.1): a small, approximately-ordered prefix that
	// gets exactly re-sorted rather than the whole mempool.
	RankedHashes(limit int) []common.Hash
	GetAll() []*uop.Entry
	Clear()
}

// sortEntries applies the canonical mempool ordering in place:
// max_priority_fee_per_gas descending, nonce ascending.
func sortEntries(entries []*uop.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Op, entries[j].Op
		if cmp := b.MaxPriorityFeePerGas.Cmp(a.MaxPriorityFeePerGas); cmp != 0 {
			return cmp < 0
		}
		return a.Nonce.Cmp(b.Nonce) < 0
	})
}

// meetsReplacementBump reports whether candidate's fees clear the
// minimum bump over prev required to replace it (spec §4.C: both
// max_fee_per_gas and max_priority_fee_per_gas must be at least
// ceil(prev * (1 + bumpPercent/100))).
func meetsReplacementBump(candidate, prev *uop.UserOperation, bumpPercent int64) bool {
	minFee := bumpedMin(prev.MaxFeePerGas, bumpPercent)
	minPriority := bumpedMin(prev.MaxPriorityFeePerGas, bumpPercent)
	return candidate.MaxFeePerGas.Cmp(minFee) >= 0 && candidate.MaxPriorityFeePerGas.Cmp(minPriority) >= 0
}

// bumpedMin computes ceil(v * (100+bumpPercent) / 100) using 256-bit
// fixed-width arithmetic, the way the teacher's own gas/fee math
// (core/vm's stack values, core/types' blob fee fields) favors
// uint256.Int over big.Int for wei-denominated quantities that are
// contractually bounded to 256 bits.
func bumpedMin(v *big.Int, bumpPercent int64) *big.Int {
	val, _ := new(uint256.Int).SetFromBig(v)
	factor := uint256.NewInt(uint64(100 + bumpPercent))
	hundred := uint256.NewInt(100)

	num := new(uint256.Int).Mul(val, factor)
	mod := new(uint256.Int)
	min := new(uint256.Int).DivMod(num, hundred, mod)
	if !mod.IsZero() {
		min.AddUint64(min, 1)
	}
	return min.ToBig()
}

// MeetsReplacementBump is the exported form used by the validate
// package's Sender sanity check.
func MeetsReplacementBump(candidate, prev *uop.UserOperation, bumpPercent int64) bool {
	return meetsReplacementBump(candidate, prev, bumpPercent)
}

// SortEntries is the exported form of sortEntries, used by uopool to
// exactly re-sort the small candidate-preview slice a Store's
// RankedHashes produces.
func SortEntries(entries []*uop.Entry) {
	sortEntries(entries)
}
