package mempool

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/wangjia184/sortedset"

	"github.com/aabundler/bundler/uop"
)

// Memory is the in-memory Store implementation: a concurrent primary
// map keyed by op hash, plus mutex-guarded secondary indices. Grounded
// on the reference implementation's plain HashMap-per-index layout
// (each index only ever needs to be rebuilt from the primary map, so
// losing it on restart is harmless).
type Memory struct {
	ops *xsync.MapOf[common.Hash, *uop.Entry]

	mu         sync.RWMutex
	bySender   map[common.Address]map[common.Hash]struct{}
	byEntity   map[common.Address]map[common.Hash]struct{}
	codeHashes map[common.Hash][]CodeHash

	// ranked is an approximate fee-ordered preview of the mempool,
	// keyed by hash hex with a float64 priority-fee score; GetSorted
	// never trusts it for ordering decisions. RankedHashes does, and
	// feeds uopool's candidate-preview pass ahead of the bundler's
	// exact re-sort.
	ranked *sortedset.SortedSet
}

// NewMemory returns an empty in-memory mempool store.
func NewMemory() *Memory {
	return &Memory{
		ops:        xsync.NewMapOf[common.Hash, *uop.Entry](),
		bySender:   make(map[common.Address]map[common.Hash]struct{}),
		byEntity:   make(map[common.Address]map[common.Hash]struct{}),
		codeHashes: make(map[common.Hash][]CodeHash),
		ranked:     sortedset.New(),
	}
}

func addIndex(idx map[common.Address]map[common.Hash]struct{}, addr common.Address, hash common.Hash) {
	set, ok := idx[addr]
	if !ok {
		set = make(map[common.Hash]struct{})
		idx[addr] = set
	}
	set[hash] = struct{}{}
}

func removeIndex(idx map[common.Address]map[common.Hash]struct{}, addr common.Address, hash common.Hash) {
	set, ok := idx[addr]
	if !ok {
		return
	}
	delete(set, hash)
	if len(set) == 0 {
		delete(idx, addr)
	}
}

// Add implements Store.
func (m *Memory) Add(entry *uop.Entry) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops.Store(entry.Hash, entry)
	addIndex(m.bySender, entry.Op.Sender, entry.Hash)
	if factory, ok := entry.Op.Factory(); ok {
		addIndex(m.byEntity, factory, entry.Hash)
	}
	if paymaster, ok := entry.Op.Paymaster(); ok {
		addIndex(m.byEntity, paymaster, entry.Hash)
	}
	m.ranked.AddOrUpdate(entry.Hash.Hex(), feeScore(entry.Op.MaxPriorityFeePerGas), entry.Hash)
	return entry.Hash, nil
}

// Get implements Store.
func (m *Memory) Get(hash common.Hash) (*uop.Entry, bool) {
	return m.ops.Load(hash)
}

// GetBySender implements Store.
func (m *Memory) GetBySender(sender common.Address) []*uop.Entry {
	m.mu.RLock()
	hashes := make([]common.Hash, 0, len(m.bySender[sender]))
	for h := range m.bySender[sender] {
		hashes = append(hashes, h)
	}
	m.mu.RUnlock()

	out := make([]*uop.Entry, 0, len(hashes))
	for _, h := range hashes {
		if e, ok := m.ops.Load(h); ok {
			out = append(out, e)
		}
	}
	return out
}

// GetNumberBySender implements Store.
func (m *Memory) GetNumberBySender(sender common.Address) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySender[sender])
}

// GetNumberByEntity implements Store.
func (m *Memory) GetNumberByEntity(entity common.Address) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byEntity[entity])
}

// GetPrevBySender implements Store: of every entry sharing op.Sender,
// returns the one with the matching nonce, preferring the highest
// priority fee if more than one somehow shares it.
func (m *Memory) GetPrevBySender(op *uop.UserOperation) (*uop.Entry, bool) {
	var best *uop.Entry
	for _, e := range m.GetBySender(op.Sender) {
		if e.Op.Nonce.Cmp(op.Nonce) != 0 {
			continue
		}
		if best == nil || e.Op.MaxPriorityFeePerGas.Cmp(best.Op.MaxPriorityFeePerGas) > 0 {
			best = e
		}
	}
	return best, best != nil
}

// Remove implements Store.
func (m *Memory) Remove(hash common.Hash) bool {
	entry, ok := m.ops.Load(hash)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops.Delete(hash)
	removeIndex(m.bySender, entry.Op.Sender, hash)
	if factory, ok := entry.Op.Factory(); ok {
		removeIndex(m.byEntity, factory, hash)
	}
	if paymaster, ok := entry.Op.Paymaster(); ok {
		removeIndex(m.byEntity, paymaster, hash)
	}
	delete(m.codeHashes, hash)
	m.ranked.Remove(hash.Hex())
	return true
}

// RemoveByEntity implements Store.
func (m *Memory) RemoveByEntity(entity common.Address) {
	m.mu.RLock()
	hashes := make([]common.Hash, 0, len(m.byEntity[entity]))
	for h := range m.byEntity[entity] {
		hashes = append(hashes, h)
	}
	m.mu.RUnlock()

	for _, h := range hashes {
		m.Remove(h)
	}
}

// HasCodeHashes implements Store.
func (m *Memory) HasCodeHashes(hash common.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.codeHashes[hash]
	return ok
}

// SetCodeHashes implements Store.
func (m *Memory) SetCodeHashes(hash common.Hash, hashes []CodeHash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codeHashes[hash] = hashes
}

// GetCodeHashes implements Store.
func (m *Memory) GetCodeHashes(hash common.Hash) []CodeHash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codeHashes[hash]
}

// RemoveCodeHashes implements Store.
func (m *Memory) RemoveCodeHashes(hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codeHashes, hash)
}

// GetSorted implements Store.
func (m *Memory) GetSorted() []*uop.Entry {
	entries := m.GetAll()
	sortEntries(entries)
	return entries
}

// GetAll implements Store.
func (m *Memory) GetAll() []*uop.Entry {
	out := make([]*uop.Entry, 0, m.ops.Size())
	m.ops.Range(func(_ common.Hash, e *uop.Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// RankedHashes implements Store: it returns up to limit op hashes
// ordered by the live fee-score index, without touching the primary
// map. Approximate because the score is a float64 cast of the
// priority fee; uopool.Pool.RankedCandidates exactly re-sorts the
// small slice this returns.
func (m *Memory) RankedHashes(limit int) []common.Hash {
	nodes := m.ranked.GetByRankRange(-1, -limit, false)
	out := make([]common.Hash, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Value.(common.Hash))
	}
	return out
}

// Clear implements Store.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = xsync.NewMapOf[common.Hash, *uop.Entry]()
	m.bySender = make(map[common.Address]map[common.Hash]struct{})
	m.byEntity = make(map[common.Address]map[common.Hash]struct{})
	m.codeHashes = make(map[common.Hash][]CodeHash)
	m.ranked = sortedset.New()
}

// feeScore casts a priority fee to the float64 score sortedset
// requires. Exact ordering decisions must still go through
// sortEntries, which compares the underlying *big.Int values.
func feeScore(fee *big.Int) sortedset.SCORE {
	f, _ := new(big.Float).SetInt(fee).Float64()
	return sortedset.SCORE(f)
}
