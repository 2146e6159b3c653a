package mempool

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/uop"
)

// Key prefixes for the pebble-backed Store. One physical database
// holds the primary op table plus every secondary index; prefixing
// keeps range scans over each index cheap without separate column
// families (pebble has none).
const (
	prefixOp       = 'o' // op hash -> json(entryRecord)
	prefixSender   = 's' // sender ++ op hash -> nil
	prefixEntity   = 'e' // entity ++ op hash -> nil
	prefixCodeHash = 'c' // op hash -> json([]CodeHash)
)

// entryRecord is the on-disk form of uop.Entry: JSON via the same
// field tags the RPC layer uses, so a dump of the database is
// directly inspectable.
type entryRecord struct {
	Hash          common.Hash        `json:"hash"`
	Op            *uop.UserOperation `json:"op"`
	EntryPoint    common.Address     `json:"entryPoint"`
	ChainID       string             `json:"chainId"`
	VerifiedBlock common.Hash        `json:"verifiedBlock"`
	SubmittedAt   int64              `json:"submittedAt"`
}

// Pebble is the durable Store implementation, grounded on the
// reference bundler's mdbx-backed tables (one table per index, one
// dupsort table per one-to-many relationship): here expressed as key
// prefixes over a single pebble.DB instead, since pebble has no
// native table/dupsort concept.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (creating if necessary) a durable mempool store at dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("mempool: open pebble db: %w", err)
	}
	return &Pebble{db: db}, nil
}

// Close releases the underlying database handle.
func (p *Pebble) Close() error {
	return p.db.Close()
}

func opKey(hash common.Hash) []byte {
	return append([]byte{prefixOp}, hash.Bytes()...)
}

func codeHashKey(hash common.Hash) []byte {
	return append([]byte{prefixCodeHash}, hash.Bytes()...)
}

func indexKey(prefix byte, addr common.Address, hash common.Hash) []byte {
	key := make([]byte, 0, 1+common.AddressLength+common.HashLength)
	key = append(key, prefix)
	key = append(key, addr.Bytes()...)
	key = append(key, hash.Bytes()...)
	return key
}

func indexPrefix(prefix byte, addr common.Address) []byte {
	key := make([]byte, 0, 1+common.AddressLength)
	key = append(key, prefix)
	key = append(key, addr.Bytes()...)
	return key
}

func toRecord(entry *uop.Entry) *entryRecord {
	chainID := ""
	if entry.ChainID != nil {
		chainID = entry.ChainID.String()
	}
	return &entryRecord{
		Hash:          entry.Hash,
		Op:            entry.Op,
		EntryPoint:    entry.EntryPoint,
		ChainID:       chainID,
		VerifiedBlock: entry.VerifiedBlock,
		SubmittedAt:   entry.SubmittedAt,
	}
}

func (r *entryRecord) toEntry() *uop.Entry {
	chainID := new(big.Int)
	if r.ChainID != "" {
		chainID.SetString(r.ChainID, 10)
	}
	return &uop.Entry{
		Hash:          r.Hash,
		Op:            r.Op,
		EntryPoint:    r.EntryPoint,
		ChainID:       chainID,
		VerifiedBlock: r.VerifiedBlock,
		SubmittedAt:   r.SubmittedAt,
	}
}

// Add implements Store.
func (p *Pebble) Add(entry *uop.Entry) (common.Hash, error) {
	rec, err := json.Marshal(toRecord(entry))
	if err != nil {
		return common.Hash{}, fmt.Errorf("mempool: marshal entry: %w", err)
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(opKey(entry.Hash), rec, nil); err != nil {
		return common.Hash{}, err
	}
	if err := batch.Set(indexKey(prefixSender, entry.Op.Sender, entry.Hash), nil, nil); err != nil {
		return common.Hash{}, err
	}
	if factory, ok := entry.Op.Factory(); ok {
		if err := batch.Set(indexKey(prefixEntity, factory, entry.Hash), nil, nil); err != nil {
			return common.Hash{}, err
		}
	}
	if paymaster, ok := entry.Op.Paymaster(); ok {
		if err := batch.Set(indexKey(prefixEntity, paymaster, entry.Hash), nil, nil); err != nil {
			return common.Hash{}, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return common.Hash{}, fmt.Errorf("mempool: commit add: %w", err)
	}
	return entry.Hash, nil
}

// Get implements Store.
func (p *Pebble) Get(hash common.Hash) (*uop.Entry, bool) {
	value, closer, err := p.db.Get(opKey(hash))
	if err != nil {
		return nil, false
	}
	defer closer.Close()

	var rec entryRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, false
	}
	return rec.toEntry(), true
}

func (p *Pebble) hashesByIndex(prefix byte, addr common.Address) []common.Hash {
	lower := indexPrefix(prefix, addr)
	upper := make([]byte, len(lower)+common.HashLength+1)
	copy(upper, lower)
	for i := len(lower); i < len(upper); i++ {
		upper[i] = 0xff
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil
	}
	defer iter.Close()

	var hashes []common.Hash
	for iter.SeekGE(lower); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != 1+common.AddressLength+common.HashLength {
			continue
		}
		hashes = append(hashes, common.BytesToHash(key[1+common.AddressLength:]))
	}
	return hashes
}

// GetBySender implements Store.
func (p *Pebble) GetBySender(sender common.Address) []*uop.Entry {
	hashes := p.hashesByIndex(prefixSender, sender)
	out := make([]*uop.Entry, 0, len(hashes))
	for _, h := range hashes {
		if e, ok := p.Get(h); ok {
			out = append(out, e)
		}
	}
	return out
}

// GetNumberBySender implements Store.
func (p *Pebble) GetNumberBySender(sender common.Address) int {
	return len(p.hashesByIndex(prefixSender, sender))
}

// GetNumberByEntity implements Store.
func (p *Pebble) GetNumberByEntity(entity common.Address) int {
	return len(p.hashesByIndex(prefixEntity, entity))
}

// GetPrevBySender implements Store.
func (p *Pebble) GetPrevBySender(op *uop.UserOperation) (*uop.Entry, bool) {
	var best *uop.Entry
	for _, e := range p.GetBySender(op.Sender) {
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
func (p *Pebble) Remove(hash common.Hash) bool {
	entry, ok := p.Get(hash)
	if !ok {
		return false
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	batch.Delete(opKey(hash), nil)
	batch.Delete(indexKey(prefixSender, entry.Op.Sender, hash), nil)
	if factory, ok := entry.Op.Factory(); ok {
		batch.Delete(indexKey(prefixEntity, factory, hash), nil)
	}
	if paymaster, ok := entry.Op.Paymaster(); ok {
		batch.Delete(indexKey(prefixEntity, paymaster, hash), nil)
	}
	batch.Delete(codeHashKey(hash), nil)
	return batch.Commit(pebble.Sync) == nil
}

// RemoveByEntity implements Store.
func (p *Pebble) RemoveByEntity(entity common.Address) {
	for _, h := range p.hashesByIndex(prefixEntity, entity) {
		p.Remove(h)
	}
}

// HasCodeHashes implements Store.
func (p *Pebble) HasCodeHashes(hash common.Hash) bool {
	_, closer, err := p.db.Get(codeHashKey(hash))
	if err != nil {
		return false
	}
	closer.Close()
	return true
}

// SetCodeHashes implements Store.
func (p *Pebble) SetCodeHashes(hash common.Hash, hashes []CodeHash) {
	enc, err := json.Marshal(hashes)
	if err != nil {
		return
	}
	p.db.Set(codeHashKey(hash), enc, pebble.Sync)
}

// GetCodeHashes implements Store.
func (p *Pebble) GetCodeHashes(hash common.Hash) []CodeHash {
	value, closer, err := p.db.Get(codeHashKey(hash))
	if err != nil {
		return nil
	}
	defer closer.Close()

	var hashes []CodeHash
	if err := json.Unmarshal(value, &hashes); err != nil {
		return nil
	}
	return hashes
}

// RemoveCodeHashes implements Store.
func (p *Pebble) RemoveCodeHashes(hash common.Hash) {
	p.db.Delete(codeHashKey(hash), pebble.Sync)
}

// GetSorted implements Store.
func (p *Pebble) GetSorted() []*uop.Entry {
	entries := p.GetAll()
	sortEntries(entries)
	return entries
}

// RankedHashes implements Store. The durable store keeps no live
// ranked index of its own (pebble has no sorted-set primitive), so it
// falls back to a full exact sort (GetSorted) truncated to limit, at
// the same cost as GetSorted itself.
func (p *Pebble) RankedHashes(limit int) []common.Hash {
	entries := p.GetSorted()
	if limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]common.Hash, len(entries))
	for i, e := range entries {
		out[i] = e.Hash
	}
	return out
}

// GetAll implements Store.
func (p *Pebble) GetAll() []*uop.Entry {
	lower := []byte{prefixOp}
	upper := []byte{prefixOp + 1}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil
	}
	defer iter.Close()

	var out []*uop.Entry
	for iter.SeekGE(lower); iter.Valid(); iter.Next() {
		var rec entryRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, rec.toEntry())
	}
	return out
}

// Clear implements Store: drops every key this store owns.
func (p *Pebble) Clear() {
	p.db.DeleteRange([]byte{0}, []byte{0xff}, pebble.Sync)
}
