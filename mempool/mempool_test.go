package mempool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/uop"
)

func newTestEntry(t *testing.T, sender common.Address, nonce int64, priorityFee int64) *uop.Entry {
	t.Helper()
	op := &uop.UserOperation{
		Sender:               sender,
		Nonce:                big.NewInt(nonce),
		InitCode:             nil,
		CallData:             []byte{0x01},
		CallGasLimit:         big.NewInt(100000),
		VerificationGasLimit: big.NewInt(100000),
		PreVerificationGas:   big.NewInt(21000),
		MaxFeePerGas:         big.NewInt(priorityFee + 10),
		MaxPriorityFeePerGas: big.NewInt(priorityFee),
		PaymasterAndData:     nil,
		Signature:            []byte{0x02},
	}
	entryPoint := common.HexToAddress("0xE0000000000000000000000000000000000001")
	entry, err := uop.NewEntry(op, entryPoint, big.NewInt(1))
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return entry
}

func TestMemoryAddGetRemove(t *testing.T) {
	store := NewMemory()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	entry := newTestEntry(t, sender, 0, 5)

	hash, err := store.Add(entry)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if hash != entry.Hash {
		t.Fatalf("Add returned %s, want %s", hash, entry.Hash)
	}

	got, ok := store.Get(hash)
	if !ok || got.Hash != entry.Hash {
		t.Fatalf("Get did not return the added entry")
	}

	if n := store.GetNumberBySender(sender); n != 1 {
		t.Fatalf("GetNumberBySender = %d, want 1", n)
	}

	if !store.Remove(hash) {
		t.Fatalf("Remove returned false for an existing entry")
	}
	if _, ok := store.Get(hash); ok {
		t.Fatalf("entry still present after Remove")
	}
	if store.Remove(hash) {
		t.Fatalf("Remove returned true for an already-removed entry")
	}
}

func TestMemoryGetPrevBySenderReplacement(t *testing.T) {
	store := NewMemory()
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	first := newTestEntry(t, sender, 3, 5)
	if _, err := store.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	replacement := newTestEntry(t, sender, 3, 20)
	prev, ok := store.GetPrevBySender(replacement.Op)
	if !ok || prev.Hash != first.Hash {
		t.Fatalf("GetPrevBySender did not find the existing op at the same nonce")
	}
	if !MeetsReplacementBump(replacement.Op, prev.Op, 10) {
		t.Fatalf("expected a 4x fee bump to clear a 10%% replacement threshold")
	}

	stale := newTestEntry(t, sender, 3, 5)
	if MeetsReplacementBump(stale.Op, prev.Op, 10) {
		t.Fatalf("an identical fee should not clear a positive replacement threshold")
	}
}

func TestMemoryGetSortedOrdering(t *testing.T) {
	store := NewMemory()
	senderA := common.HexToAddress("0x3333333333333333333333333333333333333333")
	senderB := common.HexToAddress("0x4444444444444444444444444444444444444444")

	low := newTestEntry(t, senderA, 0, 1)
	high := newTestEntry(t, senderB, 0, 10)
	tieLowNonce := newTestEntry(t, senderA, 1, 10)

	for _, e := range []*uop.Entry{low, high, tieLowNonce} {
		if _, err := store.Add(e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	sorted := store.GetSorted()
	if len(sorted) != 3 {
		t.Fatalf("GetSorted returned %d entries, want 3", len(sorted))
	}
	if sorted[0].Op.MaxPriorityFeePerGas.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("highest priority fee should sort first")
	}
	if sorted[len(sorted)-1].Op.MaxPriorityFeePerGas.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("lowest priority fee should sort last")
	}
}

func TestMemoryRemoveByEntity(t *testing.T) {
	store := NewMemory()
	factory := common.HexToAddress("0x5555555555555555555555555555555555555555")
	sender := common.HexToAddress("0x6666666666666666666666666666666666666666")

	entry := newTestEntry(t, sender, 0, 5)
	entry.Op.InitCode = append(factory.Bytes(), 0x01)
	if _, err := store.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := store.GetNumberByEntity(factory); n != 1 {
		t.Fatalf("GetNumberByEntity = %d, want 1", n)
	}

	store.RemoveByEntity(factory)
	if _, ok := store.Get(entry.Hash); ok {
		t.Fatalf("entry should have been removed along with its factory")
	}
	if n := store.GetNumberByEntity(factory); n != 0 {
		t.Fatalf("GetNumberByEntity after removal = %d, want 0", n)
	}
}

func TestMemoryCodeHashes(t *testing.T) {
	store := NewMemory()
	entry := newTestEntry(t, common.HexToAddress("0x7777777777777777777777777777777777777777"), 0, 1)
	if _, err := store.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if store.HasCodeHashes(entry.Hash) {
		t.Fatalf("HasCodeHashes should be false before SetCodeHashes")
	}

	want := []CodeHash{{Address: entry.Op.Sender, Hash: common.HexToHash("0xaa")}}
	store.SetCodeHashes(entry.Hash, want)
	if !store.HasCodeHashes(entry.Hash) {
		t.Fatalf("HasCodeHashes should be true after SetCodeHashes")
	}
	got := store.GetCodeHashes(entry.Hash)
	if len(got) != 1 || got[0].Hash != want[0].Hash {
		t.Fatalf("GetCodeHashes = %+v, want %+v", got, want)
	}

	store.RemoveCodeHashes(entry.Hash)
	if store.HasCodeHashes(entry.Hash) {
		t.Fatalf("HasCodeHashes should be false after RemoveCodeHashes")
	}
}

func TestMemoryClear(t *testing.T) {
	store := NewMemory()
	entry := newTestEntry(t, common.HexToAddress("0x8888888888888888888888888888888888888888"), 0, 1)
	if _, err := store.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.Clear()
	if all := store.GetAll(); len(all) != 0 {
		t.Fatalf("GetAll after Clear = %d entries, want 0", len(all))
	}
}
