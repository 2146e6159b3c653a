package reputation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func randAddr(t *testing.T, seed byte) common.Address {
	t.Helper()
	var a common.Address
	a[0] = seed
	a[19] = seed
	return a
}

func TestReputationLifecycle(t *testing.T) {
	m := NewManager(DefaultConfig)

	var addrs []common.Address
	for i := byte(0); i < 5; i++ {
		addr := randAddr(t, i+1)
		e := m.Get(addr)
		if e.OpsSeen != 0 || e.OpsIncluded != 0 || e.Status != StatusOK {
			t.Fatalf("unexpected fresh entry: %+v", e)
		}
		addrs = append(addrs, addr)
	}

	if !m.AddWhitelist(addrs[2]) {
		t.Fatal("expected first whitelist add to succeed")
	}
	if !m.AddBlacklist(addrs[1]) {
		t.Fatal("expected first blacklist add to succeed")
	}

	if !m.IsWhitelisted(addrs[2]) || m.IsWhitelisted(addrs[1]) {
		t.Fatal("whitelist membership wrong")
	}
	if !m.IsBlacklisted(addrs[1]) || m.IsBlacklisted(addrs[2]) {
		t.Fatal("blacklist membership wrong")
	}

	if !m.RemoveWhitelist(addrs[2]) || m.RemoveWhitelist(addrs[1]) {
		t.Fatal("whitelist removal wrong")
	}
	if !m.RemoveBlacklist(addrs[1]) || m.RemoveBlacklist(addrs[2]) {
		t.Fatal("blacklist removal wrong")
	}

	m.AddWhitelist(addrs[2])
	m.AddBlacklist(addrs[1])

	if got := m.StatusOf(addrs[2]); got != StatusOK {
		t.Errorf("whitelisted status = %v, want OK", got)
	}
	if got := m.StatusOf(addrs[1]); got != StatusBanned {
		t.Errorf("blacklisted status = %v, want BANNED", got)
	}
	if got := m.StatusOf(addrs[3]); got != StatusOK {
		t.Errorf("untouched status = %v, want OK", got)
	}

	m.IncrementSeen(addrs[2])
	m.IncrementSeen(addrs[2])
	m.IncrementSeen(addrs[3])
	m.IncrementSeen(addrs[3])

	m.IncrementIncluded(addrs[2])
	m.IncrementIncluded(addrs[2])
	m.IncrementIncluded(addrs[3])

	m.HandleOpsRevertedPenalty(addrs[3])

	for i := 0; i < 250; i++ {
		m.IncrementSeen(addrs[3])
	}
	if got := m.StatusOf(addrs[3]); got != StatusThrottled {
		t.Errorf("after 250 seen, status = %v, want THROTTLED", got)
	}

	for i := 0; i < 500; i++ {
		m.IncrementSeen(addrs[3])
	}
	if got := m.StatusOf(addrs[3]); got != StatusBanned {
		t.Errorf("after 750 seen, status = %v, want BANNED", got)
	}
}

func TestUpdateHourlyDecaysAndDrops(t *testing.T) {
	m := NewManager(DefaultConfig)
	addr := randAddr(t, 9)
	m.IncrementSeen(addr)
	m.UpdateHourly()
	e := m.Get(addr)
	if e.OpsSeen != 0 {
		t.Fatalf("1*23/24 should floor to 0, got %d", e.OpsSeen)
	}

	addr2 := randAddr(t, 10)
	for i := 0; i < 48; i++ {
		m.IncrementSeen(addr2)
	}
	m.UpdateHourly()
	if got := m.Get(addr2).OpsSeen; got != 46 {
		t.Fatalf("48*23/24 = 46, got %d", got)
	}
}

func TestHandleOpsRevertedPenalty(t *testing.T) {
	m := NewManager(DefaultConfig)
	addr := randAddr(t, 3)
	m.IncrementIncluded(addr)
	m.HandleOpsRevertedPenalty(addr)
	e := m.Get(addr)
	if e.OpsSeen != 100 || e.OpsIncluded != 0 {
		t.Fatalf("expected seen=100 included=0, got %+v", e)
	}
}
