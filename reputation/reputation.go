// Package reputation implements the per-address counters, status
// derivation, decay, and stake verification that throttle or ban
// misbehaving senders, factories, and paymasters.
package reputation

import (
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Status is the derived throttling state of an address.
type Status uint8

const (
	StatusOK Status = iota
	StatusThrottled
	StatusBanned
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusThrottled:
		return "throttled"
	case StatusBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Entry is the per-address reputation row. It is created lazily on
// first touch and removed once both counters decay to zero.
type Entry struct {
	Address     common.Address
	OpsSeen     uint64
	OpsIncluded uint64
	Status      Status
}

// StakeInfo mirrors the EntryPoint's per-entity deposit state.
type StakeInfo struct {
	Address      common.Address
	Stake        *big.Int
	UnstakeDelay *big.Int
}

// IsStaked reports whether both components are positive.
func (s StakeInfo) IsStaked() bool {
	return s.Stake != nil && s.UnstakeDelay != nil &&
		s.Stake.Sign() > 0 && s.UnstakeDelay.Sign() > 0
}

// Config holds the threshold constants from spec §4.D. The zero value
// is not usable; use DefaultConfig.
type Config struct {
	MinInclusionRateDenom uint64
	ThrottlingSlack       uint64
	BanSlack              uint64
}

// DefaultConfig matches the reference bundler's published defaults.
var DefaultConfig = Config{
	MinInclusionRateDenom: 10,
	ThrottlingSlack:       10,
	BanSlack:              50,
}

// Manager is the reputation engine. It is safe for concurrent use,
// though callers orchestrating a larger state transition (admit,
// block update) should still hold their own coordinating lock per
// the concurrency model in spec §5.
type Manager struct {
	cfg Config

	mu        sync.RWMutex
	entries   map[common.Address]*Entry
	whitelist mapset.Set[common.Address]
	blacklist mapset.Set[common.Address]
}

// NewManager builds a reputation engine with cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		entries:   make(map[common.Address]*Entry),
		whitelist: mapset.NewSet[common.Address](),
		blacklist: mapset.NewSet[common.Address](),
	}
}

func (m *Manager) rowLocked(addr common.Address) *Entry {
	e, ok := m.entries[addr]
	if !ok {
		e = &Entry{Address: addr}
		m.entries[addr] = e
	}
	return e
}

// Get returns addr's reputation row, creating an OK row lazily.
func (m *Manager) Get(addr common.Address) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.rowLocked(addr)
	e.Status = m.statusLocked(addr, e)
	return *e
}

// IncrementSeen bumps addr's ops_seen counter by one.
func (m *Manager) IncrementSeen(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowLocked(addr).OpsSeen++
}

// IncrementIncluded bumps addr's ops_included counter by one.
func (m *Manager) IncrementIncluded(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowLocked(addr).OpsIncluded++
}

// HandleOpsRevertedPenalty applies the soft penalty on a submitter
// implicated in a reverted handleOps call: seen=100, included=0.
func (m *Manager) HandleOpsRevertedPenalty(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.rowLocked(addr)
	e.OpsSeen = 100
	e.OpsIncluded = 0
}

// UpdateHourly scales both counters of every row by 23/24 (rounding
// down) and drops any row that decays to zero on both counters.
func (m *Manager) UpdateHourly() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, e := range m.entries {
		e.OpsSeen = e.OpsSeen * 23 / 24
		e.OpsIncluded = e.OpsIncluded * 23 / 24
		if e.OpsSeen == 0 && e.OpsIncluded == 0 {
			delete(m.entries, addr)
		}
	}
}

// statusLocked derives status per spec §3, with whitelist/blacklist
// overriding the counter-derived value. Must be called with m.mu held.
func (m *Manager) statusLocked(addr common.Address, e *Entry) Status {
	if m.whitelist.Contains(addr) {
		return StatusOK
	}
	if m.blacklist.Contains(addr) {
		return StatusBanned
	}
	if e == nil {
		return StatusOK
	}
	expected := e.OpsSeen / m.cfg.MinInclusionRateDenom
	switch {
	case expected <= e.OpsIncluded+m.cfg.ThrottlingSlack:
		return StatusOK
	case expected <= e.OpsIncluded+m.cfg.BanSlack:
		return StatusThrottled
	default:
		return StatusBanned
	}
}

// StatusOf returns addr's current status without mutating its row.
func (m *Manager) StatusOf(addr common.Address) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked(addr, m.entries[addr])
}

// SetStatus pins addr's counters so its derived status matches status,
// used by debug_bundler_setReputation.
func (m *Manager) SetStatus(addr common.Address, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.rowLocked(addr)
	switch status {
	case StatusOK:
		e.OpsSeen, e.OpsIncluded = 0, 0
	case StatusThrottled:
		e.OpsSeen = (m.cfg.ThrottlingSlack + 1) * m.cfg.MinInclusionRateDenom
		e.OpsIncluded = 0
	case StatusBanned:
		e.OpsSeen = (m.cfg.BanSlack + 1) * m.cfg.MinInclusionRateDenom
		e.OpsIncluded = 0
	}
	e.Status = status
}

// AddWhitelist marks addr as always-OK, returning false if already listed.
func (m *Manager) AddWhitelist(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whitelist.Add(addr)
}

// RemoveWhitelist unmarks addr, returning false if it was not listed.
func (m *Manager) RemoveWhitelist(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whitelist.Remove(addr)
}

// IsWhitelisted reports whether addr is on the whitelist.
func (m *Manager) IsWhitelisted(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.whitelist.Contains(addr)
}

// AddBlacklist marks addr as always-BANNED, returning false if already listed.
func (m *Manager) AddBlacklist(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist.Add(addr)
}

// RemoveBlacklist unmarks addr, returning false if it was not listed.
func (m *Manager) RemoveBlacklist(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist.Remove(addr)
}

// IsBlacklisted reports whether addr is on the blacklist.
func (m *Manager) IsBlacklisted(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blacklist.Contains(addr)
}

// Dump returns every known reputation row, for debug_bundler_dumpReputation.
func (m *Manager) Dump() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for addr, e := range m.entries {
		cp := *e
		cp.Status = m.statusLocked(addr, e)
		out = append(out, cp)
	}
	return out
}

// SetEntries overwrites/creates rows wholesale, for debug_bundler_setReputation.
func (m *Manager) SetEntries(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cp := e
		m.entries[e.Address] = &cp
	}
}

// Clear drops every row, whitelist, and blacklist entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[common.Address]*Entry)
	m.whitelist = mapset.NewSet[common.Address]()
	m.blacklist = mapset.NewSet[common.Address]()
}
