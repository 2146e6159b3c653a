package uop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role identifies one of the three entity kinds a UserOperation can
// reference.
type Role uint8

const (
	RoleSender Role = iota
	RoleFactory
	RolePaymaster
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleFactory:
		return "factory"
	case RolePaymaster:
		return "paymaster"
	default:
		return "unknown"
	}
}

// Entry pairs a signed operation with its canonical hash and the
// metadata the mempool and validator need without re-deriving it.
type Entry struct {
	Hash             common.Hash
	Op               *UserOperation
	EntryPoint       common.Address
	ChainID          *big.Int
	VerifiedBlock    common.Hash
	CodeHashes       map[common.Address]common.Hash
	SubmittedAt      int64 // unix seconds, set by the pool on admit
}

// Entities returns the non-sender entity addresses referenced by the
// entry, in a stable order (factory, then paymaster).
func (e *Entry) Entities() []common.Address {
	var out []common.Address
	if addr, ok := e.Op.Factory(); ok {
		out = append(out, addr)
	}
	if addr, ok := e.Op.Paymaster(); ok {
		out = append(out, addr)
	}
	return out
}

// RoleOf returns the role addr plays with respect to this entry, if any.
func (e *Entry) RoleOf(addr common.Address) (Role, bool) {
	if addr == e.Op.Sender {
		return RoleSender, true
	}
	if f, ok := e.Op.Factory(); ok && f == addr {
		return RoleFactory, true
	}
	if p, ok := e.Op.Paymaster(); ok && p == addr {
		return RolePaymaster, true
	}
	return 0, false
}

// NewEntry derives an Entry from a signed operation.
func NewEntry(op *UserOperation, entryPoint common.Address, chainID *big.Int) (*Entry, error) {
	h, err := op.Hash(entryPoint, chainID)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Hash:       h,
		Op:         op,
		EntryPoint: entryPoint,
		ChainID:    chainID,
	}, nil
}

// MempoolID is keccak(checksum(entry_point) ∥ chain_id); there is one
// logical mempool per (entry_point, chain_id) pair.
func MempoolID(entryPoint common.Address, chainID *big.Int) common.Hash {
	enc, err := hashArgs[1:].Pack(entryPoint, chainID)
	if err != nil {
		// entryPoint/chainID are always well-typed; Pack cannot fail here.
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}
