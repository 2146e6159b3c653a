package rpcapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aabundler/bundler/bundler"
	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uop"
	"github.com/aabundler/bundler/uopool"
	"github.com/aabundler/bundler/validate"
)

// LogSource is the subset of execution-client access the by-hash/
// receipt queries need once an operation has left the mempool.
type LogSource interface {
	ethereum.LogFilterer
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// PoolAPI is the subset of *uopool.Pool the RPC facade drives. It is
// satisfied directly by *uopool.Pool for an all-in-one daemon, and by
// *grpcapi.UoPoolClient when the rpc process runs split from the
// uopool process (spec §6 CLI surface).
type PoolAPI interface {
	Add(ctx context.Context, op *uop.UserOperation, mode validate.Mode) (common.Hash, error)
	Get(hash common.Hash) (*uop.Entry, bool)
	GetSorted() []*uop.Entry
	Clear()
	DumpReputation() []reputation.Entry
	SetReputation(entries []reputation.Entry)
}

// Backend bundles every collaborator the RPC facade translates calls
// into (spec §4.H). One Backend serves one (entry_point, chain_id)
// mempool; a multi-EntryPoint daemon runs one per supported EntryPoint.
type Backend struct {
	Pool       PoolAPI
	Bundler    *bundler.Bundler
	EntryPoint *entrypoint.Client
	Validator  *validate.Validator
	Logs       LogSource
	ChainID    *big.Int

	SupportedEntryPoints []common.Address
	MaxVerificationGas   uint64
	MaxCallGas           uint64
}

// admissionMode is every check kind RPC admission runs (spec §4.E:
// "RPC admission uses all three").
const admissionMode = validate.Full

func (b *Backend) admit(ctx context.Context, op *uop.UserOperation) (common.Hash, error) {
	return b.Pool.Add(ctx, op, admissionMode)
}

// reputationStatusString renders a reputation.Status the way
// debug_bundler_dumpReputation's wire form expects.
func reputationStatusString(s reputation.Status) string { return s.String() }
