package entrypoint

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/aabundler/bundler/tracer"
	"github.com/aabundler/bundler/uop"
)

// depositCacheSize bounds the getDepositInfo cache, matching the
// teacher's own bounded-LRU sizing for per-address chain reads (e.g.
// core/state's account read caches).
const depositCacheSize = 4096

// Backend is the subset of an execution-client connection the Client
// needs: contract calls, transaction submission, and the chain ID used
// to sign and to compute userOp hashes.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client is a typed wrapper around one EntryPoint deployment. Every
// validation/execution RPC it exposes is encoded as a revert: the
// EntryPoint contract always reverts simulateValidation and
// simulateHandleOp, carrying their "return value" as ABI-encoded
// revert data, so Client's job is mostly classifying that revert
// (spec §4.A, §6).
type Client struct {
	address common.Address
	backend Backend
	bound   *bind.BoundContract
	chainID *big.Int

	depositCache *lru.Cache
}

// NewClient binds address against backend. chainID is cached for
// userOp-hash computation; pass nil to have it queried lazily.
func NewClient(address common.Address, backend Backend, chainID *big.Int) *Client {
	cache, _ := lru.New(depositCacheSize)
	return &Client{
		address:      address,
		backend:      backend,
		bound:        bind.NewBoundContract(address, ParsedABI, backend, backend, backend),
		chainID:      chainID,
		depositCache: cache,
	}
}

// Address returns the bound EntryPoint address.
func (c *Client) Address() common.Address { return c.address }

// ChainID returns the cached chain ID, querying and caching it from the
// backend on first use. Callers that need to compute uop.Pack().Hash
// against this EntryPoint should source the chain ID from here so every
// hash in the process agrees.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	c.chainID = id
	return id, nil
}

// UserOpHash returns the EntryPoint-domain hash of op, matching
// uop.Pack().Hash exactly but sourced on-chain for cross-checking.
func (c *Client) UserOpHash(ctx context.Context, op *uop.UserOperation) (common.Hash, error) {
	var out [32]byte
	results := []interface{}{&out}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &results, "getUserOpHash", *op)
	if err != nil {
		return common.Hash{}, &ErrProvider{Inner: err}
	}
	return out, nil
}

// SimulateValidation calls simulateValidation(userOp) and classifies
// the revert it always produces on success into a *ValidationResult,
// or returns a typed failure (*ErrFailedOp, *ErrDecode, or a bare
// revert string wrapped as *ErrExecutionReverted).
func (c *Client) SimulateValidation(ctx context.Context, op *uop.UserOperation) (*ValidationResult, error) {
	input, err := ParsedABI.Pack("simulateValidation", *op)
	if err != nil {
		return nil, &ErrABI{Inner: err}
	}
	msg := ethereum.CallMsg{To: &c.address, Data: input}
	_, err = c.backend.CallContract(ctx, msg, nil)
	if err == nil {
		return nil, errors.New("entrypoint: simulateValidation unexpectedly did not revert")
	}
	revertData, rpcMsg := extractRevertData(err)
	decoded := unpackRevert(revertData, rpcMsg)
	if vr, ok := decoded.(*ValidationResult); ok {
		return vr, nil
	}
	return nil, decoded
}

// SimulateHandleOp calls simulateHandleOp(userOp, target, targetCallData)
// and classifies the revert analogously to SimulateValidation. Passing
// a zero target skips the post-execution probe call.
func (c *Client) SimulateHandleOp(ctx context.Context, op *uop.UserOperation, target common.Address, targetCallData []byte) (*ExecutionResult, error) {
	input, err := ParsedABI.Pack("simulateHandleOp", *op, target, targetCallData)
	if err != nil {
		return nil, &ErrABI{Inner: err}
	}
	msg := ethereum.CallMsg{To: &c.address, Data: input}
	_, err = c.backend.CallContract(ctx, msg, nil)
	if err == nil {
		return nil, errors.New("entrypoint: simulateHandleOp unexpectedly did not revert")
	}
	revertData, rpcMsg := extractRevertData(err)
	decoded := unpackRevert(revertData, rpcMsg)
	if er, ok := decoded.(*ExecutionResult); ok {
		return er, nil
	}
	return nil, decoded
}

// SimulateValidationTrace runs simulateValidation(userOp) under the
// validation JS tracer and returns the decoded call-level trace,
// for the simulation-trace checks in the validate package (spec §4.B,
// §4.E). rpcClient must be dialed against the execution client's
// debug namespace.
func (c *Client) SimulateValidationTrace(ctx context.Context, rpcClient tracer.Caller, op *uop.UserOperation) (*tracer.TraceFrame, error) {
	input, err := ParsedABI.Pack("simulateValidation", *op)
	if err != nil {
		return nil, &ErrABI{Inner: err}
	}
	frame, err := tracer.Trace(ctx, rpcClient, c.address, input)
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return frame, nil
}

// GetSenderAddress calls getSenderAddress(initCode), which the
// EntryPoint also always reverts, carrying the computed address as a
// SenderAddressResult(address) error.
func (c *Client) GetSenderAddress(ctx context.Context, initCode []byte) (common.Address, error) {
	input, err := ParsedABI.Pack("getSenderAddress", initCode)
	if err != nil {
		return common.Address{}, &ErrABI{Inner: err}
	}
	msg := ethereum.CallMsg{To: &c.address, Data: input}
	_, err = c.backend.CallContract(ctx, msg, nil)
	if err == nil {
		return common.Address{}, errors.New("entrypoint: getSenderAddress unexpectedly did not revert")
	}
	revertData, rpcMsg := extractRevertData(err)
	decoded := unpackRevert(revertData, rpcMsg)
	if sr, ok := decoded.(*senderAddressResult); ok {
		return sr.Sender, nil
	}
	return common.Address{}, decoded
}

// HandleOps builds and signs ops as a single handleOps transaction,
// crediting beneficiary for the bundle's collected fees, and returns
// the signed transaction; it is broadcast only when opts.NoSend is
// false. Reverts here are real failures, not the simulate* encoding
// trick, and are classified the same way.
func (c *Client) HandleOps(ctx context.Context, opts *bind.TransactOpts, ops []*uop.UserOperation, beneficiary common.Address) (*types.Transaction, error) {
	packed := make([]uop.UserOperation, len(ops))
	for i, op := range ops {
		packed[i] = *op
	}
	tx, err := c.bound.Transact(opts, "handleOps", packed, beneficiary)
	if err != nil {
		revertData, rpcMsg := extractRevertData(err)
		if len(revertData) > 0 {
			return nil, unpackRevert(revertData, rpcMsg)
		}
		return nil, &ErrProvider{Inner: err}
	}
	return tx, nil
}

// GetDepositInfo reads an account's EntryPoint deposit/stake record,
// serving it from depositCache when validate's sanity and
// simulation-trace checks (validate/sanity.go, validate/trace.go) ask
// for the same account repeatedly within one block. PurgeDepositCache
// drops the cache each new block, the only point deposit/stake values
// can change.
func (c *Client) GetDepositInfo(ctx context.Context, account common.Address) (*DepositInfo, error) {
	if cached, ok := c.depositCache.Get(account); ok {
		return cached.(*DepositInfo), nil
	}
	var raw struct {
		Deposit         *big.Int
		Staked          bool
		Stake           *big.Int
		UnstakeDelaySec uint32
		WithdrawTime    *big.Int
	}
	results := []interface{}{&raw}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &results, "getDepositInfo", account); err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	info := &DepositInfo{
		Deposit:         raw.Deposit,
		Staked:          raw.Staked,
		Stake:           raw.Stake,
		UnstakeDelaySec: raw.UnstakeDelaySec,
		WithdrawTime:    raw.WithdrawTime.Uint64(),
	}
	c.depositCache.Add(account, info)
	return info, nil
}

// PurgeDepositCache drops every cached deposit/stake row. The uopool
// package calls this from OnNewBlock, since a landed block is the only
// event that can change an account's deposit or stake.
func (c *Client) PurgeDepositCache() {
	c.depositCache.Purge()
}

// BalanceOf returns an account's EntryPoint deposit balance.
func (c *Client) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out *big.Int
	results := []interface{}{&out}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &results, "balanceOf", account); err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return out, nil
}

// DepositTo tops up account's EntryPoint deposit by opts.Value.
func (c *Client) DepositTo(opts *bind.TransactOpts, account common.Address) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "depositTo", account)
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return tx, nil
}

// AddStake locks opts.Value as stake with the given unstake delay.
func (c *Client) AddStake(opts *bind.TransactOpts, unstakeDelaySec uint32) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "addStake", unstakeDelaySec)
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return tx, nil
}

// UnlockStake starts the unstake delay countdown on the signer's stake.
func (c *Client) UnlockStake(opts *bind.TransactOpts) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "unlockStake")
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return tx, nil
}

// WithdrawStake withdraws the signer's unlocked stake to withdrawAddress.
func (c *Client) WithdrawStake(opts *bind.TransactOpts, withdrawAddress common.Address) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "withdrawStake", withdrawAddress)
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return tx, nil
}

// WithdrawTo withdraws withdrawAmount of the signer's deposit to withdrawAddress.
func (c *Client) WithdrawTo(opts *bind.TransactOpts, withdrawAddress common.Address, withdrawAmount *big.Int) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "withdrawTo", withdrawAddress, withdrawAmount)
	if err != nil {
		return nil, &ErrProvider{Inner: err}
	}
	return tx, nil
}

// IncludedOp is one UserOperationEvent or UserOperationRevertReason
// found in a handleOps transaction's receipt, used by the uopool
// package to settle reputation and mempool state after a block lands.
type IncludedOp struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
	RevertReason  []byte
}

// ParseReceipt decodes every UserOperationEvent/UserOperationRevertReason
// log emitted by the EntryPoint in receipt.
func (c *Client) ParseReceipt(receipt *types.Receipt) ([]IncludedOp, error) {
	bySender := make(map[common.Hash]*IncludedOp)
	var order []common.Hash
	eventTopic := ParsedABI.Events["UserOperationEvent"].ID
	revertTopic := ParsedABI.Events["UserOperationRevertReason"].ID

	for _, logEntry := range receipt.Logs {
		if logEntry.Address != c.address || len(logEntry.Topics) == 0 {
			continue
		}
		switch logEntry.Topics[0] {
		case eventTopic:
			if len(logEntry.Topics) < 4 {
				continue
			}
			var data struct {
				Nonce         *big.Int
				Success       bool
				ActualGasCost *big.Int
				ActualGasUsed *big.Int
			}
			if err := ParsedABI.UnpackIntoInterface(&data, "UserOperationEvent", logEntry.Data); err != nil {
				return nil, &ErrDecode{Inner: err}
			}
			hash := logEntry.Topics[1]
			op := &IncludedOp{
				UserOpHash:    hash,
				Sender:        common.BytesToAddress(logEntry.Topics[2].Bytes()),
				Paymaster:     common.BytesToAddress(logEntry.Topics[3].Bytes()),
				Nonce:         data.Nonce,
				Success:       data.Success,
				ActualGasCost: data.ActualGasCost,
				ActualGasUsed: data.ActualGasUsed,
			}
			bySender[hash] = op
			order = append(order, hash)
		case revertTopic:
			if len(logEntry.Topics) < 3 {
				continue
			}
			var data struct {
				Nonce        *big.Int
				RevertReason []byte
			}
			if err := ParsedABI.UnpackIntoInterface(&data, "UserOperationRevertReason", logEntry.Data); err != nil {
				return nil, &ErrDecode{Inner: err}
			}
			hash := logEntry.Topics[1]
			if existing, ok := bySender[hash]; ok {
				existing.RevertReason = data.RevertReason
				continue
			}
			op := &IncludedOp{
				UserOpHash:   hash,
				Sender:       common.BytesToAddress(logEntry.Topics[2].Bytes()),
				Nonce:        data.Nonce,
				RevertReason: data.RevertReason,
			}
			bySender[hash] = op
			order = append(order, hash)
		}
	}

	out := make([]IncludedOp, 0, len(order))
	for _, hash := range order {
		out = append(out, *bySender[hash])
	}
	return out, nil
}

// extractRevertData pulls the ABI-encoded revert payload out of an RPC
// error. go-ethereum's json-rpc client surfaces this via
// rpc.DataError; other transports may only carry the message string,
// in which case revertData is nil and the caller falls back to it.
func extractRevertData(err error) (revertData []byte, message string) {
	message = err.Error()
	var dataErr interface{ ErrorData() interface{} }
	if !errors.As(err, &dataErr) {
		return nil, message
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		revertData = common.FromHex(v)
	case []byte:
		revertData = v
	default:
		log.Debug("entrypoint: revert data of unexpected type", "type", v)
	}
	return revertData, message
}
