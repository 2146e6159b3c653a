package rpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthAPI implements the ERC-4337 eth_* namespace (spec §4.H). Method
// names are exported Go method names in camel case; the server
// registers this struct under the "eth" RPC namespace, so e.g.
// SendUserOperation is exposed as eth_sendUserOperation.
type EthAPI struct {
	backend *Backend
}

// NewEthAPI wraps backend for registration with an rpc.Server.
func NewEthAPI(backend *Backend) *EthAPI { return &EthAPI{backend: backend} }

// ChainId returns the chain this facade's EntryPoint is bound to.
func (api *EthAPI) ChainId() (hexutil.Uint64, error) {
	return hexutil.Uint64(api.backend.ChainID.Uint64()), nil
}

// SupportedEntryPoints returns every EntryPoint address this daemon
// admits operations against.
func (api *EthAPI) SupportedEntryPoints() []common.Address {
	return api.backend.SupportedEntryPoints
}

func (api *EthAPI) checkEntryPoint(entryPoint common.Address) error {
	for _, ep := range api.backend.SupportedEntryPoints {
		if ep == entryPoint {
			return nil
		}
	}
	return fmt.Errorf("rpcapi: entry point %s is not supported", entryPoint)
}

func (api *EthAPI) decodeOp(rawOp json.RawMessage) (*wireUserOperation, error) {
	if err := validateUserOpShape(rawOp); err != nil {
		return nil, err
	}
	var wire wireUserOperation
	if err := json.Unmarshal(rawOp, &wire); err != nil {
		return nil, fmt.Errorf("rpcapi: decode user operation: %w", err)
	}
	return &wire, nil
}

// SendUserOperation validates and admits op into the mempool,
// returning its canonical hash.
func (api *EthAPI) SendUserOperation(ctx context.Context, rawOp json.RawMessage, entryPoint common.Address) (common.Hash, error) {
	if err := api.checkEntryPoint(entryPoint); err != nil {
		return common.Hash{}, &rpcError{msg: err.Error(), code: -32602}
	}
	wire, err := api.decodeOp(rawOp)
	if err != nil {
		return common.Hash{}, &rpcError{msg: err.Error(), code: -32602}
	}
	op, err := fromWire(wire)
	if err != nil {
		return common.Hash{}, &rpcError{msg: err.Error(), code: -32602}
	}

	hash, err := api.backend.admit(ctx, op)
	if err != nil {
		return common.Hash{}, codeFor(err)
	}
	return hash, nil
}

// EstimateUserOperationGas runs the binary-search estimation loop of
// spec §4.B/§4.H and returns the three derived gas fields.
func (api *EthAPI) EstimateUserOperationGas(ctx context.Context, rawOp json.RawMessage, entryPoint common.Address) (*gasEstimate, error) {
	if err := api.checkEntryPoint(entryPoint); err != nil {
		return nil, &rpcError{msg: err.Error(), code: -32602}
	}
	wire, err := api.decodeOp(rawOp)
	if err != nil {
		return nil, &rpcError{msg: err.Error(), code: -32602}
	}
	op, err := fromWire(wire)
	if err != nil {
		return nil, &rpcError{msg: err.Error(), code: -32602}
	}

	estimate, err := estimateGas(ctx, api.backend.EntryPoint, op, api.backend.MaxVerificationGas, api.backend.MaxCallGas)
	if err != nil {
		return nil, codeFor(err)
	}
	return estimate, nil
}

// GetUserOperationByHash returns the operation and its EntryPoint while
// it is still in the mempool. Once it has left the mempool and its
// EntryPoint log is found, the result carries the EntryPoint, block
// number, block hash and transaction hash, but not the operation
// itself. Returns null if the hash is unrecognized.
func (api *EthAPI) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*userOpByHashResult, error) {
	if entry, ok := api.backend.Pool.Get(hash); ok {
		return &userOpByHashResult{
			UserOperation: toWire(entry.Op),
			EntryPoint:    api.backend.EntryPoint.Address(),
		}, nil
	}

	logEntry, tx, receipt, err := api.findIncludedLog(ctx, hash)
	if err != nil {
		return nil, codeFor(err)
	}
	if logEntry == nil {
		return nil, nil
	}
	return &userOpByHashResult{
		EntryPoint:      api.backend.EntryPoint.Address(),
		BlockNumber:     bigToHex(new(big.Int).SetUint64(receipt.BlockNumber.Uint64())),
		BlockHash:       receipt.BlockHash,
		TransactionHash: tx.Hash(),
	}, nil
}

// GetUserOperationReceipt returns the settlement outcome of an
// included operation, or null if it has not landed on-chain yet.
func (api *EthAPI) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*userOpReceipt, error) {
	logEntry, _, receipt, err := api.findIncludedLog(ctx, hash)
	if err != nil {
		return nil, codeFor(err)
	}
	if logEntry == nil {
		return nil, nil
	}
	ops, err := api.backend.EntryPoint.ParseReceipt(receipt)
	if err != nil {
		return nil, codeFor(err)
	}
	for _, o := range ops {
		if o.UserOpHash != hash {
			continue
		}
		out := &userOpReceipt{
			UserOpHash:    hash,
			Sender:        o.Sender,
			Nonce:         bigToHex(o.Nonce),
			ActualGasCost: bigToHex(o.ActualGasCost),
			ActualGasUsed: bigToHex(o.ActualGasUsed),
			Success:       o.Success,
			Receipt:       receipt,
		}
		if o.Paymaster != (common.Address{}) {
			pm := o.Paymaster
			out.Paymaster = &pm
		}
		return out, nil
	}
	return nil, nil
}

// findIncludedLog scans the UserOperationEvent/UserOperationRevertReason
// logs emitted by this facade's EntryPoint for one matching hash,
// returning the matched log plus the enclosing transaction/receipt.
func (api *EthAPI) findIncludedLog(ctx context.Context, hash common.Hash) (*types.Log, *types.Transaction, *types.Receipt, error) {
	entryPoint := api.backend.EntryPoint.Address()
	query := ethereum.FilterQuery{
		Addresses: []common.Address{entryPoint},
		Topics:    [][]common.Hash{nil, {hash}},
	}
	logs, err := api.backend.Logs.FilterLogs(ctx, query)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rpcapi: filter_logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil, nil, nil
	}
	found := logs[0]
	tx, _, err := api.backend.Logs.TransactionByHash(ctx, found.TxHash)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rpcapi: transaction_by_hash(%s): %w", found.TxHash, err)
	}
	receipt, err := api.backend.Logs.TransactionReceipt(ctx, found.TxHash)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rpcapi: transaction_receipt(%s): %w", found.TxHash, err)
	}
	return &found, tx, receipt, nil
}
