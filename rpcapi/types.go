// Package rpcapi implements the ERC-4337 eth_*/debug_* JSON-RPC
// surface (spec §4.H, §6): a thin translation layer from the wire
// encoding (0x-hex numbers, EIP-55 addresses, null for absent
// optionals) to the uopool/bundler operations that do the real work.
package rpcapi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/aabundler/bundler/uop"
)

// wireUserOperation is the JSON-RPC wire shape of a UserOperation:
// every numeric field is a 0x-hex string, every byte field is 0x-hex,
// matching §6's "all numeric fields encoded as 0x-hex strings".
type wireUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func fromWire(w *wireUserOperation) (*uop.UserOperation, error) {
	if w == nil {
		return nil, fmt.Errorf("rpcapi: missing user operation")
	}
	required := map[string]*hexutil.Big{
		"nonce": w.Nonce, "callGasLimit": w.CallGasLimit,
		"verificationGasLimit": w.VerificationGasLimit, "preVerificationGas": w.PreVerificationGas,
		"maxFeePerGas": w.MaxFeePerGas, "maxPriorityFeePerGas": w.MaxPriorityFeePerGas,
	}
	for name, v := range required {
		if v == nil {
			return nil, fmt.Errorf("rpcapi: field %q is required", name)
		}
	}
	return &uop.UserOperation{
		Sender:               w.Sender,
		Nonce:                (*big.Int)(w.Nonce),
		InitCode:             []byte(w.InitCode),
		CallData:             []byte(w.CallData),
		CallGasLimit:         (*big.Int)(w.CallGasLimit),
		VerificationGasLimit: (*big.Int)(w.VerificationGasLimit),
		PreVerificationGas:   (*big.Int)(w.PreVerificationGas),
		MaxFeePerGas:         (*big.Int)(w.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(w.MaxPriorityFeePerGas),
		PaymasterAndData:     []byte(w.PaymasterAndData),
		Signature:            []byte(w.Signature),
	}, nil
}

func toWire(op *uop.UserOperation) *wireUserOperation {
	return &wireUserOperation{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(op.Nonce),
		InitCode:             hexutil.Bytes(op.InitCode),
		CallData:             hexutil.Bytes(op.CallData),
		CallGasLimit:         (*hexutil.Big)(op.CallGasLimit),
		VerificationGasLimit: (*hexutil.Big)(op.VerificationGasLimit),
		PreVerificationGas:   (*hexutil.Big)(op.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(op.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexutil.Bytes(op.PaymasterAndData),
		Signature:            hexutil.Bytes(op.Signature),
	}
}

func bigToHex(v *big.Int) *hexutil.Big { return (*hexutil.Big)(v) }

// gasEstimate is the result of eth_estimateUserOperationGas.
type gasEstimate struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

// userOpByHashResult is the result of eth_getUserOperationByHash.
type userOpByHashResult struct {
	UserOperation *wireUserOperation `json:"userOperation"`
	EntryPoint    common.Address     `json:"entryPoint"`
	BlockNumber   *hexutil.Big       `json:"blockNumber"`
	BlockHash     common.Hash        `json:"blockHash"`
	TransactionHash common.Hash      `json:"transactionHash"`
}

// userOpReceipt is the result of eth_getUserOperationReceipt.
type userOpReceipt struct {
	UserOpHash    common.Hash     `json:"userOpHash"`
	Sender        common.Address  `json:"sender"`
	Nonce         *hexutil.Big    `json:"nonce"`
	Paymaster     *common.Address `json:"paymaster,omitempty"`
	ActualGasCost *hexutil.Big    `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big    `json:"actualGasUsed"`
	Success       bool            `json:"success"`
	Logs          []interface{}   `json:"logs"`
	Receipt       interface{}     `json:"receipt"`
}
