// Package uop defines the ERC-4337 user operation type, its canonical
// hash, and the entities (sender, factory, paymaster) derived from it.
package uop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserOperation is the signed pseudo-transaction submitted by a client.
// Field order matches IEntryPoint's packed struct layout.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

// addressLen is the byte length of an entity prefix embedded in
// init_code/paymaster_and_data.
const addressLen = common.AddressLength

// Factory returns the deployer address packed into InitCode, if any.
func (op *UserOperation) Factory() (common.Address, bool) {
	if len(op.InitCode) < addressLen {
		return common.Address{}, false
	}
	return common.BytesToAddress(op.InitCode[:addressLen]), true
}

// Paymaster returns the paymaster address packed into PaymasterAndData,
// if any.
func (op *UserOperation) Paymaster() (common.Address, bool) {
	if len(op.PaymasterAndData) < addressLen {
		return common.Address{}, false
	}
	return common.BytesToAddress(op.PaymasterAndData[:addressLen]), true
}

// HasFactory reports whether InitCode carries a deployer prefix.
func (op *UserOperation) HasFactory() bool {
	return len(op.InitCode) >= addressLen
}

// HasPaymaster reports whether PaymasterAndData carries a paymaster prefix.
func (op *UserOperation) HasPaymaster() bool {
	return len(op.PaymasterAndData) >= addressLen
}

// Clone returns a deep-enough copy safe for storage under a new key.
func (op *UserOperation) Clone() *UserOperation {
	cp := *op
	cp.Nonce = new(big.Int).Set(op.Nonce)
	cp.CallGasLimit = new(big.Int).Set(op.CallGasLimit)
	cp.VerificationGasLimit = new(big.Int).Set(op.VerificationGasLimit)
	cp.PreVerificationGas = new(big.Int).Set(op.PreVerificationGas)
	cp.MaxFeePerGas = new(big.Int).Set(op.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = new(big.Int).Set(op.MaxPriorityFeePerGas)
	cp.InitCode = append([]byte(nil), op.InitCode...)
	cp.CallData = append([]byte(nil), op.CallData...)
	cp.PaymasterAndData = append([]byte(nil), op.PaymasterAndData...)
	cp.Signature = append([]byte(nil), op.Signature...)
	return &cp
}
