package uop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var packedArgs = mustArguments(
	"address", // sender
	"uint256", // nonce
	"bytes32", // keccak(initCode)
	"bytes32", // keccak(callData)
	"uint256", // callGasLimit
	"uint256", // verificationGasLimit
	"uint256", // preVerificationGas
	"uint256", // maxFeePerGas
	"uint256", // maxPriorityFeePerGas
	"bytes32", // keccak(paymasterAndData)
)

var hashArgs = mustArguments("bytes32", "address", "uint256")

// fullArgs mirrors the EntryPoint's on-chain UserOperation tuple, used
// only for calldata-cost accounting (pre-verification gas), never for
// hashing.
var fullArgs = mustArguments(
	"address", "uint256", "bytes", "bytes", "uint256", "uint256",
	"uint256", "uint256", "uint256", "bytes", "bytes",
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args
}

// Pack encodes op the way IEntryPoint._getUserOpHash (v0.6.x) does,
// i.e. with the dynamic byte fields replaced by their keccak256 digest
// and the signature excluded entirely.
func (op *UserOperation) Pack() ([]byte, error) {
	return packedArgs.Pack(
		op.Sender,
		op.Nonce,
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.CallGasLimit,
		op.VerificationGasLimit,
		op.PreVerificationGas,
		op.MaxFeePerGas,
		op.MaxPriorityFeePerGas,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

// PackFull ABI-encodes the complete on-chain tuple, signature included,
// for calldata-cost accounting only.
func (op *UserOperation) PackFull() ([]byte, error) {
	return fullArgs.Pack(
		op.Sender,
		op.Nonce,
		op.InitCode,
		op.CallData,
		op.CallGasLimit,
		op.VerificationGasLimit,
		op.PreVerificationGas,
		op.MaxFeePerGas,
		op.MaxPriorityFeePerGas,
		op.PaymasterAndData,
		op.Signature,
	)
}

// Hash computes the canonical, domain-separated hash of op for a given
// EntryPoint address and chain id:
// keccak(abi.encode(keccak(pack(op)), entry_point, chain_id)).
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}
