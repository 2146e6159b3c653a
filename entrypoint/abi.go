// Package entrypoint is a typed client of the ERC-4337 v0.6.x
// IEntryPoint contract: simulateValidation, simulateHandleOp,
// handleOps, and the deposit/stake reads the validator and bundler
// depend on (spec §4.A, §6).
package entrypoint

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// entryPointABI is the subset of IEntryPoint's interface the bundler
// calls or decodes revert data from. Encoded exactly as the upstream
// Solidity interface so that FailedOp/ValidationResult/ExecutionResult
// decoding is bit-exact (spec §6).
const entryPointABI = `[
	{
		"type":"function","name":"simulateValidation","stateMutability":"nonpayable",
		"inputs":[{"name":"userOp","type":"tuple","components":[
			{"name":"sender","type":"address"},
			{"name":"nonce","type":"uint256"},
			{"name":"initCode","type":"bytes"},
			{"name":"callData","type":"bytes"},
			{"name":"callGasLimit","type":"uint256"},
			{"name":"verificationGasLimit","type":"uint256"},
			{"name":"preVerificationGas","type":"uint256"},
			{"name":"maxFeePerGas","type":"uint256"},
			{"name":"maxPriorityFeePerGas","type":"uint256"},
			{"name":"paymasterAndData","type":"bytes"},
			{"name":"signature","type":"bytes"}
		]}],
		"outputs":[]
	},
	{
		"type":"function","name":"simulateHandleOp","stateMutability":"nonpayable",
		"inputs":[
			{"name":"userOp","type":"tuple","components":[
				{"name":"sender","type":"address"},
				{"name":"nonce","type":"uint256"},
				{"name":"initCode","type":"bytes"},
				{"name":"callData","type":"bytes"},
				{"name":"callGasLimit","type":"uint256"},
				{"name":"verificationGasLimit","type":"uint256"},
				{"name":"preVerificationGas","type":"uint256"},
				{"name":"maxFeePerGas","type":"uint256"},
				{"name":"maxPriorityFeePerGas","type":"uint256"},
				{"name":"paymasterAndData","type":"bytes"},
				{"name":"signature","type":"bytes"}
			]},
			{"name":"target","type":"address"},
			{"name":"targetCallData","type":"bytes"}
		],
		"outputs":[]
	},
	{
		"type":"function","name":"handleOps","stateMutability":"nonpayable",
		"inputs":[
			{"name":"ops","type":"tuple[]","components":[
				{"name":"sender","type":"address"},
				{"name":"nonce","type":"uint256"},
				{"name":"initCode","type":"bytes"},
				{"name":"callData","type":"bytes"},
				{"name":"callGasLimit","type":"uint256"},
				{"name":"verificationGasLimit","type":"uint256"},
				{"name":"preVerificationGas","type":"uint256"},
				{"name":"maxFeePerGas","type":"uint256"},
				{"name":"maxPriorityFeePerGas","type":"uint256"},
				{"name":"paymasterAndData","type":"bytes"},
				{"name":"signature","type":"bytes"}
			]},
			{"name":"beneficiary","type":"address"}
		],
		"outputs":[]
	},
	{
		"type":"function","name":"getUserOpHash","stateMutability":"view",
		"inputs":[{"name":"userOp","type":"tuple","components":[
			{"name":"sender","type":"address"},
			{"name":"nonce","type":"uint256"},
			{"name":"initCode","type":"bytes"},
			{"name":"callData","type":"bytes"},
			{"name":"callGasLimit","type":"uint256"},
			{"name":"verificationGasLimit","type":"uint256"},
			{"name":"preVerificationGas","type":"uint256"},
			{"name":"maxFeePerGas","type":"uint256"},
			{"name":"maxPriorityFeePerGas","type":"uint256"},
			{"name":"paymasterAndData","type":"bytes"},
			{"name":"signature","type":"bytes"}
		]}],
		"outputs":[{"name":"","type":"bytes32"}]
	},
	{
		"type":"function","name":"getDepositInfo","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"info","type":"tuple","components":[
			{"name":"deposit","type":"uint112"},
			{"name":"staked","type":"bool"},
			{"name":"stake","type":"uint112"},
			{"name":"unstakeDelaySec","type":"uint32"},
			{"name":"withdrawTime","type":"uint48"}
		]}]
	},
	{
		"type":"function","name":"getSenderAddress","stateMutability":"nonpayable",
		"inputs":[{"name":"initCode","type":"bytes"}],
		"outputs":[]
	},
	{
		"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	},
	{
		"type":"function","name":"depositTo","stateMutability":"payable",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[]
	},
	{
		"type":"function","name":"addStake","stateMutability":"payable",
		"inputs":[{"name":"unstakeDelaySec","type":"uint32"}],
		"outputs":[]
	},
	{
		"type":"function","name":"unlockStake","stateMutability":"nonpayable",
		"inputs":[],"outputs":[]
	},
	{
		"type":"function","name":"withdrawStake","stateMutability":"nonpayable",
		"inputs":[{"name":"withdrawAddress","type":"address"}],
		"outputs":[]
	},
	{
		"type":"function","name":"withdrawTo","stateMutability":"nonpayable",
		"inputs":[{"name":"withdrawAddress","type":"address"},{"name":"withdrawAmount","type":"uint256"}],
		"outputs":[]
	},
	{
		"type":"error","name":"FailedOp",
		"inputs":[{"name":"opIndex","type":"uint256"},{"name":"reason","type":"string"}]
	},
	{
		"type":"error","name":"ValidationResult",
		"inputs":[
			{"name":"returnInfo","type":"tuple","components":[
				{"name":"preOpGas","type":"uint256"},
				{"name":"prefund","type":"uint256"},
				{"name":"sigFailed","type":"bool"},
				{"name":"validAfter","type":"uint48"},
				{"name":"validUntil","type":"uint48"},
				{"name":"paymasterContext","type":"bytes"}
			]},
			{"name":"senderInfo","type":"tuple","components":[
				{"name":"stake","type":"uint256"},{"name":"unstakeDelaySec","type":"uint256"}
			]},
			{"name":"factoryInfo","type":"tuple","components":[
				{"name":"stake","type":"uint256"},{"name":"unstakeDelaySec","type":"uint256"}
			]},
			{"name":"paymasterInfo","type":"tuple","components":[
				{"name":"stake","type":"uint256"},{"name":"unstakeDelaySec","type":"uint256"}
			]}
		]
	},
	{
		"type":"error","name":"ExecutionResult",
		"inputs":[
			{"name":"preOpGas","type":"uint256"},
			{"name":"paid","type":"uint256"},
			{"name":"validAfter","type":"uint48"},
			{"name":"validUntil","type":"uint48"},
			{"name":"targetSuccess","type":"bool"},
			{"name":"targetResult","type":"bytes"}
		]
	},
	{
		"type":"error","name":"SenderAddressResult",
		"inputs":[{"name":"sender","type":"address"}]
	},
	{
		"type":"event","name":"UserOperationEvent",
		"inputs":[
			{"name":"userOpHash","type":"bytes32","indexed":true},
			{"name":"sender","type":"address","indexed":true},
			{"name":"paymaster","type":"address","indexed":true},
			{"name":"nonce","type":"uint256","indexed":false},
			{"name":"success","type":"bool","indexed":false},
			{"name":"actualGasCost","type":"uint256","indexed":false},
			{"name":"actualGasUsed","type":"uint256","indexed":false}
		]
	},
	{
		"type":"event","name":"UserOperationRevertReason",
		"inputs":[
			{"name":"userOpHash","type":"bytes32","indexed":true},
			{"name":"sender","type":"address","indexed":true},
			{"name":"nonce","type":"uint256","indexed":false},
			{"name":"revertReason","type":"bytes","indexed":false}
		]
	}
]`

// ParsedABI is parsed once at init and reused by every client and by
// the tracer's revert/log decoders.
var ParsedABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(entryPointABI))
	if err != nil {
		panic("entrypoint: invalid embedded ABI: " + err.Error())
	}
	ParsedABI = parsed
}
