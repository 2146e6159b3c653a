package entrypoint

import (
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ReturnInfo is IEntryPoint's ValidationResult.returnInfo tuple.
type ReturnInfo struct {
	PreOpGas         *big.Int
	Prefund          *big.Int
	SigFailed        bool
	ValidAfter       uint64
	ValidUntil       uint64
	PaymasterContext []byte
}

// StakeInfo is IEntryPoint's (stake, unstakeDelaySec) tuple as
// returned inline by simulateValidation (distinct from the
// reputation package's persisted StakeInfo, which also carries the
// address).
type StakeInfo struct {
	Stake           *big.Int
	UnstakeDelaySec *big.Int
}

// ValidationResult is the decoded payload of a successful
// simulateValidation call (which the EntryPoint always reverts with).
type ValidationResult struct {
	ReturnInfo    ReturnInfo
	SenderInfo    StakeInfo
	FactoryInfo   StakeInfo
	PaymasterInfo StakeInfo
}

// ExecutionResult is the decoded payload of a successful
// simulateHandleOp call.
type ExecutionResult struct {
	PreOpGas      *big.Int
	Paid          *big.Int
	ValidAfter    uint64
	ValidUntil    uint64
	TargetSuccess bool
	TargetResult  []byte
}

// DepositInfo is the decoded payload of getDepositInfo.
type DepositInfo struct {
	Deposit         *big.Int
	Staked          bool
	Stake           *big.Int
	UnstakeDelaySec uint32
	WithdrawTime    uint64
}

// unpackRevert classifies revert data returned by the execution
// client into one of the ABI's typed errors, a raw revert string, or
// an opaque decode failure. errMsg is the JSON-RPC error message, used
// as a fallback when data carries no recognizable 4-byte selector.
func unpackRevert(data []byte, errMsg string) error {
	if len(data) >= 4 {
		sel := data[:4]
		switch {
		case matchesSelector(sel, "FailedOp"):
			vals, err := ParsedABI.Errors["FailedOp"].Inputs.Unpack(data[4:])
			if err != nil || len(vals) != 2 {
				return &ErrDecode{Inner: errOr(err, errUnrecognizedRevert)}
			}
			opIndex, ok1 := vals[0].(*big.Int)
			reason, ok2 := vals[1].(string)
			if !ok1 || !ok2 {
				return &ErrDecode{Inner: errUnrecognizedRevert}
			}
			return &ErrFailedOp{OpIndex: opIndex.Uint64(), Reason: reason}
		case matchesSelector(sel, "ValidationResult"):
			vr, err := decodeValidationResult(data[4:])
			if err != nil {
				return &ErrDecode{Inner: err}
			}
			return vr
		case matchesSelector(sel, "ExecutionResult"):
			er, err := decodeExecutionResult(data[4:])
			if err != nil {
				return &ErrDecode{Inner: err}
			}
			return er
		case matchesSelector(sel, "SenderAddressResult"):
			vals, err := ParsedABI.Errors["SenderAddressResult"].Inputs.Unpack(data[4:])
			if err != nil || len(vals) != 1 {
				return &ErrDecode{Inner: errOr(err, errUnrecognizedRevert)}
			}
			addr, ok := vals[0].(common.Address)
			if !ok {
				return &ErrDecode{Inner: errUnrecognizedRevert}
			}
			return &senderAddressResult{Sender: addr}
		}
	}
	if reason, ok := unpackRevertString(data); ok {
		return &ErrExecutionReverted{Message: reason}
	}
	if errMsg != "" {
		return &ErrExecutionReverted{Message: errMsg}
	}
	return &ErrDecode{Inner: errUnrecognizedRevert}
}

type senderAddressResult struct {
	Sender common.Address
}

func (s *senderAddressResult) Error() string { return "SenderAddressResult" }

func matchesSelector(sel []byte, errName string) bool {
	e, ok := ParsedABI.Errors[errName]
	if !ok {
		return false
	}
	return string(e.ID[:4]) == string(sel)
}

// unpackRevertString decodes a plain Solidity `Error(string)` revert
// (selector 0x08c379a0), as produced by bare `require(false, "...")`.
func unpackRevertString(data []byte) (string, bool) {
	const errorSig = "08c379a0"
	if len(data) < 4 {
		return "", false
	}
	if common.Bytes2Hex(data[:4]) != errorSig {
		return "", false
	}
	unpacked, err := abi.Arguments{{Type: mustStringType()}}.Unpack(data[4:])
	if err != nil || len(unpacked) != 1 {
		return "", false
	}
	s, ok := unpacked[0].(string)
	return s, ok
}

func mustStringType() abi.Type {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// decodeValidationResult unpacks the ValidationResult error. Each tuple
// argument comes back from Arguments.Unpack as a struct synthesized by
// reflect.StructOf, so fields are read by name rather than by a static
// type assertion on the whole tuple value, which would panic the
// moment go-ethereum's generated field ordering or tagging drifts.
func decodeValidationResult(data []byte) (*ValidationResult, error) {
	vals, err := ParsedABI.Errors["ValidationResult"].Inputs.Unpack(data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 4 {
		return nil, errUnrecognizedRevert
	}
	returnInfo, err := structFields(vals[0], "PreOpGas", "Prefund", "SigFailed", "ValidAfter", "ValidUntil", "PaymasterContext")
	if err != nil {
		return nil, err
	}
	senderInfo, err := decodeStakeInfo(vals[1])
	if err != nil {
		return nil, err
	}
	factoryInfo, err := decodeStakeInfo(vals[2])
	if err != nil {
		return nil, err
	}
	paymasterInfo, err := decodeStakeInfo(vals[3])
	if err != nil {
		return nil, err
	}
	preOpGas, ok1 := returnInfo["PreOpGas"].(*big.Int)
	prefund, ok2 := returnInfo["Prefund"].(*big.Int)
	sigFailed, ok3 := returnInfo["SigFailed"].(bool)
	validAfter, ok4 := returnInfo["ValidAfter"].(*big.Int)
	validUntil, ok5 := returnInfo["ValidUntil"].(*big.Int)
	paymasterCtx, ok6 := returnInfo["PaymasterContext"].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, errUnrecognizedRevert
	}
	return &ValidationResult{
		ReturnInfo: ReturnInfo{
			PreOpGas:         preOpGas,
			Prefund:          prefund,
			SigFailed:        sigFailed,
			ValidAfter:       validAfter.Uint64(),
			ValidUntil:       validUntil.Uint64(),
			PaymasterContext: paymasterCtx,
		},
		SenderInfo:    senderInfo,
		FactoryInfo:   factoryInfo,
		PaymasterInfo: paymasterInfo,
	}, nil
}

func decodeStakeInfo(v interface{}) (StakeInfo, error) {
	fields, err := structFields(v, "Stake", "UnstakeDelaySec")
	if err != nil {
		return StakeInfo{}, err
	}
	stake, ok1 := fields["Stake"].(*big.Int)
	delay, ok2 := fields["UnstakeDelaySec"].(*big.Int)
	if !ok1 || !ok2 {
		return StakeInfo{}, errUnrecognizedRevert
	}
	return StakeInfo{Stake: stake, UnstakeDelaySec: delay}, nil
}

// structFields reads named fields off an unpacked ABI tuple value using
// reflection, since its concrete type is synthesized at runtime and
// cannot be named in source.
func structFields(v interface{}, names ...string) (map[string]interface{}, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return nil, errUnrecognizedRevert
	}
	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		fv := rv.FieldByName(name)
		if !fv.IsValid() {
			return nil, errUnrecognizedRevert
		}
		out[name] = fv.Interface()
	}
	return out, nil
}

func (v *ValidationResult) Error() string { return "ValidationResult" }

func decodeExecutionResult(data []byte) (*ExecutionResult, error) {
	vals, err := ParsedABI.Errors["ExecutionResult"].Inputs.Unpack(data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 6 {
		return nil, errUnrecognizedRevert
	}
	preOpGas, ok1 := vals[0].(*big.Int)
	paid, ok2 := vals[1].(*big.Int)
	validAfter, ok3 := vals[2].(*big.Int)
	validUntil, ok4 := vals[3].(*big.Int)
	targetSuccess, ok5 := vals[4].(bool)
	targetResult, ok6 := vals[5].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, errUnrecognizedRevert
	}
	return &ExecutionResult{
		PreOpGas:      preOpGas,
		Paid:          paid,
		ValidAfter:    validAfter.Uint64(),
		ValidUntil:    validUntil.Uint64(),
		TargetSuccess: targetSuccess,
		TargetResult:  targetResult,
	}, nil
}

func (e *ExecutionResult) Error() string { return "ExecutionResult" }

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

var errUnrecognizedRevert = &ErrExecutionReverted{Message: "unrecognized revert payload"}
