package rpcapi

import (
	"errors"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/validate"
)

// rpcError implements go-ethereum rpc's error-coder interface
// (ErrorCode() int), so the server annotates the JSON-RPC response
// with the codes spec §7 assigns per failure kind.
type rpcError struct {
	msg  string
	code int
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

// codeFor classifies err into the JSON-RPC error code spec §7
// assigns, falling back to a generic internal-error code for anything
// that isn't one of the typed validation/provider errors.
func codeFor(err error) *rpcError {
	var sanityErr *validate.Error
	if errors.As(err, &sanityErr) {
		switch sanityErr.Kind {
		case validate.KindSanity:
			return &rpcError{msg: err.Error(), code: -32602}
		case validate.KindSimulation:
			return &rpcError{msg: err.Error(), code: simulationCode(sanityErr.Check)}
		case validate.KindSimulationTrace:
			return &rpcError{msg: err.Error(), code: -32502}
		}
	}
	var repErr *reputation.Error
	if errors.As(err, &repErr) {
		switch repErr.Kind {
		case reputation.ErrStakeTooLow, reputation.ErrUnstakeDelayTooLow:
			return &rpcError{msg: err.Error(), code: -32505}
		default:
			return &rpcError{msg: err.Error(), code: -32504}
		}
	}
	var provErr *entrypoint.ErrProvider
	if errors.As(err, &provErr) {
		return &rpcError{msg: err.Error(), code: -32603}
	}
	return &rpcError{msg: err.Error(), code: -32603}
}

func simulationCode(check string) int {
	switch check {
	case "Signature":
		return -32507
	case "Timestamp":
		return -32503
	default:
		return -32500
	}
}
