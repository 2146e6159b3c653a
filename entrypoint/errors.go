package entrypoint

import "fmt"

// ErrFailedOp is decoded from a FailedOp(uint256,string) revert: the
// EntryPoint itself rejected one operation in the batch/simulation.
type ErrFailedOp struct {
	OpIndex uint64
	Reason  string
}

func (e *ErrFailedOp) Error() string {
	return fmt.Sprintf("FailedOp(%d, %q)", e.OpIndex, e.Reason)
}

// ErrExecutionReverted wraps a plain Solidity revert string that did
// not match any of the ABI's typed errors.
type ErrExecutionReverted struct {
	Message string
}

func (e *ErrExecutionReverted) Error() string {
	return fmt.Sprintf("execution reverted: %s", e.Message)
}

// ErrProvider wraps any JSON-RPC/transport fault talking to the
// execution client.
type ErrProvider struct {
	Inner error
}

func (e *ErrProvider) Error() string { return fmt.Sprintf("provider error: %v", e.Inner) }
func (e *ErrProvider) Unwrap() error { return e.Inner }

// ErrDecode wraps a failure to decode a well-formed but unexpected
// response shape (revert data that parsed as the wrong ABI error, a
// malformed trace frame, and so on).
type ErrDecode struct {
	Inner error
}

func (e *ErrDecode) Error() string { return fmt.Sprintf("decode error: %v", e.Inner) }
func (e *ErrDecode) Unwrap() error { return e.Inner }

// ErrABI wraps a failure to pack/unpack against the embedded ABI.
type ErrABI struct {
	Inner error
}

func (e *ErrABI) Error() string { return fmt.Sprintf("abi error: %v", e.Inner) }
func (e *ErrABI) Unwrap() error { return e.Inner }
