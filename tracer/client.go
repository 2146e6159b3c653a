package tracer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/aabundler/bundler/uop"
)

// Caller is the subset of *rpc.Client the tracer needs. Satisfied by
// an *rpc.Client dialed against the execution client's debug namespace.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// callMsg mirrors the JSON shape debug_traceCall expects for its first
// argument; only the fields simulateValidation needs are populated.
type callMsg struct {
	From     common.Address  `json:"from,omitempty"`
	To       *common.Address `json:"to"`
	Gas      hexutil.Uint64  `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

type tracerConfig struct {
	Tracer  string `json:"tracer"`
	Timeout string `json:"timeout,omitempty"`
}

// Trace runs simulateValidation(op) against entryPoint under
// ValidationTracerJS and returns the decoded frame.
func Trace(ctx context.Context, caller Caller, entryPoint common.Address, input []byte) (*TraceFrame, error) {
	msg := callMsg{To: &entryPoint, Data: input}
	cfg := tracerConfig{Tracer: ValidationTracerJS, Timeout: "10s"}

	var frame TraceFrame
	if err := caller.CallContext(ctx, &frame, "debug_traceCall", msg, "latest", cfg); err != nil {
		return nil, fmt.Errorf("tracer: debug_traceCall failed: %w", err)
	}
	return &frame, nil
}

// Entities returns the up-to-three addresses (factory, sender,
// paymaster) a trace frame's storage-access rule must reason about,
// mirroring uop.UserOperation.Factory/Paymaster derivation.
func Entities(op *uop.UserOperation) []common.Address {
	entities := []common.Address{op.Sender}
	if factory, ok := op.Factory(); ok {
		entities = append(entities, factory)
	}
	if paymaster, ok := op.Paymaster(); ok {
		entities = append(entities, paymaster)
	}
	return entities
}
