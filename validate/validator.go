// Package validate implements the composable sanity / simulation /
// simulation-trace check chain that admits a UserOperation into the
// mempool (spec §4.E). Each check returns a typed *Error and the chain
// fails fast on the first one.
package validate

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/mempool"
	"github.com/aabundler/bundler/metrics"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/tracer"
	"github.com/aabundler/bundler/uop"
)

// Mode is one bit of the {Sanity, Simulation, SimulationTrace} set a
// caller opts into. RPC admission runs all three; the unsafe bundler
// mode omits SimulationTrace.
type Mode uint8

const (
	ModeSanity Mode = 1 << iota
	ModeSimulation
	ModeSimulationTrace
)

// Full is every check kind, used by RPC admission.
const Full = ModeSanity | ModeSimulation | ModeSimulationTrace

// ChainReader is the subset of execution-client access the sanity
// checks need beyond the EntryPoint ABI surface: code lookups and the
// current base fee.
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Deps bundles every collaborator the check chain reads from. None of
// the checks mutate these; the pool applies the outcome.
type Deps struct {
	Config     Config
	Chain      ChainReader
	EntryPoint *entrypoint.Client
	Mempool    mempool.Store
	Reputation *reputation.Manager
	Tracer     tracer.Caller
	Metrics    *metrics.Recorder
}

// Outcome is the artifact produced by a successful Validate call,
// consumed by UserOpPool.add to update ops_seen and persist
// code_hashes/verified_block_hash.
type Outcome struct {
	Hash          common.Hash
	ValidatedAt   *types.Header
	Validation    *entrypoint.ValidationResult
	Trace         *tracer.TraceFrame
	PreOpGasUsed  uint64
	CodeHashes    map[common.Address]common.Hash
}

// Validator runs the check chain selected by a Mode set against one
// UserOperation.
type Validator struct {
	deps Deps
}

// New builds a Validator over deps.
func New(deps Deps) *Validator {
	return &Validator{deps: deps}
}

// Validate runs every check selected by mode against op, targeting
// entryPoint, fail-fast in the order: sanity, simulation,
// simulation-trace.
func (v *Validator) Validate(ctx context.Context, op *uop.UserOperation, entryPoint common.Address, chainID *big.Int, mode Mode) (outcome *Outcome, err error) {
	started := time.Now()
	defer func() {
		v.deps.Metrics.ObserveValidation(ctx, time.Since(started))
		if err != nil {
			v.deps.Metrics.AdmitRejected(ctx, rejectReason(err))
		} else {
			v.deps.Metrics.AdmitSucceeded(ctx)
		}
	}()

	hash, err := op.Hash(entryPoint, chainID)
	if err != nil {
		return nil, newError(KindSanity, "Hash", "%v", err)
	}
	outcome = &Outcome{Hash: hash}

	if mode&ModeSanity != 0 {
		header, err := v.deps.Chain.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, newError(KindSanity, "HeaderByNumber", "%v", err)
		}
		outcome.ValidatedAt = header
		if err := v.runSanity(ctx, op, header); err != nil {
			return nil, err
		}
	}

	if mode&ModeSimulation == 0 && mode&ModeSimulationTrace == 0 {
		return outcome, nil
	}

	vr, err := v.deps.EntryPoint.SimulateValidation(ctx, op)
	if err != nil {
		return nil, newError(KindSimulation, "SimulateValidation", "%v", err)
	}
	outcome.Validation = vr
	outcome.PreOpGasUsed = vr.ReturnInfo.PreOpGas.Uint64()

	if mode&ModeSimulation != 0 {
		if err := v.runSimulation(op, vr); err != nil {
			return nil, err
		}
	}

	if mode&ModeSimulationTrace != 0 {
		frame, err := v.deps.EntryPoint.SimulateValidationTrace(ctx, v.deps.Tracer, op)
		if err != nil {
			return nil, newError(KindSimulationTrace, "SimulateValidationTrace", "%v", err)
		}
		outcome.Trace = frame

		codeHashes, err := v.runSimulationTrace(ctx, op, vr, frame, hash)
		if err != nil {
			return nil, err
		}
		outcome.CodeHashes = codeHashes
	}

	return outcome, nil
}

// rejectReason extracts the check-kind label metrics group rejections
// by, falling back to "unknown" for errors that did not originate in
// this package's typed *Error.
func rejectReason(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind.String()
	}
	return "unknown"
}
