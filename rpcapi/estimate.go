package rpcapi

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/uop"
)

// maxRetry bounds the provider-error retry budget for gas estimation
// (spec §7: MAX_RETRY=7 for gas estimation).
const maxRetry = 7

// baseVGLBufferPercent inflates the binary-searched verification gas
// limit before it is returned, matching the reference bundler's
// published buffer (spec §4.H).
const baseVGLBufferPercent = 10

// estimateGas runs the binary-search loop of spec §4.B/§4.H: find the
// smallest verification_gas_limit for which simulate_handle_op stops
// out-of-gassing during validation, inflate it by the configured
// buffer, then binary-search call_gas_limit the same way.
func estimateGas(ctx context.Context, ep *entrypoint.Client, op *uop.UserOperation, maxVerificationGas, maxCallGas uint64) (*gasEstimate, error) {
	probe := op.Clone()

	vgl, err := binarySearchGas(ctx, 21000, maxVerificationGas, func(candidate uint64) (bool, error) {
		probe.VerificationGasLimit = new(big.Int).SetUint64(candidate)
		probe.CallGasLimit = big.NewInt(0)
		oog, err := simulateOOG(ctx, ep, probe)
		return !oog, err
	})
	if err != nil {
		return nil, err
	}
	vgl = vgl * (100 + baseVGLBufferPercent) / 100

	probe.VerificationGasLimit = new(big.Int).SetUint64(vgl)
	cgl, err := binarySearchGas(ctx, 21000, maxCallGas, func(candidate uint64) (bool, error) {
		probe.CallGasLimit = new(big.Int).SetUint64(candidate)
		oog, err := simulateOOG(ctx, ep, probe)
		return !oog, err
	})
	if err != nil {
		return nil, err
	}

	pvg, err := uop.DefaultGasOverhead.PreVerificationGas(op)
	if err != nil {
		return nil, err
	}

	return &gasEstimate{
		PreVerificationGas:   bigToHex(pvg),
		VerificationGasLimit: bigToHex(new(big.Int).SetUint64(vgl)),
		CallGasLimit:         bigToHex(new(big.Int).SetUint64(cgl)),
	}, nil
}

// binarySearchGas finds the smallest value in [lo, hi] for which probe
// returns ok=true, i.e. the operation no longer OOGs, making up to
// maxRetry attempts per probe while the failure is a provider error
// (spec §7).
func binarySearchGas(ctx context.Context, lo, hi uint64, probe func(uint64) (bool, error)) (uint64, error) {
	check := func(v uint64) (bool, error) {
		var lastErr error
		for attempt := 0; attempt < maxRetry; attempt++ {
			ok, err := probe(v)
			if err == nil {
				return ok, nil
			}
			lastErr = err
			var provErr *entrypoint.ErrProvider
			if !errors.As(err, &provErr) {
				return false, err
			}
		}
		return false, lastErr
	}

	ok, err := check(hi)
	if err != nil {
		return 0, err
	}
	if !ok {
		return hi, nil
	}

	for lo < hi {
		mid := lo + (hi-lo)/2
		ok, err := check(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

// simulateOOG reports whether op still OOGs during validation at its
// current gas-limit fields.
func simulateOOG(ctx context.Context, ep *entrypoint.Client, op *uop.UserOperation) (bool, error) {
	_, err := ep.SimulateHandleOp(ctx, op, common.Address{}, nil)
	if err == nil {
		return false, nil
	}
	var failed *entrypoint.ErrFailedOp
	if errors.As(err, &failed) {
		return oogReason(failed.Reason), nil
	}
	return false, err
}

func oogReason(reason string) bool {
	return reason == "AA40 over verificationGasLimit" || reason == "AA21 didn't pay prefund" || reason == "AA51 prefund below actualGasCost"
}
