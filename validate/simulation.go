package validate

import (
	"math/big"
	"time"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/uop"
)

// runSimulation executes every check that consumes a decoded
// ValidationResult, fail-fast.
func (v *Validator) runSimulation(op *uop.UserOperation, vr *entrypoint.ValidationResult) error {
	if err := checkSignature(vr); err != nil {
		return err
	}
	if err := v.checkTimestamp(vr); err != nil {
		return err
	}
	if err := checkVerificationExtraGas(op, vr); err != nil {
		return err
	}
	return nil
}

func checkSignature(vr *entrypoint.ValidationResult) error {
	if vr.ReturnInfo.SigFailed {
		return newError(KindSimulation, "Signature", "account/paymaster signature validation failed")
	}
	return nil
}

func (v *Validator) checkTimestamp(vr *entrypoint.ValidationResult) error {
	now := uint64(time.Now().Unix())
	validUntil := vr.ReturnInfo.ValidUntil
	if validUntil != 0 && validUntil <= now {
		return newError(KindSimulation, "Timestamp", "valid_until %d already elapsed (now %d)", validUntil, now)
	}
	if validUntil != 0 && validUntil <= now+v.deps.Config.TimestampGraceSeconds {
		return newError(KindSimulation, "Timestamp", "valid_until %d expires within the %ds grace window", validUntil, v.deps.Config.TimestampGraceSeconds)
	}
	if vr.ReturnInfo.ValidAfter > now {
		return newError(KindSimulation, "Timestamp", "valid_after %d is in the future (now %d)", vr.ReturnInfo.ValidAfter, now)
	}
	return nil
}

func checkVerificationExtraGas(op *uop.UserOperation, vr *entrypoint.ValidationResult) error {
	limit := new(big.Int).Add(op.VerificationGasLimit, op.PreVerificationGas)
	if vr.ReturnInfo.PreOpGas.Cmp(limit) > 0 {
		return newError(KindSimulation, "VerificationExtraGas", "pre_op_gas %s exceeds verification_gas_limit+pre_verification_gas %s", vr.ReturnInfo.PreOpGas, limit)
	}
	return nil
}
