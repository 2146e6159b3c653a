package validate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aabundler/bundler/mempool"
	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uop"
)

// runSanity executes every pre-simulation check in order, fail-fast.
func (v *Validator) runSanity(ctx context.Context, op *uop.UserOperation, head *types.Header) error {
	if err := v.checkSenderOrInitCode(ctx, op); err != nil {
		return err
	}
	if err := v.checkVerificationGas(op); err != nil {
		return err
	}
	if err := v.checkCallGas(op); err != nil {
		return err
	}
	if err := v.checkMaxFee(op, head); err != nil {
		return err
	}
	if err := v.checkPaymaster(ctx, op); err != nil {
		return err
	}
	if err := v.checkSenderReplacement(op); err != nil {
		return err
	}
	if err := v.checkEntitiesReputation(op); err != nil {
		return err
	}
	if err := v.checkUnstakedEntities(ctx, op); err != nil {
		return err
	}
	return nil
}

func (v *Validator) checkSenderOrInitCode(ctx context.Context, op *uop.UserOperation) error {
	code, err := v.deps.Chain.CodeAt(ctx, op.Sender, nil)
	if err != nil {
		return newError(KindSanity, "SenderOrInitCode", "code_at(sender): %v", err)
	}
	hasCode := len(code) > 0
	hasInitCode := len(op.InitCode) > 0
	if hasCode == hasInitCode {
		return newError(KindSanity, "SenderOrInitCode", "sender deployed=%t, init_code present=%t: exactly one must hold", hasCode, hasInitCode)
	}
	return nil
}

func (v *Validator) checkVerificationGas(op *uop.UserOperation) error {
	if op.VerificationGasLimit.Uint64() > v.deps.Config.MaxVerificationGas {
		return newError(KindSanity, "VerificationGas", "verification_gas_limit %s exceeds max %d", op.VerificationGasLimit, v.deps.Config.MaxVerificationGas)
	}
	required, err := v.deps.Config.Overhead.PreVerificationGas(op)
	if err != nil {
		return newError(KindSanity, "VerificationGas", "pre_verification_gas derivation: %v", err)
	}
	if op.PreVerificationGas.Cmp(required) < 0 {
		return newError(KindSanity, "VerificationGas", "pre_verification_gas %s below required %s", op.PreVerificationGas, required)
	}
	return nil
}

func (v *Validator) checkCallGas(op *uop.UserOperation) error {
	if op.CallGasLimit.Uint64() < v.deps.Config.MinCallGasLimit {
		return newError(KindSanity, "CallGas", "call_gas_limit %s below minimum %d", op.CallGasLimit, v.deps.Config.MinCallGasLimit)
	}
	return nil
}

func (v *Validator) checkMaxFee(op *uop.UserOperation, head *types.Header) error {
	if op.MaxPriorityFeePerGas.Cmp(op.MaxFeePerGas) > 0 {
		return newError(KindSanity, "MaxFee", "max_priority_fee_per_gas %s exceeds max_fee_per_gas %s", op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	}
	if head.BaseFee != nil && op.MaxFeePerGas.Cmp(head.BaseFee) < 0 {
		return newError(KindSanity, "MaxFee", "max_fee_per_gas %s below base fee %s", op.MaxFeePerGas, head.BaseFee)
	}
	if op.MaxPriorityFeePerGas.Cmp(v.deps.Config.MinPriorityFeePerGas) < 0 {
		return newError(KindSanity, "MaxFee", "max_priority_fee_per_gas %s below minimum %s", op.MaxPriorityFeePerGas, v.deps.Config.MinPriorityFeePerGas)
	}
	return nil
}

// requiredPrefund is a worst-case prefund: every gas field priced at
// max_fee_per_gas, with verification gas counted twice when a
// paymaster is present.
func requiredPrefund(op *uop.UserOperation) *big.Int {
	gas := new(big.Int).Add(op.VerificationGasLimit, op.CallGasLimit)
	gas.Add(gas, op.PreVerificationGas)
	if op.HasPaymaster() {
		// an unverified paymaster pays for its own verification too
		gas.Add(gas, op.VerificationGasLimit)
	}
	return gas.Mul(gas, op.MaxFeePerGas)
}

func (v *Validator) checkPaymaster(ctx context.Context, op *uop.UserOperation) error {
	paymaster, ok := op.Paymaster()
	if !ok {
		return nil
	}
	code, err := v.deps.Chain.CodeAt(ctx, paymaster, nil)
	if err != nil {
		return newError(KindSanity, "Paymaster", "code_at(paymaster): %v", err)
	}
	if len(code) == 0 {
		return newError(KindSanity, "Paymaster", "paymaster %s has no deployed code", paymaster)
	}
	info, err := v.deps.EntryPoint.GetDepositInfo(ctx, paymaster)
	if err != nil {
		return newError(KindSanity, "Paymaster", "getDepositInfo(%s): %v", paymaster, err)
	}
	if info.Deposit.Cmp(requiredPrefund(op)) < 0 {
		return newError(KindSanity, "Paymaster", "paymaster %s deposit %s below required prefund", paymaster, info.Deposit)
	}
	if v.deps.Reputation.StatusOf(paymaster) == reputation.StatusBanned {
		return newError(KindSanity, "Paymaster", "paymaster %s is banned", paymaster)
	}
	return nil
}

func (v *Validator) checkSenderReplacement(op *uop.UserOperation) error {
	prev, ok := v.deps.Mempool.GetPrevBySender(op)
	if !ok {
		return nil
	}
	if !mempool.MeetsReplacementBump(op, prev.Op, v.deps.Config.ReplacementBumpPercent) {
		return newError(KindSanity, "Sender", "replacement of nonce %s does not clear the %d%% fee bump", op.Nonce, v.deps.Config.ReplacementBumpPercent)
	}
	return nil
}

func (v *Validator) checkEntitiesReputation(op *uop.UserOperation) error {
	for _, addr := range entityAddresses(op) {
		status := v.deps.Reputation.StatusOf(addr)
		if status == reputation.StatusBanned {
			return newError(KindSanity, "Entities", "%s is banned", addr)
		}
		if status == reputation.StatusThrottled {
			count := v.deps.Mempool.GetNumberBySender(addr) + v.deps.Mempool.GetNumberByEntity(addr)
			if uint64(count) >= v.deps.Config.ThrottledEntityMempoolCount {
				return newError(KindSanity, "Entities", "%s is throttled and already has %d pending ops", addr, count)
			}
		}
	}
	return nil
}

// entityAddresses returns sender, factory, paymaster in that order
// (factory/paymaster omitted when absent).
func entityAddresses(op *uop.UserOperation) []common.Address {
	out := []common.Address{op.Sender}
	if f, ok := op.Factory(); ok {
		out = append(out, f)
	}
	if p, ok := op.Paymaster(); ok {
		out = append(out, p)
	}
	return out
}

func (v *Validator) checkUnstakedEntities(ctx context.Context, op *uop.UserOperation) error {
	type roleEntity struct {
		addr   common.Address
		sender bool
	}
	entities := []roleEntity{{op.Sender, true}}
	if f, ok := op.Factory(); ok {
		entities = append(entities, roleEntity{f, false})
	}
	if p, ok := op.Paymaster(); ok {
		entities = append(entities, roleEntity{p, false})
	}

	for _, e := range entities {
		info, err := v.deps.EntryPoint.GetDepositInfo(ctx, e.addr)
		if err != nil {
			return newError(KindSanity, "UnstakedEntities", "getDepositInfo(%s): %v", e.addr, err)
		}
		if info.Staked {
			continue
		}

		if e.sender {
			if v.deps.Mempool.GetNumberByEntity(e.addr) > 0 {
				return newError(KindSanity, "UnstakedEntities", "%s is used as sender here but as a non-sender entity elsewhere", e.addr)
			}
			if uint64(v.deps.Mempool.GetNumberBySender(e.addr)) >= v.deps.Config.SameSenderMempoolCount {
				return newError(KindSanity, "UnstakedEntities", "unstaked sender %s already has %d pending ops", e.addr, v.deps.Config.SameSenderMempoolCount)
			}
			continue
		}

		if v.deps.Mempool.GetNumberBySender(e.addr) > 0 {
			return newError(KindSanity, "UnstakedEntities", "%s is used as a non-sender entity here but as sender elsewhere", e.addr)
		}
		rep := v.deps.Reputation.Get(e.addr)
		allowed := v.deps.Config.SameUnstakedEntityMempoolCount + inclusionBonus(rep, v.deps.Config.InclusionRateFactor)
		if uint64(v.deps.Mempool.GetNumberByEntity(e.addr)) >= allowed {
			return newError(KindSanity, "UnstakedEntities", "unstaked entity %s already has %d pending ops", e.addr, allowed)
		}
	}
	return nil
}

// inclusionBonus extends an unstaked entity's allowed pending-op count
// by its observed inclusion rate times factor plus its ops_included
// count, the latter capped here at 10_000 (spec §4.E).
func inclusionBonus(rep reputation.Entry, factor uint64) uint64 {
	if rep.OpsSeen == 0 {
		return 0
	}
	bonus := rep.OpsIncluded * factor / rep.OpsSeen
	if rep.OpsIncluded < 10_000 {
		bonus += rep.OpsIncluded
	} else {
		bonus += 10_000
	}
	return bonus
}
