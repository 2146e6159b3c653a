package validate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aabundler/bundler/entrypoint"
	"github.com/aabundler/bundler/mempool"
	"github.com/aabundler/bundler/tracer"
	"github.com/aabundler/bundler/uop"
)

// associatedBase finds the mapping-slot base keccak(addr ∥ …) was
// derived from, if the tracer captured its preimage. Matches spec
// §4.E's "slot is associated with an address" rule: the preimage's
// first word must be addr, left-padded the way abi.encode packs it.
func associatedBase(addr common.Address, keccak []string) (*big.Int, bool) {
	addrWord := common.LeftPadBytes(addr.Bytes(), 32)
	for _, hexPreimage := range keccak {
		preimage := common.FromHex(hexPreimage)
		if len(preimage) < 32 || string(preimage[:32]) != string(addrWord) {
			continue
		}
		base := new(big.Int).SetBytes(crypto.Keccak256(preimage))
		return base, true
	}
	return nil, false
}

// slotAssociated reports whether slot falls in [base, base+128), the
// 128-consecutive-slot window spec §4.E grants an associated mapping.
func slotAssociated(slot common.Hash, addr common.Address, keccak []string) bool {
	base, ok := associatedBase(addr, keccak)
	if !ok {
		return false
	}
	s := new(big.Int).SetBytes(slot.Bytes())
	upper := new(big.Int).Add(base, big.NewInt(128))
	return s.Cmp(base) >= 0 && s.Cmp(upper) < 0
}

// runSimulationTrace executes every check that consumes a TraceFrame,
// fail-fast, and returns the code-hash set observed for persistence.
func (v *Validator) runSimulationTrace(ctx context.Context, op *uop.UserOperation, vr *entrypoint.ValidationResult, frame *tracer.TraceFrame, hash common.Hash) (map[common.Address]common.Hash, error) {
	if err := checkOpcodes(frame); err != nil {
		return nil, err
	}
	if err := v.checkExternalContracts(ctx, frame); err != nil {
		return nil, err
	}
	if err := v.checkStorageAccess(ctx, op, frame); err != nil {
		return nil, err
	}
	if err := v.checkCallStack(ctx, op, vr, frame); err != nil {
		return nil, err
	}
	codeHashes, err := v.checkCodeHashes(ctx, frame, hash)
	if err != nil {
		return nil, err
	}
	if err := v.checkGas(vr, frame); err != nil {
		return nil, err
	}
	return codeHashes, nil
}

func checkOpcodes(frame *tracer.TraceFrame) error {
	for i, ci := range frame.CallsFromEntryPoint {
		for op, count := range ci.Opcodes {
			if count == 0 {
				continue
			}
			if blacklistedOpcodes[op] {
				return newError(KindSimulationTrace, "Opcodes", "phase %d used forbidden opcode %s", i, op)
			}
		}
	}
	return nil
}

func (v *Validator) checkExternalContracts(ctx context.Context, frame *tracer.TraceFrame) error {
	entryPoint := v.deps.EntryPoint.Address()
	seen := make(map[common.Address]bool)
	for _, ci := range frame.CallsFromEntryPoint {
		for addr := range ci.ContractSize {
			if seen[addr] {
				continue
			}
			seen[addr] = true
			if addr == entryPoint {
				return newError(KindSimulationTrace, "ExternalContracts", "code observed at the EntryPoint address itself")
			}
			code, err := v.deps.Chain.CodeAt(ctx, addr, nil)
			if err != nil {
				return newError(KindSimulationTrace, "ExternalContracts", "code_at(%s): %v", addr, err)
			}
			if len(code) == 0 {
				return newError(KindSimulationTrace, "ExternalContracts", "%s has no deployed code at the verified block", addr)
			}
		}
	}
	return nil
}

func (v *Validator) checkStorageAccess(ctx context.Context, op *uop.UserOperation, frame *tracer.TraceFrame) error {
	stakedEntities := make(map[common.Address]bool)
	for _, addr := range entityAddresses(op) {
		if addr == op.Sender {
			continue
		}
		info, err := v.deps.EntryPoint.GetDepositInfo(ctx, addr)
		if err != nil {
			return newError(KindSimulationTrace, "StorageAccess", "getDepositInfo(%s): %v", addr, err)
		}
		stakedEntities[addr] = info.Staked
	}

	calledByStaked := func(target common.Address) bool {
		for _, call := range frame.Calls {
			if !common.IsHexAddress(call.To) || common.HexToAddress(call.To) != target {
				continue
			}
			if common.IsHexAddress(call.From) && stakedEntities[common.HexToAddress(call.From)] {
				return true
			}
		}
		return false
	}

	for _, ci := range frame.CallsFromEntryPoint {
		for addr, access := range ci.Access {
			if addr == op.Sender {
				continue
			}
			selfStaked := stakedEntities[addr]
			calledByStakedEntity := calledByStaked(addr)

			for slot := range access.Reads {
				if !storageAccessPermitted(slot, addr, op.Sender, selfStaked, stakedEntities, frame.Keccak, calledByStakedEntity, true) {
					return newError(KindSimulationTrace, "StorageAccess", "unpermitted read of %s slot %s", addr, slot)
				}
			}
			for slot := range access.Writes {
				if !storageAccessPermitted(slot, addr, op.Sender, selfStaked, stakedEntities, frame.Keccak, calledByStakedEntity, false) {
					return newError(KindSimulationTrace, "StorageAccess", "unpermitted write of %s slot %s", addr, slot)
				}
			}
		}
	}
	return nil
}

func storageAccessPermitted(slot common.Hash, addr, sender common.Address, selfStaked bool, stakedEntities map[common.Address]bool, keccak []string, calledByStakedEntity, readOnly bool) bool {
	if slotAssociated(slot, sender, keccak) {
		return true
	}
	if selfStaked {
		return true
	}
	for entity, staked := range stakedEntities {
		if !staked {
			continue
		}
		if slotAssociated(slot, entity, keccak) {
			return true
		}
	}
	if readOnly && calledByStakedEntity {
		return true
	}
	return false
}

func (v *Validator) checkCallStack(ctx context.Context, op *uop.UserOperation, vr *entrypoint.ValidationResult, frame *tracer.TraceFrame) error {
	entryPoint := v.deps.EntryPoint.Address()
	depositToSelector := hexutil.Encode(entrypoint.ParsedABI.Methods["depositTo"].ID)

	for _, call := range frame.Calls {
		if common.IsHexAddress(call.To) && common.HexToAddress(call.To) == entryPoint {
			if call.Method != depositToSelector {
				return newError(KindSimulationTrace, "CallStack", "call into the EntryPoint other than depositTo (selector %s)", call.Method)
			}
			continue
		}
		if call.Value != "" && call.Value != "0" && call.Value != "0x0" {
			return newError(KindSimulationTrace, "CallStack", "non-zero value CALL to %s outside the EntryPoint", call.To)
		}
	}

	if paymaster, ok := op.Paymaster(); ok && len(vr.ReturnInfo.PaymasterContext) > 0 {
		info, err := v.deps.EntryPoint.GetDepositInfo(ctx, paymaster)
		if err != nil {
			return newError(KindSimulationTrace, "CallStack", "getDepositInfo(%s): %v", paymaster, err)
		}
		if !info.Staked {
			return newError(KindSimulationTrace, "CallStack", "unstaked paymaster %s returned a non-empty validatePaymasterUserOp context", paymaster)
		}
	}
	return nil
}

func (v *Validator) checkCodeHashes(ctx context.Context, frame *tracer.TraceFrame, hash common.Hash) (map[common.Address]common.Hash, error) {
	touched := make(map[common.Address]bool)
	for _, ci := range frame.CallsFromEntryPoint {
		for addr := range ci.Access {
			touched[addr] = true
		}
		for addr := range ci.ContractSize {
			touched[addr] = true
		}
	}

	observed := make(map[common.Address]common.Hash, len(touched))
	for addr := range touched {
		code, err := v.deps.Chain.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, newError(KindSimulationTrace, "CodeHashes", "code_at(%s): %v", addr, err)
		}
		observed[addr] = crypto.Keccak256Hash(code)
	}

	if v.deps.Mempool.HasCodeHashes(hash) {
		stored := v.deps.Mempool.GetCodeHashes(hash)
		if len(stored) != len(observed) {
			return nil, newError(KindSimulationTrace, "CodeHashes", "observed %d addresses, previously stored %d", len(observed), len(stored))
		}
		for _, ch := range stored {
			if got, ok := observed[ch.Address]; !ok || got != ch.Hash {
				return nil, newError(KindSimulationTrace, "CodeHashes", "code hash of %s changed since the first simulation", ch.Address)
			}
		}
	}

	return observed, nil
}

func (v *Validator) checkGas(vr *entrypoint.ValidationResult, frame *tracer.TraceFrame) error {
	var traceGasUsed uint64
	for _, call := range frame.Calls {
		traceGasUsed += call.GasUsed
	}
	if traceGasUsed == 0 {
		return nil
	}
	preOpGas := vr.ReturnInfo.PreOpGas.Uint64()
	var delta uint64
	if preOpGas > traceGasUsed {
		delta = preOpGas - traceGasUsed
	} else {
		delta = traceGasUsed - preOpGas
	}
	toleranceBase := preOpGas
	if toleranceBase == 0 {
		toleranceBase = traceGasUsed
	}
	if delta*10_000 > toleranceBase*v.deps.Config.GasToleranceBps {
		return newError(KindSimulationTrace, "Gas", "pre_op_gas %d diverges from trace-observed gas %d beyond tolerance", preOpGas, traceGasUsed)
	}
	return nil
}

// CodeHashesToSlice adapts an observed address->hash map into the
// mempool package's CodeHash slice form for persistence by the pool.
func CodeHashesToSlice(observed map[common.Address]common.Hash) []mempool.CodeHash {
	out := make([]mempool.CodeHash, 0, len(observed))
	for addr, hash := range observed {
		out = append(out, mempool.CodeHash{Address: addr, Hash: hash})
	}
	return out
}
