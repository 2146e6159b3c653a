package uop

import (
	"math"
	"math/big"
)

// GasOverhead holds the byte-cost and per-operation constants used to
// derive a deterministic pre-verification gas, mirroring
// https://github.com/eth-infinitism/bundler/blob/main/packages/sdk/src/calcPreVerificationGas.ts
type GasOverhead struct {
	Fixed        uint64
	PerUserOp    uint64
	PerUserOpWord uint64
	ZeroByte     uint64
	NonZeroByte  uint64
	BundleSize   uint64
}

// DefaultGasOverhead matches the reference bundler's published constants.
var DefaultGasOverhead = GasOverhead{
	Fixed:         21000,
	PerUserOp:     18300,
	PerUserOpWord: 4,
	ZeroByte:      4,
	NonZeroByte:   16,
	BundleSize:    1,
}

// PreVerificationGas computes the deterministic, chain-agnostic
// pre-verification gas for op: a fixed-overhead amortization plus a
// per-byte calldata cost plus a per-word addend over the packed length
// rounded up to whole 32-byte words.
func (o GasOverhead) PreVerificationGas(op *UserOperation) (*big.Int, error) {
	packed, err := op.PackFull()
	if err != nil {
		return nil, err
	}
	var callData uint64
	for _, b := range packed {
		if b == 0 {
			callData += o.ZeroByte
		} else {
			callData += o.NonZeroByte
		}
	}
	lenInWords := math.Ceil(float64(len(packed)) / 32.0)
	total := float64(o.Fixed)/float64(o.BundleSize) +
		float64(callData+o.PerUserOp) +
		float64(o.PerUserOpWord)*lenInWords
	return big.NewInt(int64(math.Round(total))), nil
}
