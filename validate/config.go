package validate

import (
	"math/big"

	"github.com/aabundler/bundler/uop"
)

// Config holds every threshold the validator's checks read, matching
// the reference bundler's configurable defaults (spec §4.D, §4.E).
type Config struct {
	MaxVerificationGas   uint64
	MinPriorityFeePerGas *big.Int
	MinCallGasLimit      uint64

	SameSenderMempoolCount         uint64
	SameUnstakedEntityMempoolCount uint64
	ThrottledEntityMempoolCount    uint64
	InclusionRateFactor            uint64

	ReplacementBumpPercent int64

	TimestampGraceSeconds uint64
	GasToleranceBps       uint64 // basis points of allowed drift between pre_op_gas and trace-observed gas

	Overhead uop.GasOverhead
}

// DefaultConfig matches the reference bundler's published defaults.
var DefaultConfig = Config{
	MaxVerificationGas:   1_500_000,
	MinPriorityFeePerGas: big.NewInt(0),
	MinCallGasLimit:      21000,

	SameSenderMempoolCount:         4,
	SameUnstakedEntityMempoolCount: 10,
	ThrottledEntityMempoolCount:    4,
	InclusionRateFactor:            10,

	ReplacementBumpPercent: 10,

	TimestampGraceSeconds: 5,
	GasToleranceBps:       2000,

	Overhead: uop.DefaultGasOverhead,
}

// blacklistedOpcodes are forbidden during validation at call depth > 1
// (spec §4.E Opcodes check); the tracer itself only ever populates
// Opcodes for depth > 1 frames, so membership alone is sufficient.
var blacklistedOpcodes = map[string]bool{
	"GASPRICE":     true,
	"GASLIMIT":     true,
	"DIFFICULTY":   true,
	"TIMESTAMP":    true,
	"BASEFEE":      true,
	"BLOCKHASH":    true,
	"NUMBER":       true,
	"SELFBALANCE":  true,
	"BALANCE":      true,
	"ORIGIN":       true,
	"CREATE":       true,
	"COINBASE":     true,
	"SELFDESTRUCT": true,
}
