package reputation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/aabundler/bundler/uop"
)

// ErrorKind enumerates the reputation-layer rejection reasons surfaced
// to the validator and, from there, to JSON-RPC error code -32504/-32505.
type ErrorKind uint8

const (
	ErrEntityBanned ErrorKind = iota
	ErrThrottledLimit
	ErrStakeTooLow
	ErrUnstakeDelayTooLow
	ErrUnstakedEntity
)

// Error carries the offending entity, its role, and the rejection kind
// (spec §7: InvalidOperation.Reputation — carries offending entity and role).
type Error struct {
	Kind    ErrorKind
	Address common.Address
	Role    uop.Role

	MinStake        *big.Int
	MinUnstakeDelay *big.Int
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrEntityBanned:
		return fmt.Sprintf("%s %s is banned", e.Role, e.Address)
	case ErrThrottledLimit:
		return fmt.Sprintf("%s %s is throttled", e.Role, e.Address)
	case ErrStakeTooLow:
		return fmt.Sprintf("%s %s stake below minimum %s", e.Role, e.Address, e.MinStake)
	case ErrUnstakeDelayTooLow:
		return fmt.Sprintf("%s %s unstake delay below minimum %s", e.Role, e.Address, e.MinUnstakeDelay)
	case ErrUnstakedEntity:
		return fmt.Sprintf("%s %s is not staked", e.Role, e.Address)
	default:
		return "reputation error"
	}
}

// VerifyStake checks info against the configured minima for role,
// honouring whitelist override and BANNED short-circuit (spec §4.D).
func (m *Manager) VerifyStake(role uop.Role, info *StakeInfo, minStake, minUnstakeDelay *big.Int) error {
	if info == nil {
		return nil
	}
	if m.IsWhitelisted(info.Address) {
		return nil
	}
	if m.StatusOf(info.Address) == StatusBanned {
		return &Error{Kind: ErrEntityBanned, Address: info.Address, Role: role}
	}
	stake := info.Stake
	if stake == nil {
		stake = big.NewInt(0)
	}
	unstakeDelay := info.UnstakeDelay
	if unstakeDelay == nil {
		unstakeDelay = big.NewInt(0)
	}
	switch {
	case stake.Cmp(minStake) < 0:
		return &Error{Kind: ErrStakeTooLow, Address: info.Address, Role: role, MinStake: minStake, MinUnstakeDelay: minUnstakeDelay}
	case unstakeDelay.Cmp(minUnstakeDelay) < 0:
		return &Error{Kind: ErrUnstakeDelayTooLow, Address: info.Address, Role: role, MinStake: minStake, MinUnstakeDelay: minUnstakeDelay}
	default:
		return nil
	}
}
