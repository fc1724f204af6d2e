// Package limits enforces stake limits on the custodial signer's behalf.
//
// Every stake is placed by the backend hot wallet, so unbounded joins
// concentrate risk on a single key. This package caps the stake of any
// single join and the aggregate unresolved stake per wallet.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrStakeTooLarge is returned when a single stake exceeds the
	// per-join maximum.
	ErrStakeTooLarge = errors.New("limits: stake exceeds per-join maximum")

	// ErrWalletExposureExceeded is returned when a join would push a
	// wallet's aggregate unresolved stake beyond its cap.
	ErrWalletExposureExceeded = errors.New("limits: wallet open-stake limit exceeded")
)

// StakeLimiter enforces per-join and per-wallet stake limits.
type StakeLimiter struct {
	// MaxPerJoin is the maximum stake accepted in a single join.
	MaxPerJoin decimal.Decimal

	// MaxPerWallet is the maximum aggregate unresolved stake across
	// all of a wallet's open sessions.
	MaxPerWallet decimal.Decimal
}

// NewStakeLimiter creates a limiter with the given caps.
func NewStakeLimiter(maxPerJoin, maxPerWallet decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{
		MaxPerJoin:   maxPerJoin,
		MaxPerWallet: maxPerWallet,
	}
}

// Check validates a prospective stake against both limits.
//
// openStake is the wallet's current aggregate unresolved stake; the
// caller computes it from the wallet's open sessions. Returns nil if the
// join is within limits.
func (l *StakeLimiter) Check(stake, openStake decimal.Decimal) error {
	if stake.GreaterThan(l.MaxPerJoin) {
		return ErrStakeTooLarge
	}
	if openStake.Add(stake).GreaterThan(l.MaxPerWallet) {
		return ErrWalletExposureExceeded
	}
	return nil
}
