// Package payout implements the settlement math for two-party wagers.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The math is stateless and pure so it can be recomputed by any
// component (or audited offline) from the two stakes alone.
package payout

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidStake is returned when a stake is zero or negative.
	ErrInvalidStake = errors.New("payout: stake must be positive")

	// ErrInvalidFeeRate is returned when the fee rate is outside [0, 1).
	ErrInvalidFeeRate = errors.New("payout: fee rate must be in [0, 1)")
)

// DefaultFeeRate is the protocol fee taken from the pool at resolution.
var DefaultFeeRate = decimal.NewFromFloat(0.02)

// Settlement is the resolved value split of a session's pool.
type Settlement struct {
	TotalPool    decimal.Decimal `json:"total_pool"`
	Fee          decimal.Decimal `json:"fee"`
	WinnerPayout decimal.Decimal `json:"winner_payout"`
}

// Compute settles a two-stake pool: the winner receives the full pool
// minus the protocol fee.
//
//	pool   = stake1 + stake2
//	fee    = pool * feeRate
//	payout = pool - fee
func Compute(stake1, stake2, feeRate decimal.Decimal) (Settlement, error) {
	if stake1.LessThanOrEqual(decimal.Zero) || stake2.LessThanOrEqual(decimal.Zero) {
		return Settlement{}, ErrInvalidStake
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Settlement{}, ErrInvalidFeeRate
	}

	pool := stake1.Add(stake2)
	fee := pool.Mul(feeRate)
	return Settlement{
		TotalPool:    pool,
		Fee:          fee,
		WinnerPayout: pool.Sub(fee),
	}, nil
}
