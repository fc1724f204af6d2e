// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market status values. Status advances monotonically through the
// lifecycle and never regresses; RESOLVED is terminal.
const (
	StatusOpen             = "OPEN"
	StatusWaitingForSecond = "WAITING_FOR_SECOND"
	StatusLocked           = "LOCKED"
	StatusResolved         = "RESOLVED"
)

// Market modes. Only TWO_PLAYER is implemented; MULTI_PLAYER markets
// exist in the data model but cannot be joined.
const (
	ModeTwoPlayer   = "TWO_PLAYER"
	ModeMultiPlayer = "MULTI_PLAYER"
)

// Wager sides. Side 0 maps to SideA, side 1 to SideB.
const (
	SideA = 0
	SideB = 1
)

var statusRank = map[string]int{
	StatusOpen:             0,
	StatusWaitingForSecond: 1,
	StatusLocked:           2,
	StatusResolved:         3,
}

// StatusRank returns the lifecycle position of a status, or -1 for an
// unknown status. Stores use it to reject regressions.
func StatusRank(status string) int {
	r, ok := statusRank[status]
	if !ok {
		return -1
	}
	return r
}

// Market is a two-sided wagering market. The escrow address is never
// stored — any component derives it from the deployer account and the
// market ID.
type Market struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	SideA       string    `json:"side_a" db:"side_a"`
	SideB       string    `json:"side_b" db:"side_b"`
	Category    string    `json:"category" db:"category"`
	Mode        string    `json:"mode" db:"mode"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SideLabel returns the human label for a side index.
func (m *Market) SideLabel(side int) string {
	if side == SideA {
		return m.SideA
	}
	return m.SideB
}

// Session is the single betting session of a two-player market. Created
// on first join with the player1 fields, mutated once on second join and
// once more at resolution, never deleted (audit trail).
//
// The player2 fields (Player2, Bet2Side, Bet2Amount, TxHashPlace2) are
// all-absent or all-present together; Player2 == "" means absent.
type Session struct {
	ID       string `json:"id" db:"id"`
	MarketID string `json:"market_id" db:"market_id"`

	Player1      string          `json:"player1" db:"player1"`
	Bet1Side     int             `json:"bet1_side" db:"bet1_side"`
	Bet1Amount   decimal.Decimal `json:"bet1_amount" db:"bet1_amount"`
	TxHashPlace1 string          `json:"tx_hash_place1" db:"tx_hash_place1"`

	Player2      string          `json:"player2,omitempty" db:"player2"`
	Bet2Side     int             `json:"bet2_side,omitempty" db:"bet2_side"`
	Bet2Amount   decimal.Decimal `json:"bet2_amount,omitempty" db:"bet2_amount"`
	TxHashPlace2 string          `json:"tx_hash_place2,omitempty" db:"tx_hash_place2"`

	Resolved      bool            `json:"resolved" db:"resolved"`
	Winner        string          `json:"winner,omitempty" db:"winner"`
	TotalPool     decimal.Decimal `json:"total_pool,omitempty" db:"total_pool"`
	FeeAmount     decimal.Decimal `json:"fee_amount,omitempty" db:"fee_amount"`
	WinnerPayout  decimal.Decimal `json:"winner_payout,omitempty" db:"winner_payout"`
	TxHashResolve string          `json:"tx_hash_resolve,omitempty" db:"tx_hash_resolve"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HasSecondPlayer reports whether the second join has completed.
func (s *Session) HasSecondPlayer() bool {
	return s.Player2 != ""
}

// Portfolio outcome values.
const (
	OutcomePending = "PENDING"
	OutcomeWin     = "WIN"
	OutcomeLose    = "LOSE"
)

// PortfolioEntry is one wallet's view of a session it participates in.
type PortfolioEntry struct {
	MarketID string          `json:"market_id"`
	Title    string          `json:"title"`
	Side     string          `json:"side"`
	Stake    decimal.Decimal `json:"stake"`
	Outcome  string          `json:"outcome"`
	Payout   decimal.Decimal `json:"payout"`
	TxHash   string          `json:"tx_hash"`
}
