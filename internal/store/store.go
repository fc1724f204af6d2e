// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/model"
)

// Sentinel errors shared by all Store implementations.
var (
	// ErrMarketNotFound is returned when no market exists for an ID.
	ErrMarketNotFound = errors.New("store: market not found")

	// ErrSessionNotFound is returned when a market has no session yet.
	ErrSessionNotFound = errors.New("store: session not found")

	// ErrSessionExists is returned when a second session is created for
	// the same market. At most one session exists per market.
	ErrSessionExists = errors.New("store: session already exists for market")

	// ErrSessionFull is returned by SetSecondPlayer when the player2
	// fields are already populated. The write is conditional so a lost
	// race between two "second joins" surfaces here, never as a
	// partial overwrite.
	ErrSessionFull = errors.New("store: session already has a second player")

	// ErrStatusRegression is returned when an update would move a
	// market backwards through its lifecycle.
	ErrStatusRegression = errors.New("store: market status may not regress")
)

// Store is the persistence interface. The store is the single source of
// truth for market/session status; the settlement ledger is the single
// source of truth for fund movement.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// ListMarketsByStatus returns markets with the given status,
	// newest first. The resolution scheduler scans LOCKED markets
	// through this.
	ListMarketsByStatus(ctx context.Context, status string) ([]model.Market, error)

	// UpdateMarketStatus advances a market's status. Moving backwards
	// through the lifecycle fails with ErrStatusRegression.
	UpdateMarketStatus(ctx context.Context, id, status string) error

	// --- Session operations ---

	// CreateSession persists a new session (first join, player1 only).
	CreateSession(ctx context.Context, session *model.Session) error

	// GetSessionByMarket retrieves the session for a market.
	GetSessionByMarket(ctx context.Context, marketID string) (*model.Session, error)

	// SetSecondPlayer populates the player2 fields atomically. Fails
	// with ErrSessionFull if they are already populated.
	SetSecondPlayer(ctx context.Context, sessionID, player2 string, side int, amount decimal.Decimal, txHash string) error

	// ResolveSession records the terminal resolution outcome.
	ResolveSession(ctx context.Context, sessionID, winner string, totalPool, fee, payout decimal.Decimal, txHash string) error

	// ListSessionsByWallet returns every session where the wallet is
	// player1 or player2. Feeds portfolio queries.
	ListSessionsByWallet(ctx context.Context, wallet string) ([]model.Session, error)
}
