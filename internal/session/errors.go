package session

import "errors"

// Client input/state errors. All are reported synchronously and none of
// them is preceded by a ledger call.
var (
	// ErrMarketNotFound is returned when the market ID is unknown.
	ErrMarketNotFound = errors.New("session: market not found")

	// ErrMarketNotJoinable is returned when the market is LOCKED or
	// RESOLVED.
	ErrMarketNotJoinable = errors.New("session: market is not open for joining")

	// ErrUnsupportedMode is returned for markets whose mode is not
	// TWO_PLAYER.
	ErrUnsupportedMode = errors.New("session: market mode not supported")

	// ErrSessionFull is returned when both players have already joined.
	ErrSessionFull = errors.New("session: session is full")

	// ErrSideTaken is returned when the second player picks the side
	// player1 already holds. A two-party wager needs opposing stakes;
	// admitting a same-side pair would make resolution ambiguous.
	ErrSideTaken = errors.New("session: side already taken by the first player")

	// ErrInvalidSide is returned when side is not 0 or 1.
	ErrInvalidSide = errors.New("session: side must be 0 or 1")

	// ErrInvalidStake is returned when the stake is not positive.
	ErrInvalidStake = errors.New("session: stake amount must be positive")
)
