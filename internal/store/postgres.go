package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, title, description, side_a, side_b, category, mode, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Title, m.Description, m.SideA, m.SideB,
		m.Category, m.Mode, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

const marketColumns = `id, title, description, side_a, side_b, category, mode, status, created_at, updated_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.SideA, &m.SideB,
		&m.Category, &m.Mode, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.queryMarkets(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListMarketsByStatus(ctx context.Context, status string) ([]model.Market, error) {
	return s.queryMarkets(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (s *PostgresStore) queryMarkets(ctx context.Context, sql string, args ...any) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

// UpdateMarketStatus advances the status with a lifecycle guard in the
// WHERE clause so a concurrent writer can never move a market backwards.
func (s *PostgresStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	rank := model.StatusRank(status)
	if rank < 0 {
		return fmt.Errorf("update market %s: unknown status %q", id, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2, updated_at = NOW()
		 WHERE id = $1
		   AND CASE status
		         WHEN 'OPEN' THEN 0
		         WHEN 'WAITING_FOR_SECOND' THEN 1
		         WHEN 'LOCKED' THEN 2
		         WHEN 'RESOLVED' THEN 3
		       END <= $3`,
		id, status, rank,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the market is missing or the guard rejected a regression.
		if _, err := s.GetMarket(ctx, id); err != nil {
			return err
		}
		return ErrStatusRegression
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	// The UNIQUE constraint on market_id enforces at most one session
	// per market even under concurrent first joins.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, market_id, player1, bet1_side, bet1_amount, tx_hash_place1, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, FALSE, $7)`,
		sess.ID, sess.MarketID, sess.Player1, sess.Bet1Side,
		sess.Bet1Amount.String(), sess.TxHashPlace1, sess.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrSessionExists
	}
	return err
}

func (s *PostgresStore) GetSessionByMarket(ctx context.Context, marketID string) (*model.Session, error) {
	var sess model.Session
	var bet1Amount string
	var player2, txPlace2, winner, txResolve *string
	var bet2Side *int
	var bet2Amount, totalPool, fee, payout *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, market_id, player1, bet1_side, bet1_amount::TEXT, tx_hash_place1,
		        player2, bet2_side, bet2_amount::TEXT,
		        tx_hash_place2, resolved, winner,
		        total_pool::TEXT, fee_amount::TEXT, winner_payout::TEXT,
		        tx_hash_resolve, created_at
		 FROM sessions WHERE market_id = $1`, marketID).
		Scan(&sess.ID, &sess.MarketID, &sess.Player1, &sess.Bet1Side, &bet1Amount, &sess.TxHashPlace1,
			&player2, &bet2Side, &bet2Amount,
			&txPlace2, &sess.Resolved, &winner,
			&totalPool, &fee, &payout,
			&txResolve, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session for market %s: %w", marketID, err)
	}

	sess.Bet1Amount, _ = decimal.NewFromString(bet1Amount)
	applyOptionalFields(&sess, player2, bet2Side, bet2Amount, txPlace2, winner, totalPool, fee, payout, txResolve)
	return &sess, nil
}

func (s *PostgresStore) SetSecondPlayer(ctx context.Context, sessionID, player2 string, side int, amount decimal.Decimal, txHash string) error {
	// Conditional update: a lost race between two second joins leaves
	// zero rows affected instead of overwriting player2.
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET player2 = $2, bet2_side = $3, bet2_amount = $4::NUMERIC, tx_hash_place2 = $5
		 WHERE id = $1 AND player2 IS NULL`,
		sessionID, player2, side, amount.String(), txHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionFull
	}
	return nil
}

func (s *PostgresStore) ResolveSession(ctx context.Context, sessionID, winner string, totalPool, fee, payout decimal.Decimal, txHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET resolved = TRUE, winner = $2,
		     total_pool = $3::NUMERIC, fee_amount = $4::NUMERIC, winner_payout = $5::NUMERIC,
		     tx_hash_resolve = $6
		 WHERE id = $1`,
		sessionID, winner, totalPool.String(), fee.String(), payout.String(), txHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) ListSessionsByWallet(ctx context.Context, wallet string) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, player1, bet1_side, bet1_amount::TEXT, tx_hash_place1,
		        player2, bet2_side, bet2_amount::TEXT,
		        tx_hash_place2, resolved, winner,
		        total_pool::TEXT, fee_amount::TEXT, winner_payout::TEXT,
		        tx_hash_resolve, created_at
		 FROM sessions
		 WHERE player1 = $1 OR player2 = $1
		 ORDER BY created_at DESC`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var bet1Amount string
		var player2, txPlace2, winner, txResolve *string
		var bet2Side *int
		var bet2Amount, totalPool, fee, payout *string

		if err := rows.Scan(&sess.ID, &sess.MarketID, &sess.Player1, &sess.Bet1Side, &bet1Amount, &sess.TxHashPlace1,
			&player2, &bet2Side, &bet2Amount,
			&txPlace2, &sess.Resolved, &winner,
			&totalPool, &fee, &payout,
			&txResolve, &sess.CreatedAt); err != nil {
			return nil, err
		}

		sess.Bet1Amount, _ = decimal.NewFromString(bet1Amount)
		applyOptionalFields(&sess, player2, bet2Side, bet2Amount, txPlace2, winner, totalPool, fee, payout, txResolve)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func applyOptionalFields(sess *model.Session, player2 *string, bet2Side *int, bet2Amount, txPlace2, winner, totalPool, fee, payout, txResolve *string) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setDec := func(dst *decimal.Decimal, src *string) {
		if src != nil {
			*dst, _ = decimal.NewFromString(*src)
		}
	}
	setStr(&sess.Player2, player2)
	if bet2Side != nil {
		sess.Bet2Side = *bet2Side
	}
	setDec(&sess.Bet2Amount, bet2Amount)
	setStr(&sess.TxHashPlace2, txPlace2)
	setStr(&sess.Winner, winner)
	setDec(&sess.TotalPool, totalPool)
	setDec(&sess.FeeAmount, fee)
	setDec(&sess.WinnerPayout, payout)
	setStr(&sess.TxHashResolve, txResolve)
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
