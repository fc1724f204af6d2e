// Package session drives the market/session state machine: it accepts
// join requests, lazily provisions escrow on the settlement ledger,
// submits stake placements through the custodial signer, and advances
// market status.
//
// The store is the single source of truth for status; the ledger is the
// single source of truth for fund movement. Only this package and the
// resolution scheduler write either.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/ledger"
	"github.com/klash/wager-engine/internal/limits"
	"github.com/klash/wager-engine/internal/metrics"
	"github.com/klash/wager-engine/internal/model"
	"github.com/klash/wager-engine/internal/store"
)

// Orchestrator owns the authoritative market/session lifecycle.
type Orchestrator struct {
	store    store.Store
	ledger   ledger.Client
	deployer ledger.Address
	locker   Locker
	limiter  *limits.StakeLimiter
	hub      *Hub // optional, nil disables broadcasting
}

// NewOrchestrator creates the session orchestrator. deployer is the
// custodial signer's account, which namespaces escrow address
// derivation. Pass nil for hub if WebSocket broadcasting is not needed.
func NewOrchestrator(st store.Store, lc ledger.Client, deployer ledger.Address, locker Locker, limiter *limits.StakeLimiter, hub *Hub) *Orchestrator {
	return &Orchestrator{
		store:    st,
		ledger:   lc,
		deployer: deployer,
		locker:   locker,
		limiter:  limiter,
		hub:      hub,
	}
}

// CreateMarket provisions a new two-player market in OPEN status.
func (o *Orchestrator) CreateMarket(ctx context.Context, title, description, sideA, sideB, category string) (*model.Market, error) {
	if category == "" {
		category = "General"
	}
	now := time.Now().UTC()
	market := &model.Market{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		SideA:       sideA,
		SideB:       sideB,
		Category:    category,
		Mode:        model.ModeTwoPlayer,
		Status:      model.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.CreateMarket(ctx, market); err != nil {
		return nil, err
	}

	slog.Info("market created", "market_id", market.ID, "title", title)
	return market, nil
}

// GetMarket returns a market and its session, or a nil session when no
// one has joined yet.
func (o *Orchestrator) GetMarket(ctx context.Context, id string) (*model.Market, *model.Session, error) {
	market, err := o.store.GetMarket(ctx, id)
	if errors.Is(err, store.ErrMarketNotFound) {
		return nil, nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	sess, err := o.store.GetSessionByMarket(ctx, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return market, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return market, sess, nil
}

// ListMarkets returns all markets, newest first.
func (o *Orchestrator) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return o.store.ListMarkets(ctx)
}

// JoinMarket places a participant's stake on a market. The first join
// lazily provisions the escrow and creates the session; the second join
// completes it and locks the market.
//
// Exactly one ledger-mutating stake placement happens per successful
// join. Validation failures perform zero ledger calls, and a ledger
// failure aborts the join with no session/market mutation.
func (o *Orchestrator) JoinMarket(ctx context.Context, marketID, wallet string, side int, amount decimal.Decimal) (*model.Session, error) {
	if side != model.SideA && side != model.SideB {
		return nil, ErrInvalidSide
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidStake
	}

	// Per-market mutual exclusion around the whole join. Without it,
	// two racing first joins could both create a session.
	release, err := o.locker.Acquire(ctx, marketID)
	if err != nil {
		return nil, err
	}
	defer release()

	market, err := o.store.GetMarket(ctx, marketID)
	if errors.Is(err, store.ErrMarketNotFound) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, err
	}
	if market.Mode != model.ModeTwoPlayer {
		return nil, ErrUnsupportedMode
	}
	if market.Status != model.StatusOpen && market.Status != model.StatusWaitingForSecond {
		return nil, ErrMarketNotJoinable
	}

	if o.limiter != nil {
		openStake, err := o.openStake(ctx, wallet)
		if err != nil {
			return nil, fmt.Errorf("check stake limits: %w", err)
		}
		if err := o.limiter.Check(amount, openStake); err != nil {
			metrics.JoinsTotal.WithLabelValues("precheck", "rejected").Inc()
			return nil, err
		}
	}

	sess, err := o.store.GetSessionByMarket(ctx, marketID)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return o.firstJoin(ctx, market, wallet, side, amount)
	case err != nil:
		return nil, err
	default:
		return o.secondJoin(ctx, market, sess, wallet, side, amount)
	}
}

func (o *Orchestrator) firstJoin(ctx context.Context, market *model.Market, wallet string, side int, amount decimal.Decimal) (*model.Session, error) {
	// Lazy escrow provisioning. "Already initialized" is the one
	// tolerated non-success outcome: retries and restarts may re-run
	// this call.
	initStart := time.Now()
	_, err := o.ledger.InitEscrow(ctx, market.ID)
	metrics.LedgerLatency.WithLabelValues("init_escrow").Observe(time.Since(initStart).Seconds())
	switch {
	case errors.Is(err, ledger.ErrEscrowExists):
		metrics.EscrowInitsTotal.WithLabelValues("already_exists").Inc()
		slog.Info("escrow already initialized", "market_id", market.ID)
	case err != nil:
		metrics.EscrowInitsTotal.WithLabelValues("failed").Inc()
		metrics.JoinsTotal.WithLabelValues("first", "ledger_failed").Inc()
		return nil, fmt.Errorf("init escrow for market %s: %w", market.ID, err)
	default:
		metrics.EscrowInitsTotal.WithLabelValues("ok").Inc()
	}

	tx, err := o.placeStake(ctx, market.ID, side, amount)
	if err != nil {
		metrics.JoinsTotal.WithLabelValues("first", "ledger_failed").Inc()
		return nil, err
	}

	sess := &model.Session{
		ID:           uuid.New().String(),
		MarketID:     market.ID,
		Player1:      wallet,
		Bet1Side:     side,
		Bet1Amount:   amount,
		TxHashPlace1: tx.Hash,
		CreatedAt:    time.Now().UTC(),
	}

	// Funds have moved; store failures past this point are
	// reconciliation gaps, not join failures.
	if err := o.store.CreateSession(ctx, sess); err != nil {
		o.logGap(market.ID, tx.Hash, "create_session", err)
	}
	if err := o.store.UpdateMarketStatus(ctx, market.ID, model.StatusWaitingForSecond); err != nil {
		o.logGap(market.ID, tx.Hash, "status_waiting_for_second", err)
	}

	metrics.JoinsTotal.WithLabelValues("first", "ok").Inc()
	slog.Info("first player joined",
		"market_id", market.ID,
		"wallet", wallet,
		"side", side,
		"amount", amount.String(),
		"tx_hash", tx.Hash,
	)
	o.broadcast(Event{Type: EventMarketJoined, MarketID: market.ID, Status: model.StatusWaitingForSecond, Side: side, Wallet: wallet})

	return sess, nil
}

func (o *Orchestrator) secondJoin(ctx context.Context, market *model.Market, sess *model.Session, wallet string, side int, amount decimal.Decimal) (*model.Session, error) {
	if sess.HasSecondPlayer() {
		return nil, ErrSessionFull
	}
	if side == sess.Bet1Side {
		return nil, ErrSideTaken
	}

	tx, err := o.placeStake(ctx, market.ID, side, amount)
	if err != nil {
		metrics.JoinsTotal.WithLabelValues("second", "ledger_failed").Inc()
		return nil, err
	}

	if err := o.store.SetSecondPlayer(ctx, sess.ID, wallet, side, amount, tx.Hash); err != nil {
		if errors.Is(err, store.ErrSessionFull) {
			// A racing second join on another instance won the
			// conditional update after our stake confirmed.
			o.logGap(market.ID, tx.Hash, "second_join_lost_race", err)
			return nil, ErrSessionFull
		}
		o.logGap(market.ID, tx.Hash, "set_second_player", err)
	}
	if err := o.store.UpdateMarketStatus(ctx, market.ID, model.StatusLocked); err != nil {
		o.logGap(market.ID, tx.Hash, "status_locked", err)
	}

	sess.Player2 = wallet
	sess.Bet2Side = side
	sess.Bet2Amount = amount
	sess.TxHashPlace2 = tx.Hash

	metrics.JoinsTotal.WithLabelValues("second", "ok").Inc()
	slog.Info("second player joined, market locked",
		"market_id", market.ID,
		"wallet", wallet,
		"side", side,
		"amount", amount.String(),
		"tx_hash", tx.Hash,
	)
	o.broadcast(Event{Type: EventMarketLocked, MarketID: market.ID, Status: model.StatusLocked, Side: side, Wallet: wallet})

	return sess, nil
}

func (o *Orchestrator) placeStake(ctx context.Context, marketID string, side int, amount decimal.Decimal) (ledger.TxResult, error) {
	escrow := ledger.DeriveEscrowAddress(o.deployer, marketID)

	start := time.Now()
	tx, err := o.ledger.PlaceStake(ctx, escrow, side, amount)
	metrics.LedgerLatency.WithLabelValues("place_stake").Observe(time.Since(start).Seconds())
	if err != nil {
		return tx, fmt.Errorf("place stake on market %s: %w", marketID, err)
	}
	return tx, nil
}

// Portfolio returns the wallet's view of every session it participates
// in. A wallet with no sessions gets an empty slice, never an error.
func (o *Orchestrator) Portfolio(ctx context.Context, wallet string) ([]model.PortfolioEntry, error) {
	sessions, err := o.store.ListSessionsByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	entries := make([]model.PortfolioEntry, 0, len(sessions))
	for _, sess := range sessions {
		market, err := o.store.GetMarket(ctx, sess.MarketID)
		if err != nil {
			slog.Warn("portfolio: session references missing market",
				"session_id", sess.ID, "market_id", sess.MarketID)
			continue
		}

		isPlayer1 := sess.Player1 == wallet
		side := sess.Bet1Side
		stake := sess.Bet1Amount
		txHash := sess.TxHashPlace1
		if !isPlayer1 {
			side = sess.Bet2Side
			stake = sess.Bet2Amount
			txHash = sess.TxHashPlace2
		}

		outcome := model.OutcomePending
		payout := decimal.Zero
		if sess.Resolved {
			if sess.Winner == wallet {
				outcome = model.OutcomeWin
				payout = sess.WinnerPayout
			} else {
				outcome = model.OutcomeLose
			}
		}

		entries = append(entries, model.PortfolioEntry{
			MarketID: market.ID,
			Title:    market.Title,
			Side:     market.SideLabel(side),
			Stake:    stake,
			Outcome:  outcome,
			Payout:   payout,
			TxHash:   txHash,
		})
	}
	return entries, nil
}

// openStake sums the wallet's stakes across unresolved sessions.
func (o *Orchestrator) openStake(ctx context.Context, wallet string) (decimal.Decimal, error) {
	sessions, err := o.store.ListSessionsByWallet(ctx, wallet)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, sess := range sessions {
		if sess.Resolved {
			continue
		}
		if sess.Player1 == wallet {
			total = total.Add(sess.Bet1Amount)
		}
		if sess.Player2 == wallet {
			total = total.Add(sess.Bet2Amount)
		}
	}
	return total, nil
}

// logGap records a confirmed ledger operation whose store write failed.
// The signal is never dropped: structured log plus counter, with enough
// detail to reconcile manually against ledger history.
func (o *Orchestrator) logGap(marketID, txHash, op string, err error) {
	metrics.ReconciliationGaps.Inc()
	slog.Error("reconciliation gap: ledger confirmed but store write failed",
		"market_id", marketID,
		"tx_hash", txHash,
		"op", op,
		"err", err,
	)
}

func (o *Orchestrator) broadcast(ev Event) {
	if o.hub != nil {
		o.hub.Broadcast(ev)
	}
}
