// Package resolver runs the recurring resolution loop: it scans LOCKED
// markets, asks the outcome decider for a winning side, submits the
// resolution to the settlement ledger, and finalizes session and market
// state.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/ledger"
	"github.com/klash/wager-engine/internal/metrics"
	"github.com/klash/wager-engine/internal/model"
	"github.com/klash/wager-engine/internal/outcome"
	"github.com/klash/wager-engine/internal/payout"
	"github.com/klash/wager-engine/internal/session"
	"github.com/klash/wager-engine/internal/store"
)

// DefaultInterval is how often the scheduler scans for LOCKED markets.
const DefaultInterval = 30 * time.Second

// Scheduler is the single logical resolution loop. Passes never
// overlap: a tick arriving while a pass is still running is skipped,
// not queued, so no LOCKED market sees two resolution submissions.
type Scheduler struct {
	store    store.Store
	ledger   ledger.Client
	decider  outcome.Decider
	deployer ledger.Address
	feeRate  decimal.Decimal
	interval time.Duration
	hub      *session.Hub // optional

	running atomic.Bool
}

// NewScheduler creates a resolution scheduler. A non-positive interval
// falls back to DefaultInterval and a negative feeRate falls back to
// the protocol default. Zero is a valid fee rate: a zero-fee deployment
// pays the winner the full pool.
func NewScheduler(st store.Store, lc ledger.Client, decider outcome.Decider, deployer ledger.Address, feeRate decimal.Decimal, interval time.Duration, hub *session.Hub) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if feeRate.IsNegative() {
		feeRate = payout.DefaultFeeRate
	}
	return &Scheduler{
		store:    st,
		ledger:   lc,
		decider:  decider,
		deployer: deployer,
		feeRate:  feeRate,
		interval: interval,
		hub:      hub,
	}
}

// Run executes resolution passes until ctx is cancelled. The first pass
// runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("resolution scheduler starting", "interval", s.interval)

	s.RunPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("resolution scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunPass(ctx)
		}
	}
}

// RunPass executes one resolution pass. Returns false when another pass
// is still in flight and this one was skipped. Per-market failures are
// logged and never abort the rest of the scan; a failed market stays
// LOCKED and is retried on the next pass.
func (s *Scheduler) RunPass(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("resolution pass still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	markets, err := s.store.ListMarketsByStatus(ctx, model.StatusLocked)
	if err != nil {
		slog.Error("resolution scan failed", "err", err)
		return true
	}

	for _, market := range markets {
		if err := s.resolveMarket(ctx, &market); err != nil {
			metrics.ResolutionsTotal.WithLabelValues("failed").Inc()
			slog.Error("market resolution failed",
				"market_id", market.ID,
				"err", err,
			)
		}
	}
	return true
}

func (s *Scheduler) resolveMarket(ctx context.Context, market *model.Market) error {
	sess, err := s.store.GetSessionByMarket(ctx, market.ID)
	if errors.Is(err, store.ErrSessionNotFound) {
		// Data inconsistency, not fatal: a LOCKED market should always
		// have a session.
		metrics.ResolutionsTotal.WithLabelValues("no_session").Inc()
		slog.Warn("locked market has no session, skipping", "market_id", market.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Resolved {
		// The session finalized on an earlier pass but the market is
		// still LOCKED: the status write failed after the ledger
		// confirmed. Repair it here; this is a pure store write, no
		// ledger call and no second payout.
		if err := s.store.UpdateMarketStatus(ctx, market.ID, model.StatusResolved); err != nil {
			s.logGap(market.ID, sess.TxHashResolve, "status_resolved_repair", err)
			return nil
		}
		slog.Info("repaired market status after earlier gap",
			"market_id", market.ID,
			"tx_hash", sess.TxHashResolve,
		)
		return nil
	}
	if !sess.HasSecondPlayer() {
		metrics.ResolutionsTotal.WithLabelValues("incomplete_session").Inc()
		slog.Warn("locked market has incomplete session, skipping", "market_id", market.ID)
		return nil
	}

	winningSide, err := s.decider.Decide(ctx, market.Title, market.SideA, market.SideB)
	if err != nil {
		return fmt.Errorf("decide outcome: %w", err)
	}
	if winningSide != model.SideA && winningSide != model.SideB {
		return fmt.Errorf("decider returned invalid side %d", winningSide)
	}

	settlement, err := payout.Compute(sess.Bet1Amount, sess.Bet2Amount, s.feeRate)
	if err != nil {
		return fmt.Errorf("compute settlement: %w", err)
	}

	// Sides are opposing (enforced at join), so exactly one player
	// matches the winning side.
	winner := sess.Player1
	if winningSide != sess.Bet1Side {
		winner = sess.Player2
	}

	escrow := ledger.DeriveEscrowAddress(s.deployer, market.ID)
	start := time.Now()
	tx, err := s.ledger.Resolve(ctx, escrow, winningSide)
	metrics.LedgerLatency.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("submit resolution: %w", err)
	}

	// Funds have moved; store failures past this point are
	// reconciliation gaps.
	if err := s.store.ResolveSession(ctx, sess.ID, winner, settlement.TotalPool, settlement.Fee, settlement.WinnerPayout, tx.Hash); err != nil {
		s.logGap(market.ID, tx.Hash, "resolve_session", err)
	}
	if err := s.store.UpdateMarketStatus(ctx, market.ID, model.StatusResolved); err != nil {
		s.logGap(market.ID, tx.Hash, "status_resolved", err)
	}

	metrics.ResolutionsTotal.WithLabelValues("ok").Inc()
	slog.Info("market resolved",
		"market_id", market.ID,
		"winning_side", winningSide,
		"winner", winner,
		"total_pool", settlement.TotalPool.String(),
		"fee", settlement.Fee.String(),
		"payout", settlement.WinnerPayout.String(),
		"tx_hash", tx.Hash,
	)

	if s.hub != nil {
		s.hub.Broadcast(session.Event{
			Type:        session.EventMarketResolved,
			MarketID:    market.ID,
			Status:      model.StatusResolved,
			Winner:      winner,
			WinningSide: winningSide,
			TxHash:      tx.Hash,
		})
	}
	return nil
}

func (s *Scheduler) logGap(marketID, txHash, op string, err error) {
	metrics.ReconciliationGaps.Inc()
	slog.Error("reconciliation gap: ledger confirmed but store write failed",
		"market_id", marketID,
		"tx_hash", txHash,
		"op", op,
		"err", err,
	)
}
