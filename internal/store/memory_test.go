package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newMarket(id, status string, createdAt time.Time) *model.Market {
	return &model.Market{
		ID: id, Title: "t", SideA: "Yes", SideB: "No",
		Mode: model.ModeTwoPlayer, Status: status,
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
}

func TestMemoryStore_MarketRoundTrip(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateMarket(ctx, newMarket("m1", model.StatusOpen, time.Now().UTC())); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	got, err := ms.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got.ID != "m1" || got.Status != model.StatusOpen {
		t.Errorf("unexpected market: %+v", got)
	}

	// The returned value is a copy; mutating it must not leak back.
	got.Status = model.StatusResolved
	again, _ := ms.GetMarket(ctx, "m1")
	if again.Status != model.StatusOpen {
		t.Error("store must not expose internal state to mutation")
	}

	if _, err := ms.GetMarket(ctx, "nope"); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("err = %v, want ErrMarketNotFound", err)
	}
}

func TestMemoryStore_ListMarketsNewestFirst(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	ms.CreateMarket(ctx, newMarket("old", model.StatusOpen, base.Add(-time.Hour)))
	ms.CreateMarket(ctx, newMarket("new", model.StatusOpen, base))

	markets, err := ms.ListMarkets(ctx)
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}
	if markets[0].ID != "new" {
		t.Errorf("expected newest first, got %s", markets[0].ID)
	}
}

func TestMemoryStore_ListMarketsByStatus(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	ms.CreateMarket(ctx, newMarket("m1", model.StatusLocked, now))
	ms.CreateMarket(ctx, newMarket("m2", model.StatusOpen, now))
	ms.CreateMarket(ctx, newMarket("m3", model.StatusLocked, now))

	locked, err := ms.ListMarketsByStatus(ctx, model.StatusLocked)
	if err != nil {
		t.Fatalf("ListMarketsByStatus: %v", err)
	}
	if len(locked) != 2 {
		t.Errorf("expected 2 locked markets, got %d", len(locked))
	}
}

func TestMemoryStore_StatusMonotonic(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateMarket(ctx, newMarket("m1", model.StatusOpen, time.Now().UTC()))

	steps := []string{model.StatusWaitingForSecond, model.StatusLocked, model.StatusResolved}
	for _, status := range steps {
		if err := ms.UpdateMarketStatus(ctx, "m1", status); err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}

	// Any step backwards from RESOLVED must be rejected.
	for _, status := range []string{model.StatusOpen, model.StatusWaitingForSecond, model.StatusLocked} {
		if err := ms.UpdateMarketStatus(ctx, "m1", status); !errors.Is(err, ErrStatusRegression) {
			t.Errorf("regression to %s: err = %v, want ErrStatusRegression", status, err)
		}
	}

	market, _ := ms.GetMarket(ctx, "m1")
	if market.Status != model.StatusResolved {
		t.Errorf("status = %s, want RESOLVED", market.Status)
	}
}

func TestMemoryStore_UpdateStatusIdempotent(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateMarket(ctx, newMarket("m1", model.StatusLocked, time.Now().UTC()))

	// Re-applying the current status is not a regression.
	if err := ms.UpdateMarketStatus(ctx, "m1", model.StatusLocked); err != nil {
		t.Errorf("same-status update: %v", err)
	}
}

func TestMemoryStore_CreateSessionUnique(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateMarket(ctx, newMarket("m1", model.StatusOpen, time.Now().UTC()))

	sess := &model.Session{
		ID: "s1", MarketID: "m1",
		Player1: "0xalice", Bet1Side: model.SideA, Bet1Amount: d(10),
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	dup := &model.Session{ID: "s2", MarketID: "m1", Player1: "0xbob", Bet1Side: model.SideB, Bet1Amount: d(10)}
	if err := ms.CreateSession(ctx, dup); !errors.Is(err, ErrSessionExists) {
		t.Errorf("err = %v, want ErrSessionExists", err)
	}

	got, err := ms.GetSessionByMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("GetSessionByMarket: %v", err)
	}
	if got.Player1 != "0xalice" {
		t.Errorf("first session must win, got player1=%s", got.Player1)
	}
}

func TestMemoryStore_SetSecondPlayerOnce(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateSession(ctx, &model.Session{
		ID: "s1", MarketID: "m1",
		Player1: "0xalice", Bet1Side: model.SideA, Bet1Amount: d(10),
	})

	if err := ms.SetSecondPlayer(ctx, "s1", "0xbob", model.SideB, d(10), "0xtx2"); err != nil {
		t.Fatalf("SetSecondPlayer: %v", err)
	}

	// A second attempt lost the race and must not overwrite.
	if err := ms.SetSecondPlayer(ctx, "s1", "0xcarol", model.SideB, d(20), "0xtx3"); !errors.Is(err, ErrSessionFull) {
		t.Errorf("err = %v, want ErrSessionFull", err)
	}

	sess, _ := ms.GetSessionByMarket(ctx, "m1")
	if sess.Player2 != "0xbob" {
		t.Errorf("player2 = %s, want 0xbob", sess.Player2)
	}
	if !sess.Bet2Amount.Equal(d(10)) {
		t.Errorf("bet2_amount = %s, want 10", sess.Bet2Amount)
	}

	if err := ms.SetSecondPlayer(ctx, "nope", "0xbob", model.SideB, d(10), "0xtx"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStore_ResolveSession(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	ms.CreateSession(ctx, &model.Session{
		ID: "s1", MarketID: "m1",
		Player1: "0xalice", Bet1Side: model.SideA, Bet1Amount: d(10),
		Player2: "0xbob", Bet2Side: model.SideB, Bet2Amount: d(10),
	})

	if err := ms.ResolveSession(ctx, "s1", "0xbob", d(20), d(0.4), d(19.6), "0xres"); err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}

	sess, _ := ms.GetSessionByMarket(ctx, "m1")
	if !sess.Resolved {
		t.Error("session should be resolved")
	}
	if sess.Winner != "0xbob" {
		t.Errorf("winner = %s, want 0xbob", sess.Winner)
	}
	if !sess.WinnerPayout.Equal(d(19.6)) {
		t.Errorf("payout = %s, want 19.6", sess.WinnerPayout)
	}
	if sess.TxHashResolve != "0xres" {
		t.Errorf("tx hash = %s, want 0xres", sess.TxHashResolve)
	}

	if err := ms.ResolveSession(ctx, "nope", "w", d(1), d(0), d(1), "0x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStore_ListSessionsByWallet(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	ms.CreateSession(ctx, &model.Session{
		ID: "s1", MarketID: "m1",
		Player1: "0xalice", Bet1Side: model.SideA, Bet1Amount: d(10),
		CreatedAt: now.Add(-time.Minute),
	})
	ms.CreateSession(ctx, &model.Session{
		ID: "s2", MarketID: "m2",
		Player1: "0xcarol", Bet1Side: model.SideA, Bet1Amount: d(5),
		Player2: "0xalice", Bet2Side: model.SideB, Bet2Amount: d(5),
		CreatedAt: now,
	})
	ms.CreateSession(ctx, &model.Session{
		ID: "s3", MarketID: "m3",
		Player1: "0xdave", Bet1Side: model.SideA, Bet1Amount: d(1),
		CreatedAt: now,
	})

	sessions, err := ms.ListSessionsByWallet(ctx, "0xalice")
	if err != nil {
		t.Fatalf("ListSessionsByWallet: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "s2" {
		t.Errorf("expected newest first, got %s", sessions[0].ID)
	}

	none, err := ms.ListSessionsByWallet(ctx, "0xnobody")
	if err != nil {
		t.Fatalf("ListSessionsByWallet: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no sessions, got %d", len(none))
	}
}
