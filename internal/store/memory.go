package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	markets  map[string]*model.Market
	sessions map[string]*model.Session // keyed by session ID
	byMarket map[string]string         // market ID → session ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:  make(map[string]*model.Market),
		sessions: make(map[string]*model.Session),
		byMarket: make(map[string]string),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sortNewestFirst(markets)
	return markets, nil
}

func (s *MemoryStore) ListMarketsByStatus(_ context.Context, status string) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var markets []model.Market
	for _, m := range s.markets {
		if m.Status == status {
			markets = append(markets, *m)
		}
	}
	sortNewestFirst(markets)
	return markets, nil
}

func (s *MemoryStore) UpdateMarketStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrMarketNotFound
	}
	if model.StatusRank(status) < model.StatusRank(m.Status) {
		return ErrStatusRegression
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byMarket[sess.MarketID]; ok {
		return ErrSessionExists
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.byMarket[sess.MarketID] = sess.ID
	return nil
}

func (s *MemoryStore) GetSessionByMarket(_ context.Context, marketID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMarket[marketID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s.sessions[id]
	return &cp, nil
}

func (s *MemoryStore) SetSecondPlayer(_ context.Context, sessionID, player2 string, side int, amount decimal.Decimal, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.HasSecondPlayer() {
		return ErrSessionFull
	}
	sess.Player2 = player2
	sess.Bet2Side = side
	sess.Bet2Amount = amount
	sess.TxHashPlace2 = txHash
	return nil
}

func (s *MemoryStore) ResolveSession(_ context.Context, sessionID, winner string, totalPool, fee, payout decimal.Decimal, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Resolved = true
	sess.Winner = winner
	sess.TotalPool = totalPool
	sess.FeeAmount = fee
	sess.WinnerPayout = payout
	sess.TxHashResolve = txHash
	return nil
}

func (s *MemoryStore) ListSessionsByWallet(_ context.Context, wallet string) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []model.Session
	for _, sess := range s.sessions {
		if sess.Player1 == wallet || sess.Player2 == wallet {
			sessions = append(sessions, *sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func sortNewestFirst(markets []model.Market) {
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
}
