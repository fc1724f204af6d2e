package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/klash/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	if err := s.primary.UpdateMarketStatus(ctx, id, status); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) CreateSession(ctx context.Context, sess *model.Session) error {
	if err := s.primary.CreateSession(ctx, sess); err != nil {
		return err
	}
	s.rdb.Del(ctx, sessionKey(sess.MarketID))
	return nil
}

func (s *CachedStore) SetSecondPlayer(ctx context.Context, sessionID, player2 string, side int, amount decimal.Decimal, txHash string) error {
	if err := s.primary.SetSecondPlayer(ctx, sessionID, player2, side, amount, txHash); err != nil {
		return err
	}
	s.invalidateSessionByID(ctx, sessionID)
	return nil
}

func (s *CachedStore) ResolveSession(ctx context.Context, sessionID, winner string, totalPool, fee, payout decimal.Decimal, txHash string) error {
	if err := s.primary.ResolveSession(ctx, sessionID, winner, totalPool, fee, payout, txHash); err != nil {
		return err
	}
	s.invalidateSessionByID(ctx, sessionID)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetSessionByMarket(ctx context.Context, marketID string) (*model.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(marketID)).Bytes()
	if err == nil {
		var sess model.Session
		if json.Unmarshal(data, &sess) == nil {
			return &sess, nil
		}
	}

	sess, err := s.primary.GetSessionByMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(sess); err == nil {
		s.rdb.Set(ctx, sessionKey(marketID), data, s.ttl)
		s.rdb.Set(ctx, sessionMarketKey(sess.ID), marketID, s.ttl)
	}
	return sess, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListMarketsByStatus(ctx context.Context, status string) ([]model.Market, error) {
	return s.primary.ListMarketsByStatus(ctx, status)
}

func (s *CachedStore) ListSessionsByWallet(ctx context.Context, wallet string) ([]model.Session, error) {
	return s.primary.ListSessionsByWallet(ctx, wallet)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

// invalidateSessionByID drops the cached session via the session→market
// mapping. If the mapping expired the session entry will expire on its
// own TTL.
func (s *CachedStore) invalidateSessionByID(ctx context.Context, sessionID string) {
	marketID, err := s.rdb.Get(ctx, sessionMarketKey(sessionID)).Result()
	if err != nil {
		return
	}
	s.rdb.Del(ctx, sessionKey(marketID))
}

func marketKey(id string) string        { return fmt.Sprintf("market:%s", id) }
func sessionKey(marketID string) string { return fmt.Sprintf("session:market:%s", marketID) }
func sessionMarketKey(id string) string { return fmt.Sprintf("session:id:%s", id) }
