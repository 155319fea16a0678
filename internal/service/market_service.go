// Package service contains the application services that sit between the
// subgraph client, the stores and the delivery surfaces.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// MarketService handles market snapshot sync and cached reads.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(markets domain.MarketStore, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// SyncMarkets upserts a batch of market snapshots into the persistent store
// and invalidates cached entries so subsequent reads pick up fresh pool
// balances and answers.
func (s *MarketService) SyncMarkets(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	if err := s.markets.UpsertBatch(ctx, markets); err != nil {
		return fmt.Errorf("market_service: upsert batch: %w", err)
	}

	for _, m := range markets {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			// Non-fatal: the cache entry expires on its own.
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "synced markets", slog.Int("count", len(markets)))
	return nil
}

// GetMarket retrieves a market by its FPMM address, checking the cache first
// and falling back to the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListOpen returns open markets from the persistent store.
func (s *MarketService) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list open: %w", err)
	}
	return markets, nil
}

// ListResolved returns resolved markets from the persistent store.
func (s *MarketService) ListResolved(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListResolved(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list resolved: %w", err)
	}
	return markets, nil
}

// Count returns the number of stored market snapshots.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}
