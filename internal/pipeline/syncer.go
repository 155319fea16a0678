// Package pipeline drives the periodic subgraph sync: fetch new market
// snapshots and bets, push them through the services, and archive resolved
// bets to cold storage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gnosisagents/omenbot/internal/domain"
	"github.com/gnosisagents/omenbot/internal/notify"
)

// SubgraphFetcher is the slice of the subgraph client the syncer needs.
type SubgraphFetcher interface {
	FetchMarkets(ctx context.Context, createdAfter time.Time, first int) ([]domain.Market, error)
	FetchMarket(ctx context.Context, id string) (domain.Market, error)
	FetchBets(ctx context.Context, bettor string, since time.Time, first int) ([]domain.Bet, error)
}

// MarketIngester receives fetched market snapshots.
type MarketIngester interface {
	SyncMarkets(ctx context.Context, markets []domain.Market) error
}

// BetIngester receives fetched bets and settles stored ones.
type BetIngester interface {
	IngestBets(ctx context.Context, bets []domain.Bet) error
	SettleBets(ctx context.Context, bets []domain.Bet) (map[string][]domain.ResolvedBet, error)
}

// Notifier alerts operators about failed sync cycles.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event, title, message string) error
}

// Config holds the tunables for a Syncer.
type Config struct {
	// Bettors are the wallet addresses whose bets are tracked.
	Bettors []string
	// Interval between sync cycles.
	Interval time.Duration
	// FetchLimit is the page size for subgraph queries.
	FetchLimit int
	// MarketLookback bounds the market fetch window on first run.
	MarketLookback time.Duration
}

// Syncer periodically pulls markets and bets from the Omen subgraph and
// feeds them to the services. Each cycle runs three stages: sync recent
// markets, ingest new bets, then settle stored bets whose markets have
// resolved since ingestion. Settlement re-fetches each pending bet's market
// directly, so markets older than the lookback window still settle. Bets are
// flagged once settled, so restarts and the inclusive fetch window never
// re-notify or re-archive a resolution.
type Syncer struct {
	fetcher  SubgraphFetcher
	markets  MarketIngester
	bets     BetIngester
	betStore domain.BetStore
	archiver domain.Archiver
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
}

// NewSyncer creates a Syncer. The archiver and notifier may be nil, in
// which case resolved bets are not archived and failed cycles are only
// logged.
func NewSyncer(
	fetcher SubgraphFetcher,
	markets MarketIngester,
	bets BetIngester,
	betStore domain.BetStore,
	archiver domain.Archiver,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Syncer {
	return &Syncer{
		fetcher:  fetcher,
		markets:  markets,
		bets:     bets,
		betStore: betStore,
		archiver: archiver,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "syncer")),
	}
}

// Run executes a single sync cycle and returns the number of markets and
// bets ingested.
func (s *Syncer) Run(ctx context.Context) (marketCount, betCount int, err error) {
	marketCount, err = s.syncMarkets(ctx)
	if err != nil {
		return 0, 0, err
	}
	betCount, err = s.syncBets(ctx)
	if err != nil {
		return marketCount, 0, err
	}
	if err = s.settleBets(ctx); err != nil {
		return marketCount, betCount, err
	}
	return marketCount, betCount, nil
}

func (s *Syncer) syncMarkets(ctx context.Context) (int, error) {
	createdAfter := time.Now().UTC().Add(-s.cfg.MarketLookback)

	markets, err := s.fetcher.FetchMarkets(ctx, createdAfter, s.cfg.FetchLimit)
	if err != nil {
		return 0, fmt.Errorf("pipeline: fetch markets: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}
	if err := s.markets.SyncMarkets(ctx, markets); err != nil {
		return 0, fmt.Errorf("pipeline: sync markets: %w", err)
	}
	return len(markets), nil
}

func (s *Syncer) syncBets(ctx context.Context) (int, error) {
	since, err := s.betStore.LastCreationTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("pipeline: last bet timestamp: %w", err)
	}

	total := 0
	for _, bettor := range s.cfg.Bettors {
		bets, err := s.fetcher.FetchBets(ctx, bettor, since, s.cfg.FetchLimit)
		if err != nil {
			return total, fmt.Errorf("pipeline: fetch bets for %s: %w", bettor, err)
		}
		if len(bets) == 0 {
			continue
		}

		if err := s.bets.IngestBets(ctx, bets); err != nil {
			return total, fmt.Errorf("pipeline: ingest bets for %s: %w", bettor, err)
		}
		total += len(bets)
	}
	return total, nil
}

// settleBets re-checks stored unsettled bets against fresh market state.
// Each pending bet's market is re-fetched from the subgraph and upserted
// first: a market created before the lookback window never comes back from
// the windowed market fetch, but its resolution must still reach the bets
// placed on it.
func (s *Syncer) settleBets(ctx context.Context) error {
	pending, err := s.betStore.ListUnresolved(ctx, domain.ListOpts{Limit: s.cfg.FetchLimit})
	if err != nil {
		return fmt.Errorf("pipeline: list unresolved bets: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var fresh []domain.Market
	for _, b := range pending {
		if seen[b.Market.ID] {
			continue
		}
		seen[b.Market.ID] = true

		m, err := s.fetcher.FetchMarket(ctx, b.Market.ID)
		if err != nil {
			// A single unavailable market should not stall settlement of
			// the rest; it is retried next cycle.
			s.logger.WarnContext(ctx, "market refresh failed",
				slog.String("market_id", b.Market.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) > 0 {
		if err := s.markets.SyncMarkets(ctx, fresh); err != nil {
			return fmt.Errorf("pipeline: sync refreshed markets: %w", err)
		}
	}

	settled, err := s.bets.SettleBets(ctx, pending)
	if err != nil {
		return fmt.Errorf("pipeline: settle bets: %w", err)
	}

	for bettor, resolved := range settled {
		if s.archiver == nil || len(resolved) == 0 {
			continue
		}
		path, err := s.archiver.ArchiveResolvedBets(ctx, bettor, resolved)
		if err != nil {
			// Archival is best-effort; the bets are already settled.
			s.logger.ErrorContext(ctx, "archive failed",
				slog.String("bettor", bettor),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.InfoContext(ctx, "archived resolved bets",
			slog.String("bettor", bettor),
			slog.Int("count", len(resolved)),
			slog.String("path", path),
		)
	}
	return nil
}

// RunLoop runs sync cycles on a repeating interval until the context is
// cancelled. The first cycle runs immediately; a failed cycle is logged and
// retried on the next tick.
func (s *Syncer) RunLoop(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context) {
	marketCount, betCount, err := s.Run(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sync cycle failed", slog.String("error", err.Error()))
		if s.notifier != nil {
			if nerr := s.notifier.Notify(ctx, notify.EventSyncError, "Sync cycle failed", err.Error()); nerr != nil {
				s.logger.WarnContext(ctx, "sync-error notification failed", slog.String("error", nerr.Error()))
			}
		}
		return
	}
	s.logger.InfoContext(ctx, "sync cycle complete",
		slog.Int("markets", marketCount),
		slog.Int("bets", betCount),
	)
}
