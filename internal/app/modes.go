package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/gnosisagents/omenbot/internal/blob/s3"
	"github.com/gnosisagents/omenbot/internal/domain"
	"github.com/gnosisagents/omenbot/internal/notify"
	"github.com/gnosisagents/omenbot/internal/pipeline"
	"github.com/gnosisagents/omenbot/internal/service"
)

// TrackMode runs the subgraph sync loop: markets and tracked bettors' bets
// are pulled on an interval, stored, and resolved bets are notified and
// archived. Blocks until the context is cancelled.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode",
		slog.Int("bettors", len(a.cfg.Tracker.Bettors)),
		slog.Duration("interval", a.cfg.Tracker.SyncInterval.Duration),
	)

	marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketCache, a.logger)
	betSvc := service.NewBetService(deps.BetStore, marketSvc, deps.Notifier, a.logger)

	syncer := pipeline.NewSyncer(
		deps.Subgraph,
		marketSvc,
		betSvc,
		deps.BetStore,
		deps.Archiver,
		deps.Notifier,
		pipeline.Config{
			Bettors:        a.cfg.Tracker.Bettors,
			Interval:       a.cfg.Tracker.SyncInterval.Duration,
			FetchLimit:     a.cfg.Tracker.FetchLimit,
			MarketLookback: a.cfg.Tracker.MarketLookback.Duration,
		},
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return syncer.RunLoop(ctx)
	})
	g.Go(func() error {
		return a.watchLatestBlock(ctx, deps)
	})
	g.Go(func() error {
		return a.watchStoreStats(ctx, marketSvc)
	})
	return g.Wait()
}

// ReportMode builds a one-shot P&L report for every tracked bettor, prints
// it to stdout, and pushes it through the notification channels.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting report mode",
		slog.Int("bettors", len(a.cfg.Tracker.Bettors)),
	)

	betSvc := service.NewBetService(deps.BetStore, nil, deps.Notifier, a.logger)

	for _, bettor := range a.cfg.Tracker.Bettors {
		report, err := betSvc.BuildReport(ctx, bettor, a.reportWindow())
		if err != nil {
			return fmt.Errorf("app: report for %s: %w", bettor, err)
		}

		if deps.BlobReader != nil {
			a.logPreviousArchive(ctx, deps.BlobReader, bettor)
		}

		summary := report.Summary()
		fmt.Fprintln(os.Stdout, summary)

		if err := deps.Notifier.Notify(ctx, notify.EventReport, "P&L report", summary); err != nil {
			a.logger.WarnContext(ctx, "report notification failed",
				slog.String("bettor", bettor),
				slog.String("error", err.Error()),
			)
		}

		if deps.Archiver != nil && len(report.Bets) > 0 {
			path, err := deps.Archiver.ArchiveResolvedBets(ctx, bettor, report.Bets)
			if err != nil {
				return fmt.Errorf("app: archive report for %s: %w", bettor, err)
			}
			a.logger.InfoContext(ctx, "report archived",
				slog.String("bettor", bettor),
				slog.String("path", path),
			)
		}
	}
	return nil
}

// MonitorMode watches the subgraph without persistence: it logs the indexed
// chain head and the implied probabilities of recently created open markets.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.watchLatestBlock(ctx, deps)
	})
	g.Go(func() error {
		return a.watchProbabilities(ctx, deps)
	})
	return g.Wait()
}

// watchLatestBlock periodically logs the latest block the subgraph has
// indexed, so operators can spot indexing stalls.
func (a *App) watchLatestBlock(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Tracker.SyncInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			block, err := deps.Subgraph.FetchLatestBlock(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "latest block fetch failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "subgraph head",
				slog.Int64("block", block),
			)
		}
	}
}

// watchStoreStats periodically logs how many market snapshots the store
// holds and how many of them are open versus resolved, so operators can see
// the tracker making progress without querying the database by hand.
func (a *App) watchStoreStats(ctx context.Context, markets *service.MarketService) error {
	ticker := time.NewTicker(a.cfg.Tracker.SyncInterval.Duration)
	defer ticker.Stop()

	opts := domain.ListOpts{Limit: a.cfg.Tracker.FetchLimit}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			total, err := markets.Count(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "market count failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			open, err := markets.ListOpen(ctx, opts)
			if err != nil {
				a.logger.ErrorContext(ctx, "open market list failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			resolved, err := markets.ListResolved(ctx, opts)
			if err != nil {
				a.logger.ErrorContext(ctx, "resolved market list failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "market store stats",
				slog.Int64("total", total),
				slog.Int("open", len(open)),
				slog.Int("resolved", len(resolved)),
			)
		}
	}
}

// logPreviousArchive reads the bettor's most recent resolved-bet archive
// from object storage and logs its row count, so a fresh report can be eyed
// against the last one.
func (a *App) logPreviousArchive(ctx context.Context, reader domain.BlobReader, bettor string) {
	infos, err := reader.List(ctx, s3blob.ArchivePrefix(bettor))
	if err != nil {
		a.logger.WarnContext(ctx, "archive list failed",
			slog.String("bettor", bettor),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(infos) == 0 {
		return
	}

	// Archive paths end in YYYY-MM-DD.csv, so the lexically greatest path
	// is the most recent one.
	latest := infos[0]
	for _, info := range infos[1:] {
		if info.Path > latest.Path {
			latest = info
		}
	}

	body, err := reader.Get(ctx, latest.Path)
	if err != nil {
		a.logger.WarnContext(ctx, "archive read failed",
			slog.String("path", latest.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		a.logger.WarnContext(ctx, "archive read failed",
			slog.String("path", latest.Path),
			slog.String("error", err.Error()),
		)
		return
	}

	rows := bytes.Count(data, []byte("\n")) - 1 // header row
	if rows < 0 {
		rows = 0
	}
	a.logger.InfoContext(ctx, "previous archive",
		slog.String("bettor", bettor),
		slog.String("path", latest.Path),
		slog.Int("rows", rows),
		slog.Int("archives", len(infos)),
	)
}

// watchProbabilities periodically fetches recently created markets and logs
// the implied yes-probability of each open one.
func (a *App) watchProbabilities(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Tracker.SyncInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			createdAfter := time.Now().UTC().Add(-a.cfg.Tracker.MarketLookback.Duration)
			markets, err := deps.Subgraph.FetchMarkets(ctx, createdAfter, a.cfg.Tracker.FetchLimit)
			if err != nil {
				a.logger.ErrorContext(ctx, "market fetch failed",
					slog.String("error", err.Error()),
				)
				continue
			}

			for _, m := range markets {
				if !m.IsOpen() {
					continue
				}
				pYes, err := m.ProbabilityYes()
				if err != nil {
					continue
				}
				a.logger.InfoContext(ctx, "market probability",
					slog.String("market_id", m.ID),
					slog.String("title", m.Title),
					slog.Float64("p_yes", pYes),
				)
			}
		}
	}
}

// reportWindow translates the market lookback into list options for report
// queries. A zero lookback means the whole history.
func (a *App) reportWindow() (opts domain.ListOpts) {
	if a.cfg.Tracker.MarketLookback.Duration > 0 {
		since := time.Now().UTC().Add(-a.cfg.Tracker.MarketLookback.Duration)
		opts.Since = &since
	}
	return opts
}
