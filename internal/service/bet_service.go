package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gnosisagents/omenbot/internal/domain"
	"github.com/gnosisagents/omenbot/internal/notify"
)

// Notifier is the slice of the notification system the bet service needs.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event, title, message string) error
}

// MarketReader serves current market state for the settlement pass.
// MarketService implements it.
type MarketReader interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
}

// BetService handles bet ingestion, settlement, resolved-bet derivation and
// P&L reporting for tracked bettors.
type BetService struct {
	bets     domain.BetStore
	markets  MarketReader
	notifier Notifier
	logger   *slog.Logger
}

// NewBetService creates a BetService. The market reader may be nil for
// report-only use, in which case SettleBets is a no-op.
func NewBetService(bets domain.BetStore, markets MarketReader, notifier Notifier, logger *slog.Logger) *BetService {
	return &BetService{
		bets:     bets,
		markets:  markets,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "bet_service")),
	}
}

// IngestBets inserts a batch of bets into the store. Insertion is idempotent
// and silent: notifications fire from SettleBets, once per bet, when its
// market is first seen resolved.
func (s *BetService) IngestBets(ctx context.Context, bets []domain.Bet) error {
	if len(bets) == 0 {
		return nil
	}

	if err := s.bets.InsertBatch(ctx, bets); err != nil {
		return fmt.Errorf("bet_service: insert batch: %w", err)
	}
	s.logger.InfoContext(ctx, "ingested bets", slog.Int("count", len(bets)))
	return nil
}

// SettleBets re-checks unsettled bets against current market state. A bet
// whose market has resolved gets its stored snapshot refreshed, is flagged
// settled so it never settles twice, and fires one bet-resolved
// notification. Returns the newly settled bets grouped by bettor wallet.
func (s *BetService) SettleBets(ctx context.Context, bets []domain.Bet) (map[string][]domain.ResolvedBet, error) {
	if s.markets == nil || len(bets) == 0 {
		return nil, nil
	}

	settled := make(map[string][]domain.ResolvedBet)
	for _, b := range bets {
		market, err := s.markets.GetMarket(ctx, b.Market.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return settled, fmt.Errorf("bet_service: settle bet %s: %w", b.ID, err)
		}
		if !market.IsResolved() || market.ResolutionTimestamp == nil {
			continue
		}

		b.Market = market
		rb, err := b.ToResolvedBet()
		if err != nil {
			s.logger.WarnContext(ctx, "skipping underivable bet",
				slog.String("bet_id", b.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := s.bets.MarkResolved(ctx, b.ID, market); err != nil {
			return settled, fmt.Errorf("bet_service: settle bet %s: %w", b.ID, err)
		}

		bettor := strings.ToLower(b.Creator.ID)
		settled[bettor] = append(settled[bettor], rb)
		s.notifyResolved(ctx, rb)
	}

	if len(settled) > 0 {
		s.logger.InfoContext(ctx, "settled bets", slog.Int("bettors", len(settled)))
	}
	return settled, nil
}

// ResolvedBets returns the resolved projections of a bettor's stored bets,
// oldest first. Bets on markets that have not resolved yet are skipped.
func (s *BetService) ResolvedBets(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.ResolvedBet, error) {
	bets, err := s.bets.ListByBettor(ctx, bettor, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list by bettor: %w", err)
	}
	return s.resolveAll(ctx, bets), nil
}

// resolveAll projects each bet into its resolved form, skipping bets whose
// market is still open and logging bets that fail to derive for any other
// reason (malformed snapshots should not halt a report).
func (s *BetService) resolveAll(ctx context.Context, bets []domain.Bet) []domain.ResolvedBet {
	var resolved []domain.ResolvedBet
	for _, b := range bets {
		rb, err := b.ToResolvedBet()
		if err != nil {
			if errors.Is(err, domain.ErrMarketNotResolved) {
				continue
			}
			s.logger.WarnContext(ctx, "skipping underivable bet",
				slog.String("bet_id", b.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resolved = append(resolved, rb)
	}
	return resolved
}

func (s *BetService) notifyResolved(ctx context.Context, rb domain.ResolvedBet) {
	verdict := "lost"
	if rb.Profit.Amount.Sign() >= 0 {
		verdict = "won"
	}
	msg := fmt.Sprintf("%s\nProfit: %s %s", rb.MarketQuestion,
		rb.Profit.Amount.String(), rb.Profit.Currency)
	if err := s.notifier.Notify(ctx, notify.EventBetResolved, "Bet "+verdict, msg); err != nil {
		s.logger.WarnContext(ctx, "resolved-bet notification failed",
			slog.String("error", err.Error()),
		)
	}
}

// Report is a point-in-time P&L summary over a bettor's resolved bets.
type Report struct {
	ID          string               `json:"id"`
	Bettor      string               `json:"bettor"`
	GeneratedAt time.Time            `json:"generated_at"`
	Bets        []domain.ResolvedBet `json:"bets"`
	Wins        int                  `json:"wins"`
	Losses      int                  `json:"losses"`
	TotalProfit domain.ProfitAmount  `json:"total_profit"`
}

// BuildReport derives all resolved bets for the bettor in the given window
// and aggregates them into a uuid-tagged report. A bet counts as a win when
// the bettor's chosen outcome matched the market's final outcome.
func (s *BetService) BuildReport(ctx context.Context, bettor string, opts domain.ListOpts) (Report, error) {
	resolved, err := s.ResolvedBets(ctx, bettor, opts)
	if err != nil {
		return Report{}, fmt.Errorf("bet_service: build report: %w", err)
	}

	report := Report{
		ID:          uuid.NewString(),
		Bettor:      bettor,
		GeneratedAt: time.Now().UTC(),
		Bets:        resolved,
		TotalProfit: domain.ProfitAmount{Amount: decimal.Zero, Currency: domain.BetAmountCurrency},
	}
	for _, rb := range resolved {
		if rb.Outcome == rb.MarketOutcome {
			report.Wins++
		} else {
			report.Losses++
		}
		report.TotalProfit.Amount = report.TotalProfit.Amount.Add(rb.Profit.Amount)
	}

	s.logger.InfoContext(ctx, "built report",
		slog.String("report_id", report.ID),
		slog.String("bettor", bettor),
		slog.Int("resolved_bets", len(resolved)),
	)
	return report, nil
}

// Summary renders the report as a short human-readable block, the shape sent
// to notification channels and printed in report mode.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "P&L report %s\n", r.ID)
	fmt.Fprintf(&b, "Bettor: %s\n", r.Bettor)
	fmt.Fprintf(&b, "Resolved bets: %d (%d won, %d lost)\n", len(r.Bets), r.Wins, r.Losses)
	fmt.Fprintf(&b, "Total profit: %s %s", r.TotalProfit.Amount.String(), r.TotalProfit.Currency)
	return b.String()
}
