package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market snapshots.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	ListResolved(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bet records together with their frozen market snapshot.
// A bet's snapshot is frozen at ingest time but its market can resolve
// later; ListUnresolved and MarkResolved drive the settlement pass that
// refreshes snapshots once the market's answer finalizes.
type BetStore interface {
	InsertBatch(ctx context.Context, bets []Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByBettor(ctx context.Context, bettor string, opts ListOpts) ([]Bet, error)
	// ListUnresolved returns bets not yet settled, oldest first.
	ListUnresolved(ctx context.Context, opts ListOpts) ([]Bet, error)
	// MarkResolved stores the refreshed resolved market snapshot and flags
	// the bet as settled, excluding it from future ListUnresolved calls.
	MarkResolved(ctx context.Context, betID string, market Market) error
	LastCreationTimestamp(ctx context.Context) (time.Time, error)
}
