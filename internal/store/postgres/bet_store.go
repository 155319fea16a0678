package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. The frozen market
// snapshot each bet owns is stored as JSONB alongside the flattened bet
// columns, so a re-read reproduces the bet exactly as it was fetched.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// InsertBatch inserts multiple bets in one batch. Re-ingesting a bet that is
// already present (the incremental fetch window is inclusive, so the newest
// stored bet comes back every cycle) refreshes its market snapshot as long
// as the bet has not been settled yet; settled bets are left untouched.
func (s *BetStore) InsertBatch(ctx context.Context, bets []domain.Bet) error {
	if len(bets) == 0 {
		return nil
	}

	const query = `
		INSERT INTO bets (
			id, title, collateral_token,
			outcome_token_marginal_price, old_outcome_token_marginal_price,
			trade_type, creator, creation_timestamp,
			collateral_amount, collateral_amount_usd, fee_amount,
			outcome_index, outcome_tokens_traded, transaction_hash,
			market_id, market_snapshot
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			$15, $16
		) ON CONFLICT (id) DO UPDATE
			SET market_snapshot = EXCLUDED.market_snapshot
			WHERE NOT bets.resolved`

	batch := &pgx.Batch{}
	for _, b := range bets {
		snapshot, err := json.Marshal(b.Market)
		if err != nil {
			return fmt.Errorf("postgres: marshal market snapshot for bet %s: %w", b.ID, err)
		}
		batch.Queue(query,
			b.ID, b.Title, b.CollateralToken,
			b.OutcomeTokenMarginalPrice.String(), b.OldOutcomeTokenMarginalPrice.String(),
			b.Type, strings.ToLower(b.Creator.ID), b.CreationTimestamp,
			b.CollateralAmount.String(), b.CollateralAmountUSD.String(), b.FeeAmount.String(),
			b.OutcomeIndex, b.OutcomeTokensTraded.String(), b.TransactionHash,
			b.Market.ID, snapshot,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range bets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert bet batch item %d: %w", i, err)
		}
	}
	return nil
}

const betSelectCols = `id, title, collateral_token,
	outcome_token_marginal_price, old_outcome_token_marginal_price,
	trade_type, creator, creation_timestamp,
	collateral_amount, collateral_amount_usd, fee_amount,
	outcome_index, outcome_tokens_traded, transaction_hash,
	market_snapshot`

// scanBet scans a single bet row into a domain.Bet.
func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b                 domain.Bet
		marginalPrice     string
		oldMarginalPrice  string
		collateralAmount  string
		collateralUSD     string
		feeAmount         string
		tokensTraded      string
		snapshot          []byte
	)
	err := row.Scan(
		&b.ID, &b.Title, &b.CollateralToken,
		&marginalPrice, &oldMarginalPrice,
		&b.Type, &b.Creator.ID, &b.CreationTimestamp,
		&collateralAmount, &collateralUSD, &feeAmount,
		&b.OutcomeIndex, &tokensTraded, &b.TransactionHash,
		&snapshot,
	)
	if err != nil {
		return domain.Bet{}, err
	}

	if b.OutcomeTokenMarginalPrice, err = decimal.NewFromString(marginalPrice); err != nil {
		return domain.Bet{}, err
	}
	if b.OldOutcomeTokenMarginalPrice, err = decimal.NewFromString(oldMarginalPrice); err != nil {
		return domain.Bet{}, err
	}
	if b.CollateralAmount, err = domain.WeiFromString(collateralAmount); err != nil {
		return domain.Bet{}, err
	}
	if b.CollateralAmountUSD, err = decimal.NewFromString(collateralUSD); err != nil {
		return domain.Bet{}, err
	}
	if b.FeeAmount, err = domain.WeiFromString(feeAmount); err != nil {
		return domain.Bet{}, err
	}
	if b.OutcomeTokensTraded, err = domain.WeiFromString(tokensTraded); err != nil {
		return domain.Bet{}, err
	}
	if err = json.Unmarshal(snapshot, &b.Market); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

// GetByID returns the bet with the given id. It returns domain.ErrNotFound
// when no such bet exists.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE id = $1`, id)

	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByBettor returns bets placed by the given wallet, oldest first, with
// pagination and optional time filtering.
func (s *BetStore) ListByBettor(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE creator = $1`
	args := []any{strings.ToLower(bettor)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND creation_timestamp >= $%d", argIdx)
		args = append(args, opts.Since.Unix())
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND creation_timestamp <= $%d", argIdx)
		args = append(args, opts.Until.Unix())
		argIdx++
	}

	query += " ORDER BY creation_timestamp ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets by bettor: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bets by bettor: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets by bettor: %w", err)
	}
	return bets, nil
}

// ListUnresolved returns bets that have not been settled yet, oldest first.
// The settlement pass re-checks these against fresh market state each cycle.
func (s *BetStore) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE NOT resolved`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND creation_timestamp >= $%d", argIdx)
		args = append(args, opts.Since.Unix())
		argIdx++
	}

	query += " ORDER BY creation_timestamp ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan unresolved bets: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unresolved bets: %w", err)
	}
	return bets, nil
}

// MarkResolved stores the refreshed resolved market snapshot and flags the
// bet as settled, so it is never settled (or notified) a second time.
func (s *BetStore) MarkResolved(ctx context.Context, betID string, market domain.Market) error {
	snapshot, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("postgres: marshal market snapshot for bet %s: %w", betID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET market_snapshot = $2, resolved = TRUE WHERE id = $1`,
		betID, snapshot)
	if err != nil {
		return fmt.Errorf("postgres: mark bet %s resolved: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark bet %s resolved: %w", betID, domain.ErrNotFound)
	}
	return nil
}

// LastCreationTimestamp returns the creation time of the most recent stored
// bet, or the zero time if no bets exist. The syncer uses this to resume
// incremental fetching.
func (s *BetStore) LastCreationTimestamp(ctx context.Context) (time.Time, error) {
	var ts *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(creation_timestamp) FROM bets").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last bet timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return time.Unix(*ts, 0).UTC(), nil
}
