package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection
// pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketUpsertQuery = `
	INSERT INTO markets (
		id, title, collateral_token, outcomes,
		outcome_token_amounts, outcome_token_marginal_prices,
		collateral_volume, usd_volume, fee,
		resolution_timestamp, answer_finalized_timestamp, current_answer,
		creation_timestamp, opening_timestamp,
		is_pending_arbitration, arbitration_occurred, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6,
		$7, $8, $9,
		$10, $11, $12,
		$13, $14,
		$15, $16, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		title                         = EXCLUDED.title,
		collateral_token              = EXCLUDED.collateral_token,
		outcomes                      = EXCLUDED.outcomes,
		outcome_token_amounts         = EXCLUDED.outcome_token_amounts,
		outcome_token_marginal_prices = EXCLUDED.outcome_token_marginal_prices,
		collateral_volume             = EXCLUDED.collateral_volume,
		usd_volume                    = EXCLUDED.usd_volume,
		fee                           = EXCLUDED.fee,
		resolution_timestamp          = EXCLUDED.resolution_timestamp,
		answer_finalized_timestamp    = EXCLUDED.answer_finalized_timestamp,
		current_answer                = EXCLUDED.current_answer,
		creation_timestamp            = EXCLUDED.creation_timestamp,
		opening_timestamp             = EXCLUDED.opening_timestamp,
		is_pending_arbitration        = EXCLUDED.is_pending_arbitration,
		arbitration_occurred          = EXCLUDED.arbitration_occurred,
		updated_at                    = NOW()`

// marketArgs flattens a domain.Market into upsert query arguments.
func marketArgs(m domain.Market) []any {
	var fee *string
	if m.Fee != nil {
		s := m.Fee.String()
		fee = &s
	}
	return []any{
		m.ID, m.Title, m.CollateralToken, m.Outcomes,
		weiSliceToStrings(m.OutcomeTokenAmounts),
		decimalSliceToStrings(m.OutcomeTokenMarginalPrices),
		m.CollateralVolume.String(), m.USDVolume.String(), fee,
		m.ResolutionTimestamp, m.AnswerFinalizedTimestamp, m.CurrentAnswer,
		m.CreationTimestamp, m.OpeningTimestamp,
		m.IsPendingArbitration, m.ArbitrationOccurred,
	}
}

// Upsert inserts or updates a single market snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if _, err := s.pool.Exec(ctx, marketUpsertQuery, marketArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple market snapshots in one batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(marketUpsertQuery, marketArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketSelectCols = `id, title, collateral_token, outcomes,
	outcome_token_amounts, outcome_token_marginal_prices,
	collateral_volume, usd_volume, fee,
	resolution_timestamp, answer_finalized_timestamp, current_answer,
	creation_timestamp, opening_timestamp,
	is_pending_arbitration, arbitration_occurred`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m              domain.Market
		amounts        []string
		marginalPrices []string
		volume         string
		usdVolume      string
		fee            *string
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.CollateralToken, &m.Outcomes,
		&amounts, &marginalPrices,
		&volume, &usdVolume, &fee,
		&m.ResolutionTimestamp, &m.AnswerFinalizedTimestamp, &m.CurrentAnswer,
		&m.CreationTimestamp, &m.OpeningTimestamp,
		&m.IsPendingArbitration, &m.ArbitrationOccurred,
	)
	if err != nil {
		return domain.Market{}, err
	}

	if m.OutcomeTokenAmounts, err = stringsToWeiSlice(amounts); err != nil {
		return domain.Market{}, err
	}
	if m.OutcomeTokenMarginalPrices, err = stringsToDecimalSlice(marginalPrices); err != nil {
		return domain.Market{}, err
	}
	if m.CollateralVolume, err = domain.WeiFromString(volume); err != nil {
		return domain.Market{}, err
	}
	if m.USDVolume, err = decimal.NewFromString(usdVolume); err != nil {
		return domain.Market{}, err
	}
	if fee != nil {
		w, err := domain.WeiFromString(*fee)
		if err != nil {
			return domain.Market{}, err
		}
		m.Fee = &w
	}
	return m, nil
}

func scanMarketRows(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// GetByID returns the market with the given FPMM address. It returns
// domain.ErrNotFound when no such market exists.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListOpen returns markets without a recorded answer, newest first.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, "current_answer IS NULL", opts)
}

// ListResolved returns markets with a finalized answer, newest resolution
// first.
func (s *MarketStore) ListResolved(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, "answer_finalized_timestamp IS NOT NULL AND current_answer IS NOT NULL", opts)
}

func (s *MarketStore) list(ctx context.Context, where string, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE ` + where
	args := []any{}
	argIdx := 1

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

	query += " ORDER BY creation_timestamp DESC"

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets: %w", err)
	}
	return markets, nil
}

// Count returns the total number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Slice conversion helpers shared with the bet store.
// ---------------------------------------------------------------------------

func weiSliceToStrings(ws []domain.Wei) []string {
	if ws == nil {
		return nil
	}
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

func stringsToWeiSlice(ss []string) ([]domain.Wei, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]domain.Wei, len(ss))
	for i, s := range ss {
		w, err := domain.WeiFromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func decimalSliceToStrings(ds []decimal.Decimal) []string {
	if ds == nil {
		return nil
	}
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func stringsToDecimalSlice(ss []string) ([]decimal.Decimal, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
