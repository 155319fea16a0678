package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnosisagents/omenbot/internal/domain"
	"github.com/gnosisagents/omenbot/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeMarketStore struct {
	markets map[string]domain.Market
	upserts int
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{markets: make(map[string]domain.Market)}
}

func (f *fakeMarketStore) Upsert(_ context.Context, m domain.Market) error {
	f.markets[m.ID] = m
	f.upserts++
	return nil
}

func (f *fakeMarketStore) UpsertBatch(ctx context.Context, ms []domain.Market) error {
	for _, m := range ms {
		if err := f.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketStore) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		if m.IsOpen() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMarketStore) ListResolved(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		if m.IsResolved() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMarketStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.markets)), nil
}

type fakeMarketCache struct {
	entries     map[string]domain.Market
	invalidated []string
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{entries: make(map[string]domain.Market)}
}

func (f *fakeMarketCache) Set(_ context.Context, m domain.Market) error {
	f.entries[m.ID] = m
	return nil
}

func (f *fakeMarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.entries[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketCache) Invalidate(_ context.Context, id string) error {
	delete(f.entries, id)
	f.invalidated = append(f.invalidated, id)
	return nil
}

type fakeBetStore struct {
	bets      []domain.Bet
	resolved  map[string]bool
	insertErr error
}

func (f *fakeBetStore) indexOf(id string) int {
	for i, b := range f.bets {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeBetStore) InsertBatch(_ context.Context, bets []domain.Bet) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, b := range bets {
		if i := f.indexOf(b.ID); i >= 0 {
			if !f.resolved[b.ID] {
				f.bets[i].Market = b.Market
			}
			continue
		}
		f.bets = append(f.bets, b)
	}
	return nil
}

func (f *fakeBetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	for _, b := range f.bets {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bet{}, domain.ErrNotFound
}

func (f *fakeBetStore) ListByBettor(_ context.Context, bettor string, _ domain.ListOpts) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range f.bets {
		if strings.EqualFold(b.Creator.ID, bettor) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBetStore) ListUnresolved(_ context.Context, _ domain.ListOpts) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range f.bets {
		if !f.resolved[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBetStore) MarkResolved(_ context.Context, betID string, market domain.Market) error {
	i := f.indexOf(betID)
	if i < 0 {
		return domain.ErrNotFound
	}
	f.bets[i].Market = market
	if f.resolved == nil {
		f.resolved = make(map[string]bool)
	}
	f.resolved[betID] = true
	return nil
}

func (f *fakeBetStore) LastCreationTimestamp(_ context.Context) (time.Time, error) {
	var max int64
	for _, b := range f.bets {
		if b.CreationTimestamp > max {
			max = b.CreationTimestamp
		}
	}
	if max == 0 {
		return time.Time{}, nil
	}
	return time.Unix(max, 0).UTC(), nil
}

type fakeNotifier struct {
	events []notify.Event
	titles []string
}

func (f *fakeNotifier) Notify(_ context.Context, event notify.Event, title, _ string) error {
	f.events = append(f.events, event)
	f.titles = append(f.titles, title)
	return nil
}

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

// xdaiWei returns n xDai expressed in wei (n * 10^18 overflows int64, so the
// multiplication happens in big-integer space).
func xdaiWei(n int64) domain.Wei {
	return domain.XDaiToWei(decimal.NewFromInt(n))
}

func i64p(v int64) *int64   { return &v }
func strp(s string) *string { return &s }

func resolvedMarket(id, answer string) domain.Market {
	return domain.Market{
		ID:                       id,
		Title:                    "Will the merge happen this year?",
		Outcomes:                 []string{domain.OutcomeYes, domain.OutcomeNo},
		OutcomeTokenAmounts:      []domain.Wei{xdaiWei(30), xdaiWei(70)},
		AnswerFinalizedTimestamp: i64p(1700000000),
		ResolutionTimestamp:      i64p(1700000100),
		CurrentAnswer:            strp(answer),
	}
}

func openMarket(id string) domain.Market {
	return domain.Market{
		ID:                  id,
		Title:               "Will the merge happen this year?",
		Outcomes:            []string{domain.OutcomeYes, domain.OutcomeNo},
		OutcomeTokenAmounts: []domain.Wei{xdaiWei(50), xdaiWei(50)},
	}
}

// betOn returns a bet of 10 xDai on outcome index 0 ("Yes") with 15 outcome
// tokens traded and a 1 xDai fee, against the given market snapshot.
func betOn(id, bettor string, market domain.Market) domain.Bet {
	return domain.Bet{
		ID:                  id,
		Title:               market.Title,
		Type:                "Buy",
		Creator:             domain.BetCreator{ID: bettor},
		CreationTimestamp:   1690000000,
		CollateralAmount:    xdaiWei(10),
		CollateralAmountUSD: decimal.RequireFromString("10"),
		FeeAmount:           xdaiWei(1),
		OutcomeIndex:        0,
		OutcomeTokensTraded: xdaiWei(15),
		Market:              market,
	}
}

// ---------------------------------------------------------------------------
// MarketService
// ---------------------------------------------------------------------------

func TestSyncMarketsInvalidatesCache(t *testing.T) {
	store := newFakeMarketStore()
	cache := newFakeMarketCache()
	svc := NewMarketService(store, cache, discardLogger())

	m := openMarket("0xaaa")
	if err := cache.Set(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	if err := svc.SyncMarkets(context.Background(), []domain.Market{m}); err != nil {
		t.Fatalf("SyncMarkets: %v", err)
	}
	if store.upserts != 1 {
		t.Errorf("upserts = %d, want 1", store.upserts)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "0xaaa" {
		t.Errorf("invalidated = %v, want [0xaaa]", cache.invalidated)
	}
}

func TestGetMarketCacheFallthrough(t *testing.T) {
	store := newFakeMarketStore()
	cache := newFakeMarketCache()
	svc := NewMarketService(store, cache, discardLogger())

	m := openMarket("0xbbb")
	store.markets[m.ID] = m

	got, err := svc.GetMarket(context.Background(), "0xbbb")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got.ID != "0xbbb" {
		t.Errorf("got market %q", got.ID)
	}
	// The miss should have back-filled the cache.
	if _, ok := cache.entries["0xbbb"]; !ok {
		t.Error("cache was not back-filled after store read")
	}
}

func TestGetMarketNotFound(t *testing.T) {
	svc := NewMarketService(newFakeMarketStore(), newFakeMarketCache(), discardLogger())

	_, err := svc.GetMarket(context.Background(), "0xmissing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// BetService
// ---------------------------------------------------------------------------

func TestIngestBetsStoresWithoutNotifying(t *testing.T) {
	store := &fakeBetStore{}
	notifier := &fakeNotifier{}
	svc := NewBetService(store, nil, notifier, discardLogger())

	bettor := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	bets := []domain.Bet{
		betOn("bet-1", bettor, resolvedMarket("0xaaa", "0x0")),
		betOn("bet-2", bettor, openMarket("0xbbb")),
	}

	if err := svc.IngestBets(context.Background(), bets); err != nil {
		t.Fatalf("IngestBets: %v", err)
	}
	if len(store.bets) != 2 {
		t.Errorf("stored %d bets, want 2", len(store.bets))
	}

	// The inclusive fetch window re-delivers stored bets; ingestion stays
	// idempotent.
	if err := svc.IngestBets(context.Background(), bets); err != nil {
		t.Fatalf("IngestBets again: %v", err)
	}
	if len(store.bets) != 2 {
		t.Errorf("re-ingest duplicated bets: %d stored", len(store.bets))
	}

	// Resolution notifications belong to the settlement pass.
	if len(notifier.events) != 0 {
		t.Errorf("ingest fired notifications: %v", notifier.events)
	}
}

func TestSettleBetsNotifiesOnceOnResolution(t *testing.T) {
	marketStore := newFakeMarketStore()
	cache := newFakeMarketCache()
	marketSvc := NewMarketService(marketStore, cache, discardLogger())

	store := &fakeBetStore{}
	notifier := &fakeNotifier{}
	svc := NewBetService(store, marketSvc, notifier, discardLogger())

	bettor := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	ctx := context.Background()

	// Bet ingested while its market is still open.
	marketStore.markets["0xaaa"] = openMarket("0xaaa")
	if err := svc.IngestBets(ctx, []domain.Bet{betOn("bet-1", bettor, openMarket("0xaaa"))}); err != nil {
		t.Fatalf("IngestBets: %v", err)
	}

	pending, err := store.ListUnresolved(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	settled, err := svc.SettleBets(ctx, pending)
	if err != nil {
		t.Fatalf("SettleBets: %v", err)
	}
	if len(settled) != 0 || len(notifier.events) != 0 {
		t.Fatalf("settled before resolution: %v / %v", settled, notifier.events)
	}

	// The market resolves Yes.
	if err := marketSvc.SyncMarkets(ctx, []domain.Market{resolvedMarket("0xaaa", "0x0")}); err != nil {
		t.Fatal(err)
	}

	pending, err = store.ListUnresolved(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	settled, err = svc.SettleBets(ctx, pending)
	if err != nil {
		t.Fatalf("SettleBets: %v", err)
	}
	key := strings.ToLower(bettor)
	if len(settled[key]) != 1 {
		t.Fatalf("settled = %v, want one bet for %s", settled, key)
	}
	if want := decimal.RequireFromString("4"); !settled[key][0].Profit.Amount.Equal(want) {
		t.Errorf("profit = %s, want %s", settled[key][0].Profit.Amount, want)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notify.EventBetResolved {
		t.Fatalf("events = %v, want one bet_resolved", notifier.events)
	}
	if notifier.titles[0] != "Bet won" {
		t.Errorf("title = %q, want %q", notifier.titles[0], "Bet won")
	}
	if !store.bets[0].Market.IsResolved() {
		t.Error("stored snapshot was not refreshed to the resolved market")
	}

	// Later cycles find nothing pending and never re-notify.
	pending, err = store.ListUnresolved(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("settled bet still listed as pending: %v", pending)
	}
	if _, err := svc.SettleBets(ctx, pending); err != nil {
		t.Fatalf("SettleBets: %v", err)
	}
	if len(notifier.events) != 1 {
		t.Errorf("resolution notified %d times, want 1", len(notifier.events))
	}
}

func TestBuildReportAggregates(t *testing.T) {
	store := &fakeBetStore{}
	svc := NewBetService(store, nil, &fakeNotifier{}, discardLogger())

	bettor := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	store.bets = []domain.Bet{
		betOn("bet-1", bettor, resolvedMarket("0xaaa", "0x0")), // won: +4
		betOn("bet-2", bettor, resolvedMarket("0xbbb", "0x1")), // lost: -11
		betOn("bet-3", bettor, openMarket("0xccc")),            // excluded
		betOn("bet-4", "0xother", resolvedMarket("0xddd", "0x0")),
	}

	report, err := svc.BuildReport(context.Background(), bettor, domain.ListOpts{})
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.ID == "" {
		t.Error("report has no id")
	}
	if report.Bettor != bettor {
		t.Errorf("bettor = %q", report.Bettor)
	}
	if len(report.Bets) != 2 {
		t.Fatalf("got %d resolved bets, want 2", len(report.Bets))
	}
	if report.Wins != 1 || report.Losses != 1 {
		t.Errorf("wins/losses = %d/%d, want 1/1", report.Wins, report.Losses)
	}
	if want := decimal.RequireFromString("-7"); !report.TotalProfit.Amount.Equal(want) {
		t.Errorf("total profit = %s, want %s", report.TotalProfit.Amount, want)
	}
	if report.TotalProfit.Currency != domain.CurrencyXDai {
		t.Errorf("currency = %q", report.TotalProfit.Currency)
	}

	summary := report.Summary()
	for _, want := range []string{report.ID, bettor, "1 won, 1 lost", "-7 xDai"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestIngestBetsPropagatesStoreError(t *testing.T) {
	store := &fakeBetStore{insertErr: errors.New("connection refused")}
	svc := NewBetService(store, nil, &fakeNotifier{}, discardLogger())

	err := svc.IngestBets(context.Background(), []domain.Bet{
		betOn("bet-1", "0xabc", openMarket("0xaaa")),
	})
	if err == nil {
		t.Fatal("expected error from store")
	}
}
