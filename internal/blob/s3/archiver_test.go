package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnosisagents/omenbot/internal/domain"
)

type captureWriter struct {
	path        string
	contentType string
	body        []byte
}

func (c *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	c.path = path
	c.contentType = contentType
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	c.body = body
	return nil
}

func TestArchiveResolvedBets(t *testing.T) {
	cw := &captureWriter{}
	a := NewArchiver(cw)
	a.now = func() time.Time {
		return time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC)
	}

	bets := []domain.ResolvedBet{
		{
			Amount:         domain.BetAmount{Amount: decimal.RequireFromString("10"), Currency: domain.CurrencyXDai},
			Outcome:        true,
			MarketQuestion: "Will it rain tomorrow?",
			MarketOutcome:  true,
			CreatedTime:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
			ResolvedTime:   time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
			Profit:         domain.ProfitAmount{Amount: decimal.RequireFromString("4"), Currency: domain.CurrencyXDai},
		},
	}

	path, err := a.ArchiveResolvedBets(context.Background(), "0xABCDEF0123456789abcdef0123456789ABCDEF01", bets)
	if err != nil {
		t.Fatalf("ArchiveResolvedBets: %v", err)
	}

	wantPath := "archive/resolved-bets/0xabcdef0123456789abcdef0123456789abcdef01/2026-08-27.csv"
	if path != wantPath {
		t.Errorf("path = %q, want %q", path, wantPath)
	}
	if cw.path != wantPath {
		t.Errorf("uploaded path = %q, want %q", cw.path, wantPath)
	}
	if cw.contentType != "text/csv" {
		t.Errorf("content type = %q, want text/csv", cw.contentType)
	}

	records, err := csv.NewReader(bytes.NewReader(cw.body)).ReadAll()
	if err != nil {
		t.Fatalf("parse uploaded csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d csv rows, want 2 (header + 1 bet)", len(records))
	}
	row := records[1]
	if row[0] != "Will it rain tomorrow?" {
		t.Errorf("market_question = %q", row[0])
	}
	if row[1] != "true" || row[2] != "true" {
		t.Errorf("outcome columns = %q/%q, want true/true", row[1], row[2])
	}
	if row[5] != "4" || row[6] != "xDai" {
		t.Errorf("profit columns = %q/%q, want 4/xDai", row[5], row[6])
	}
	if row[7] != "2026-08-01T09:00:00Z" {
		t.Errorf("created_time = %q", row[7])
	}
}

func TestArchiveResolvedBetsEmptyStillWritesHeader(t *testing.T) {
	cw := &captureWriter{}
	a := NewArchiver(cw)

	if _, err := a.ArchiveResolvedBets(context.Background(), "0xabc", nil); err != nil {
		t.Fatalf("ArchiveResolvedBets: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(cw.body)).ReadAll()
	if err != nil {
		t.Fatalf("parse uploaded csv: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d csv rows, want header only", len(records))
	}
	if records[0][0] != "market_question" {
		t.Errorf("header = %v", records[0])
	}
}
