package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// Archiver implements domain.Archiver by serializing resolved bets to CSV
// and uploading the file to object storage. Archives are partitioned by
// bettor wallet and the day the archive was taken:
//
//	archive/resolved-bets/{bettor}/2026-08-27.csv
//
// Deletion of archived records from the primary store is intentionally not
// performed here.
type Archiver struct {
	writer domain.BlobWriter
	now    func() time.Time
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{
		writer: writer,
		now:    time.Now,
	}
}

// ArchiveResolvedBets serializes the bets to CSV and uploads the file. It
// returns the object path the archive was written to. An empty bet slice
// still produces an archive with just the header row, so a daily run leaves
// an auditable record either way.
func (a *Archiver) ArchiveResolvedBets(ctx context.Context, bettor string, bets []domain.ResolvedBet) (string, error) {
	buf, err := marshalResolvedBetsCSV(bets)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive resolved bets marshal: %w", err)
	}

	path := resolvedBetArchivePath(bettor, a.now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv"); err != nil {
		return "", fmt.Errorf("s3blob: archive resolved bets upload: %w", err)
	}
	return path, nil
}

// ArchivePrefix returns the object-storage prefix under which a bettor's
// resolved-bet archives are written. Useful for listing prior archives.
func ArchivePrefix(bettor string) string {
	return "archive/resolved-bets/" + strings.ToLower(bettor) + "/"
}

func resolvedBetArchivePath(bettor string, day time.Time) string {
	return fmt.Sprintf("%s%s.csv", ArchivePrefix(bettor), day.Format("2006-01-02"))
}

var resolvedBetCSVHeader = []string{
	"market_question", "outcome", "market_outcome",
	"amount", "amount_currency",
	"profit", "profit_currency",
	"created_time", "resolved_time",
}

// marshalResolvedBetsCSV renders resolved bets as CSV with a header row.
// Timestamps are RFC 3339 in UTC; amounts keep their full decimal precision.
func marshalResolvedBetsCSV(bets []domain.ResolvedBet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(resolvedBetCSVHeader); err != nil {
		return nil, err
	}
	for _, b := range bets {
		row := []string{
			b.MarketQuestion,
			strconv.FormatBool(b.Outcome),
			strconv.FormatBool(b.MarketOutcome),
			b.Amount.Amount.String(), string(b.Amount.Currency),
			b.Profit.Amount.String(), string(b.Profit.Currency),
			b.CreatedTime.UTC().Format(time.RFC3339),
			b.ResolvedTime.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
