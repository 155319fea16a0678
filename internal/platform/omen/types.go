package omen

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// marketRecord mirrors the subgraph's fixedProductMarketMaker entity. All
// BigInt fields arrive as decimal strings; optional fields are null-able
// pointers. Records are validated and converted into domain models before
// leaving this package.
type marketRecord struct {
	ID                         string    `json:"id"`
	Title                      string    `json:"title"`
	CollateralToken            string    `json:"collateralToken"`
	CollateralVolume           string    `json:"collateralVolume"`
	USDVolume                  string    `json:"usdVolume"`
	Outcomes                   []string  `json:"outcomes"`
	OutcomeTokenAmounts        []string  `json:"outcomeTokenAmounts"`
	OutcomeTokenMarginalPrices []string  `json:"outcomeTokenMarginalPrices"`
	Fee                        *string   `json:"fee"`
	ResolutionTimestamp        *string   `json:"resolutionTimestamp"`
	AnswerFinalizedTimestamp   *string   `json:"answerFinalizedTimestamp"`
	CurrentAnswer              *string   `json:"currentAnswer"`
	CreationTimestamp          *string   `json:"creationTimestamp"`
	OpeningTimestamp           *string   `json:"openingTimestamp"`
	IsPendingArbitration       bool      `json:"isPendingArbitration"`
	ArbitrationOccurred        bool      `json:"arbitrationOccurred"`
}

// betRecord mirrors the subgraph's fpmmTrade entity, with the market
// snapshot embedded under fpmm.
type betRecord struct {
	ID                           string       `json:"id"`
	Title                        string       `json:"title"`
	CollateralToken              string       `json:"collateralToken"`
	OutcomeTokenMarginalPrice    string       `json:"outcomeTokenMarginalPrice"`
	OldOutcomeTokenMarginalPrice string       `json:"oldOutcomeTokenMarginalPrice"`
	Type                         string       `json:"type"`
	Creator                      struct {
		ID string `json:"id"`
	} `json:"creator"`
	CreationTimestamp   string       `json:"creationTimestamp"`
	CollateralAmount    string       `json:"collateralAmount"`
	CollateralAmountUSD string       `json:"collateralAmountUSD"`
	FeeAmount           string       `json:"feeAmount"`
	OutcomeIndex        string       `json:"outcomeIndex"`
	OutcomeTokensTraded string       `json:"outcomeTokensTraded"`
	TransactionHash     string       `json:"transactionHash"`
	FPMM                marketRecord `json:"fpmm"`
}

// toDomain validates a raw market record and converts it into a domain
// Market. Every field violation is collected before returning, so a
// malformed record reports all of its problems at once.
func (r marketRecord) toDomain() (domain.Market, error) {
	verr := &domain.ValidationError{Record: "market", ID: r.ID}

	if r.ID == "" {
		verr.Add("id", "required field is missing")
	}
	if r.Title == "" {
		verr.Add("title", "required field is missing")
	}
	if r.CollateralToken == "" {
		verr.Add("collateralToken", "required field is missing")
	}
	if len(r.Outcomes) == 0 {
		verr.Add("outcomes", "required field is missing or empty")
	}

	m := domain.Market{
		ID:                   r.ID,
		Title:                r.Title,
		CollateralToken:      r.CollateralToken,
		Outcomes:             r.Outcomes,
		CurrentAnswer:        r.CurrentAnswer,
		IsPendingArbitration: r.IsPendingArbitration,
		ArbitrationOccurred:  r.ArbitrationOccurred,
	}

	if r.CollateralVolume != "" {
		m.CollateralVolume = parseWeiField(verr, "collateralVolume", r.CollateralVolume)
	}
	if r.USDVolume != "" {
		m.USDVolume = parseDecimalField(verr, "usdVolume", r.USDVolume)
	}

	if r.OutcomeTokenAmounts != nil {
		if len(r.OutcomeTokenAmounts) != len(r.Outcomes) {
			verr.Add("outcomeTokenAmounts", "length %d does not match %d outcomes",
				len(r.OutcomeTokenAmounts), len(r.Outcomes))
		}
		m.OutcomeTokenAmounts = make([]domain.Wei, 0, len(r.OutcomeTokenAmounts))
		for i, s := range r.OutcomeTokenAmounts {
			w := parseWeiField(verr, "outcomeTokenAmounts["+strconv.Itoa(i)+"]", s)
			if w.BigInt().Sign() < 0 {
				verr.Add("outcomeTokenAmounts["+strconv.Itoa(i)+"]", "must be non-negative, got %s", s)
			}
			m.OutcomeTokenAmounts = append(m.OutcomeTokenAmounts, w)
		}
	}

	if r.OutcomeTokenMarginalPrices != nil {
		m.OutcomeTokenMarginalPrices = make([]decimal.Decimal, 0, len(r.OutcomeTokenMarginalPrices))
		for i, s := range r.OutcomeTokenMarginalPrices {
			m.OutcomeTokenMarginalPrices = append(m.OutcomeTokenMarginalPrices,
				parseDecimalField(verr, "outcomeTokenMarginalPrices["+strconv.Itoa(i)+"]", s))
		}
	}

	if r.Fee != nil {
		fee := parseWeiField(verr, "fee", *r.Fee)
		m.Fee = &fee
	}

	m.ResolutionTimestamp = parseTimestampField(verr, "resolutionTimestamp", r.ResolutionTimestamp)
	m.AnswerFinalizedTimestamp = parseTimestampField(verr, "answerFinalizedTimestamp", r.AnswerFinalizedTimestamp)
	m.CreationTimestamp = parseTimestampField(verr, "creationTimestamp", r.CreationTimestamp)
	m.OpeningTimestamp = parseTimestampField(verr, "openingTimestamp", r.OpeningTimestamp)

	if err := verr.OrNil(); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// toDomain validates a raw bet record, including its embedded market
// snapshot, and converts it into a domain Bet.
func (r betRecord) toDomain() (domain.Bet, error) {
	verr := &domain.ValidationError{Record: "bet", ID: r.ID}

	if r.ID == "" {
		verr.Add("id", "required field is missing")
	}
	if r.Creator.ID == "" {
		verr.Add("creator.id", "required field is missing")
	}
	if r.TransactionHash == "" {
		verr.Add("transactionHash", "required field is missing")
	}

	b := domain.Bet{
		ID:              r.ID,
		Title:           r.Title,
		CollateralToken: r.CollateralToken,
		Type:            r.Type,
		Creator:         domain.BetCreator{ID: r.Creator.ID},
		TransactionHash: r.TransactionHash,
	}

	b.OutcomeTokenMarginalPrice = parseDecimalField(verr, "outcomeTokenMarginalPrice", r.OutcomeTokenMarginalPrice)
	b.OldOutcomeTokenMarginalPrice = parseDecimalField(verr, "oldOutcomeTokenMarginalPrice", r.OldOutcomeTokenMarginalPrice)
	b.CollateralAmount = parseWeiField(verr, "collateralAmount", r.CollateralAmount)
	b.CollateralAmountUSD = parseDecimalField(verr, "collateralAmountUSD", r.CollateralAmountUSD)
	b.FeeAmount = parseWeiField(verr, "feeAmount", r.FeeAmount)
	b.OutcomeTokensTraded = parseWeiField(verr, "outcomeTokensTraded", r.OutcomeTokensTraded)

	if r.CreationTimestamp == "" {
		verr.Add("creationTimestamp", "required field is missing")
	} else if ts, err := strconv.ParseInt(r.CreationTimestamp, 10, 64); err != nil {
		verr.Add("creationTimestamp", "cannot parse %q as unix seconds", r.CreationTimestamp)
	} else {
		b.CreationTimestamp = ts
	}

	if r.OutcomeIndex == "" {
		verr.Add("outcomeIndex", "required field is missing")
	} else if idx, err := strconv.Atoi(r.OutcomeIndex); err != nil {
		verr.Add("outcomeIndex", "cannot parse %q as an integer", r.OutcomeIndex)
	} else if idx < 0 {
		verr.Add("outcomeIndex", "must be non-negative, got %d", idx)
	} else {
		b.OutcomeIndex = idx
	}

	market, err := r.FPMM.toDomain()
	if err != nil {
		var mverr *domain.ValidationError
		if errors.As(err, &mverr) {
			for _, f := range mverr.Fields {
				verr.Add("fpmm."+f.Field, "%s", f.Reason)
			}
		} else {
			verr.Add("fpmm", "%s", err.Error())
		}
	}
	b.Market = market

	if err := verr.OrNil(); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

// parseWeiField parses a BigInt string, recording a violation on failure.
func parseWeiField(verr *domain.ValidationError, field, s string) domain.Wei {
	w, err := domain.WeiFromString(s)
	if err != nil {
		verr.Add(field, "cannot parse %q as a wei amount", s)
		return domain.Wei{}
	}
	return w
}

// parseDecimalField parses a decimal string, recording a violation on
// failure.
func parseDecimalField(verr *domain.ValidationError, field, s string) decimal.Decimal {
	if s == "" {
		verr.Add(field, "required field is missing")
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		verr.Add(field, "cannot parse %q as a decimal", s)
		return decimal.Decimal{}
	}
	return d
}

// parseTimestampField parses an optional unix-seconds string.
func parseTimestampField(verr *domain.ValidationError, field string, s *string) *int64 {
	if s == nil {
		return nil
	}
	ts, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		verr.Add(field, "cannot parse %q as unix seconds", *s)
		return nil
	}
	return &ts
}
