package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency tags an amount with the unit it is denominated in.
type Currency string

const (
	CurrencyXDai Currency = "xDai"
	CurrencyUSD  Currency = "USD"
)

// BetAmountCurrency is the settlement currency for Omen bets. Omen markets
// on Gnosis Chain collateralize in xDai-denominated tokens.
const BetAmountCurrency = CurrencyXDai

// BetAmount is a bet stake with its currency.
type BetAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// ProfitAmount is a signed realized profit with its currency.
type ProfitAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// ResolvedBet is the normalized projection of a bet whose market has
// resolved. It is the shape consumed by reporting and archival.
type ResolvedBet struct {
	Amount         BetAmount    `json:"amount"`
	Outcome        bool         `json:"outcome"`
	MarketQuestion string       `json:"market_question"`
	MarketOutcome  bool         `json:"market_outcome"`
	CreatedTime    time.Time    `json:"created_time"`
	ResolvedTime   time.Time    `json:"resolved_time"`
	Profit         ProfitAmount `json:"profit"`
}
