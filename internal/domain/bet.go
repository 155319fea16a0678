package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BetCreator identifies the account that placed a bet.
type BetCreator struct {
	ID string // creator wallet address
}

// Bet is an immutable record of a single trade against an Omen market. It
// owns a frozen copy of the market snapshot as it was at bet time; later
// resolution state arrives by re-fetching the bet, not by mutating it.
type Bet struct {
	ID                           string
	Title                        string
	CollateralToken              string
	OutcomeTokenMarginalPrice    decimal.Decimal
	OldOutcomeTokenMarginalPrice decimal.Decimal
	Type                         string // "Buy" or "Sell"
	Creator                      BetCreator
	CreationTimestamp            int64
	CollateralAmount             Wei
	CollateralAmountUSD          decimal.Decimal
	FeeAmount                    Wei
	OutcomeIndex                 int
	OutcomeTokensTraded          Wei
	TransactionHash              string
	Market                       Market // market snapshot at bet time
}

// CreationTime returns the bet creation time in UTC. Subgraph timestamps
// are unix seconds; UTC is used everywhere so time comparisons between bets
// and their market's resolution are timezone-independent.
func (b Bet) CreationTime() time.Time {
	return time.Unix(b.CreationTimestamp, 0).UTC()
}

// BooleanOutcome decodes the outcome this bet was placed on, using the
// outcome label at the bet's outcome index in the market snapshot.
func (b Bet) BooleanOutcome() (bool, error) {
	if b.OutcomeIndex < 0 || b.OutcomeIndex >= len(b.Market.Outcomes) {
		return false, fmt.Errorf("bet %s: outcome index %d outside %d outcomes: %w",
			b.ID, b.OutcomeIndex, len(b.Market.Outcomes), ErrOutcomeNotFound)
	}
	return BooleanOutcome(b.Market.Outcomes[b.OutcomeIndex])
}

// Profit computes the realized profit of the bet in the settlement
// currency. A winning bet earns the traded outcome tokens minus the stake;
// a losing bet forfeits the stake. The fee is charged win or lose. Requires
// a resolved market snapshot.
func (b Bet) Profit() (ProfitAmount, error) {
	chosen, err := b.BooleanOutcome()
	if err != nil {
		return ProfitAmount{}, fmt.Errorf("bet %s: chosen outcome: %w", b.ID, err)
	}
	final, err := b.Market.BooleanOutcome()
	if err != nil {
		return ProfitAmount{}, fmt.Errorf("bet %s: market outcome: %w", b.ID, err)
	}

	stake := WeiToXDai(b.CollateralAmount)
	var profit decimal.Decimal
	if chosen == final {
		profit = WeiToXDai(b.OutcomeTokensTraded).Sub(stake)
	} else {
		profit = stake.Neg()
	}
	profit = profit.Sub(WeiToXDai(b.FeeAmount))

	return ProfitAmount{Amount: profit, Currency: BetAmountCurrency}, nil
}

// ToResolvedBet projects the bet into its normalized resolved form. It
// fails with ErrMarketNotResolved while the embedded market snapshot lacks
// a resolution timestamp.
func (b Bet) ToResolvedBet() (ResolvedBet, error) {
	if b.Market.ResolutionTimestamp == nil {
		return ResolvedBet{}, fmt.Errorf("bet %s %q has no resolution time: %w",
			b.ID, b.Title, ErrMarketNotResolved)
	}

	outcome, err := b.BooleanOutcome()
	if err != nil {
		return ResolvedBet{}, err
	}
	marketOutcome, err := b.Market.BooleanOutcome()
	if err != nil {
		return ResolvedBet{}, err
	}
	profit, err := b.Profit()
	if err != nil {
		return ResolvedBet{}, err
	}

	return ResolvedBet{
		Amount:         BetAmount{Amount: b.CollateralAmountUSD, Currency: BetAmountCurrency},
		Outcome:        outcome,
		MarketQuestion: b.Title,
		MarketOutcome:  marketOutcome,
		CreatedTime:    b.CreationTime(),
		ResolvedTime:   b.Market.ResolutionTime(),
		Profit:         profit,
	}, nil
}
