package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Market is an immutable snapshot of an Omen fixed-product market maker
// (FPMM) as indexed by the subgraph. The same type represents standalone
// market queries and the market snapshot embedded in a Bet; fields only the
// full market query returns are optional and nil when absent.
//
// A Market is constructed once from fetched subgraph data and never mutated;
// resolution state changes arrive as fresh snapshots.
type Market struct {
	ID              string // FPMM contract address
	Title           string
	CollateralToken string

	Outcomes                   []string
	OutcomeTokenAmounts        []Wei             // pool balance per outcome, same length as Outcomes
	OutcomeTokenMarginalPrices []decimal.Decimal // optional
	CollateralVolume           Wei
	USDVolume                  decimal.Decimal
	Fee                        *Wei

	ResolutionTimestamp      *int64
	AnswerFinalizedTimestamp *int64
	CurrentAnswer            *string // hex-encoded index into Outcomes
	CreationTimestamp        *int64
	OpeningTimestamp         *int64

	IsPendingArbitration bool
	ArbitrationOccurred  bool
}

// IsOpen reports whether no answer has been recorded yet.
func (m Market) IsOpen() bool {
	return m.CurrentAnswer == nil
}

// IsResolved reports whether the market has both a finalized answer
// timestamp and a current answer. Both must be present; the subgraph can
// briefly expose one without the other while the oracle finalizes.
func (m Market) IsResolved() bool {
	return m.AnswerFinalizedTimestamp != nil && m.CurrentAnswer != nil
}

// IsBinary reports whether the market has exactly two outcomes.
func (m Market) IsBinary() bool {
	return len(m.Outcomes) == 2
}

// AddressChecksummed returns the FPMM contract address in EIP-55 checksum
// form.
func (m Market) AddressChecksummed() string {
	return common.HexToAddress(m.ID).Hex()
}

// CollateralTokenChecksummed returns the collateral token address in EIP-55
// checksum form.
func (m Market) CollateralTokenChecksummed() string {
	return common.HexToAddress(m.CollateralToken).Hex()
}

// ProbabilityYes derives the implied probability of the "Yes" outcome from
// the relative pool token amounts. Under the constant-product rule a larger
// pool holding of an outcome token means the market prices that outcome as
// less likely, so the probability is 1 - yesAmount/total.
//
// Not every market reliably carries OutcomeTokenMarginalPrices, hence the
// derivation from token amounts. A market without exactly two token amounts
// fails with ErrUnsupportedMarketShape; a market whose outcome list lacks
// the "Yes" label fails with ErrOutcomeNotFound. An untraded pool (all
// amounts zero) yields even odds of 0.5 rather than dividing by zero.
func (m Market) ProbabilityYes() (float64, error) {
	if len(m.OutcomeTokenAmounts) != 2 {
		return 0, fmt.Errorf("market %s %q has %d outcome token amounts: %w",
			m.ID, m.Title, len(m.OutcomeTokenAmounts), ErrUnsupportedMarketShape)
	}

	yesIdx := -1
	for i, o := range m.Outcomes {
		if o == OutcomeYes {
			yesIdx = i
			break
		}
	}
	if yesIdx < 0 || yesIdx >= len(m.OutcomeTokenAmounts) {
		return 0, fmt.Errorf("market %s %q has no %q outcome: %w",
			m.ID, m.Title, OutcomeYes, ErrOutcomeNotFound)
	}

	total := new(big.Int)
	for _, a := range m.OutcomeTokenAmounts {
		total.Add(total, a.BigInt())
	}
	if total.Sign() == 0 {
		// No trading activity yet: even odds.
		return 0.5, nil
	}

	ratio := new(big.Float).Quo(
		new(big.Float).SetInt(m.OutcomeTokenAmounts[yesIdx].BigInt()),
		new(big.Float).SetInt(total),
	)
	f, _ := ratio.Float64()
	return 1 - f, nil
}

// ProbabilityNo is the complement of ProbabilityYes.
func (m Market) ProbabilityNo() (float64, error) {
	yes, err := m.ProbabilityYes()
	if err != nil {
		return 0, err
	}
	return 1 - yes, nil
}

// OutcomeTokenProbabilities returns the subgraph's marginal prices as plain
// floats, or nil when the market does not carry them.
func (m Market) OutcomeTokenProbabilities() []float64 {
	if m.OutcomeTokenMarginalPrices == nil {
		return nil
	}
	probs := make([]float64, len(m.OutcomeTokenMarginalPrices))
	for i, p := range m.OutcomeTokenMarginalPrices {
		probs[i], _ = p.Float64()
	}
	return probs
}

// BooleanOutcome decodes the market's final answer into a boolean. It
// requires a binary, resolved market: the current answer is a hex-encoded
// index into the outcome list, and the label at that index must be one of
// the two recognized outcome labels.
func (m Market) BooleanOutcome() (bool, error) {
	if !m.IsBinary() {
		return false, fmt.Errorf("market %s %q has %d outcomes: %w",
			m.ID, m.Title, len(m.Outcomes), ErrUnsupportedMarketShape)
	}
	if !m.IsResolved() {
		return false, fmt.Errorf("market %s %q: %w", m.ID, m.Title, ErrMarketNotResolved)
	}

	idx, err := parseAnswerIndex(*m.CurrentAnswer)
	if err != nil {
		return false, fmt.Errorf("market %s: %w", m.ID, err)
	}
	if idx < 0 || idx >= len(m.Outcomes) {
		return false, fmt.Errorf("market %s: answer index %d outside %d outcomes: %w",
			m.ID, idx, len(m.Outcomes), ErrInvalidOutcome)
	}
	return BooleanOutcome(m.Outcomes[idx])
}

// Resolution maps the market's state to a Resolution value:
// ResolutionNone before resolution, otherwise YES or NO from the decoded
// final answer.
func (m Market) Resolution() (Resolution, error) {
	if !m.IsResolved() {
		return ResolutionNone, nil
	}
	outcome, err := m.BooleanOutcome()
	if err != nil {
		return ResolutionNone, err
	}
	if outcome {
		return ResolutionYes, nil
	}
	return ResolutionNo, nil
}

// CreationTime returns the market creation time in UTC, or the zero time
// when the snapshot does not carry a creation timestamp.
func (m Market) CreationTime() time.Time {
	if m.CreationTimestamp == nil {
		return time.Time{}
	}
	return time.Unix(*m.CreationTimestamp, 0).UTC()
}

// ResolutionTime returns the market resolution time in UTC, or the zero
// time when the market has not resolved.
func (m Market) ResolutionTime() time.Time {
	if m.ResolutionTimestamp == nil {
		return time.Time{}
	}
	return time.Unix(*m.ResolutionTimestamp, 0).UTC()
}

// parseAnswerIndex decodes a reality.eth answer (a hex-encoded bytes32,
// e.g. "0x0000...0001") into an outcome index.
func parseAnswerIndex(answer string) (int, error) {
	s := strings.TrimPrefix(strings.TrimSpace(answer), "0x")
	if s == "" {
		return 0, fmt.Errorf("empty current answer: %w", ErrInvalidOutcome)
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("current answer %q is not hex: %w", answer, ErrInvalidOutcome)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("current answer %q overflows an outcome index: %w", answer, ErrInvalidOutcome)
	}
	return int(n.Int64()), nil
}
