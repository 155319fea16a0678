package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Wei is a wei-scale integer amount (1 xDai = 10^18 wei). The subgraph
// serializes BigInt fields as decimal strings, so Wei carries a JSON codec
// over that representation. The zero value is zero wei.
type Wei struct {
	i big.Int
}

// NewWei creates a Wei from an int64, mainly for tests and defaults.
func NewWei(v int64) Wei {
	var w Wei
	w.i.SetInt64(v)
	return w
}

// WeiFromString parses a base-10 wei amount.
func WeiFromString(s string) (Wei, error) {
	var w Wei
	if _, ok := w.i.SetString(strings.TrimSpace(s), 10); !ok {
		return Wei{}, fmt.Errorf("wei: cannot parse %q as a base-10 integer", s)
	}
	return w, nil
}

// BigInt returns a copy of the underlying integer.
func (w Wei) BigInt() *big.Int {
	return new(big.Int).Set(&w.i)
}

func (w Wei) String() string { return w.i.String() }

func (w Wei) IsZero() bool { return w.i.Sign() == 0 }

// Add returns w + o without mutating either operand.
func (w Wei) Add(o Wei) Wei {
	var out Wei
	out.i.Add(&w.i, &o.i)
	return out
}

// Cmp compares w and o: -1 if w < o, 0 if equal, +1 if w > o.
func (w Wei) Cmp(o Wei) int { return w.i.Cmp(&o.i) }

// UnmarshalJSON accepts both quoted decimal strings (the subgraph's BigInt
// encoding) and bare JSON numbers.
func (w *Wei) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := WeiFromString(s)
	if err != nil {
		return err
	}
	w.i.Set(&parsed.i)
	return nil
}

// MarshalJSON encodes the amount as a quoted decimal string, matching the
// subgraph's wire format.
func (w Wei) MarshalJSON() ([]byte, error) {
	return []byte(`"` + w.i.String() + `"`), nil
}

var weiPerXDai = decimal.New(1, 18)

// WeiToXDai converts a wei amount to xDai as a high-precision decimal.
func WeiToXDai(w Wei) decimal.Decimal {
	return decimal.NewFromBigInt(w.BigInt(), 0).Div(weiPerXDai)
}

// XDaiToWei converts an xDai amount to wei, truncating sub-wei precision.
func XDaiToWei(d decimal.Decimal) Wei {
	var w Wei
	w.i.Set(d.Mul(weiPerXDai).BigInt())
	return w
}
