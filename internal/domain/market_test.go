package domain

import (
	"errors"
	"math"
	"testing"
)

func i64p(v int64) *int64 { return &v }
func strp(s string) *string { return &s }

func binaryMarket(amounts ...int64) Market {
	m := Market{
		ID:              "0x9f2b4e8c5a1d3f7e6b0a8c4d2e1f3a5b7c9d0e1f",
		Title:           "Will it rain in Berlin tomorrow?",
		CollateralToken: "0xe91d153e0b41518a2ce8dd3d7944fa863463a97d",
		Outcomes:        []string{OutcomeYes, OutcomeNo},
	}
	for _, a := range amounts {
		m.OutcomeTokenAmounts = append(m.OutcomeTokenAmounts, NewWei(a))
	}
	return m
}

func resolvedMarket(answer string, amounts ...int64) Market {
	m := binaryMarket(amounts...)
	m.AnswerFinalizedTimestamp = i64p(1700000000)
	m.ResolutionTimestamp = i64p(1700000100)
	m.CurrentAnswer = strp(answer)
	return m
}

func TestMarketLifecyclePredicates(t *testing.T) {
	open := binaryMarket(30, 70)
	if !open.IsOpen() {
		t.Error("market without answer should be open")
	}
	if open.IsResolved() {
		t.Error("market without answer should not be resolved")
	}
	if !open.IsBinary() {
		t.Error("two-outcome market should be binary")
	}

	// An answer alone does not make the market resolved.
	answered := binaryMarket(30, 70)
	answered.CurrentAnswer = strp("0x0")
	if answered.IsOpen() {
		t.Error("answered market should not be open")
	}
	if answered.IsResolved() {
		t.Error("market is resolved only once the answer is finalized")
	}

	resolved := resolvedMarket("0x0", 30, 70)
	if !resolved.IsResolved() {
		t.Error("finalized market with answer should be resolved")
	}
}

func TestProbabilityYes(t *testing.T) {
	tests := []struct {
		name    string
		market  Market
		want    float64
		wantErr error
	}{
		{
			name:   "pool priced 70/30",
			market: binaryMarket(30, 70),
			want:   0.70,
		},
		{
			name:   "even pool",
			market: binaryMarket(50, 50),
			want:   0.50,
		},
		{
			name:   "untraded pool yields even odds",
			market: binaryMarket(0, 0),
			want:   0.50,
		},
		{
			name:    "no token amounts",
			market:  Market{ID: "0x1", Outcomes: []string{OutcomeYes, OutcomeNo}},
			wantErr: ErrUnsupportedMarketShape,
		},
		{
			name: "three outcomes",
			market: Market{
				ID:                  "0x2",
				Outcomes:            []string{"A", "B", "C"},
				OutcomeTokenAmounts: []Wei{NewWei(1), NewWei(2), NewWei(3)},
			},
			wantErr: ErrUnsupportedMarketShape,
		},
		{
			name: "missing Yes label",
			market: Market{
				ID:                  "0x3",
				Outcomes:            []string{"Up", "Down"},
				OutcomeTokenAmounts: []Wei{NewWei(10), NewWei(10)},
			},
			wantErr: ErrOutcomeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.market.ProbabilityYes()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ProbabilityYes() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProbabilityYes() unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ProbabilityYes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbabilitiesSumToOne(t *testing.T) {
	pools := [][2]int64{{30, 70}, {1, 999}, {123456789, 987654321}, {1, 1}}
	for _, pool := range pools {
		m := binaryMarket(pool[0], pool[1])
		yes, err := m.ProbabilityYes()
		if err != nil {
			t.Fatalf("ProbabilityYes(%v): %v", pool, err)
		}
		no, err := m.ProbabilityNo()
		if err != nil {
			t.Fatalf("ProbabilityNo(%v): %v", pool, err)
		}
		if math.Abs(yes+no-1) > 1e-9 {
			t.Errorf("pool %v: yes=%v no=%v, sum %v != 1", pool, yes, no, yes+no)
		}
		if yes < 0 || yes > 1 {
			t.Errorf("pool %v: probability %v outside [0,1]", pool, yes)
		}
	}
}

func TestMarketBooleanOutcome(t *testing.T) {
	tests := []struct {
		name    string
		market  Market
		want    bool
		wantErr error
	}{
		{
			name:   "answer index 0 is Yes",
			market: resolvedMarket("0x0", 30, 70),
			want:   true,
		},
		{
			name:   "answer index 1 is No",
			market: resolvedMarket("0x1", 30, 70),
			want:   false,
		},
		{
			name:   "bytes32 padded answer",
			market: resolvedMarket("0x0000000000000000000000000000000000000000000000000000000000000001", 30, 70),
			want:   false,
		},
		{
			name:    "unresolved market",
			market:  binaryMarket(30, 70),
			wantErr: ErrMarketNotResolved,
		},
		{
			name: "non-binary market",
			market: Market{
				ID:                       "0x4",
				Outcomes:                 []string{"A", "B", "C"},
				AnswerFinalizedTimestamp: i64p(1700000000),
				CurrentAnswer:            strp("0x0"),
			},
			wantErr: ErrUnsupportedMarketShape,
		},
		{
			name:    "answer index out of range",
			market:  resolvedMarket("0x5", 30, 70),
			wantErr: ErrInvalidOutcome,
		},
		{
			name:    "garbage answer",
			market:  resolvedMarket("0xzz", 30, 70),
			wantErr: ErrInvalidOutcome,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.market.BooleanOutcome()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("BooleanOutcome() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BooleanOutcome() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BooleanOutcome() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarketResolution(t *testing.T) {
	open := binaryMarket(30, 70)
	res, err := open.Resolution()
	if err != nil {
		t.Fatalf("Resolution() on open market: %v", err)
	}
	if res != ResolutionNone {
		t.Errorf("Resolution() = %q, want none", res)
	}

	yes, err := resolvedMarket("0x0", 30, 70).Resolution()
	if err != nil {
		t.Fatalf("Resolution() on yes market: %v", err)
	}
	if yes != ResolutionYes {
		t.Errorf("Resolution() = %q, want YES", yes)
	}

	no, err := resolvedMarket("0x1", 30, 70).Resolution()
	if err != nil {
		t.Fatalf("Resolution() on no market: %v", err)
	}
	if no != ResolutionNo {
		t.Errorf("Resolution() = %q, want NO", no)
	}
}

func TestChecksummedAddresses(t *testing.T) {
	// EIP-55 test vector.
	m := Market{
		ID:              "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		CollateralToken: "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359",
	}
	if got := m.AddressChecksummed(); got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("AddressChecksummed() = %s", got)
	}
	if got := m.CollateralTokenChecksummed(); got != "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359" {
		t.Errorf("CollateralTokenChecksummed() = %s", got)
	}
}
