package omen

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gnosisagents/omenbot/internal/domain"
)

const marketJSON = `{
	"id": "0x9f2b4e8c5a1d3f7e6b0a8c4d2e1f3a5b7c9d0e1f",
	"title": "Will it rain in Berlin tomorrow?",
	"collateralVolume": "250000000000000000000",
	"usdVolume": "251.7",
	"collateralToken": "0xe91d153e0b41518a2ce8dd3d7944fa863463a97d",
	"outcomes": ["Yes", "No"],
	"outcomeTokenAmounts": ["30000000000000000000", "70000000000000000000"],
	"outcomeTokenMarginalPrices": ["0.7", "0.3"],
	"fee": "20000000000000000",
	"resolutionTimestamp": "1700000100",
	"answerFinalizedTimestamp": "1700000000",
	"currentAnswer": "0x0",
	"creationTimestamp": "1699000000",
	"openingTimestamp": "1699100000",
	"isPendingArbitration": false,
	"arbitrationOccurred": false
}`

func TestMarketRecordToDomain(t *testing.T) {
	var rec marketRecord
	if err := json.Unmarshal([]byte(marketJSON), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	m, err := rec.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}

	if m.ID != "0x9f2b4e8c5a1d3f7e6b0a8c4d2e1f3a5b7c9d0e1f" {
		t.Errorf("ID = %q", m.ID)
	}
	if len(m.Outcomes) != 2 || m.Outcomes[0] != domain.OutcomeYes {
		t.Errorf("Outcomes = %v", m.Outcomes)
	}
	if len(m.OutcomeTokenAmounts) != 2 {
		t.Fatalf("OutcomeTokenAmounts = %v", m.OutcomeTokenAmounts)
	}
	if m.OutcomeTokenAmounts[0].String() != "30000000000000000000" {
		t.Errorf("OutcomeTokenAmounts[0] = %s", m.OutcomeTokenAmounts[0])
	}
	if m.Fee == nil || m.Fee.String() != "20000000000000000" {
		t.Errorf("Fee = %v", m.Fee)
	}
	if !m.IsResolved() {
		t.Error("record with finalized answer should resolve")
	}

	yes, err := m.ProbabilityYes()
	if err != nil {
		t.Fatalf("ProbabilityYes: %v", err)
	}
	if yes < 0.699 || yes > 0.701 {
		t.Errorf("ProbabilityYes = %v, want 0.70", yes)
	}
}

func TestMarketRecordToDomainAggregatesErrors(t *testing.T) {
	rec := marketRecord{
		// id, title, collateralToken all missing; amounts don't match
		// outcomes and contain garbage.
		Outcomes:            []string{"Yes", "No"},
		OutcomeTokenAmounts: []string{"banana"},
	}

	_, err := rec.toDomain()
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *domain.ValidationError", err)
	}
	if len(verr.Fields) < 4 {
		t.Errorf("got %d field errors, want at least 4: %v", len(verr.Fields), verr)
	}
}

func TestBetRecordToDomain(t *testing.T) {
	betJSON := `{
		"id": "0xbet1",
		"title": "Will it rain in Berlin tomorrow?",
		"collateralToken": "0xe91d153e0b41518a2ce8dd3d7944fa863463a97d",
		"outcomeTokenMarginalPrice": "0.72",
		"oldOutcomeTokenMarginalPrice": "0.70",
		"type": "Buy",
		"creator": { "id": "0xd1220a0cf47c7b9be7a2e6ba89f429762e7b9adb" },
		"creationTimestamp": "1699990000",
		"collateralAmount": "10000000000000000000",
		"collateralAmountUSD": "10.42",
		"feeAmount": "1000000000000000000",
		"outcomeIndex": "0",
		"outcomeTokensTraded": "15000000000000000000",
		"transactionHash": "0xabc123",
		"fpmm": ` + marketJSON + `
	}`

	var rec betRecord
	if err := json.Unmarshal([]byte(betJSON), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	b, err := rec.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}

	if b.OutcomeIndex != 0 {
		t.Errorf("OutcomeIndex = %d", b.OutcomeIndex)
	}
	if b.Creator.ID != "0xd1220a0cf47c7b9be7a2e6ba89f429762e7b9adb" {
		t.Errorf("Creator = %q", b.Creator.ID)
	}
	if b.Market.ID == "" {
		t.Error("embedded market snapshot missing")
	}

	// The embedded snapshot is resolved, so the full derivation chain works:
	// 10 xDai on Yes, 15 tokens traded, 1 xDai fee, market resolved Yes.
	rb, err := b.ToResolvedBet()
	if err != nil {
		t.Fatalf("ToResolvedBet: %v", err)
	}
	if rb.Profit.Amount.String() != "4" {
		t.Errorf("profit = %s, want 4", rb.Profit.Amount)
	}
}

func TestBetRecordToDomainNestedMarketErrors(t *testing.T) {
	rec := betRecord{
		ID:                           "0xbet2",
		Title:                        "t",
		CollateralToken:              "0x1",
		OutcomeTokenMarginalPrice:    "0.5",
		OldOutcomeTokenMarginalPrice: "0.5",
		Type:                         "Buy",
		CreationTimestamp:            "1699990000",
		CollateralAmount:             "1",
		CollateralAmountUSD:          "1",
		FeeAmount:                    "0",
		OutcomeIndex:                 "0",
		OutcomeTokensTraded:          "1",
		TransactionHash:              "0xdef",
	}
	rec.Creator.ID = "0xcreator"
	// FPMM left empty: its required fields are all missing.

	_, err := rec.toDomain()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *domain.ValidationError", err)
	}
	found := false
	for _, f := range verr.Fields {
		if len(f.Field) > 5 && f.Field[:5] == "fpmm." {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("nested market violations should be prefixed with fpmm.: %v", verr)
	}
}
