package omen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// newTestClient spins up an httptest server that answers every GraphQL query
// with the given data payload and returns a Client pointed at it.
func newTestClient(t *testing.T, data string) (*Client, *string) {
	t.Helper()
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		lastQuery = req.Query
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":` + data + `}`))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, ""), &lastQuery
}

func TestFetchMarkets(t *testing.T) {
	client, _ := newTestClient(t, `{"fixedProductMarketMakers":[`+marketJSON+`]}`)

	markets, err := client.FetchMarkets(context.Background(), time.Unix(0, 0), 100)
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("got %d markets, want 1", len(markets))
	}
	if markets[0].Title != "Will it rain in Berlin tomorrow?" {
		t.Errorf("title = %q", markets[0].Title)
	}
}

func TestFetchMarketNotFound(t *testing.T) {
	client, _ := newTestClient(t, `{"fixedProductMarketMaker":null}`)

	_, err := client.FetchMarket(context.Background(), "0xDEAD")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FetchMarket error = %v, want ErrNotFound", err)
	}
}

func TestFetchBetsLowercasesBettor(t *testing.T) {
	client, lastQuery := newTestClient(t, `{"fpmmTrades":[]}`)

	bets, err := client.FetchBets(context.Background(), "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb", time.Unix(0, 0), 50)
	if err != nil {
		t.Fatalf("FetchBets: %v", err)
	}
	if len(bets) != 0 {
		t.Errorf("got %d bets, want 0", len(bets))
	}
	if *lastQuery == "" {
		t.Error("no query captured")
	}
}

func TestFetchLatestBlock(t *testing.T) {
	client, _ := newTestClient(t, `{"_meta":{"block":{"number":31337000}}}`)

	block, err := client.FetchLatestBlock(context.Background())
	if err != nil {
		t.Fatalf("FetchLatestBlock: %v", err)
	}
	if block != 31337000 {
		t.Errorf("block = %d", block)
	}
}

func TestGraphQLErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.FetchLatestBlock(context.Background()); err == nil {
		t.Error("expected graphql error to surface")
	}
}
