// Package omen is a GraphQL client for the Omen subgraph, the indexed read
// API over the fixed-product market-maker and conditionalTokens contracts
// on Gnosis Chain. It fetches market and bet records and validates them
// into domain models.
package omen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gnosisagents/omenbot/internal/domain"
)

// Client is a GraphQL client for the Omen subgraph endpoint.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Omen subgraph client.
//
// graphqlURL is the subgraph endpoint, e.g.
// "https://api.thegraph.com/subgraphs/name/protofire/omen-xdai".
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const marketFields = `
	id
	title
	collateralVolume
	usdVolume
	collateralToken
	outcomes
	outcomeTokenAmounts
	outcomeTokenMarginalPrices
	fee
	resolutionTimestamp
	answerFinalizedTimestamp
	currentAnswer
	creationTimestamp
	openingTimestamp
	isPendingArbitration
	arbitrationOccurred
`

// FetchMarkets queries binary markets created at or after the given time,
// newest first, limited by the 'first' parameter. Malformed records fail the
// whole fetch; the subgraph either returns a consistent page or nothing.
func (c *Client) FetchMarkets(ctx context.Context, createdAfter time.Time, first int) ([]domain.Market, error) {
	query := `
		query Markets($since: BigInt!, $first: Int!) {
			fixedProductMarketMakers(
				first: $first
				orderBy: creationTimestamp
				orderDirection: desc
				where: { creationTimestamp_gte: $since, outcomeSlotCount: 2 }
			) {` + marketFields + `}
		}
	`

	variables := map[string]any{
		"since": fmt.Sprintf("%d", createdAfter.Unix()),
		"first": first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("omen: fetch markets: %w", err)
	}

	var result struct {
		FixedProductMarketMakers []marketRecord `json:"fixedProductMarketMakers"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("omen: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(result.FixedProductMarketMakers))
	for _, rec := range result.FixedProductMarketMakers {
		m, err := rec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("omen: fetch markets: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// FetchMarket queries a single market by its FPMM contract address. It
// returns domain.ErrNotFound when the subgraph has no such market.
func (c *Client) FetchMarket(ctx context.Context, id string) (domain.Market, error) {
	query := `
		query Market($id: ID!) {
			fixedProductMarketMaker(id: $id) {` + marketFields + `}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"id": strings.ToLower(id)})
	if err != nil {
		return domain.Market{}, fmt.Errorf("omen: fetch market %s: %w", id, err)
	}

	var result struct {
		FixedProductMarketMaker *marketRecord `json:"fixedProductMarketMaker"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.Market{}, fmt.Errorf("omen: decode market %s: %w", id, err)
	}
	if result.FixedProductMarketMaker == nil {
		return domain.Market{}, fmt.Errorf("omen: market %s: %w", id, domain.ErrNotFound)
	}

	m, err := result.FixedProductMarketMaker.toDomain()
	if err != nil {
		return domain.Market{}, fmt.Errorf("omen: fetch market %s: %w", id, err)
	}
	return m, nil
}

// FetchBets queries trades placed by the given bettor at or after the given
// time, oldest first so callers can resume incrementally. Each bet embeds
// the market snapshot at fetch time.
func (c *Client) FetchBets(ctx context.Context, bettor string, since time.Time, first int) ([]domain.Bet, error) {
	query := `
		query Bets($creator: String!, $since: BigInt!, $first: Int!) {
			fpmmTrades(
				first: $first
				orderBy: creationTimestamp
				orderDirection: asc
				where: { creator: $creator, creationTimestamp_gte: $since }
			) {
				id
				title
				collateralToken
				outcomeTokenMarginalPrice
				oldOutcomeTokenMarginalPrice
				type
				creator { id }
				creationTimestamp
				collateralAmount
				collateralAmountUSD
				feeAmount
				outcomeIndex
				outcomeTokensTraded
				transactionHash
				fpmm {` + marketFields + `}
			}
		}
	`

	variables := map[string]any{
		"creator": strings.ToLower(bettor),
		"since":   fmt.Sprintf("%d", since.Unix()),
		"first":   first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("omen: fetch bets for %s: %w", bettor, err)
	}

	var result struct {
		FPMMTrades []betRecord `json:"fpmmTrades"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("omen: decode bets for %s: %w", bettor, err)
	}

	bets := make([]domain.Bet, 0, len(result.FPMMTrades))
	for _, rec := range result.FPMMTrades {
		b, err := rec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("omen: fetch bets for %s: %w", bettor, err)
		}
		bets = append(bets, b)
	}
	return bets, nil
}

// FetchLatestBlock returns the latest block number indexed by the subgraph,
// used to monitor indexing lag against the chain head.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("omen: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("omen: decode latest block: %w", err)
	}
	return result.Meta.Block.Number, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the subgraph endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
