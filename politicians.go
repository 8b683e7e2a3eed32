package laplace

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Politician is a tracked officeholder with disclosed trades.
type Politician struct {
	ID            int       `json:"id"`
	Name          string    `json:"politicianName"`
	TotalHoldings int       `json:"totalHoldings"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Holding is one disclosed position of a politician in a given stock.
type Holding struct {
	PoliticianName string    `json:"politicianName"`
	Symbol         string    `json:"symbol"`
	Company        string    `json:"company"`
	Holding        string    `json:"holding"`
	Allocation     string    `json:"allocation"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// HoldingSummary is a position without the owning politician attached.
type HoldingSummary struct {
	Symbol     string `json:"symbol"`
	Company    string `json:"company"`
	Holding    string `json:"holding"`
	Allocation string `json:"allocation"`
}

// TopHoldingPolitician names one holder inside a top-holding entry.
type TopHoldingPolitician struct {
	Name       string `json:"name"`
	Holding    string `json:"holding"`
	Allocation string `json:"allocation"`
}

// TopHolding ranks a stock by how many tracked politicians hold it.
type TopHolding struct {
	Symbol      string                 `json:"symbol"`
	Company     string                 `json:"company"`
	Politicians []TopHoldingPolitician `json:"politicians"`
	Count       int                    `json:"count"`
}

// PoliticianDetail is a politician with all disclosed positions.
type PoliticianDetail struct {
	ID            int              `json:"id"`
	Name          string           `json:"name"`
	Holdings      []HoldingSummary `json:"holdings"`
	TotalHoldings int              `json:"totalHoldings"`
	LastUpdated   time.Time        `json:"lastUpdated"`
}

// GetPoliticians fetches all tracked politicians.
func (c *Client) GetPoliticians(ctx context.Context) ([]Politician, error) {
	var politicians []Politician
	if err := c.get(ctx, "v1/politician", nil, &politicians); err != nil {
		return nil, fmt.Errorf("get politicians: %w", err)
	}

	return politicians, nil
}

// GetPoliticianDetail fetches one politician with their holdings.
func (c *Client) GetPoliticianDetail(ctx context.Context, id int) (*PoliticianDetail, error) {
	var detail PoliticianDetail
	if err := c.get(ctx, "v1/politician/"+strconv.Itoa(id), nil, &detail); err != nil {
		return nil, fmt.Errorf("get politician %d: %w", id, err)
	}

	return &detail, nil
}

// GetHoldingsBySymbol fetches all politician positions in one stock.
func (c *Client) GetHoldingsBySymbol(ctx context.Context, symbol string) ([]Holding, error) {
	var holdings []Holding
	if err := c.get(ctx, "v1/holding/"+symbol, nil, &holdings); err != nil {
		return nil, fmt.Errorf("get holdings %s: %w", symbol, err)
	}

	return holdings, nil
}

// GetTopHoldings fetches the stocks most widely held by tracked politicians.
func (c *Client) GetTopHoldings(ctx context.Context) ([]TopHolding, error) {
	var holdings []TopHolding
	if err := c.get(ctx, "v1/top-holding", nil, &holdings); err != nil {
		return nil, fmt.Errorf("get top holdings: %w", err)
	}

	return holdings, nil
}
