package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// MarketState reports the trading state of a market or a single stock.
// MarketSymbol is set for market states, StockSymbol for stock states.
type MarketState struct {
	ID            int       `json:"id"`
	MarketSymbol  *string   `json:"marketSymbol"`
	State         string    `json:"state"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	StockSymbol   *string   `json:"stockSymbol"`
}

// GetMarketStates fetches one page of market states. TR only.
func (c *Client) GetMarketStates(ctx context.Context, region Region, page int, size PageSize) (*Page[MarketState], error) {
	if region != RegionTR {
		return nil, fmt.Errorf("market states: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(int(size)))

	var states Page[MarketState]
	if err := c.get(ctx, "v1/state/all", query, &states); err != nil {
		return nil, fmt.Errorf("get market states: %w", err)
	}

	return &states, nil
}

// GetMarketState fetches the state of one market. TR only.
func (c *Client) GetMarketState(ctx context.Context, symbol string, region Region) (*MarketState, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("market state: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))

	var state MarketState
	if err := c.get(ctx, "v1/state/"+symbol, query, &state); err != nil {
		return nil, fmt.Errorf("get market state %s: %w", symbol, err)
	}

	return &state, nil
}

// GetStockStates fetches one page of per-stock states. TR only.
func (c *Client) GetStockStates(ctx context.Context, region Region, page int, size PageSize) (*Page[MarketState], error) {
	if region != RegionTR {
		return nil, fmt.Errorf("stock states: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(int(size)))

	var states Page[MarketState]
	if err := c.get(ctx, "v1/state/stock/all", query, &states); err != nil {
		return nil, fmt.Errorf("get stock states: %w", err)
	}

	return &states, nil
}

// GetStockState fetches the state of one stock. TR only.
func (c *Client) GetStockState(ctx context.Context, symbol string, region Region) (*MarketState, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("stock state: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))

	var state MarketState
	if err := c.get(ctx, "v1/state/stock/"+symbol, query, &state); err != nil {
		return nil, fmt.Errorf("get stock state %s: %w", symbol, err)
	}

	return &state, nil
}
