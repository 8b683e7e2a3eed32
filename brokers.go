package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// BrokerSort selects the ranking column for broker activity queries.
type BrokerSort string

const (
	BrokerSortNetAmount       BrokerSort = "netAmount"
	BrokerSortTotalAmount     BrokerSort = "totalAmount"
	BrokerSortTotalVolume     BrokerSort = "totalVolume"
	BrokerSortTotalBuyAmount  BrokerSort = "totalBuyAmount"
	BrokerSortTotalBuyVolume  BrokerSort = "totalBuyVolume"
	BrokerSortTotalSellAmount BrokerSort = "totalSellAmount"
	BrokerSortTotalSellVolume BrokerSort = "totalSellVolume"
)

// Broker identifies a brokerage house.
type Broker struct {
	ID       int    `json:"id"`
	Logo     string `json:"logo"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	LongName string `json:"longName"`
}

// TradeTotals aggregates buy/sell activity over a query window.
type TradeTotals struct {
	NetAmount       float64 `json:"netAmount"`
	TotalAmount     float64 `json:"totalAmount"`
	TotalVolume     int64   `json:"totalVolume"`
	TotalBuyAmount  float64 `json:"totalBuyAmount"`
	TotalBuyVolume  int64   `json:"totalBuyVolume"`
	TotalSellAmount float64 `json:"totalSellAmount"`
	TotalSellVolume int64   `json:"totalSellVolume"`
}

// BrokerActivity is one broker's aggregated activity.
type BrokerActivity struct {
	Broker Broker `json:"broker"`
	TradeTotals
}

// BrokerMarketData ranks brokers by activity.
type BrokerMarketData struct {
	Items       []BrokerActivity `json:"items"`
	TotalStats  TradeTotals      `json:"totalStats"`
	RecordCount int              `json:"recordCount"`
}

// StockSummary identifies a stock inside broker activity listings.
type StockSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Symbol     string     `json:"symbol"`
	AssetType  AssetType  `json:"assetType"`
	AssetClass AssetClass `json:"assetClass"`
}

// StockActivity is one stock's aggregated activity.
type StockActivity struct {
	Stock StockSummary `json:"stock"`
	TradeTotals
}

// BrokerStockData ranks stocks by broker activity.
type BrokerStockData struct {
	Items       []StockActivity `json:"items"`
	TotalStats  TradeTotals     `json:"totalStats"`
	RecordCount int             `json:"recordCount"`
}

// BrokerQuery holds the shared parameters of broker activity endpoints.
type BrokerQuery struct {
	SortBy    BrokerSort
	Direction SortDirection
	From      time.Time
	To        time.Time
	Page      int
	Size      PageSize
}

const apiDateFormat = "2006-01-02"

func (q BrokerQuery) values(region Region) url.Values {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("sortBy", string(q.SortBy))
	query.Set("sortDirection", string(q.Direction))
	query.Set("fromDate", q.From.Format(apiDateFormat))
	query.Set("toDate", q.To.Format(apiDateFormat))
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("size", strconv.Itoa(int(q.Size)))
	return query
}

// GetBrokers fetches one page of the broker catalog. TR only.
func (c *Client) GetBrokers(ctx context.Context, region Region, page int, size PageSize) (*Page[Broker], error) {
	if region != RegionTR {
		return nil, fmt.Errorf("brokers: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(int(size)))

	var brokers Page[Broker]
	if err := c.get(ctx, "v1/brokers", query, &brokers); err != nil {
		return nil, fmt.Errorf("get brokers: %w", err)
	}

	return &brokers, nil
}

// GetBrokersForStock ranks brokers trading one stock over a window. TR only.
func (c *Client) GetBrokersForStock(ctx context.Context, symbol string, region Region, q BrokerQuery) (*BrokerMarketData, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("brokers for stock: %w", ErrRegionNotSupported)
	}

	var data BrokerMarketData
	if err := c.get(ctx, "v1/brokers/"+symbol, q.values(region), &data); err != nil {
		return nil, fmt.Errorf("get brokers for stock %s: %w", symbol, err)
	}

	return &data, nil
}

// GetBrokersForMarket ranks brokers across the whole market. TR only.
func (c *Client) GetBrokersForMarket(ctx context.Context, region Region, q BrokerQuery) (*BrokerMarketData, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("brokers for market: %w", ErrRegionNotSupported)
	}

	var data BrokerMarketData
	if err := c.get(ctx, "v1/brokers/market", q.values(region), &data); err != nil {
		return nil, fmt.Errorf("get brokers for market: %w", err)
	}

	return &data, nil
}

// GetStocksForBroker ranks the stocks one broker traded. TR only.
func (c *Client) GetStocksForBroker(ctx context.Context, symbol string, region Region, q BrokerQuery) (*BrokerStockData, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("stocks for broker: %w", ErrRegionNotSupported)
	}

	var data BrokerStockData
	if err := c.get(ctx, "v1/brokers/stock/"+symbol, q.values(region), &data); err != nil {
		return nil, fmt.Errorf("get stocks for broker %s: %w", symbol, err)
	}

	return &data, nil
}

// GetStocksForMarket ranks stocks by broker activity market-wide. TR only.
func (c *Client) GetStocksForMarket(ctx context.Context, region Region, q BrokerQuery) (*BrokerStockData, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("stocks for market: %w", ErrRegionNotSupported)
	}

	var data BrokerStockData
	if err := c.get(ctx, "v1/brokers/market/stock", q.values(region), &data); err != nil {
		return nil, fmt.Errorf("get stocks for market: %w", err)
	}

	return &data, nil
}
