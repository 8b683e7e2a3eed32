package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Interval is the candle width for interval price queries.
type Interval string

const (
	Interval1Min  Interval = "1m"
	Interval5Min  Interval = "5m"
	Interval15Min Interval = "15m"
	Interval30Min Interval = "30m"
	Interval1Hour Interval = "1H"
	Interval2Hour Interval = "2H"
	Interval1Day  Interval = "1d"
	Interval5Day  Interval = "5d"
	Interval7Day  Interval = "7d"
	Interval30Day Interval = "30d"
)

// MoverDirection selects gainers or losers for top-mover queries.
type MoverDirection string

const (
	MoversGainers MoverDirection = "gainers"
	MoversLosers  MoverDirection = "losers"
)

// Stock is a listing entry from the stock catalog.
type Stock struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Symbol      string    `json:"symbol"`
	SectorID    string    `json:"sectorId"`
	AssetType   AssetType `json:"assetType"`
	IndustryID  string    `json:"industryId"`
	UpdatedDate time.Time `json:"updatedDate"`
}

// StockDetail carries the full description of a single instrument.
type StockDetail struct {
	ID                        string            `json:"id"`
	Name                      string            `json:"name"`
	Active                    bool              `json:"active"`
	Region                    Region            `json:"region"`
	Symbol                    string            `json:"symbol"`
	SectorID                  string            `json:"sectorId"`
	AssetType                 AssetType         `json:"assetType"`
	AssetClass                AssetClass        `json:"assetClass"`
	IndustryID                string            `json:"industryId"`
	Description               string            `json:"description"`
	UpdatedDate               time.Time         `json:"updatedDate"`
	ShortDescription          string            `json:"shortDescription"`
	LocalizedDescription      map[string]string `json:"localized_description"`
	LocalizedShortDescription map[string]string `json:"localizedShortDescription"`
}

// Candle is a single OHLC bar. Date is epoch seconds.
type Candle struct {
	Close float64 `json:"c"`
	Date  float64 `json:"d"`
	High  float64 `json:"h"`
	Low   float64 `json:"l"`
	Open  float64 `json:"o"`
}

// StockPriceGraph holds per-window candle series for one symbol.
type StockPriceGraph struct {
	Symbol     string   `json:"symbol"`
	OneDay     []Candle `json:"1D"`
	OneWeek    []Candle `json:"1W"`
	OneMonth   []Candle `json:"1M"`
	ThreeMonth []Candle `json:"3M"`
	OneYear    []Candle `json:"1Y"`
	TwoYear    []Candle `json:"2Y"`
	ThreeYear  []Candle `json:"3Y"`
	FiveYear   []Candle `json:"5Y"`
}

// TickRule is one price band of the tick size table.
type TickRule struct {
	PriceFrom float64 `json:"priceFrom"`
	PriceTo   float64 `json:"priceTo"`
	TickSize  float64 `json:"tickSize"`
}

// StockRules holds tick rules and daily price limits.
type StockRules struct {
	Rules           []TickRule `json:"rules"`
	BasePrice       float64    `json:"basePrice"`
	AdditionalPrice int        `json:"additionalPrice"`
	LowerPriceLimit float64    `json:"lowerPriceLimit"`
	UpperPriceLimit float64    `json:"upperPriceLimit"`
}

// StockRestriction is a trading restriction notice.
type StockRestriction struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Symbol      string     `json:"symbol,omitempty"`
	Market      string     `json:"market,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description string     `json:"description"`
}

// TopMover is one entry of a gainers/losers ranking.
type TopMover struct {
	Change     float64    `json:"change"`
	Symbol     string     `json:"symbol"`
	AssetType  AssetType  `json:"assetType"`
	AssetClass AssetClass `json:"assetClass"`
}

// Dividend is a single dividend distribution record.
type Dividend struct {
	Date           time.Time `json:"date"`
	NetRatio       float64   `json:"netRatio"`
	NetAmount      float64   `json:"netAmount"`
	PriceThen      float64   `json:"priceThen"`
	GrossRatio     float64   `json:"grossRatio"`
	GrossAmount    float64   `json:"grossAmount"`
	StoppageRatio  float64   `json:"stoppageRatio"`
	StoppageAmount float64   `json:"stoppageAmount"`
}

// StockStats aggregates valuation and return statistics for one symbol.
type StockStats struct {
	EPS              float64 `json:"eps"`
	DayLow           float64 `json:"dayLow"`
	Symbol           string  `json:"symbol"`
	DayHigh          float64 `json:"dayHigh"`
	DayOpen          float64 `json:"dayOpen"`
	PBRatio          float64 `json:"pbRatio"`
	PERatio          float64 `json:"peRatio"`
	YearLow          float64 `json:"yearLow"`
	YearHigh         float64 `json:"yearHigh"`
	MarketCap        float64 `json:"marketCap"`
	YTDReturn        float64 `json:"ytdReturn"`
	ThreeYearReturn  float64 `json:"3YearReturn"`
	FiveYearReturn   float64 `json:"5YearReturn"`
	LatestPrice      float64 `json:"latestPrice"`
	ThreeMonthReturn float64 `json:"3MonthReturn"`
	WeeklyReturn     float64 `json:"weeklyReturn"`
	YearlyReturn     float64 `json:"yearlyReturn"`
	MonthlyReturn    float64 `json:"monthlyReturn"`
	PreviousClose    float64 `json:"previousClose"`
	LowerPriceLimit  float64 `json:"lowerPriceLimit"`
	UpperPriceLimit  float64 `json:"upperPriceLimit"`
}

// AggregateGraph is the aggregated candle series for a sector, industry or
// collection.
type AggregateGraph struct {
	Graph         []Candle `json:"graph"`
	PreviousClose float64  `json:"previous_close"`
}

// KeyInsight is the generated insight text for a symbol.
type KeyInsight struct {
	Symbol   string `json:"symbol"`
	Insights string `json:"insights"`
}

// AggregateGraphFilter narrows an aggregate graph query. At most one of the
// fields is usually set.
type AggregateGraphFilter struct {
	SectorID     string
	IndustryID   string
	CollectionID string
}

const apiDateTimeFormat = "2006-01-02 15:04:05"

// GetAllStocks fetches one page of the stock catalog for a region.
func (c *Client) GetAllStocks(ctx context.Context, region Region, page int, pageSize PageSize) ([]Stock, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(int(pageSize)))

	var stocks []Stock
	if err := c.get(ctx, "v2/stock/all", query, &stocks); err != nil {
		return nil, fmt.Errorf("get all stocks: %w", err)
	}

	return stocks, nil
}

// GetStockDetailByID fetches stock detail by its catalog id.
func (c *Client) GetStockDetailByID(ctx context.Context, stockID string, locale Locale) (*StockDetail, error) {
	query := url.Values{}
	query.Set("locale", string(locale))

	var detail StockDetail
	if err := c.get(ctx, "v1/stock/"+stockID, query, &detail); err != nil {
		return nil, fmt.Errorf("get stock detail %s: %w", stockID, err)
	}

	return &detail, nil
}

// GetStockDetailBySymbol fetches stock detail by symbol.
func (c *Client) GetStockDetailBySymbol(ctx context.Context, symbol string, region Region, assetClass AssetClass, locale Locale) (*StockDetail, error) {
	query := url.Values{}
	query.Set("locale", string(locale))
	query.Set("symbol", symbol)
	query.Set("region", string(region))
	query.Set("asset_class", string(assetClass))

	var detail StockDetail
	if err := c.get(ctx, "v1/stock/detail", query, &detail); err != nil {
		return nil, fmt.Errorf("get stock detail %s: %w", symbol, err)
	}

	return &detail, nil
}

// GetStockPrice fetches historical price graphs for the given symbols.
// keys optionally narrows the returned windows (1D, 1W, 1M, 3M, 1Y, 5Y).
func (c *Client) GetStockPrice(ctx context.Context, region Region, symbols []string, keys []string) ([]StockPriceGraph, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("symbols", strings.Join(symbols, ","))
	if len(keys) > 0 {
		query.Set("keys", strings.Join(keys, ","))
	}

	var graphs []StockPriceGraph
	if err := c.get(ctx, "v1/stock/price", query, &graphs); err != nil {
		return nil, fmt.Errorf("get stock price: %w", err)
	}

	return graphs, nil
}

// GetStockPriceInterval fetches candles for one symbol over a custom date
// range and interval.
func (c *Client) GetStockPriceInterval(ctx context.Context, symbol string, region Region, from, to time.Time, interval Interval) ([]Candle, error) {
	query := url.Values{}
	query.Set("stock", symbol)
	query.Set("region", string(region))
	query.Set("fromDate", from.Format(apiDateTimeFormat))
	query.Set("toDate", to.Format(apiDateTimeFormat))
	query.Set("interval", string(interval))

	var candles []Candle
	if err := c.get(ctx, "v1/stock/price/interval", query, &candles); err != nil {
		return nil, fmt.Errorf("get stock price interval %s: %w", symbol, err)
	}

	return candles, nil
}

// GetTickRules fetches the tick size table and price limits. TR only.
func (c *Client) GetTickRules(ctx context.Context, region Region) (*StockRules, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("tick rules: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))

	var rules StockRules
	if err := c.get(ctx, "v1/stock/rules", query, &rules); err != nil {
		return nil, fmt.Errorf("get tick rules: %w", err)
	}

	return &rules, nil
}

// GetRestrictions fetches current stock restrictions. TR only.
func (c *Client) GetRestrictions(ctx context.Context, region Region) ([]StockRestriction, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("restrictions: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))

	var restrictions []StockRestriction
	if err := c.get(ctx, "v1/stock/restrictions", query, &restrictions); err != nil {
		return nil, fmt.Errorf("get restrictions: %w", err)
	}

	return restrictions, nil
}

// GetAllRestrictions fetches active restrictions across all stocks. TR only.
func (c *Client) GetAllRestrictions(ctx context.Context, region Region) ([]StockRestriction, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("all restrictions: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))

	var restrictions []StockRestriction
	if err := c.get(ctx, "v1/stock/restrictions/all", query, &restrictions); err != nil {
		return nil, fmt.Errorf("get all restrictions: %w", err)
	}

	return restrictions, nil
}

// GetTopMovers fetches the gainers or losers ranking for a region.
func (c *Client) GetTopMovers(ctx context.Context, region Region, direction MoverDirection, page int, pageSize PageSize) ([]TopMover, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("direction", string(direction))
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(int(pageSize)))

	var movers []TopMover
	if err := c.get(ctx, "v2/stock/top-movers", query, &movers); err != nil {
		return nil, fmt.Errorf("get top movers: %w", err)
	}

	return movers, nil
}

// GetDividends fetches the dividend history for a symbol.
func (c *Client) GetDividends(ctx context.Context, symbol string, region Region) ([]Dividend, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))

	var dividends []Dividend
	if err := c.get(ctx, "v2/stock/dividends", query, &dividends); err != nil {
		return nil, fmt.Errorf("get dividends %s: %w", symbol, err)
	}

	return dividends, nil
}

// GetStockStats fetches statistics for the given symbols.
func (c *Client) GetStockStats(ctx context.Context, symbols []string, region Region) ([]StockStats, error) {
	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))
	query.Set("region", string(region))

	var stats []StockStats
	if err := c.get(ctx, "v2/stock/stats", query, &stats); err != nil {
		return nil, fmt.Errorf("get stock stats: %w", err)
	}

	return stats, nil
}

// GetAggregateGraph fetches the aggregated candle series for the scope
// selected by filter (sector, industry or collection).
func (c *Client) GetAggregateGraph(ctx context.Context, region Region, period string, filter AggregateGraphFilter) (*AggregateGraph, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("period", period)
	if filter.SectorID != "" {
		query.Set("sectorId", filter.SectorID)
	}
	if filter.IndustryID != "" {
		query.Set("industryId", filter.IndustryID)
	}
	if filter.CollectionID != "" {
		query.Set("collectionId", filter.CollectionID)
	}

	var graph AggregateGraph
	if err := c.get(ctx, "v1/aggregate/graph", query, &graph); err != nil {
		return nil, fmt.Errorf("get aggregate graph: %w", err)
	}

	return &graph, nil
}

// GetKeyInsight fetches the generated key insight for a symbol.
func (c *Client) GetKeyInsight(ctx context.Context, symbol string, region Region) (*KeyInsight, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))

	var insight KeyInsight
	if err := c.get(ctx, "v1/key-insight", query, &insight); err != nil {
		return nil, fmt.Errorf("get key insight %s: %w", symbol, err)
	}

	return &insight, nil
}
