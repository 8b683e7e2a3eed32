package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Fund is a listing entry from the fund catalog.
type Fund struct {
	Name          string    `json:"name"`
	Active        bool      `json:"active"`
	Symbol        string    `json:"symbol"`
	FundType      string    `json:"fundType"`
	AssetType     AssetType `json:"assetType"`
	RiskLevel     int       `json:"riskLevel"`
	OwnerSymbol   string    `json:"ownerSymbol"`
	ManagementFee float64   `json:"managementFee"`
}

// FundStats aggregates return and risk statistics for a fund.
type FundStats struct {
	YearBeta         float64 `json:"yearBeta"`
	YearStdev        float64 `json:"yearStdev"`
	YTDReturn        float64 `json:"ytdReturn"`
	YearMomentum     float64 `json:"yearMomentum"`
	YearlyReturn     float64 `json:"yearlyReturn"`
	MonthlyReturn    float64 `json:"monthlyReturn"`
	FiveYearReturn   float64 `json:"fiveYearReturn"`
	SixMonthReturn   float64 `json:"sixMonthReturn"`
	ThreeYearReturn  float64 `json:"threeYearReturn"`
	ThreeMonthReturn float64 `json:"threeMonthReturn"`
}

// FundPrice is one day of a fund's price history.
type FundPrice struct {
	AUM           float64   `json:"aum"`
	Date          time.Time `json:"date"`
	Price         float64   `json:"price"`
	ShareCount    int64     `json:"shareCount"`
	InvestorCount int64     `json:"investorCount"`
}

// FundAsset is one instrument inside a fund allocation category.
type FundAsset struct {
	Type               string  `json:"type"`
	Symbol             string  `json:"symbol"`
	WholePercentage    float64 `json:"wholePercentage"`
	CategoryPercentage float64 `json:"categoryPercentage"`
}

// FundCategory is one allocation bucket of a fund.
type FundCategory struct {
	Category   string      `json:"category"`
	Percentage float64     `json:"percentage"`
	Assets     []FundAsset `json:"assets,omitempty"`
}

// FundDistribution is the full allocation breakdown of a fund.
type FundDistribution struct {
	Categories []FundCategory `json:"categories"`
}

// GetFunds fetches one page of the fund catalog.
func (c *Client) GetFunds(ctx context.Context, region Region, page int, pageSize PageSize) ([]Fund, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(int(pageSize)))

	var funds []Fund
	if err := c.get(ctx, "v1/fund", query, &funds); err != nil {
		return nil, fmt.Errorf("get funds: %w", err)
	}

	return funds, nil
}

// GetFundStats fetches statistics for a TEFAS fund. TR only.
func (c *Client) GetFundStats(ctx context.Context, symbol string, region Region) (*FundStats, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("fund stats: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))

	var stats FundStats
	if err := c.get(ctx, "v1/fund/stats", query, &stats); err != nil {
		return nil, fmt.Errorf("get fund stats %s: %w", symbol, err)
	}

	return &stats, nil
}

// GetFundPrice fetches historical prices for a TEFAS fund. TR only.
// Accepted periods: 1H, 1A, 3A, 1Y, 3Y, 5Y.
func (c *Client) GetFundPrice(ctx context.Context, symbol, period string, region Region) ([]FundPrice, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("fund price: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("period", period)
	query.Set("region", string(region))

	var prices []FundPrice
	if err := c.get(ctx, "v1/fund/price", query, &prices); err != nil {
		return nil, fmt.Errorf("get fund price %s: %w", symbol, err)
	}

	return prices, nil
}

// GetFundDistribution fetches the allocation breakdown of a TEFAS fund. TR only.
func (c *Client) GetFundDistribution(ctx context.Context, symbol string, region Region) (*FundDistribution, error) {
	if region != RegionTR {
		return nil, fmt.Errorf("fund distribution: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))

	var distribution FundDistribution
	if err := c.get(ctx, "v1/fund/distribution", query, &distribution); err != nil {
		return nil, fmt.Errorf("get fund distribution %s: %w", symbol, err)
	}

	return &distribution, nil
}
