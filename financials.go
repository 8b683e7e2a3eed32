package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// RatioPeerType selects the peer group for ratio comparisons.
type RatioPeerType string

const (
	PeerTypeIndustry RatioPeerType = "industry"
	PeerTypeSector   RatioPeerType = "sector"
)

// RatioFormat describes how a historical ratio value is denominated.
type RatioFormat string

const (
	RatioFormatCurrency   RatioFormat = "currency"
	RatioFormatPercentage RatioFormat = "percentage"
	RatioFormatDecimal    RatioFormat = "decimal"
)

// SheetType selects a financial statement.
type SheetType string

const (
	SheetIncomeStatement SheetType = "incomeStatement"
	SheetBalanceSheet    SheetType = "balanceSheet"
	SheetCashFlow        SheetType = "cashFlowStatement"
)

// SheetPeriod selects the reporting period of a financial statement.
type SheetPeriod string

const (
	PeriodAnnual     SheetPeriod = "annual"
	PeriodQuarterly  SheetPeriod = "quarterly"
	PeriodCumulative SheetPeriod = "cumulative"
)

// RatioComparisonEntry is one peer's value in a ratio comparison.
type RatioComparisonEntry struct {
	Slug    string  `json:"slug"`
	Value   float64 `json:"value"`
	Average float64 `json:"average"`
}

// RatioComparison compares one metric against a peer group.
type RatioComparison struct {
	MetricName      string                 `json:"metricName"`
	NormalizedValue float64                `json:"normalizedValue"`
	Data            []RatioComparisonEntry `json:"data"`
}

// HistoricalRatioItem is one period's value of a historical ratio.
type HistoricalRatioItem struct {
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	SectorMean float64 `json:"sectorMean"`
}

// HistoricalRatio is the time series of one financial ratio.
type HistoricalRatio struct {
	Slug             string                `json:"slug"`
	FinalValue       float64               `json:"finalValue"`
	ThreeYearGrowth  float64               `json:"threeYearGrowth"`
	YearGrowth       float64               `json:"yearGrowth"`
	FinalSectorValue float64               `json:"finalSectorValue"`
	Currency         Currency              `json:"currency"`
	Format           RatioFormat           `json:"format"`
	Name             string                `json:"name"`
	Items            []HistoricalRatioItem `json:"items"`
}

// RatioDescription describes one ratio slug in a locale.
type RatioDescription struct {
	ID          int    `json:"id"`
	Format      string `json:"format"`
	Currency    string `json:"currency"`
	Slug        string `json:"slug"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Locale      Locale `json:"locale"`
	IsRealtime  bool   `json:"isRealtime"`
}

// FinancialSheetRow is one line item of a financial statement.
type FinancialSheetRow struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	LineCodeID  int     `json:"lineCodeId"`
	IndentLevel int     `json:"indentLevel"`
}

// FinancialSheet is a financial statement for one period.
type FinancialSheet struct {
	Period string              `json:"period"`
	Items  []FinancialSheetRow `json:"items"`
}

// FinancialSheets is a set of statements over consecutive periods.
type FinancialSheets struct {
	Sheets []FinancialSheet `json:"sheets"`
}

// SheetDate is a calendar date in financial sheet queries.
type SheetDate struct {
	Year  int
	Month int
	Day   int
}

func (d SheetDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// GetFinancialRatioComparison fetches peer ratio comparisons for a symbol.
func (c *Client) GetFinancialRatioComparison(ctx context.Context, symbol string, region Region, peerType RatioPeerType) ([]RatioComparison, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))
	query.Set("peerType", string(peerType))

	var comparisons []RatioComparison
	if err := c.get(ctx, "v2/stock/financial-ratio-comparison", query, &comparisons); err != nil {
		return nil, fmt.Errorf("get financial ratio comparison %s: %w", symbol, err)
	}

	return comparisons, nil
}

// GetHistoricalRatios fetches historical ratio series for the given slugs.
func (c *Client) GetHistoricalRatios(ctx context.Context, symbol string, slugs []string, region Region, locale Locale) ([]HistoricalRatio, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("region", string(region))
	query.Set("locale", string(locale))
	query.Set("slugs", strings.Join(slugs, ","))

	var ratios []HistoricalRatio
	if err := c.get(ctx, "v2/stock/historical-ratios", query, &ratios); err != nil {
		return nil, fmt.Errorf("get historical ratios %s: %w", symbol, err)
	}

	return ratios, nil
}

// GetHistoricalRatiosDescriptions fetches the localized descriptions of all
// ratio slugs.
func (c *Client) GetHistoricalRatiosDescriptions(ctx context.Context, locale Locale, region Region) ([]RatioDescription, error) {
	query := url.Values{}
	query.Set("locale", string(locale))
	query.Set("region", string(region))

	var descriptions []RatioDescription
	if err := c.get(ctx, "v2/stock/historical-ratios/descriptions", query, &descriptions); err != nil {
		return nil, fmt.Errorf("get historical ratios descriptions: %w", err)
	}

	return descriptions, nil
}

// GetHistoricalFinancialSheets fetches financial statements for a symbol over
// a date range. Balance sheets are only reported cumulatively.
func (c *Client) GetHistoricalFinancialSheets(ctx context.Context, symbol string, from, to SheetDate, sheetType SheetType, period SheetPeriod, currency Currency, region Region) (*FinancialSheets, error) {
	if sheetType == SheetBalanceSheet && period != PeriodCumulative {
		return nil, fmt.Errorf("financial sheets %s: balance sheet is only available for the cumulative period", symbol)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("from", from.String())
	query.Set("to", to.String())
	query.Set("sheetType", string(sheetType))
	query.Set("periodType", string(period))
	query.Set("currency", string(currency))
	query.Set("region", string(region))

	var sheets FinancialSheets
	if err := c.get(ctx, "v3/stock/historical-financial-sheets", query, &sheets); err != nil {
		return nil, fmt.Errorf("get financial sheets %s: %w", symbol, err)
	}

	return &sheets, nil
}
