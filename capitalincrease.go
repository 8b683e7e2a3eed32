package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// CapitalIncreaseType classifies a capital increase event.
type CapitalIncreaseType string

const (
	CapitalIncreaseRights        CapitalIncreaseType = "rights"
	CapitalIncreaseBonus         CapitalIncreaseType = "bonus"
	CapitalIncreaseBonusDividend CapitalIncreaseType = "bonus_dividend"
	CapitalIncreaseExternal      CapitalIncreaseType = "external"
)

// CapitalIncrease is one capital increase disclosure. Most fields are
// optional on the wire; amounts arrive as strings to preserve precision.
type CapitalIncrease struct {
	ID                            int                   `json:"id"`
	Types                         []CapitalIncreaseType `json:"types"`
	Symbol                        string                `json:"symbol"`
	BonusRate                     *string               `json:"bonusRate"`
	RightsRate                    *string               `json:"rightsRate"`
	PaymentDate                   *time.Time            `json:"paymentDate"`
	RightsPrice                   *string               `json:"rightsPrice"`
	RightsEndDate                 *time.Time            `json:"rightsEndDate"`
	TargetCapital                 *string               `json:"targetCapital"`
	BonusStartDate                *time.Time            `json:"bonusStartDate"`
	CurrentCapital                *string               `json:"currentCapital"`
	RightsStartDate               *time.Time            `json:"rightsStartDate"`
	SPKApprovalDate               *string               `json:"spkApprovalDate"`
	BonusTotalAmount              *string               `json:"bonusTotalAmount"`
	RegistrationDate              *time.Time            `json:"registrationDate"`
	BoardDecisionDate             *time.Time            `json:"boardDecisionDate"`
	BonusDividendRate             *string               `json:"bonusDividendRate"`
	RightsTotalAmount             *string               `json:"rightsTotalAmount"`
	SpecifiedCurrency             *string               `json:"specifiedCurrency"`
	RightsLastSellDate            *time.Time            `json:"rightsLastSellDate"`
	SPKApplicationDate            *time.Time            `json:"spkApplicationDate"`
	RelatedDisclosureIDs          []int                 `json:"relatedDisclosureIds"`
	SPKApplicationResult          *string               `json:"spkApplicationResult"`
	BonusDividendTotalAmount      *string               `json:"bonusDividendTotalAmount"`
	RegisteredCapitalCeiling      *string               `json:"registeredCapitalCeiling"`
	ExternalCapitalIncreaseRate   *string               `json:"externalCapitalIncreaseRate"`
	ExternalCapitalIncreaseAmount *string               `json:"externalCapitalIncreaseAmount"`
}

// GetCapitalIncreases fetches one page of capital increase disclosures. TR only.
func (c *Client) GetCapitalIncreases(ctx context.Context, region Region, page int, size PageSize) (*Page[CapitalIncrease], error) {
	if region != RegionTR {
		return nil, fmt.Errorf("capital increases: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(int(size)))

	var increases Page[CapitalIncrease]
	if err := c.get(ctx, "v1/capital-increase/all", query, &increases); err != nil {
		return nil, fmt.Errorf("get capital increases: %w", err)
	}

	return &increases, nil
}

// GetCapitalIncreasesForStock fetches capital increases for one symbol. TR only.
func (c *Client) GetCapitalIncreasesForStock(ctx context.Context, symbol string, region Region, page int, size PageSize) (*Page[CapitalIncrease], error) {
	if region != RegionTR {
		return nil, fmt.Errorf("capital increases for stock: %w", ErrRegionNotSupported)
	}

	query := url.Values{}
	query.Set("region", string(region))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(int(size)))

	var increases Page[CapitalIncrease]
	if err := c.get(ctx, "v1/capital-increase/"+symbol, query, &increases); err != nil {
		return nil, fmt.Errorf("get capital increases %s: %w", symbol, err)
	}

	return &increases, nil
}

// GetActiveRights fetches rights issues active on the given date for a
// symbol. A zero date means today.
func (c *Client) GetActiveRights(ctx context.Context, symbol string, date time.Time) ([]CapitalIncrease, error) {
	query := url.Values{}
	if !date.IsZero() {
		query.Set("date", date.Format(apiDateFormat))
	}

	var rights []CapitalIncrease
	if err := c.get(ctx, "v1/rights/active/"+symbol, query, &rights); err != nil {
		return nil, fmt.Errorf("get active rights %s: %w", symbol, err)
	}

	return rights, nil
}
