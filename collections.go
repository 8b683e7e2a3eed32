package laplace

import (
	"context"
	"fmt"
	"net/url"
)

// Collection is a curated list of instruments.
type Collection struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Region     []Region   `json:"region"`
	ImageURL   string     `json:"imageUrl"`
	AvatarURL  string     `json:"avatarUrl"`
	NumStocks  int        `json:"numStocks"`
	AssetClass AssetClass `json:"assetClass"`
}

// CollectionStock is a member of a collection, theme, industry or sector.
type CollectionStock struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	SectorID   string    `json:"sectorId"`
	AssetType  AssetType `json:"assetType"`
	IndustryID string    `json:"industryId"`
}

// CollectionDetail is a collection together with its members.
type CollectionDetail struct {
	Collection
	Stocks []CollectionStock `json:"stocks"`
}

// collectionPath groups the collection-like resources that share one response
// shape.
type collectionPath string

const (
	pathCollection  collectionPath = "v1/collection"
	pathTheme       collectionPath = "v1/theme"
	pathIndustry    collectionPath = "v1/industry"
	pathSector      collectionPath = "v1/sector"
	pathCustomTheme collectionPath = "v1/custom-theme"
)

func (c *Client) listCollections(ctx context.Context, path collectionPath, region Region, locale Locale) ([]Collection, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("locale", string(locale))

	var collections []Collection
	if err := c.get(ctx, string(path), query, &collections); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	return collections, nil
}

func (c *Client) collectionDetail(ctx context.Context, path collectionPath, id string, region Region, locale Locale) (*CollectionDetail, error) {
	query := url.Values{}
	query.Set("region", string(region))
	query.Set("locale", string(locale))

	var detail CollectionDetail
	if err := c.get(ctx, string(path)+"/"+id, query, &detail); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", path, id, err)
	}

	return &detail, nil
}

// GetCollections fetches all curated collections for a region.
func (c *Client) GetCollections(ctx context.Context, region Region, locale Locale) ([]Collection, error) {
	return c.listCollections(ctx, pathCollection, region, locale)
}

// GetCollectionDetail fetches one collection with its member stocks.
func (c *Client) GetCollectionDetail(ctx context.Context, collectionID string, region Region, locale Locale) (*CollectionDetail, error) {
	return c.collectionDetail(ctx, pathCollection, collectionID, region, locale)
}

// GetThemes fetches all investment themes for a region.
func (c *Client) GetThemes(ctx context.Context, region Region, locale Locale) ([]Collection, error) {
	return c.listCollections(ctx, pathTheme, region, locale)
}

// GetThemeDetail fetches one theme with its member stocks.
func (c *Client) GetThemeDetail(ctx context.Context, themeID string, region Region, locale Locale) (*CollectionDetail, error) {
	return c.collectionDetail(ctx, pathTheme, themeID, region, locale)
}

// GetIndustries fetches all industries for a region.
func (c *Client) GetIndustries(ctx context.Context, region Region, locale Locale) ([]Collection, error) {
	return c.listCollections(ctx, pathIndustry, region, locale)
}

// GetIndustryDetail fetches one industry with its member stocks.
func (c *Client) GetIndustryDetail(ctx context.Context, industryID string, region Region, locale Locale) (*CollectionDetail, error) {
	return c.collectionDetail(ctx, pathIndustry, industryID, region, locale)
}

// GetSectors fetches all sectors for a region.
func (c *Client) GetSectors(ctx context.Context, region Region, locale Locale) ([]Collection, error) {
	return c.listCollections(ctx, pathSector, region, locale)
}

// GetSectorDetail fetches one sector with its member stocks.
func (c *Client) GetSectorDetail(ctx context.Context, sectorID string, region Region, locale Locale) (*CollectionDetail, error) {
	return c.collectionDetail(ctx, pathSector, sectorID, region, locale)
}

// GetCustomThemes fetches the caller's custom themes for a region.
func (c *Client) GetCustomThemes(ctx context.Context, region Region, locale Locale) ([]Collection, error) {
	return c.listCollections(ctx, pathCustomTheme, region, locale)
}

// GetCustomThemeDetail fetches one custom theme with its member stocks.
func (c *Client) GetCustomThemeDetail(ctx context.Context, themeID string, region Region, locale Locale) (*CollectionDetail, error) {
	return c.collectionDetail(ctx, pathCustomTheme, themeID, region, locale)
}
