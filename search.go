package laplace

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// SearchType selects which entity kinds a search query matches.
type SearchType string

const (
	SearchTypeStock      SearchType = "stock"
	SearchTypeCollection SearchType = "collection"
	SearchTypeSector     SearchType = "sector"
	SearchTypeIndustry   SearchType = "industry"
)

// SearchResultStock is a stock hit. The wire uses "assetType" for the
// asset class and "type" for the asset type.
type SearchResultStock struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Symbol     string     `json:"symbol"`
	Region     Region     `json:"region"`
	AssetClass AssetClass `json:"assetType"`
	AssetType  AssetType  `json:"type"`
}

// SearchResultCollection is a collection, sector or industry hit.
type SearchResultCollection struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Region     []Region   `json:"region"`
	AssetClass AssetClass `json:"assetClass"`
	ImageURL   string     `json:"imageUrl"`
	AvatarURL  string     `json:"avatarUrl"`
}

// SearchData groups search hits by entity kind.
type SearchData struct {
	Stocks      []SearchResultStock      `json:"stocks"`
	Collections []SearchResultCollection `json:"collections"`
	Sectors     []SearchResultCollection `json:"sectors"`
	Industries  []SearchResultCollection `json:"industries"`
}

// Search looks up stocks, collections, sectors and industries matching
// the filter term. An empty types slice searches every kind.
func (c *Client) Search(ctx context.Context, filter string, types []SearchType, region Region, locale Locale) (*SearchData, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	query := url.Values{}
	query.Set("filter", filter)
	query.Set("types", strings.Join(names, ","))
	query.Set("region", string(region))
	query.Set("locale", string(locale))

	var data SearchData
	if err := c.get(ctx, "v1/search", query, &data); err != nil {
		return nil, fmt.Errorf("search %q: %w", filter, err)
	}

	return &data, nil
}
