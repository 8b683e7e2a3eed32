package laplace

import "errors"

// ErrRegionNotSupported is returned before any request is made when an
// endpoint does not serve the requested region.
var ErrRegionNotSupported = errors.New("laplace: endpoint not available in this region")

// Region selects the market a request addresses.
type Region string

const (
	RegionTR Region = "tr"
	RegionUS Region = "us"
)

// Locale selects the language of localized fields.
type Locale string

const (
	LocaleTR Locale = "tr"
	LocaleEN Locale = "en"
)

// AssetType classifies a tradable instrument.
type AssetType string

const (
	AssetTypeStock       AssetType = "stock"
	AssetTypeForex       AssetType = "forex"
	AssetTypeIndex       AssetType = "index"
	AssetTypeETF         AssetType = "etf"
	AssetTypeCommodity   AssetType = "commodity"
	AssetTypeStockRights AssetType = "stock_rights"
	AssetTypeFund        AssetType = "fund"
	AssetTypeAll         AssetType = "all"
)

// AssetClass groups instruments by market class.
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassAll    AssetClass = "all"
)

// Currency identifies a reporting currency.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyTRY Currency = "TRY"
	CurrencyEUR Currency = "EUR"
)

// PageSize is the page size accepted by paginated endpoints.
type PageSize int

const (
	PageSize10 PageSize = 10
	PageSize20 PageSize = 20
	PageSize50 PageSize = 50
)

// SortDirection orders sortable results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Page is the paginated response envelope used by several endpoints.
type Page[T any] struct {
	RecordCount int `json:"recordCount"`
	Items       []T `json:"items"`
}
