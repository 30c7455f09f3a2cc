package models

import "time"

// ListingFormat selects fixed-price or auction-style selling.
type ListingFormat string

const (
	FormatFixedPrice ListingFormat = "FIXED_PRICE"
	FormatAuction    ListingFormat = "AUCTION"
)

// ListingPayload is everything a platform client needs to create a listing.
type ListingPayload struct {
	SKU           string            `json:"sku" validate:"required"`
	Title         string            `json:"title" validate:"required"`
	Description   string            `json:"description"`
	Price         float64           `json:"price" validate:"gt=0"`
	Format        ListingFormat     `json:"format,omitempty"`
	Auction       *AuctionConfig    `json:"auction,omitempty"`
	Condition     ConditionState    `json:"condition"`
	Category      string            `json:"category"`
	Brand         string            `json:"brand"`
	ImageURLs     []string          `json:"imageUrls"`
	ItemSpecifics map[string]string `json:"itemSpecifics,omitempty"`
	Shipping      ShippingConfig    `json:"shipping"`
	Quantity      int               `json:"quantity"`
}

// ShippingConfig describes who pays and how the item ships.
type ShippingConfig struct {
	FreeShipping bool    `json:"freeShipping"`
	FlatRate     float64 `json:"flatRate,omitempty"`
	WeightOz     float64 `json:"weightOz,omitempty"`
	Service      string  `json:"service,omitempty"`
}

// ListingResult is a single platform submission outcome.
type ListingResult struct {
	Platform   Platform  `json:"platform"`
	Success    bool      `json:"success"`
	ExternalID string    `json:"externalId,omitempty"`
	URL        string    `json:"url,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
	ListedAt   time.Time `json:"listedAt"`
}

// ExecutionReport groups the results of one multi-platform submission.
type ExecutionReport struct {
	InventoryID string          `json:"inventoryId"`
	Results     []ListingResult `json:"results"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
}
