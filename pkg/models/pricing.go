package models

import "time"

// Urgency is the single knob that trades margin for speed. It drives the
// price multiplier, the offer-acceptance floor and the markdown schedule
// together so a strategy can never mix, say, fast-sale acceptance with a
// maximize-profit price.
type Urgency string

const (
	UrgencyFastSale  Urgency = "fast_sale"
	UrgencyBalanced  Urgency = "balanced"
	UrgencyMaxProfit Urgency = "maximize_profit"
)

// PricingOptions are the caller-supplied knobs for one optimization run.
type PricingOptions struct {
	Urgency Urgency `json:"urgency" validate:"omitempty,oneof=fast_sale balanced maximize_profit"`
	MinCost float64 `json:"minCost"`
}

// MarketData aggregates comparable-sale research for an item.
type MarketData struct {
	MedianSoldPrice   float64   `json:"medianSoldPrice"`
	AverageSoldPrice  float64   `json:"averageSoldPrice"`
	LowestActive      float64   `json:"lowestActive"`
	HighestSold       float64   `json:"highestSold"`
	AverageDaysToSell float64   `json:"avgDaysToSell"`
	RecentSales       int       `json:"recentSales"`
	TotalActive       int       `json:"totalActive"`
	SoldPrices        []float64 `json:"soldPrices,omitempty"`
	FetchedAt         time.Time `json:"fetchedAt"`
}

// PriceDrop is one step of a scheduled markdown.
type PriceDrop struct {
	AfterDays  int     `json:"afterDays"`
	DropPct    float64 `json:"dropPct"`
	FloorPrice float64 `json:"floorPrice"`
}

// AuctionConfig holds auction parameters when the optimizer recommends one.
type AuctionConfig struct {
	StartPrice   float64 `json:"startPrice"`
	ReservePrice float64 `json:"reservePrice"`
	DurationDays int     `json:"durationDays"`
}

// PricingStrategy is the optimizer's full recommendation for one item.
type PricingStrategy struct {
	ListPrice       float64                    `json:"listPrice"`
	MinAcceptable   float64                    `json:"minAcceptable"`
	DeclineBelow    float64                    `json:"declineBelow"`
	DropSchedule    []PriceDrop                `json:"dropSchedule"`
	UseAuction      bool                       `json:"useAuction"`
	Auction         *AuctionConfig             `json:"auction,omitempty"`
	AuctionSignals  []string                   `json:"auctionSignals,omitempty"`
	PlatformPricing map[Platform]PlatformPrice `json:"platformPricing"`
}

// PlatformPrice adjusts the base list price for one marketplace's fee
// structure so net proceeds stay constant across platforms.
type PlatformPrice struct {
	ListPrice   float64 `json:"listPrice"`
	Fees        float64 `json:"fees"`
	Shipping    float64 `json:"shipping"`
	NetProceeds float64 `json:"netProceeds"`
}

// PriceHistoryEntry records one price change for an inventory item.
type PriceHistoryEntry struct {
	InventoryID string    `json:"inventoryId" db:"inventory_id"`
	Platform    Platform  `json:"platform" db:"platform"`
	Price       float64   `json:"price" db:"price"`
	Reason      string    `json:"reason" db:"reason"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
