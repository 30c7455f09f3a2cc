package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Platform identifies a marketplace the system can list on.
type Platform string

const (
	PlatformEbay     Platform = "ebay"
	PlatformFacebook Platform = "facebook"
	PlatformMercari  Platform = "mercari"
	PlatformPoshmark Platform = "poshmark"
	PlatformOfferUp  Platform = "offerup"
)

// AllPlatforms lists every supported marketplace in canonical order.
var AllPlatforms = []Platform{
	PlatformEbay,
	PlatformFacebook,
	PlatformMercari,
	PlatformPoshmark,
	PlatformOfferUp,
}

// ParsePlatform validates a platform string from the wire.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	switch p {
	case PlatformEbay, PlatformFacebook, PlatformMercari, PlatformPoshmark, PlatformOfferUp:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform: %q", s)
}

func (p Platform) Valid() bool {
	_, err := ParsePlatform(string(p))
	return err == nil
}

// InventoryStatus tracks where an item sits in its lifecycle.
type InventoryStatus string

const (
	InventoryActive   InventoryStatus = "active"
	InventoryListed   InventoryStatus = "listed"
	InventorySold     InventoryStatus = "sold"
	InventoryArchived InventoryStatus = "archived"
)

// ListingStatus tracks a listing on a single platform.
type ListingStatus string

const (
	ListingPending ListingStatus = "pending"
	ListingActive  ListingStatus = "active"
	ListingSold    ListingStatus = "sold"
	ListingEnded   ListingStatus = "ended"
	ListingFailed  ListingStatus = "failed"
)

// InventoryItem is the persisted record for one physical item.
type InventoryItem struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	SKU           string           `json:"sku" db:"sku"`
	Analysis      *ProductAnalysis `json:"analysis" db:"analysis"`
	ImagePaths    []string         `json:"imagePaths" db:"image_paths"`
	AcquiredPrice float64          `json:"acquiredPrice" db:"acquired_price"`
	AcquiredFrom  string           `json:"acquiredFrom,omitempty" db:"acquired_from"`
	Status        InventoryStatus  `json:"status" db:"status"`
	SoldPrice     *float64         `json:"soldPrice,omitempty" db:"sold_price"`
	SoldPlatform  *Platform        `json:"soldPlatform,omitempty" db:"sold_platform"`
	SoldAt        *time.Time       `json:"soldAt,omitempty" db:"sold_at"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time        `json:"updatedAt" db:"updated_at"`
}

// Profit returns net proceeds over acquisition cost, or 0 until sold.
func (i *InventoryItem) Profit() float64 {
	if i.SoldPrice == nil {
		return 0
	}
	return *i.SoldPrice - i.AcquiredPrice
}

// Listing is one platform-specific posting of an inventory item.
type Listing struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	InventoryID uuid.UUID     `json:"inventoryId" db:"inventory_id"`
	Platform    Platform      `json:"platform" db:"platform"`
	ExternalID  string        `json:"externalId,omitempty" db:"external_id"`
	URL         string        `json:"url,omitempty" db:"url"`
	Title       string        `json:"title" db:"title"`
	Price       float64       `json:"price" db:"price"`
	Status      ListingStatus `json:"status" db:"status"`
	ListedAt    *time.Time    `json:"listedAt,omitempty" db:"listed_at"`
	EndedAt     *time.Time    `json:"endedAt,omitempty" db:"ended_at"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time     `json:"updatedAt" db:"updated_at"`
}

// OperationLog records a pipeline stage outcome for auditability.
type OperationLog struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	InventoryID *uuid.UUID `json:"inventoryId,omitempty" db:"inventory_id"`
	JobID       string     `json:"jobId,omitempty" db:"job_id"`
	Stage       string     `json:"stage" db:"stage"`
	Success     bool       `json:"success" db:"success"`
	DurationMs  int64      `json:"durationMs" db:"duration_ms"`
	Error       string     `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}
