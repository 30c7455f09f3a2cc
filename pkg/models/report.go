package models

import "time"

// SalesReport summarizes realized performance over a window.
type SalesReport struct {
	PeriodStart   time.Time                   `json:"periodStart"`
	PeriodEnd     time.Time                   `json:"periodEnd"`
	ItemsSold     int                         `json:"itemsSold"`
	GrossRevenue  float64                     `json:"grossRevenue"`
	TotalCost     float64                     `json:"totalCost"`
	NetProfit     float64                     `json:"netProfit"`
	AvgSalePrice  float64                     `json:"avgSalePrice"`
	AvgDaysToSell float64                     `json:"avgDaysToSell"`
	ByPlatform    map[Platform]PlatformReport `json:"byPlatform"`
	ByCategory    map[string]CategoryReport   `json:"byCategory"`
	TopProducts   []SoldProduct               `json:"topProducts,omitempty"`
}

// SoldProduct is one line of the report's best-sellers list.
type SoldProduct struct {
	Name       string   `json:"name"`
	Brand      string   `json:"brand,omitempty"`
	Platform   Platform `json:"platform"`
	SoldPrice  float64  `json:"soldPrice"`
	DaysToSell int      `json:"daysToSell"`
}

type PlatformReport struct {
	ItemsSold    int     `json:"itemsSold"`
	GrossRevenue float64 `json:"grossRevenue"`
	NetProfit    float64 `json:"netProfit"`
}

type CategoryReport struct {
	ItemsSold    int     `json:"itemsSold"`
	GrossRevenue float64 `json:"grossRevenue"`
	NetProfit    float64 `json:"netProfit"`
}

// PlatformMetricsRow is the persisted per-platform aggregate used by the
// reporting endpoints.
type PlatformMetricsRow struct {
	Platform      Platform  `json:"platform" db:"platform"`
	ActiveCount   int       `json:"activeCount" db:"active_count"`
	SoldCount     int       `json:"soldCount" db:"sold_count"`
	FailedCount   int       `json:"failedCount" db:"failed_count"`
	GrossRevenue  float64   `json:"grossRevenue" db:"gross_revenue"`
	AvgDaysToSell float64   `json:"avgDaysToSell" db:"avg_days_to_sell"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// OperationStats is the in-memory rolling aggregate the metrics collector
// serves for one operation name.
type OperationStats struct {
	Operation    string  `json:"operation"`
	Count        int     `json:"count"`
	SuccessCount int     `json:"successCount"`
	ErrorCount   int     `json:"errorCount"`
	SuccessRate  float64 `json:"successRate"`
	AvgMs        float64 `json:"avgMs"`
	P50Ms        float64 `json:"p50Ms"`
	P95Ms        float64 `json:"p95Ms"`
	P99Ms        float64 `json:"p99Ms"`
}
