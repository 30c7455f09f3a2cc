package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/boomware/crosslist/pkg/models"
)

// InventoryQuerier is the slice of pgxpool the inventory service needs,
// kept narrow so tests can substitute a mock pool.
type InventoryQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// DuplicateItemError means an active item with the same normalized identity
// already exists.
type DuplicateItemError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("Duplicate item found: %s", e.ExistingID)
}

// DuplicateListingError means the item already has a non-failed listing on
// the platform.
type DuplicateListingError struct {
	Platform models.Platform
}

func (e *DuplicateListingError) Error() string {
	return fmt.Sprintf("Listing already exists for %s", e.Platform)
}

// InventoryService owns the persistent item and listing records. Identity
// for duplicate detection is the normalized (brand, name, model) triple of
// the vision analysis, matched only against items still in play.
type InventoryService struct {
	db     InventoryQuerier
	logger *logrus.Logger
}

func NewInventoryService(db InventoryQuerier, logger *logrus.Logger) *InventoryService {
	return &InventoryService{db: db, logger: logger}
}

// NormalizeIdentity lowercases, strips diacritics and collapses whitespace
// so cosmetic differences between analyses don't defeat duplicate checks.
func NormalizeIdentity(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// GenerateSKU builds a human-scannable SKU from the brand and a random
// suffix.
func GenerateSKU(brand string) string {
	prefix := "ITEM"
	if b := NormalizeIdentity(brand); b != "" {
		fields := strings.Fields(b)
		prefix = strings.ToUpper(fields[0])
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return prefix + "-" + suffix
}

// logWrite records a mutation in the operation log. The write is
// best-effort so audit bookkeeping never fails the calling operation.
func (s *InventoryService) logWrite(ctx context.Context, stage string, inventoryID uuid.UUID, start time.Time, opErr error) {
	entry := &models.OperationLog{
		Stage:      stage,
		Success:    opErr == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if inventoryID != uuid.Nil {
		entry.InventoryID = &inventoryID
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	s.LogOperation(ctx, entry)
}

// AddItem persists a new inventory item. Duplicate detection compares the
// normalized identity triple against items still in play; skipDuplicateCheck
// bypasses it for sellers who genuinely hold two of the same thing.
func (s *InventoryService) AddItem(ctx context.Context, item *models.InventoryItem, skipDuplicateCheck bool) (err error) {
	start := time.Now()
	defer func() { s.logWrite(ctx, "inventory.add_item", item.ID, start, err) }()

	if item.Analysis == nil {
		return fmt.Errorf("item has no analysis")
	}

	brandKey := NormalizeIdentity(item.Analysis.Product.Brand)
	nameKey := NormalizeIdentity(item.Analysis.Product.Name)
	modelKey := NormalizeIdentity(item.Analysis.Product.Model)

	if !skipDuplicateCheck {
		var existingID uuid.UUID
		err = s.db.QueryRow(ctx, `
			SELECT id FROM inventory
			WHERE brand_key = $1 AND name_key = $2 AND model_key = $3
			  AND status IN ('active', 'listed')
			LIMIT 1`,
			brandKey, nameKey, modelKey,
		).Scan(&existingID)
		if err == nil {
			return &DuplicateItemError{ExistingID: existingID}
		}
		if err != pgx.ErrNoRows {
			return fmt.Errorf("duplicate check failed: %w", err)
		}
		err = nil
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.SKU == "" {
		item.SKU = GenerateSKU(item.Analysis.Product.Brand)
	}
	if item.Status == "" {
		item.Status = models.InventoryActive
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	analysisJSON, err := json.Marshal(item.Analysis)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO inventory (
			id, sku, analysis, image_paths, acquired_price, acquired_from,
			status, brand_key, name_key, model_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.SKU, analysisJSON, item.ImagePaths, item.AcquiredPrice,
		item.AcquiredFrom, item.Status, brandKey, nameKey, modelKey,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inventory item: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"inventory_id": item.ID,
		"sku":          item.SKU,
		"brand":        item.Analysis.Product.Brand,
	}).Info("Inventory item added")

	return nil
}

func (s *InventoryService) GetItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, sku, analysis, image_paths, acquired_price, acquired_from,
		       status, sold_price, sold_platform, sold_at, created_at, updated_at
		FROM inventory WHERE id = $1`, id)
	return scanItem(row)
}

func (s *InventoryService) GetItemBySKU(ctx context.Context, sku string) (*models.InventoryItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, sku, analysis, image_paths, acquired_price, acquired_from,
		       status, sold_price, sold_platform, sold_at, created_at, updated_at
		FROM inventory WHERE sku = $1`, sku)
	return scanItem(row)
}

func scanItem(row pgx.Row) (*models.InventoryItem, error) {
	var item models.InventoryItem
	var analysisJSON []byte
	var soldPlatform *string

	err := row.Scan(
		&item.ID, &item.SKU, &analysisJSON, &item.ImagePaths,
		&item.AcquiredPrice, &item.AcquiredFrom, &item.Status,
		&item.SoldPrice, &soldPlatform, &item.SoldAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("inventory item not found")
		}
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}

	if len(analysisJSON) > 0 {
		var analysis models.ProductAnalysis
		if err := json.Unmarshal(analysisJSON, &analysis); err == nil {
			item.Analysis = &analysis
		}
	}
	if soldPlatform != nil {
		p := models.Platform(*soldPlatform)
		item.SoldPlatform = &p
	}
	return &item, nil
}

func (s *InventoryService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.InventoryStatus) (err error) {
	start := time.Now()
	defer func() { s.logWrite(ctx, "inventory.update_status", id, start, err) }()

	tag, err := s.db.Exec(ctx, `
		UPDATE inventory SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update inventory status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory item not found")
	}
	return nil
}

// MarkSold records the sale, closes the winning listing and ends the rest.
// The sale is refused when the item has no active listing on the claimed
// platform, so a stray webhook can't mark unlisted inventory sold.
func (s *InventoryService) MarkSold(ctx context.Context, id uuid.UUID, price float64, platform models.Platform) (err error) {
	start := time.Now()
	defer func() { s.logWrite(ctx, "inventory.mark_sold", id, start, err) }()

	tag, err := s.db.Exec(ctx, `
		UPDATE listings SET status = 'sold', ended_at = NOW(), updated_at = NOW()
		WHERE inventory_id = $1 AND platform = $2 AND status = 'active'`, id, platform)
	if err != nil {
		return fmt.Errorf("failed to close winning listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no active listing on %s for item %s", platform, id)
	}

	tag, err = s.db.Exec(ctx, `
		UPDATE inventory
		SET status = 'sold', sold_price = $1, sold_platform = $2,
		    sold_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status != 'sold'`,
		price, platform, id)
	if err != nil {
		return fmt.Errorf("failed to mark item sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory item not found or already sold")
	}

	if _, err = s.db.Exec(ctx, `
		UPDATE listings SET status = 'ended', ended_at = NOW(), updated_at = NOW()
		WHERE inventory_id = $1 AND platform != $2 AND status IN ('pending', 'active')`,
		id, platform); err != nil {
		return fmt.Errorf("failed to end sibling listings: %w", err)
	}

	// Analytics writes ride along but never undo the sale.
	if histErr := s.RecordPriceChange(ctx, id, platform, price, "sold"); histErr != nil {
		s.logger.WithField("error", histErr.Error()).Warn("Failed to record sale price history")
	}
	if aggErr := s.RefreshPlatformMetrics(ctx, platform); aggErr != nil {
		s.logger.WithField("error", aggErr.Error()).Warn("Failed to refresh platform metrics")
	}

	s.logger.WithFields(logrus.Fields{
		"inventory_id": id,
		"platform":     platform,
		"price":        price,
	}).Info("Item marked sold")

	return nil
}

// RefreshPlatformMetrics recomputes one platform's persisted aggregate row
// from its listings.
func (s *InventoryService) RefreshPlatformMetrics(ctx context.Context, platform models.Platform) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO platform_metrics (
			platform, active_count, sold_count, failed_count,
			gross_revenue, avg_days_to_sell, updated_at
		)
		SELECT l.platform,
		       COUNT(*) FILTER (WHERE l.status = 'active'),
		       COUNT(*) FILTER (WHERE l.status = 'sold'),
		       COUNT(*) FILTER (WHERE l.status = 'failed'),
		       COALESCE(SUM(i.sold_price) FILTER (WHERE l.status = 'sold'), 0),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (i.sold_at - i.created_at)) / 86400.0)
		                FILTER (WHERE l.status = 'sold'), 0),
		       NOW()
		FROM listings l
		JOIN inventory i ON i.id = l.inventory_id
		WHERE l.platform = $1
		GROUP BY l.platform
		ON CONFLICT (platform) DO UPDATE SET
			active_count = EXCLUDED.active_count,
			sold_count = EXCLUDED.sold_count,
			failed_count = EXCLUDED.failed_count,
			gross_revenue = EXCLUDED.gross_revenue,
			avg_days_to_sell = EXCLUDED.avg_days_to_sell,
			updated_at = EXCLUDED.updated_at`, platform)
	if err != nil {
		return fmt.Errorf("failed to refresh platform metrics: %w", err)
	}
	return nil
}

func (s *InventoryService) RecordListing(ctx context.Context, listing *models.Listing) (err error) {
	start := time.Now()
	defer func() { s.logWrite(ctx, "inventory.record_listing", listing.InventoryID, start, err) }()

	var exists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM listings
			WHERE inventory_id = $1 AND platform = $2 AND status != 'failed'
		)`, listing.InventoryID, listing.Platform).Scan(&exists)
	if err != nil {
		return fmt.Errorf("listing existence check failed: %w", err)
	}
	if exists {
		return &DuplicateListingError{Platform: listing.Platform}
	}

	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	_, err = s.db.Exec(ctx, `
		INSERT INTO listings (
			id, inventory_id, platform, external_id, url, title, price,
			status, listed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		listing.ID, listing.InventoryID, listing.Platform, listing.ExternalID,
		listing.URL, listing.Title, listing.Price, listing.Status,
		listing.ListedAt, listing.CreatedAt, listing.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	// First successful listing flips the item to listed.
	if listing.Status == models.ListingActive {
		if _, err = s.db.Exec(ctx, `
			UPDATE inventory SET status = 'listed', updated_at = NOW()
			WHERE id = $1 AND status = 'active'`, listing.InventoryID); err != nil {
			return fmt.Errorf("failed to update item status: %w", err)
		}
		if histErr := s.RecordPriceChange(ctx, listing.InventoryID, listing.Platform, listing.Price, "listed"); histErr != nil {
			s.logger.WithField("error", histErr.Error()).Warn("Failed to record listing price history")
		}
	}

	return nil
}

func (s *InventoryService) ListingsForItem(ctx context.Context, inventoryID uuid.UUID) ([]models.Listing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, inventory_id, platform, external_id, url, title, price,
		       status, listed_at, ended_at, created_at, updated_at
		FROM listings WHERE inventory_id = $1 ORDER BY created_at`, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID, &l.InventoryID, &l.Platform, &l.ExternalID, &l.URL,
			&l.Title, &l.Price, &l.Status, &l.ListedAt, &l.EndedAt,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *InventoryService) ListItems(ctx context.Context, status models.InventoryStatus, limit, offset int) ([]models.InventoryItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, sku, analysis, image_paths, acquired_price, acquired_from,
		       status, sold_price, sold_platform, sold_at, created_at, updated_at
		FROM inventory`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var items []models.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateListingStatus mutates one platform listing's status directly.
// Terminal states also stamp ended_at.
func (s *InventoryService) UpdateListingStatus(ctx context.Context, inventoryID uuid.UUID, platform models.Platform, status models.ListingStatus) (err error) {
	start := time.Now()
	defer func() { s.logWrite(ctx, "inventory.update_listing_status", inventoryID, start, err) }()

	var query string
	switch status {
	case models.ListingSold, models.ListingEnded, models.ListingFailed:
		query = `
			UPDATE listings SET status = $1, ended_at = NOW(), updated_at = NOW()
			WHERE inventory_id = $2 AND platform = $3`
	default:
		query = `
			UPDATE listings SET status = $1, updated_at = NOW()
			WHERE inventory_id = $2 AND platform = $3`
	}

	tag, err := s.db.Exec(ctx, query, status, inventoryID, platform)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no listing found for %s", platform)
	}
	return nil
}

// ActiveListings returns every listing currently live on any platform.
func (s *InventoryService) ActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, inventory_id, platform, external_id, url, title, price,
		       status, listed_at, ended_at, created_at, updated_at
		FROM listings WHERE status = 'active' ORDER BY listed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load active listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID, &l.InventoryID, &l.Platform, &l.ExternalID, &l.URL,
			&l.Title, &l.Price, &l.Status, &l.ListedAt, &l.EndedAt,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// UnlistedItems returns active inventory with no live listing anywhere,
// the backlog a seller should cross-list next.
func (s *InventoryService) UnlistedItems(ctx context.Context) ([]models.InventoryItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.sku, i.analysis, i.image_paths, i.acquired_price, i.acquired_from,
		       i.status, i.sold_price, i.sold_platform, i.sold_at, i.created_at, i.updated_at
		FROM inventory i
		WHERE i.status = 'active'
		  AND NOT EXISTS (
		      SELECT 1 FROM listings l
		      WHERE l.inventory_id = i.id AND l.status = 'active')
		ORDER BY i.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlisted items: %w", err)
	}
	defer rows.Close()

	var items []models.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// SearchInventory matches the query against brand, name and model,
// returning the 50 most recent hits.
func (s *InventoryService) SearchInventory(ctx context.Context, query string) ([]models.InventoryItem, error) {
	pattern := "%" + NormalizeIdentity(query) + "%"
	rows, err := s.db.Query(ctx, `
		SELECT id, sku, analysis, image_paths, acquired_price, acquired_from,
		       status, sold_price, sold_platform, sold_at, created_at, updated_at
		FROM inventory
		WHERE brand_key LIKE $1 OR name_key LIKE $1 OR model_key LIKE $1
		ORDER BY created_at DESC LIMIT 50`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search inventory: %w", err)
	}
	defer rows.Close()

	var items []models.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *InventoryService) RecordPriceChange(ctx context.Context, inventoryID uuid.UUID, platform models.Platform, price float64, reason string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO price_history (inventory_id, platform, price, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		inventoryID, platform, price, reason)
	if err != nil {
		return fmt.Errorf("failed to record price change: %w", err)
	}
	return nil
}

func (s *InventoryService) LogOperation(ctx context.Context, entry *models.OperationLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO operation_log (id, inventory_id, job_id, stage, success, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		entry.ID, entry.InventoryID, entry.JobID, entry.Stage, entry.Success,
		entry.DurationMs, entry.Error)
	if err != nil {
		// Audit logging never fails the pipeline.
		s.logger.WithField("error", err.Error()).Warn("Failed to write operation log")
	}
}

// SalesReport aggregates realized sales over a window.
func (s *InventoryService) SalesReport(ctx context.Context, start, end time.Time) (*models.SalesReport, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sold_price, acquired_price, sold_platform,
		       COALESCE(analysis->'product'->>'category', 'uncategorized'),
		       COALESCE(analysis->'product'->>'name', ''),
		       COALESCE(analysis->'product'->>'brand', ''),
		       EXTRACT(EPOCH FROM (sold_at - created_at)) / 86400.0
		FROM inventory
		WHERE status = 'sold' AND sold_at >= $1 AND sold_at < $2`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	report := &models.SalesReport{
		PeriodStart: start,
		PeriodEnd:   end,
		ByPlatform:  make(map[models.Platform]models.PlatformReport),
		ByCategory:  make(map[string]models.CategoryReport),
	}

	var totalDays float64
	for rows.Next() {
		var soldPrice, acquiredPrice, daysToSell float64
		var platform, category, name, brand string
		if err := rows.Scan(&soldPrice, &acquiredPrice, &platform, &category, &name, &brand, &daysToSell); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}

		profit := soldPrice - acquiredPrice
		report.ItemsSold++
		report.GrossRevenue += soldPrice
		report.TotalCost += acquiredPrice
		report.NetProfit += profit
		totalDays += daysToSell

		p := models.Platform(platform)
		pr := report.ByPlatform[p]
		pr.ItemsSold++
		pr.GrossRevenue += soldPrice
		pr.NetProfit += profit
		report.ByPlatform[p] = pr

		cr := report.ByCategory[category]
		cr.ItemsSold++
		cr.GrossRevenue += soldPrice
		cr.NetProfit += profit
		report.ByCategory[category] = cr

		report.TopProducts = append(report.TopProducts, models.SoldProduct{
			Name:       name,
			Brand:      brand,
			Platform:   p,
			SoldPrice:  soldPrice,
			DaysToSell: int(daysToSell),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if report.ItemsSold > 0 {
		report.AvgDaysToSell = totalDays / float64(report.ItemsSold)
		report.AvgSalePrice = report.GrossRevenue / float64(report.ItemsSold)
	}

	// Keep only the ten best sales in the report.
	sort.SliceStable(report.TopProducts, func(i, j int) bool {
		return report.TopProducts[i].SoldPrice > report.TopProducts[j].SoldPrice
	})
	if len(report.TopProducts) > 10 {
		report.TopProducts = report.TopProducts[:10]
	}
	return report, nil
}

// PlatformMetrics reports listing counts and revenue per marketplace.
func (s *InventoryService) PlatformMetrics(ctx context.Context) ([]models.PlatformMetricsRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.platform,
		       COUNT(*) FILTER (WHERE l.status = 'active'),
		       COUNT(*) FILTER (WHERE l.status = 'sold'),
		       COUNT(*) FILTER (WHERE l.status = 'failed'),
		       COALESCE(SUM(i.sold_price) FILTER (WHERE l.status = 'sold'), 0),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (i.sold_at - i.created_at)) / 86400.0)
		                FILTER (WHERE l.status = 'sold'), 0)
		FROM listings l
		JOIN inventory i ON i.id = l.inventory_id
		GROUP BY l.platform
		ORDER BY l.platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.PlatformMetricsRow
	now := time.Now()
	for rows.Next() {
		var m models.PlatformMetricsRow
		if err := rows.Scan(
			&m.Platform, &m.ActiveCount, &m.SoldCount, &m.FailedCount,
			&m.GrossRevenue, &m.AvgDaysToSell,
		); err != nil {
			return nil, fmt.Errorf("failed to scan platform metrics: %w", err)
		}
		m.UpdatedAt = now
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
