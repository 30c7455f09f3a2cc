package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/services"
	"github.com/boomware/crosslist/pkg/models"
)

type InventoryHandler struct {
	inventory *services.InventoryService
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewInventoryHandler(inventory *services.InventoryService, logger *logrus.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		validator: validator.New(),
		logger:    logger,
	}
}

func (h *InventoryHandler) GetItem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Item id must be a UUID",
			},
		})
		return
	}

	item, err := h.inventory.GetItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "ITEM_NOT_FOUND",
				"message": "Inventory item not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *InventoryHandler) ListItems(c *gin.Context) {
	status := models.InventoryStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.inventory.ListItems(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list inventory")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": "Failed to list inventory items",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *InventoryHandler) GetListings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Item id must be a UUID",
			},
		})
		return
	}

	listings, err := h.inventory.ListingsForItem(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load listings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LISTINGS_FAILED",
				"message": "Failed to load listings",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

type addItemRequest struct {
	Analysis           *models.ProductAnalysis `json:"analysis" validate:"required"`
	ImagePaths         []string                `json:"imagePaths"`
	AcquiredPrice      float64                 `json:"acquiredPrice" validate:"gte=0"`
	AcquiredFrom       string                  `json:"acquiredFrom"`
	SkipDuplicateCheck bool                    `json:"skipDuplicateCheck"`
}

// AddItem registers an item directly, bypassing the vision pipeline. Used
// when the analysis already exists, e.g. re-importing inventory.
func (h *InventoryHandler) AddItem(c *gin.Context) {
	var request addItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Analysis is required and acquired price must be non-negative",
			},
		})
		return
	}

	item := &models.InventoryItem{
		Analysis:      request.Analysis,
		ImagePaths:    request.ImagePaths,
		AcquiredPrice: request.AcquiredPrice,
		AcquiredFrom:  request.AcquiredFrom,
	}
	if err := h.inventory.AddItem(c.Request.Context(), item, request.SkipDuplicateCheck); err != nil {
		var dup *services.DuplicateItemError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":        "DUPLICATE_ITEM",
					"message":     err.Error(),
					"existing_id": dup.ExistingID,
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to add inventory item")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "ADD_FAILED",
				"message": "Failed to add inventory item",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, item)
}

type recordListingRequest struct {
	Platform   models.Platform `json:"platform" validate:"required"`
	ExternalID string          `json:"externalId"`
	URL        string          `json:"url"`
	Title      string          `json:"title" validate:"required"`
	Price      float64         `json:"price" validate:"gt=0"`
}

// RecordListing registers a listing created outside the executor, e.g. one
// posted manually.
func (h *InventoryHandler) RecordListing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Item id must be a UUID",
			},
		})
		return
	}

	var request recordListingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&request); err != nil || !request.Platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Platform, title and a positive price are required",
			},
		})
		return
	}

	now := time.Now()
	listing := &models.Listing{
		InventoryID: id,
		Platform:    request.Platform,
		ExternalID:  request.ExternalID,
		URL:         request.URL,
		Title:       request.Title,
		Price:       request.Price,
		Status:      models.ListingActive,
		ListedAt:    &now,
	}
	if err := h.inventory.RecordListing(c.Request.Context(), listing); err != nil {
		var dup *services.DuplicateListingError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    "DUPLICATE_LISTING",
					"message": err.Error(),
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to record listing")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECORD_FAILED",
				"message": "Failed to record listing",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// ActiveListings returns everything currently live across all platforms.
func (h *InventoryHandler) ActiveListings(c *gin.Context) {
	listings, err := h.inventory.ActiveListings(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load active listings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LISTINGS_FAILED",
				"message": "Failed to load active listings",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// UnlistedItems returns active inventory with no live listing.
func (h *InventoryHandler) UnlistedItems(c *gin.Context) {
	items, err := h.inventory.UnlistedItems(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load unlisted items")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": "Failed to load unlisted items",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// Search matches inventory by brand, name or model.
func (h *InventoryHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_QUERY",
				"message": "Query parameter q is required",
			},
		})
		return
	}

	items, err := h.inventory.SearchInventory(c.Request.Context(), query)
	if err != nil {
		h.logger.WithError(err).Error("Inventory search failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "SEARCH_FAILED",
				"message": "Inventory search failed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

type markSoldRequest struct {
	Price    float64         `json:"price" validate:"gt=0"`
	Platform models.Platform `json:"platform" validate:"required"`
}

func (h *InventoryHandler) MarkSold(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Item id must be a UUID",
			},
		})
		return
	}

	var request markSoldRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&request); err != nil || !request.Platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Price must be positive and platform must be valid",
			},
		})
		return
	}

	if err := h.inventory.MarkSold(c.Request.Context(), id, request.Price, request.Platform); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "MARK_SOLD_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sold"})
}

type updateListingStatusRequest struct {
	Status models.ListingStatus `json:"status" validate:"required,oneof=pending active sold ended failed"`
}

// UpdateListingStatus mutates one platform listing's status.
func (h *InventoryHandler) UpdateListingStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Item id must be a UUID",
			},
		})
		return
	}

	platform, err := models.ParsePlatform(c.Param("platform"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_PLATFORM",
				"message": err.Error(),
			},
		})
		return
	}

	var request updateListingStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Unknown listing status",
			},
		})
		return
	}

	if err := h.inventory.UpdateListingStatus(c.Request.Context(), id, platform, request.Status); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "UPDATE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": request.Status})
}

type updateStatusRequest struct {
	Status models.InventoryStatus `json:"status" validate:"required,oneof=active listed sold archived"`
}

func (h *InventoryHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Item id must be a UUID",
			},
		})
		return
	}

	var request updateStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Unknown inventory status",
			},
		})
		return
	}

	if err := h.inventory.UpdateStatus(c.Request.Context(), id, request.Status); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "UPDATE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": request.Status})
}
