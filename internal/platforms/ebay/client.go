// Package ebay implements the Sell API integration: OAuth2 token
// management plus the inventory item / offer / publish sequence that turns
// a payload into a live listing.
package ebay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

// ErrNoToken is returned when a call needs user authorization that has not
// happened yet or whose refresh token has been revoked.
var ErrNoToken = errors.New("No valid token available")

const marketplaceID = "EBAY_US"

// Access tokens are refreshed this long before their stated expiry.
const tokenExpirySlack = 60 * time.Second

var conditionMap = map[models.ConditionState]string{
	models.ConditionNew:     "NEW",
	models.ConditionLikeNew: "LIKE_NEW",
	models.ConditionGood:    "GOOD",
	models.ConditionFair:    "ACCEPTABLE",
	models.ConditionPoor:    "FOR_PARTS_OR_NOT_WORKING",
}

type Client struct {
	cfg        config.EbayConfig
	apiURL     string
	authURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func NewClient(cfg config.EbayConfig, logger *logrus.Logger) *Client {
	apiURL, authURL := "https://api.ebay.com", "https://auth.ebay.com"
	if cfg.Sandbox {
		apiURL, authURL = "https://api.sandbox.ebay.com", "https://auth.sandbox.ebay.com"
	}
	return &Client{
		cfg:     cfg,
		apiURL:  apiURL,
		authURL: authURL,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthorizationURL builds the consent URL the seller visits to grant the
// application access.
func (c *Client) AuthorizationURL(state string, scopes []string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("scope", strings.Join(scopes, " "))
	return c.authURL + "/oauth2/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for the initial token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.requestToken(ctx, form)
}

// SetTokens restores a previously persisted token pair.
func (c *Client) SetTokens(accessToken, refreshToken string, expiresIn int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// Authorized reports whether the client currently holds any credentials.
func (c *Client) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" || c.refreshToken != ""
}

func (c *Client) requestToken(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.refreshToken = token.RefreshToken
	}
	c.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	c.mu.Unlock()

	c.logger.WithField("expires_in", token.ExpiresIn).Info("eBay token acquired")
	return nil
}

// ensureToken returns a usable access token, refreshing first when the
// current one is expired or about to expire.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	refresh := c.refreshToken
	valid := token != "" && time.Now().Before(c.expiresAt.Add(-tokenExpirySlack))
	c.mu.Unlock()

	if valid {
		return token, nil
	}
	if refresh == "" {
		return "", ErrNoToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	if err := c.requestToken(ctx, form); err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	c.mu.Lock()
	token = c.accessToken
	c.mu.Unlock()
	return token, nil
}

// CreateListing runs the Sell API sequence: upsert the inventory item,
// create an offer for it, then publish the offer.
func (c *Client) CreateListing(ctx context.Context, payload *models.ListingPayload) (*models.ListingResult, error) {
	if err := c.createInventoryItem(ctx, payload); err != nil {
		return nil, err
	}

	offerID, err := c.createOffer(ctx, payload)
	if err != nil {
		return nil, err
	}

	listingID, err := c.publishOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"sku":        payload.SKU,
		"offer_id":   offerID,
		"listing_id": listingID,
	}).Info("eBay listing published")

	return &models.ListingResult{
		Platform:   models.PlatformEbay,
		Success:    true,
		ExternalID: listingID,
		URL:        fmt.Sprintf("https://www.ebay.com/itm/%s", listingID),
		ListedAt:   time.Now(),
	}, nil
}

func (c *Client) createInventoryItem(ctx context.Context, payload *models.ListingPayload) error {
	condition, ok := conditionMap[payload.Condition]
	if !ok {
		condition = "GOOD"
	}

	aspects := map[string][]string{}
	for k, v := range payload.ItemSpecifics {
		aspects[k] = []string{v}
	}
	if payload.Brand != "" {
		aspects["Brand"] = []string{payload.Brand}
	}

	quantity := payload.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	body := inventoryItemRequest{
		Availability: availability{
			ShipToLocationAvailability: shipToLocationAvailability{Quantity: quantity},
		},
		Condition: condition,
		Product: product{
			Title:       payload.Title,
			Description: payload.Description,
			Brand:       payload.Brand,
			Aspects:     aspects,
			ImageURLs:   payload.ImageURLs,
		},
	}

	path := fmt.Sprintf("/sell/inventory/v1/inventory_item/%s", url.PathEscape(payload.SKU))
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) createOffer(ctx context.Context, payload *models.ListingPayload) (string, error) {
	quantity := payload.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	format := string(models.FormatFixedPrice)
	if payload.Format != "" {
		format = string(payload.Format)
	}

	body := offerRequest{
		SKU:                payload.SKU,
		MarketplaceID:      marketplaceID,
		Format:             format,
		AvailableQuantity:  quantity,
		ListingDescription: payload.Description,
		ListingPolicies: offerPolicies{
			FulfillmentPolicyID: c.cfg.FulfillmentPolicyID,
			PaymentPolicyID:     c.cfg.PaymentPolicyID,
			ReturnPolicyID:      c.cfg.ReturnPolicyID,
		},
		PricingSummary: pricing{
			Price: amount{Currency: "USD", Value: fmt.Sprintf("%.2f", payload.Price)},
		},
		MerchantLocationKey: c.cfg.MerchantLocationKey,
	}

	if payload.Format == models.FormatAuction && payload.Auction != nil {
		body.PricingSummary.AuctionStartPrice = &amount{Currency: "USD", Value: fmt.Sprintf("%.2f", payload.Auction.StartPrice)}
		if payload.Auction.ReservePrice > 0 {
			body.PricingSummary.AuctionReservePrice = &amount{Currency: "USD", Value: fmt.Sprintf("%.2f", payload.Auction.ReservePrice)}
		}
		duration := payload.Auction.DurationDays
		if duration <= 0 {
			duration = 7
		}
		body.ListingDuration = fmt.Sprintf("DAYS_%d", duration)
	}

	var resp offerResponse
	if err := c.do(ctx, http.MethodPost, "/sell/inventory/v1/offer", body, &resp); err != nil {
		return "", err
	}
	if resp.OfferID == "" {
		return "", fmt.Errorf("offer created without an id")
	}
	return resp.OfferID, nil
}

func (c *Client) publishOffer(ctx context.Context, offerID string) (string, error) {
	var resp publishResponse
	path := fmt.Sprintf("/sell/inventory/v1/offer/%s/publish", url.PathEscape(offerID))
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.ListingID == "" {
		return "", fmt.Errorf("offer published without a listing id")
	}
	return resp.ListingID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en-US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("eBay request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && len(apiErr.Errors) > 0 {
			messages := make([]string, 0, len(apiErr.Errors))
			for _, e := range apiErr.Errors {
				messages = append(messages, e.Message)
			}
			return fmt.Errorf("eBay API error (%d): %s", resp.StatusCode, strings.Join(messages, "; "))
		}
		return fmt.Errorf("eBay API returned %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode eBay response: %w", err)
		}
	}
	return nil
}
