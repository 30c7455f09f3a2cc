package ebay

// tokenResponse is the OAuth token endpoint's reply for both the
// authorization_code and refresh_token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type inventoryItemRequest struct {
	Availability availability `json:"availability"`
	Condition    string       `json:"condition"`
	Product      product      `json:"product"`
}

type availability struct {
	ShipToLocationAvailability shipToLocationAvailability `json:"shipToLocationAvailability"`
}

type shipToLocationAvailability struct {
	Quantity int `json:"quantity"`
}

type product struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Brand       string              `json:"brand,omitempty"`
	Aspects     map[string][]string `json:"aspects,omitempty"`
	ImageURLs   []string            `json:"imageUrls,omitempty"`
}

type offerRequest struct {
	SKU                 string        `json:"sku"`
	MarketplaceID       string        `json:"marketplaceId"`
	Format              string        `json:"format"`
	AvailableQuantity   int           `json:"availableQuantity"`
	CategoryID          string        `json:"categoryId,omitempty"`
	ListingDescription  string        `json:"listingDescription"`
	ListingDuration     string        `json:"listingDuration,omitempty"`
	ListingPolicies     offerPolicies `json:"listingPolicies"`
	PricingSummary      pricing       `json:"pricingSummary"`
	MerchantLocationKey string        `json:"merchantLocationKey,omitempty"`
}

type offerPolicies struct {
	FulfillmentPolicyID string `json:"fulfillmentPolicyId,omitempty"`
	PaymentPolicyID     string `json:"paymentPolicyId,omitempty"`
	ReturnPolicyID      string `json:"returnPolicyId,omitempty"`
}

type pricing struct {
	Price               amount  `json:"price"`
	AuctionStartPrice   *amount `json:"auctionStartPrice,omitempty"`
	AuctionReservePrice *amount `json:"auctionReservePrice,omitempty"`
}

type amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type offerResponse struct {
	OfferID string `json:"offerId"`
}

type publishResponse struct {
	ListingID string `json:"listingId"`
}

type errorResponse struct {
	Errors []struct {
		ErrorID  int    `json:"errorId"`
		Message  string `json:"message"`
		LongMsg  string `json:"longMessage"`
		Category string `json:"category"`
	} `json:"errors"`
}
