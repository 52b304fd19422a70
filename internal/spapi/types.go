package spapi

import "time"

// CompetitorOffer is one marketplace seller's observed offer at a point in
// time. Ephemeral: rebuilt from every pricing query, never persisted on
// its own.
type CompetitorOffer struct {
	SellerID  string  `json:"seller_id"`
	Condition string  `json:"condition"`
	Price     float64 `json:"price"`
	Shipping  float64 `json:"shipping"`
	// LandedPrice is price + shipping, the authoritative total used in
	// all comparisons.
	LandedPrice        float64 `json:"landed_price"`
	IsBuyBoxWinner     bool    `json:"is_buy_box_winner"`
	IsFeaturedMerchant bool    `json:"is_featured_merchant"`
}

// BuyBoxInfo summarizes the Buy-Box-winning offer from a pricing query.
type BuyBoxInfo struct {
	Price     float64 `json:"price"`
	SellerID  string  `json:"seller_id"`
	Condition string  `json:"condition"`
	Shipping  float64 `json:"shipping"`
}

// PricingMetadata accompanies every competitive pricing result, including
// failed queries (Error set, empty offer list).
type PricingMetadata struct {
	APIDurationMs    int64       `json:"api_duration_ms"`
	CompetitorsCount int         `json:"competitors_count"`
	BuyBoxInfo       *BuyBoxInfo `json:"buybox_info,omitempty"`
	RetrievedAt      time.Time   `json:"retrieved_at"`
	Error            string      `json:"error,omitempty"`
}

// Publication methods.
const (
	MethodListingsItems = "listings_items"
	MethodFeeds         = "feeds"
)

// PublishResult is the outcome of one price publication attempt. Failures
// are reported in the struct, never raised.
type PublishResult struct {
	Success        bool    `json:"success"`
	NotImplemented bool    `json:"not_implemented,omitempty"`
	Method         string  `json:"method"`
	SKU            string  `json:"sku"`
	MarketplaceID  string  `json:"marketplace_id"`
	NewPrice       float64 `json:"new_price"`
	SubmissionID   string  `json:"submission_id,omitempty"`
	FeedXML        string  `json:"feed_xml,omitempty"`
	Response       string  `json:"response,omitempty"`
	Error          string  `json:"error,omitempty"`
	DurationMs     int64   `json:"duration_ms"`
}

// Wire shapes of the product pricing endpoint.

type moneyType struct {
	Amount       float64 `json:"Amount"`
	CurrencyCode string  `json:"CurrencyCode"`
}

type priceType struct {
	ListingPrice moneyType `json:"ListingPrice"`
	Shipping     moneyType `json:"Shipping"`
	LandedPrice  moneyType `json:"LandedPrice"`
}

type competitivePriceEntry struct {
	CompetitivePriceID string    `json:"CompetitivePriceId"`
	BelongsToRequester bool      `json:"belongsToRequester"`
	Condition          string    `json:"condition"`
	Price              priceType `json:"Price"`
}

type offerEntry struct {
	SellerID       string    `json:"SellerId"`
	ItemCondition  string    `json:"ItemCondition"`
	IsBuyBoxWinner bool      `json:"IsBuyBoxWinner"`
	ListingPrice   moneyType `json:"ListingPrice"`
	Shipping       moneyType `json:"Shipping"`
}
