package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const competitivePricingPath = "/products/pricing/v0/competitivePrice"

// GetCompetitivePricing fetches competitor offers for one SKU. It never
// returns an error: transport and upstream failures yield an empty offer
// list with the failure recorded in the metadata, and individually
// malformed offers are logged and skipped without aborting the batch.
func (c *Client) GetCompetitivePricing(ctx context.Context, sku, marketplaceID, itemCondition string) ([]CompetitorOffer, PricingMetadata) {
	start := time.Now()
	meta := PricingMetadata{RetrievedAt: start.UTC()}

	if itemCondition == "" {
		itemCondition = "New"
	}

	query := url.Values{}
	query.Set("MarketplaceId", marketplaceID)
	query.Set("Skus", sku)
	query.Set("ItemType", "Sku")
	query.Set("ItemCondition", itemCondition)

	body, status, err := c.doRequest(ctx, http.MethodGet, competitivePricingPath, query, nil)
	meta.APIDurationMs = time.Since(start).Milliseconds()
	if err != nil {
		c.logger.Error("competitive pricing request failed", "sku", sku, "error", err)
		meta.Error = err.Error()
		return nil, meta
	}
	if status != http.StatusOK {
		c.logger.Error("competitive pricing returned non-200", "sku", sku, "status", status)
		meta.Error = fmt.Sprintf("pricing API returned status %d: %s", status, truncate(body, 200))
		return nil, meta
	}

	offers, buybox := c.parsePricingPayload(body, sku)
	meta.CompetitorsCount = len(offers)
	meta.BuyBoxInfo = buybox
	return offers, meta
}

// parsePricingPayload walks the nested pricing response. Product entries
// for other SKUs are skipped (the endpoint can batch multiple SKUs per
// response) and each offer is decoded independently so one bad record
// cannot poison the rest.
func (c *Client) parsePricingPayload(body []byte, sku string) ([]CompetitorOffer, *BuyBoxInfo) {
	var envelope struct {
		Payload []json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Error("parse pricing envelope", "sku", sku, "error", err)
		return nil, nil
	}

	var offers []CompetitorOffer
	var buybox *BuyBoxInfo

	for _, raw := range envelope.Payload {
		var entry struct {
			SellerSKU string `json:"SellerSKU"`
			Status    string `json:"status"`
			Product   struct {
				CompetitivePricing struct {
					CompetitivePrices []json.RawMessage `json:"CompetitivePrices"`
				} `json:"CompetitivePricing"`
				Offers []json.RawMessage `json:"Offers"`
			} `json:"Product"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.logger.Warn("skip malformed product entry", "sku", sku, "error", err)
			continue
		}
		if entry.SellerSKU != sku {
			continue
		}

		if len(entry.Product.Offers) > 0 {
			for _, rawOffer := range entry.Product.Offers {
				var o offerEntry
				if err := json.Unmarshal(rawOffer, &o); err != nil {
					c.logger.Warn("skip malformed offer", "sku", sku, "error", err)
					continue
				}
				offers = append(offers, CompetitorOffer{
					SellerID:       o.SellerID,
					Condition:      o.ItemCondition,
					Price:          o.ListingPrice.Amount,
					Shipping:       o.Shipping.Amount,
					LandedPrice:    o.ListingPrice.Amount + o.Shipping.Amount,
					IsBuyBoxWinner: o.IsBuyBoxWinner,
				})
			}
		} else {
			// No per-seller offers in the response; fall back to the
			// anonymous competitive price list. CompetitivePriceId "1"
			// is the Buy Box price.
			for _, rawPrice := range entry.Product.CompetitivePricing.CompetitivePrices {
				var p competitivePriceEntry
				if err := json.Unmarshal(rawPrice, &p); err != nil {
					c.logger.Warn("skip malformed competitive price", "sku", sku, "error", err)
					continue
				}
				sellerID := "competitive-price-" + p.CompetitivePriceID
				if p.BelongsToRequester {
					sellerID = c.config.Amazon.SellerID
				}
				landed := p.Price.LandedPrice.Amount
				if landed == 0 {
					landed = p.Price.ListingPrice.Amount + p.Price.Shipping.Amount
				}
				offers = append(offers, CompetitorOffer{
					SellerID:       sellerID,
					Condition:      p.Condition,
					Price:          p.Price.ListingPrice.Amount,
					Shipping:       p.Price.Shipping.Amount,
					LandedPrice:    landed,
					IsBuyBoxWinner: p.CompetitivePriceID == "1",
				})
			}
		}
	}

	for _, o := range offers {
		if o.IsBuyBoxWinner {
			buybox = &BuyBoxInfo{
				Price:     o.LandedPrice,
				SellerID:  o.SellerID,
				Condition: o.Condition,
				Shipping:  o.Shipping,
			}
			break
		}
	}

	return offers, buybox
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
