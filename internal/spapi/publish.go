package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PublishPrice pushes a new list price to the marketplace. Failures are
// captured in the result, never raised. The feeds method builds the feed
// document but is not wired to the feed upload flow yet; it reports a
// tagged NotImplemented result so callers can tell it apart from a real
// submission.
func (c *Client) PublishPrice(ctx context.Context, sku, marketplaceID string, newPrice float64, method string) PublishResult {
	start := time.Now()
	result := PublishResult{
		Method:        method,
		SKU:           sku,
		MarketplaceID: marketplaceID,
		NewPrice:      newPrice,
	}

	switch method {
	case MethodListingsItems:
		c.publishListingsItems(ctx, &result)
	case MethodFeeds:
		c.publishFeed(&result)
	default:
		result.Error = fmt.Sprintf("unknown publication method %q", method)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

type listingsPatch struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value []struct {
		Amount       float64 `json:"Amount"`
		CurrencyCode string  `json:"CurrencyCode"`
	} `json:"value"`
}

func (c *Client) publishListingsItems(ctx context.Context, result *PublishResult) {
	patch := listingsPatch{Op: "replace", Path: "/attributes/list_price"}
	patch.Value = append(patch.Value, struct {
		Amount       float64 `json:"Amount"`
		CurrencyCode string  `json:"CurrencyCode"`
	}{Amount: result.NewPrice, CurrencyCode: c.config.Currency(result.MarketplaceID)})

	payload := map[string]any{
		"productType": "PRODUCT",
		"patches":     []listingsPatch{patch},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("marshal listings patch: %v", err)
		return
	}

	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s", c.config.Amazon.SellerID, url.PathEscape(result.SKU))
	query := url.Values{}
	query.Set("marketplaceIds", result.MarketplaceID)

	respBody, status, err := c.doRequest(ctx, http.MethodPatch, path, query, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("listings item patch failed", "sku", result.SKU, "error", err)
		result.Error = err.Error()
		return
	}
	result.Response = string(respBody)

	if status != http.StatusOK && status != http.StatusAccepted {
		result.Error = fmt.Sprintf("listings API returned status %d: %s", status, truncate(respBody, 200))
		return
	}

	var resp struct {
		SubmissionID string `json:"submissionId"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		result.Error = fmt.Sprintf("parse listings response: %v", err)
		return
	}
	if resp.SubmissionID == "" {
		result.Error = "listings API accepted the request but returned no submission id"
		return
	}

	result.SubmissionID = resp.SubmissionID
	result.Success = true
	c.logger.Info("price published",
		"sku", result.SKU, "price", result.NewPrice, "submission_id", resp.SubmissionID)
}

type priceFeed struct {
	XMLName       xml.Name `xml:"AmazonEnvelope"`
	MessageType   string   `xml:"Header>MessageType"`
	MerchantID    string   `xml:"Header>MerchantIdentifier"`
	MessageID     int      `xml:"Message>MessageID"`
	SKU           string   `xml:"Message>Price>SKU"`
	StandardPrice struct {
		Currency string  `xml:"currency,attr"`
		Value    float64 `xml:",chardata"`
	} `xml:"Message>Price>StandardPrice"`
}

func (c *Client) publishFeed(result *PublishResult) {
	feed := priceFeed{
		MessageType: "Price",
		MerchantID:  c.config.Amazon.SellerID,
		MessageID:   1,
		SKU:         result.SKU,
	}
	feed.StandardPrice.Currency = c.config.Currency(result.MarketplaceID)
	feed.StandardPrice.Value = result.NewPrice

	data, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		result.Error = fmt.Sprintf("build price feed: %v", err)
		return
	}

	result.FeedXML = xml.Header + string(data)
	result.NotImplemented = true
	result.Error = "feed submission is not implemented; feed document was built but not uploaded"
	c.logger.Warn("feed publication requested but not implemented", "sku", result.SKU)
}
