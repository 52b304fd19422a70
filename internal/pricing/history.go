package pricing

import (
	"encoding/json"

	"github.com/ecomsimply/repricer/internal/spapi"
	"github.com/ecomsimply/repricer/internal/storage"
)

// NewHistoryEntry maps a finished calculation (and optional publication
// result) into an audit record. Pure mapping, no I/O: two calls over the
// same inputs differ only in ID and CreatedAt, both assigned at insert.
func NewHistoryEntry(userID string, rule *storage.PricingRule, calc *Calculation, pub *spapi.PublishResult) *storage.PricingHistory {
	h := &storage.PricingHistory{
		UserID:        userID,
		RuleID:        rule.ID,
		SKU:           calc.SKU,
		MarketplaceID: calc.MarketplaceID,

		OldPrice:       calc.CurrentPrice,
		NewPrice:       calc.RecommendedPrice,
		PriceChange:    calc.PriceChange,
		PriceChangePct: calc.PriceChangePct,

		BuyBoxPrice:        calc.BuyBoxPrice,
		CompetitorsCount:   len(calc.Competitors),
		BuyBoxStatusBefore: calc.BuyBoxStatus,
		BuyBoxStatusAfter:  calc.BuyBoxStatus,

		Reasoning:   calc.Reasoning,
		Confidence:  calc.Confidence,
		WithinRules: calc.WithinRules,

		CalculationDurationMs: calc.CalculationDurationMs,
	}

	if len(calc.Warnings) > 0 {
		if data, err := json.Marshal(calc.Warnings); err == nil {
			h.Warnings = string(data)
		}
	}

	if pub != nil {
		h.PublicationSuccess = pub.Success
		h.PublicationMethod = pub.Method
		h.PublishDurationMs = pub.DurationMs
		if pub.Response != "" {
			h.MarketplaceResponse = pub.Response
		} else if data, err := json.Marshal(pub); err == nil {
			h.MarketplaceResponse = string(data)
		}
	}

	return h
}
