package pricing

import (
	"time"

	"github.com/ecomsimply/repricer/internal/spapi"
)

// Buy Box statuses. Analysis always yields exactly one of these.
const (
	StatusWon     = "WON"
	StatusLost    = "LOST"
	StatusRisk    = "RISK"
	StatusUnknown = "UNKNOWN"
)

// BuyBoxAnalysis is the result of one scan over the competitor list.
type BuyBoxAnalysis struct {
	Status             string                 `json:"status"`
	BuyBoxPrice        *float64               `json:"buybox_price,omitempty"`
	BuyBoxWinner       string                 `json:"buybox_winner,omitempty"`
	OurOffer           *spapi.CompetitorOffer `json:"our_offer,omitempty"`
	CompetitorsCount   int                    `json:"competitors_count"`
	MinCompetitorPrice *float64               `json:"min_competitor_price,omitempty"`
	AvgCompetitorPrice *float64               `json:"avg_competitor_price,omitempty"`
}

// Calculation is the engine's output for one pricing decision. Constructed
// fresh per call and never mutated afterwards.
type Calculation struct {
	SKU           string                  `json:"sku"`
	MarketplaceID string                  `json:"marketplace_id"`
	CurrentPrice  *float64                `json:"current_price,omitempty"`
	Competitors   []spapi.CompetitorOffer `json:"competitors"`

	BuyBoxPrice  *float64               `json:"buybox_price,omitempty"`
	BuyBoxWinner string                 `json:"buybox_winner,omitempty"`
	OurOffer     *spapi.CompetitorOffer `json:"our_offer,omitempty"`

	RecommendedPrice float64  `json:"recommended_price"`
	PriceChange      float64  `json:"price_change"`
	PriceChangePct   float64  `json:"price_change_pct"`
	BuyBoxStatus     string   `json:"buybox_status"`
	WithinRules      bool     `json:"within_rules"`
	Reasoning        string   `json:"reasoning"`
	Warnings         []string `json:"warnings"`
	Confidence       float64  `json:"confidence"`

	CalculatedAt          time.Time `json:"calculated_at"`
	CalculationDurationMs int64     `json:"calculation_duration_ms"`
}
