package pricing

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/spapi"
	"github.com/ecomsimply/repricer/internal/storage"
)

const testSellerID = "SELLER-US-1"

type stubSource struct {
	offers []spapi.CompetitorOffer
	meta   spapi.PricingMetadata
	panics bool
}

func (s *stubSource) GetCompetitivePricing(_ context.Context, _, _, _ string) ([]spapi.CompetitorOffer, spapi.PricingMetadata) {
	if s.panics {
		panic("upstream exploded")
	}
	return s.offers, s.meta
}

func testEngine(src CompetitiveSource) *Engine {
	if src == nil {
		src = &stubSource{}
	}
	opts := Options{
		SellerID:         testSellerID,
		RiskThresholdPct: 5.0,
		UndercutAmount:   0.01,
		MinCompetitors:   3,
		CostRatio:        0.7,
	}
	return NewEngine(opts, src, logger.New("error"))
}

func fptr(v float64) *float64 { return &v }

func testRule(strategy string) *storage.PricingRule {
	return &storage.PricingRule{
		ID:            "rule-1",
		UserID:        "user-1",
		SKU:           "SKU-1",
		MarketplaceID: "ATVPDKIKX0DER",
		MinPrice:      50,
		MaxPrice:      150,
		VariancePct:   5,
		Strategy:      strategy,
		Status:        storage.RuleStatusActive,
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{10.125, 10.13}, // half rounds up, not to even
		{10.124, 10.12},
		{0.625, 0.63},
		{79.98, 79.98},
		{-10.125, -10.13},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAnalyzeBuyBox(t *testing.T) {
	e := testEngine(nil)

	tests := []struct {
		name         string
		offers       []spapi.CompetitorOffer
		currentPrice *float64
		wantStatus   string
	}{
		{
			name:         "no competitors no current price",
			offers:       nil,
			currentPrice: nil,
			wantStatus:   StatusUnknown,
		},
		{
			name: "our offer wins the buy box",
			offers: []spapi.CompetitorOffer{
				{SellerID: testSellerID, LandedPrice: 79.99, IsBuyBoxWinner: true},
				{SellerID: "S2", LandedPrice: 82.00},
			},
			currentPrice: fptr(79.99),
			wantStatus:   StatusWon,
		},
		{
			name: "close to buy box price",
			offers: []spapi.CompetitorOffer{
				{SellerID: "S1", LandedPrice: 80.00, IsBuyBoxWinner: true},
			},
			currentPrice: fptr(82.00), // 2.5% gap
			wantStatus:   StatusRisk,
		},
		{
			name: "far from buy box price",
			offers: []spapi.CompetitorOffer{
				{SellerID: "S1", LandedPrice: 80.00, IsBuyBoxWinner: true},
			},
			currentPrice: fptr(95.00),
			wantStatus:   StatusLost,
		},
		{
			name: "buy box known but no current price",
			offers: []spapi.CompetitorOffer{
				{SellerID: "S1", LandedPrice: 80.00, IsBuyBoxWinner: true},
			},
			currentPrice: nil,
			wantStatus:   StatusUnknown,
		},
	}

	valid := map[string]bool{StatusWon: true, StatusLost: true, StatusRisk: true, StatusUnknown: true}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.AnalyzeBuyBox(tt.offers, tt.currentPrice)
			if a.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", a.Status, tt.wantStatus)
			}
			if !valid[a.Status] {
				t.Errorf("Status %q is not a recognized value", a.Status)
			}
			if a.CompetitorsCount != len(tt.offers) {
				t.Errorf("CompetitorsCount = %d, want %d", a.CompetitorsCount, len(tt.offers))
			}
		})
	}
}

func TestAnalyzeBuyBoxAggregates(t *testing.T) {
	e := testEngine(nil)
	offers := []spapi.CompetitorOffer{
		{SellerID: "S1", LandedPrice: 79.99, IsBuyBoxWinner: true},
		{SellerID: "S2", LandedPrice: 86.49},
		{SellerID: "S3", LandedPrice: 82.99},
	}

	a := e.AnalyzeBuyBox(offers, fptr(85))

	if a.BuyBoxPrice == nil || *a.BuyBoxPrice != 79.99 {
		t.Fatalf("BuyBoxPrice = %v, want 79.99", a.BuyBoxPrice)
	}
	if a.BuyBoxWinner != "S1" {
		t.Errorf("BuyBoxWinner = %s, want S1", a.BuyBoxWinner)
	}
	if a.MinCompetitorPrice == nil || *a.MinCompetitorPrice != 79.99 {
		t.Errorf("MinCompetitorPrice = %v, want 79.99", a.MinCompetitorPrice)
	}
	wantAvg := (79.99 + 86.49 + 82.99) / 3
	if a.AvgCompetitorPrice == nil || math.Abs(*a.AvgCompetitorPrice-wantAvg) > 1e-9 {
		t.Errorf("AvgCompetitorPrice = %v, want %v", a.AvgCompetitorPrice, wantAvg)
	}

	empty := e.AnalyzeBuyBox(nil, nil)
	if empty.MinCompetitorPrice != nil || empty.AvgCompetitorPrice != nil {
		t.Error("expected nil aggregates for empty competitor list")
	}
}

func TestApplyConstraints(t *testing.T) {
	tests := []struct {
		name         string
		price        float64
		rule         *storage.PricingRule
		currentPrice *float64
		want         float64
	}{
		{
			name:  "below min raised",
			price: 30,
			rule:  testRule(storage.StrategyFloorCeiling),
			want:  50,
		},
		{
			name:  "above max lowered",
			price: 200,
			rule:  testRule(storage.StrategyFloorCeiling),
			want:  150,
		},
		{
			name:  "map floor wins over min",
			price: 55,
			rule: func() *storage.PricingRule {
				r := testRule(storage.StrategyFloorCeiling)
				r.MAPPrice = fptr(60)
				return r
			}(),
			want: 60,
		},
		{
			name:         "variance clamps upward move",
			price:        120,
			rule:         testRule(storage.StrategyFloorCeiling),
			currentPrice: fptr(100),
			want:         105,
		},
		{
			name:         "variance clamps downward move",
			price:        80,
			rule:         testRule(storage.StrategyFloorCeiling),
			currentPrice: fptr(100),
			want:         95,
		},
		{
			name:  "half rounds to the higher cent",
			price: 100.125,
			rule:  testRule(storage.StrategyFloorCeiling),
			want:  100.13,
		},
		{
			name:  "bounds win when variance band lies outside them",
			price: 79.99,
			rule: func() *storage.PricingRule {
				r := testRule(storage.StrategyBuyBoxMatch)
				r.MinPrice = 110
				return r
			}(),
			currentPrice: fptr(100),
			want:         110,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, notes := ApplyConstraints(tt.price, tt.rule, tt.currentPrice)
			if got != tt.want {
				t.Errorf("ApplyConstraints(%v) = %v, want %v (notes: %v)", tt.price, got, tt.want, notes)
			}
			// Bounds invariant: min/max/MAP always hold.
			if got < tt.rule.MinPrice || got > tt.rule.MaxPrice {
				t.Errorf("final price %v violates [%v, %v]", got, tt.rule.MinPrice, tt.rule.MaxPrice)
			}
			if tt.rule.MAPPrice != nil && got < *tt.rule.MAPPrice {
				t.Errorf("final price %v undercuts MAP %v", got, *tt.rule.MAPPrice)
			}
			// Exactly two decimal digits.
			if got != round2(got) {
				t.Errorf("final price %v is not rounded to 2 decimals", got)
			}
		})
	}
}

func TestBuyBoxMatchStrategy(t *testing.T) {
	e := testEngine(nil)
	rule := testRule(storage.StrategyBuyBoxMatch)

	price, _ := e.buyBoxMatchPrice(rule, BuyBoxAnalysis{BuyBoxPrice: fptr(79.99)})
	if math.Abs(price-79.98) > 1e-9 {
		t.Errorf("undercut price = %v, want 79.98", price)
	}

	price, _ = e.buyBoxMatchPrice(rule, BuyBoxAnalysis{MinCompetitorPrice: fptr(82.50)})
	if price != 82.50 {
		t.Errorf("fallback to min competitor = %v, want 82.50", price)
	}

	price, _ = e.buyBoxMatchPrice(rule, BuyBoxAnalysis{})
	if price != rule.MinPrice {
		t.Errorf("fallback with no data = %v, want %v", price, rule.MinPrice)
	}
}

func TestMarginTargetStrategy(t *testing.T) {
	e := testEngine(nil)

	rule := testRule(storage.StrategyMarginTarget)
	rule.MarginTarget = fptr(30)

	// Estimated cost: 50 * 0.7 = 35; 35 / 0.7 = 50.
	price, reasoning := e.marginTargetPrice(rule, nil)
	if math.Abs(price-50) > 1e-9 {
		t.Errorf("margin price = %v, want 50", price)
	}
	if !strings.Contains(reasoning, "estimated cost") {
		t.Errorf("reasoning should flag the cost estimate, got %q", reasoning)
	}

	// Explicit cost price takes precedence over the estimate.
	rule.CostPrice = fptr(40)
	price, reasoning = e.marginTargetPrice(rule, nil)
	if math.Abs(price-40/0.7) > 1e-9 {
		t.Errorf("margin price with cost = %v, want %v", price, 40/0.7)
	}
	if strings.Contains(reasoning, "estimated") {
		t.Errorf("reasoning should not mention an estimate when cost price is set, got %q", reasoning)
	}

	// Missing margin degrades softly instead of failing.
	rule.MarginTarget = nil
	price, reasoning = e.marginTargetPrice(rule, fptr(75))
	if price != 75 {
		t.Errorf("fallback price = %v, want 75", price)
	}
	if !strings.Contains(reasoning, "not defined") {
		t.Errorf("fallback reasoning = %q", reasoning)
	}

	// Unattainable margin caps at the ceiling.
	rule.MarginTarget = fptr(100)
	price, _ = e.marginTargetPrice(rule, nil)
	if price != rule.MaxPrice {
		t.Errorf("price at 100%% margin = %v, want %v", price, rule.MaxPrice)
	}
}

func TestFloorCeilingStrategy(t *testing.T) {
	rule := testRule(storage.StrategyFloorCeiling)

	tests := []struct {
		name         string
		currentPrice *float64
		want         float64
	}{
		{"no current price uses midpoint", nil, 100},
		{"in band keeps price", fptr(99.90), 99.90},
		{"below floor raises", fptr(40), 50},
		{"above ceiling lowers", fptr(180), 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := floorCeilingPrice(rule, tt.currentPrice)
			if got != tt.want {
				t.Errorf("floorCeilingPrice = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreConfidence(t *testing.T) {
	e := testEngine(nil)
	rule := testRule(storage.StrategyBuyBoxMatch)

	tests := []struct {
		name     string
		final    float64
		analysis BuyBoxAnalysis
		want     float64
	}{
		{
			name:     "full confidence",
			final:    80,
			analysis: BuyBoxAnalysis{Status: StatusLost, CompetitorsCount: 5, BuyBoxPrice: fptr(79)},
			want:     100,
		},
		{
			name:     "few competitors",
			final:    80,
			analysis: BuyBoxAnalysis{Status: StatusLost, CompetitorsCount: 2, BuyBoxPrice: fptr(79)},
			want:     80,
		},
		{
			name:     "unknown status",
			final:    80,
			analysis: BuyBoxAnalysis{Status: StatusUnknown, CompetitorsCount: 5},
			want:     85,
		},
		{
			name:     "far from buy box",
			final:    100,
			analysis: BuyBoxAnalysis{Status: StatusLost, CompetitorsCount: 5, BuyBoxPrice: fptr(80)},
			want:     90,
		},
		{
			name:     "bound hit",
			final:    50,
			analysis: BuyBoxAnalysis{Status: StatusLost, CompetitorsCount: 5, BuyBoxPrice: fptr(49)},
			want:     95,
		},
		{
			name:     "penalties stack",
			final:    150,
			analysis: BuyBoxAnalysis{Status: StatusUnknown, CompetitorsCount: 0, BuyBoxPrice: fptr(80)},
			want:     50, // -20 -15 -10 -5
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.scoreConfidence(tt.final, rule, tt.analysis); got != tt.want {
				t.Errorf("scoreConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}

// Scenario: one-cent undercut pushed back up by the variance band, landing
// exactly on the 5% threshold.
func TestCalculateOptimalPrice_VarianceBoundary(t *testing.T) {
	e := testEngine(nil)
	rule := testRule(storage.StrategyBuyBoxMatch)
	offers := []spapi.CompetitorOffer{
		{SellerID: "S1", LandedPrice: 79.99, IsBuyBoxWinner: true},
		{SellerID: "S2", LandedPrice: 86.49},
		{SellerID: "S3", LandedPrice: 82.99},
	}

	calc := e.CalculateOptimalPrice(context.Background(), rule, fptr(85), offers)

	if calc.BuyBoxPrice == nil || *calc.BuyBoxPrice != 79.99 {
		t.Fatalf("BuyBoxPrice = %v, want 79.99", calc.BuyBoxPrice)
	}
	if calc.RecommendedPrice != 80.75 {
		t.Errorf("RecommendedPrice = %v, want 80.75", calc.RecommendedPrice)
	}
	if calc.PriceChange != -4.25 {
		t.Errorf("PriceChange = %v, want -4.25", calc.PriceChange)
	}
	if calc.PriceChangePct != -5.0 {
		t.Errorf("PriceChangePct = %v, want -5.0", calc.PriceChangePct)
	}
	// Exactly at the variance threshold is still within rules.
	if !calc.WithinRules {
		t.Errorf("WithinRules = false, want true at the exact 5%% boundary")
	}
	if len(calc.Warnings) == 0 {
		t.Error("expected a warning about the constrained strategy price")
	}
	if calc.BuyBoxStatus != StatusLost {
		t.Errorf("BuyBoxStatus = %s, want %s", calc.BuyBoxStatus, StatusLost)
	}
	if calc.Confidence != 100 {
		t.Errorf("Confidence = %v, want 100", calc.Confidence)
	}
}

// Scenario: no competitors, no current price, floor/ceiling strategy.
func TestCalculateOptimalPrice_MidpointStart(t *testing.T) {
	e := testEngine(nil)
	rule := testRule(storage.StrategyFloorCeiling)

	calc := e.CalculateOptimalPrice(context.Background(), rule, nil, []spapi.CompetitorOffer{})

	if calc.RecommendedPrice != 100.00 {
		t.Errorf("RecommendedPrice = %v, want 100.00", calc.RecommendedPrice)
	}
	if calc.PriceChange != 0 || calc.PriceChangePct != 0 {
		t.Errorf("PriceChange = %v / %v%%, want 0 / 0", calc.PriceChange, calc.PriceChangePct)
	}
	if !calc.WithinRules {
		t.Error("WithinRules = false, want true")
	}
	if calc.BuyBoxStatus != StatusUnknown {
		t.Errorf("BuyBoxStatus = %s, want %s", calc.BuyBoxStatus, StatusUnknown)
	}
	// -20 for competitor count, -15 for unknown status.
	if calc.Confidence != 65 {
		t.Errorf("Confidence = %v, want 65", calc.Confidence)
	}
}

func TestCalculateOptimalPrice_VarianceViolationFlagged(t *testing.T) {
	e := testEngine(nil)
	rule := testRule(storage.StrategyBuyBoxMatch)
	rule.MinPrice = 110
	offers := []spapi.CompetitorOffer{
		{SellerID: "S1", LandedPrice: 80.00, IsBuyBoxWinner: true},
	}

	calc := e.CalculateOptimalPrice(context.Background(), rule, fptr(100), offers)

	// Min price overrides the variance band; the resulting 10% move is
	// outside the rule's 5% tolerance.
	if calc.RecommendedPrice != 110 {
		t.Fatalf("RecommendedPrice = %v, want 110", calc.RecommendedPrice)
	}
	if calc.WithinRules {
		t.Error("WithinRules = true, want false for a move beyond the variance limit")
	}
	if len(calc.Warnings) == 0 {
		t.Error("expected warnings for the variance violation")
	}
}

func TestCalculateOptimalPrice_NeverPanics(t *testing.T) {
	rule := testRule(storage.StrategyBuyBoxMatch)

	t.Run("panicking source", func(t *testing.T) {
		e := testEngine(&stubSource{panics: true})
		calc := e.CalculateOptimalPrice(context.Background(), rule, fptr(85), nil)
		if calc == nil {
			t.Fatal("expected a calculation, got nil")
		}
		if calc.Confidence != 0 {
			t.Errorf("Confidence = %v, want 0", calc.Confidence)
		}
		if calc.WithinRules {
			t.Error("WithinRules = true, want false")
		}
		if calc.RecommendedPrice != 85 {
			t.Errorf("RecommendedPrice = %v, want current price fallback 85", calc.RecommendedPrice)
		}
		if calc.Reasoning == "" || len(calc.Warnings) == 0 {
			t.Error("degraded calculation must carry reasoning and warnings")
		}
	})

	t.Run("unknown strategy", func(t *testing.T) {
		e := testEngine(nil)
		bad := testRule("teleport_pricing")
		calc := e.CalculateOptimalPrice(context.Background(), bad, nil, []spapi.CompetitorOffer{})
		if calc.Confidence != 0 || calc.WithinRules {
			t.Errorf("expected degraded calculation, got confidence=%v within=%v", calc.Confidence, calc.WithinRules)
		}
		if calc.RecommendedPrice != bad.MinPrice {
			t.Errorf("RecommendedPrice = %v, want min price fallback %v", calc.RecommendedPrice, bad.MinPrice)
		}
	})
}

func TestCalculateOptimalPrice_FetchesWhenOffersNil(t *testing.T) {
	src := &stubSource{
		offers: []spapi.CompetitorOffer{
			{SellerID: "S1", LandedPrice: 90.00, IsBuyBoxWinner: true},
		},
		meta: spapi.PricingMetadata{CompetitorsCount: 1},
	}
	e := testEngine(src)
	rule := testRule(storage.StrategyBuyBoxMatch)

	calc := e.CalculateOptimalPrice(context.Background(), rule, fptr(92), nil)

	if len(calc.Competitors) != 1 {
		t.Fatalf("Competitors = %d, want 1 fetched offer", len(calc.Competitors))
	}
	if calc.RecommendedPrice != 89.99 {
		t.Errorf("RecommendedPrice = %v, want 89.99", calc.RecommendedPrice)
	}
}

func TestCalculateOptimalPrice_FetchErrorDegrades(t *testing.T) {
	src := &stubSource{meta: spapi.PricingMetadata{Error: "pricing API returned status 500"}}
	e := testEngine(src)
	rule := testRule(storage.StrategyBuyBoxMatch)

	calc := e.CalculateOptimalPrice(context.Background(), rule, nil, nil)

	if calc.RecommendedPrice != rule.MinPrice {
		t.Errorf("RecommendedPrice = %v, want min price %v with no data", calc.RecommendedPrice, rule.MinPrice)
	}
	found := false
	for _, w := range calc.Warnings {
		if strings.Contains(w, "competitor fetch") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a competitor fetch warning, got %v", calc.Warnings)
	}
}
