package pricing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/spapi"
	"github.com/ecomsimply/repricer/internal/storage"
)

// CompetitiveSource supplies competitor offers for a SKU. Satisfied by
// *spapi.Client; tests substitute a stub.
type CompetitiveSource interface {
	GetCompetitivePricing(ctx context.Context, sku, marketplaceID, itemCondition string) ([]spapi.CompetitorOffer, spapi.PricingMetadata)
}

// Options is the engine's immutable configuration.
type Options struct {
	// SellerID identifies our own offers among competitors. Required.
	SellerID string
	// RiskThresholdPct: Buy Box gap at or under this percentage is RISK
	// rather than LOST.
	RiskThresholdPct float64
	// UndercutAmount subtracted from the Buy Box price by BUYBOX_MATCH.
	UndercutAmount float64
	// MinCompetitors below which confidence is penalized.
	MinCompetitors int
	// CostRatio estimates cost as a fraction of min_price when a rule
	// carries no explicit cost price.
	CostRatio float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SellerID:         cfg.Amazon.SellerID,
		RiskThresholdPct: cfg.Pricing.RiskThresholdPct,
		UndercutAmount:   cfg.Pricing.UndercutAmount,
		MinCompetitors:   cfg.Pricing.MinCompetitors,
		CostRatio:        cfg.Pricing.CostRatio,
	}
}

// Engine computes recommended prices for pricing rules. Construct one per
// process and pass it to call sites; there is no package-level instance.
type Engine struct {
	opts   Options
	source CompetitiveSource
	logger *logger.Logger
}

func NewEngine(opts Options, source CompetitiveSource, log *logger.Logger) *Engine {
	return &Engine{opts: opts, source: source, logger: log}
}

// AnalyzeBuyBox scans the competitor list once, locating the Buy Box
// winner and our own offer, and derives the Buy Box status.
func (e *Engine) AnalyzeBuyBox(offers []spapi.CompetitorOffer, currentPrice *float64) BuyBoxAnalysis {
	analysis := BuyBoxAnalysis{
		Status:           StatusUnknown,
		CompetitorsCount: len(offers),
	}

	var sum float64
	for _, o := range offers {
		if o.IsBuyBoxWinner && analysis.BuyBoxPrice == nil {
			price := o.LandedPrice
			analysis.BuyBoxPrice = &price
			analysis.BuyBoxWinner = o.SellerID
		}
		if o.SellerID == e.opts.SellerID && analysis.OurOffer == nil {
			offer := o
			analysis.OurOffer = &offer
		}
		if analysis.MinCompetitorPrice == nil || o.LandedPrice < *analysis.MinCompetitorPrice {
			price := o.LandedPrice
			analysis.MinCompetitorPrice = &price
		}
		sum += o.LandedPrice
	}
	if len(offers) > 0 {
		avg := sum / float64(len(offers))
		analysis.AvgCompetitorPrice = &avg
	}

	switch {
	case analysis.OurOffer != nil && analysis.OurOffer.IsBuyBoxWinner:
		analysis.Status = StatusWon
	case analysis.BuyBoxPrice != nil && currentPrice != nil && *analysis.BuyBoxPrice > 0:
		gapPct := math.Abs(*currentPrice-*analysis.BuyBoxPrice) / *analysis.BuyBoxPrice * 100
		if gapPct <= e.opts.RiskThresholdPct {
			analysis.Status = StatusRisk
		} else {
			analysis.Status = StatusLost
		}
	}
	return analysis
}

func (e *Engine) buyBoxMatchPrice(rule *storage.PricingRule, analysis BuyBoxAnalysis) (float64, string) {
	if analysis.BuyBoxPrice == nil {
		if analysis.MinCompetitorPrice != nil {
			return *analysis.MinCompetitorPrice,
				fmt.Sprintf("no Buy Box price known; matching lowest competitor landed price %.2f", *analysis.MinCompetitorPrice)
		}
		return rule.MinPrice, "no competitor data; holding at rule minimum"
	}
	target := *analysis.BuyBoxPrice - e.opts.UndercutAmount
	return target, fmt.Sprintf("undercutting Buy Box price %.2f held by %s", *analysis.BuyBoxPrice, analysis.BuyBoxWinner)
}

func (e *Engine) marginTargetPrice(rule *storage.PricingRule, currentPrice *float64) (float64, string) {
	if rule.MarginTarget == nil {
		// Construction rejects this, but the engine stays defensive:
		// keep the price rather than fail the pipeline.
		fallback := rule.MinPrice
		if currentPrice != nil {
			fallback = *currentPrice
		}
		return fallback, "margin target not defined; keeping price unchanged"
	}

	cost := rule.MinPrice * e.opts.CostRatio
	costNote := fmt.Sprintf("estimated cost %.2f (%.0f%% of min price)", cost, e.opts.CostRatio*100)
	if rule.CostPrice != nil {
		cost = *rule.CostPrice
		costNote = fmt.Sprintf("cost price %.2f", cost)
	}

	margin := *rule.MarginTarget
	if margin >= 100 {
		return rule.MaxPrice, "margin target of 100% or more is unattainable; capping at rule maximum"
	}
	target := cost / (1 - margin/100)
	return target, fmt.Sprintf("targeting %.0f%% margin over %s", margin, costNote)
}

func floorCeilingPrice(rule *storage.PricingRule, currentPrice *float64) (float64, string) {
	if currentPrice == nil {
		mid := (rule.MinPrice + rule.MaxPrice) / 2
		return mid, fmt.Sprintf("no live price; starting at band midpoint %.2f", mid)
	}
	switch {
	case *currentPrice < rule.MinPrice:
		return rule.MinPrice, fmt.Sprintf("current price %.2f below floor; raising to %.2f", *currentPrice, rule.MinPrice)
	case *currentPrice > rule.MaxPrice:
		return rule.MaxPrice, fmt.Sprintf("current price %.2f above ceiling; lowering to %.2f", *currentPrice, rule.MaxPrice)
	default:
		return *currentPrice, "current price already within band; keeping unchanged"
	}
}

// ApplyConstraints clamps a raw strategy price to the rule's hard bounds,
// in order: min/max, MAP floor, variance band around the current price.
// The result is rounded half-up to 2 decimals; each applied constraint
// appends a note.
func ApplyConstraints(price float64, rule *storage.PricingRule, currentPrice *float64) (float64, []string) {
	final := price
	var notes []string

	if final < rule.MinPrice {
		final = rule.MinPrice
		notes = append(notes, fmt.Sprintf("raised to min price %.2f", rule.MinPrice))
	}
	if final > rule.MaxPrice {
		final = rule.MaxPrice
		notes = append(notes, fmt.Sprintf("lowered to max price %.2f", rule.MaxPrice))
	}

	if rule.MAPPrice != nil && final < *rule.MAPPrice {
		final = *rule.MAPPrice
		notes = append(notes, fmt.Sprintf("raised to MAP price %.2f", *rule.MAPPrice))
	}

	if currentPrice != nil {
		maxChange := *currentPrice * rule.VariancePct / 100
		low, high := *currentPrice-maxChange, *currentPrice+maxChange
		if final < low {
			final = low
			notes = append(notes, fmt.Sprintf("limited to variance band minimum %.2f", low))
		} else if final > high {
			final = high
			notes = append(notes, fmt.Sprintf("limited to variance band maximum %.2f", high))
		}

		// The variance band can conflict with the absolute bounds when the
		// current price sits far outside them; the bounds always win, and
		// the violated variance surfaces through the within-rules flag.
		if final < rule.MinPrice {
			final = rule.MinPrice
			notes = append(notes, fmt.Sprintf("variance band overridden by min price %.2f", rule.MinPrice))
		}
		if final > rule.MaxPrice {
			final = rule.MaxPrice
			notes = append(notes, fmt.Sprintf("variance band overridden by max price %.2f", rule.MaxPrice))
		}
		if rule.MAPPrice != nil && final < *rule.MAPPrice {
			final = *rule.MAPPrice
			notes = append(notes, fmt.Sprintf("variance band overridden by MAP price %.2f", *rule.MAPPrice))
		}
	}

	return round2(final), notes
}

// round2 rounds half away from zero to 2 decimals. Banker's rounding is
// deliberately not used: ties go to the higher cent.
func round2(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}
	return math.Floor(v*100+0.5) / 100
}

func (e *Engine) scoreConfidence(final float64, rule *storage.PricingRule, analysis BuyBoxAnalysis) float64 {
	score := 100.0
	if analysis.CompetitorsCount < e.opts.MinCompetitors {
		score -= 20
	}
	if analysis.Status == StatusUnknown {
		score -= 15
	}
	if analysis.BuyBoxPrice != nil && *analysis.BuyBoxPrice > 0 {
		if math.Abs(final-*analysis.BuyBoxPrice) / *analysis.BuyBoxPrice * 100 > 10 {
			score -= 10
		}
	}
	if final == rule.MinPrice || final == rule.MaxPrice {
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	return score
}

// CalculateOptimalPrice runs the full decision pipeline for one rule:
// fetch competitors (unless supplied), analyze the Buy Box, compute the
// strategy target, clamp, flag variance, score confidence. It never
// returns an error: any failure degrades into a calculation with zero
// confidence and the problem recorded in Reasoning and Warnings.
func (e *Engine) CalculateOptimalPrice(ctx context.Context, rule *storage.PricingRule, currentPrice *float64, offers []spapi.CompetitorOffer) (calc *Calculation) {
	start := time.Now()
	calc = &Calculation{
		SKU:           rule.SKU,
		MarketplaceID: rule.MarketplaceID,
		CurrentPrice:  currentPrice,
		BuyBoxStatus:  StatusUnknown,
		CalculatedAt:  start.UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("pricing pipeline failed: %v", r)
			e.logger.Error("pricing pipeline panic", "sku", rule.SKU, "panic", fmt.Sprint(r))
			fallback := rule.MinPrice
			if currentPrice != nil {
				fallback = *currentPrice
			}
			calc.RecommendedPrice = fallback
			calc.PriceChange = 0
			calc.PriceChangePct = 0
			calc.WithinRules = false
			calc.Confidence = 0
			calc.Reasoning = msg
			calc.Warnings = append(calc.Warnings, msg)
		}
		calc.CalculationDurationMs = time.Since(start).Milliseconds()
	}()

	if offers == nil {
		fetched, meta := e.source.GetCompetitivePricing(ctx, rule.SKU, rule.MarketplaceID, "New")
		offers = fetched
		if meta.Error != "" {
			calc.Warnings = append(calc.Warnings, "competitor fetch: "+meta.Error)
		}
	}
	calc.Competitors = offers

	analysis := e.AnalyzeBuyBox(offers, currentPrice)
	calc.BuyBoxStatus = analysis.Status
	calc.BuyBoxPrice = analysis.BuyBoxPrice
	calc.BuyBoxWinner = analysis.BuyBoxWinner
	calc.OurOffer = analysis.OurOffer

	var raw float64
	var reasoning string
	switch rule.Strategy {
	case storage.StrategyBuyBoxMatch:
		raw, reasoning = e.buyBoxMatchPrice(rule, analysis)
	case storage.StrategyMarginTarget:
		raw, reasoning = e.marginTargetPrice(rule, currentPrice)
	case storage.StrategyFloorCeiling:
		raw, reasoning = floorCeilingPrice(rule, currentPrice)
	default:
		panic(fmt.Sprintf("unknown strategy %q", rule.Strategy))
	}

	final, notes := ApplyConstraints(raw, rule, currentPrice)
	calc.RecommendedPrice = final
	calc.WithinRules = true

	if final != round2(raw) {
		calc.Warnings = append(calc.Warnings,
			fmt.Sprintf("strategy suggested %.2f, constrained to %.2f (%s)", raw, final, strings.Join(notes, "; ")))
	}

	// Single source of truth for the variance check: derived once from
	// the clamped final price and reused for both the flag and warning.
	if currentPrice != nil && *currentPrice > 0 {
		calc.PriceChange = round2(final - *currentPrice)
		calc.PriceChangePct = round2((final - *currentPrice) / *currentPrice * 100)
		if math.Abs(calc.PriceChangePct) > rule.VariancePct {
			calc.WithinRules = false
			calc.Warnings = append(calc.Warnings,
				fmt.Sprintf("price change of %.2f%% exceeds allowed variance of %.2f%%", calc.PriceChangePct, rule.VariancePct))
		}
	}

	calc.Confidence = e.scoreConfidence(final, rule, analysis)
	calc.Reasoning = reasoning
	return calc
}
