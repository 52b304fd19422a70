package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/pricing"
	"github.com/ecomsimply/repricer/internal/spapi"
	"github.com/ecomsimply/repricer/internal/storage"
	"github.com/ecomsimply/repricer/internal/telegram"
)

// Publisher pushes a price to the marketplace. Satisfied by *spapi.Client.
type Publisher interface {
	PublishPrice(ctx context.Context, sku, marketplaceID string, newPrice float64, method string) spapi.PublishResult
}

// Result reports the outcome of applying one rule.
type Result struct {
	SKU         string               `json:"sku"`
	RuleID      string               `json:"rule_id"`
	Skipped     bool                 `json:"skipped"`
	SkipReason  string               `json:"skip_reason,omitempty"`
	Calculation *pricing.Calculation `json:"calculation,omitempty"`
	Publication *spapi.PublishResult `json:"publication,omitempty"`
	HistoryID   string               `json:"history_id,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Applier runs one full decision cycle for a rule: fetch competitors,
// calculate, optionally publish, persist the audit record, bump the rule.
type Applier struct {
	engine    *pricing.Engine
	source    pricing.CompetitiveSource
	publisher Publisher
	repo      *storage.Repository
	notifier  *telegram.Notifier
	config    *config.Config
	logger    *logger.Logger
}

func NewApplier(
	engine *pricing.Engine,
	source pricing.CompetitiveSource,
	publisher Publisher,
	repo *storage.Repository,
	notifier *telegram.Notifier,
	cfg *config.Config,
	log *logger.Logger,
) *Applier {
	return &Applier{
		engine:    engine,
		source:    source,
		publisher: publisher,
		repo:      repo,
		notifier:  notifier,
		config:    cfg,
		logger:    log,
	}
}

// Apply processes one rule end to end. Panics are recovered so one bad SKU
// never kills a batch or a scheduler cycle; all failures land in the
// returned Result.
func (a *Applier) Apply(ctx context.Context, rule *storage.PricingRule, publish bool) (result *Result) {
	result = &Result{SKU: rule.SKU, RuleID: rule.ID}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic applying rule", "sku", rule.SKU, "panic", fmt.Sprint(r))
			result.Error = fmt.Sprintf("apply panic: %v", r)
		}
	}()

	if rule.Status != storage.RuleStatusActive {
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("rule status is %s", rule.Status)
		return result
	}

	offers, meta := a.source.GetCompetitivePricing(ctx, rule.SKU, rule.MarketplaceID, "New")
	if meta.Error != "" {
		a.logger.Warn("competitor fetch degraded", "sku", rule.SKU, "error", meta.Error)
	}

	currentPrice := a.resolveCurrentPrice(rule, offers)

	calc := a.engine.CalculateOptimalPrice(ctx, rule, currentPrice, offers)
	result.Calculation = calc

	var pub *spapi.PublishResult
	if publish {
		if !calc.WithinRules {
			a.logger.Info("publication skipped: decision outside rules",
				"sku", rule.SKU, "recommended", calc.RecommendedPrice)
		} else if calc.Confidence == 0 {
			a.logger.Info("publication skipped: zero confidence", "sku", rule.SKU)
		} else {
			p := a.publisher.PublishPrice(ctx, rule.SKU, rule.MarketplaceID,
				calc.RecommendedPrice, a.config.Pricing.PublishMethod)
			pub = &p
			result.Publication = pub
			if !p.Success {
				a.logger.Error("price publication failed", "sku", rule.SKU, "error", p.Error)
				a.notifier.NotifyError("publish "+rule.SKU, errors.New(p.Error))
			}
		}
	}

	entry := pricing.NewHistoryEntry(rule.UserID, rule, calc, pub)
	if pub != nil && pub.Success {
		now := time.Now().UTC()
		entry.EffectiveAt = &now
	}
	if err := a.repo.SaveHistory(entry); err != nil {
		a.logger.Error("save pricing history", "sku", rule.SKU, "error", err)
		result.Error = fmt.Sprintf("save history: %v", err)
	} else {
		result.HistoryID = entry.ID
	}

	if err := a.repo.MarkRuleApplied(rule); err != nil {
		// A concurrent writer won the version race; the decision and its
		// audit record stand, only the bookkeeping bump is lost.
		a.logger.Warn("mark rule applied", "sku", rule.SKU, "error", err)
	}

	a.notify(rule, calc, pub)
	return result
}

// resolveCurrentPrice prefers the last published price from history and
// falls back to our own live offer among the fetched competitors. Nil
// when the product has no known live listing yet.
func (a *Applier) resolveCurrentPrice(rule *storage.PricingRule, offers []spapi.CompetitorOffer) *float64 {
	last, err := a.repo.LatestHistoryForSKU(rule.UserID, rule.SKU, rule.MarketplaceID)
	if err != nil {
		a.logger.Warn("load latest history", "sku", rule.SKU, "error", err)
	}
	if last != nil && last.PublicationSuccess {
		price := last.NewPrice
		return &price
	}
	for _, o := range offers {
		if o.SellerID == a.config.Amazon.SellerID {
			price := o.LandedPrice
			return &price
		}
	}
	return nil
}

func (a *Applier) notify(rule *storage.PricingRule, calc *pricing.Calculation, pub *spapi.PublishResult) {
	if pub != nil && pub.Success && calc.CurrentPrice != nil && calc.PriceChange != 0 {
		a.notifier.NotifyPriceChange(rule.SKU, *calc.CurrentPrice, calc.RecommendedPrice,
			calc.Confidence, calc.BuyBoxStatus)
	}
	if calc.BuyBoxStatus == pricing.StatusLost && calc.BuyBoxPrice != nil {
		a.notifier.NotifyBuyBoxLost(rule.SKU, *calc.BuyBoxPrice, calc.BuyBoxWinner)
	}
}
