package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pricing strategies.
const (
	StrategyBuyBoxMatch  = "buybox_match"
	StrategyMarginTarget = "margin_target"
	StrategyFloorCeiling = "floor_ceiling"
)

// Rule statuses.
const (
	RuleStatusActive   = "active"
	RuleStatusInactive = "inactive"
	RuleStatusPaused   = "paused"
)

// Batch statuses.
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

var ErrInvalidRule = errors.New("invalid pricing rule")

// PricingRule is a user's pricing policy for one (SKU, marketplace) pair.
// At most one rule may exist per (user_id, sku, marketplace_id).
type PricingRule struct {
	ID        string    `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID        string `gorm:"index;not null;uniqueIndex:idx_rule_owner_sku_marketplace" json:"user_id"`
	SKU           string `gorm:"not null;uniqueIndex:idx_rule_owner_sku_marketplace" json:"sku"`
	MarketplaceID string `gorm:"not null;uniqueIndex:idx_rule_owner_sku_marketplace" json:"marketplace_id"`

	MinPrice    float64  `gorm:"not null" json:"min_price"`
	MaxPrice    float64  `gorm:"not null" json:"max_price"`
	VariancePct float64  `gorm:"not null" json:"variance_pct"`
	MAPPrice    *float64 `gorm:"column:map_price" json:"map_price,omitempty"`
	CostPrice   *float64 `json:"cost_price,omitempty"`

	Strategy     string   `gorm:"not null" json:"strategy"`
	MarginTarget *float64 `json:"margin_target,omitempty"`

	Status string `gorm:"not null;default:'active'" json:"status"`

	// Version is an optimistic concurrency counter, bumped on every
	// update or apply cycle.
	Version       int64      `gorm:"not null;default:1" json:"version"`
	LastAppliedAt *time.Time `json:"last_applied_at,omitempty"`
}

func (r *PricingRule) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RuleStatusActive
	}
	if r.Version == 0 {
		r.Version = 1
	}
	return r.Validate()
}

// Validate enforces the construction invariants. Violations are hard
// errors: a rule that fails here must never be persisted or priced.
func (r *PricingRule) Validate() error {
	if r.UserID == "" || r.SKU == "" || r.MarketplaceID == "" {
		return fmt.Errorf("%w: user_id, sku and marketplace_id are required", ErrInvalidRule)
	}
	if r.MinPrice <= 0 || r.MaxPrice <= 0 {
		return fmt.Errorf("%w: min_price and max_price must be > 0", ErrInvalidRule)
	}
	if r.MaxPrice <= r.MinPrice {
		return fmt.Errorf("%w: max_price (%.2f) must be greater than min_price (%.2f)",
			ErrInvalidRule, r.MaxPrice, r.MinPrice)
	}
	if r.VariancePct < 0 || r.VariancePct > 100 {
		return fmt.Errorf("%w: variance_pct must be within [0, 100]", ErrInvalidRule)
	}
	if r.MAPPrice != nil && *r.MAPPrice <= 0 {
		return fmt.Errorf("%w: map_price must be > 0 when set", ErrInvalidRule)
	}
	if r.CostPrice != nil && *r.CostPrice <= 0 {
		return fmt.Errorf("%w: cost_price must be > 0 when set", ErrInvalidRule)
	}
	switch r.Strategy {
	case StrategyBuyBoxMatch, StrategyFloorCeiling:
	case StrategyMarginTarget:
		if r.MarginTarget == nil {
			return fmt.Errorf("%w: margin_target is required for strategy %s", ErrInvalidRule, r.Strategy)
		}
		if *r.MarginTarget < 0 || *r.MarginTarget > 100 {
			return fmt.Errorf("%w: margin_target must be within [0, 100]", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidRule, r.Strategy)
	}
	switch r.Status {
	case RuleStatusActive, RuleStatusInactive, RuleStatusPaused:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRule, r.Status)
	}
	return nil
}

// PricingHistory is an append-only audit record of one applied (or
// attempted) pricing decision. Never updated after creation.
type PricingHistory struct {
	ID        string    `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	UserID        string `gorm:"index;not null" json:"user_id"`
	RuleID        string `gorm:"index;not null" json:"rule_id"`
	SKU           string `gorm:"index;not null" json:"sku"`
	MarketplaceID string `gorm:"not null" json:"marketplace_id"`

	OldPrice       *float64 `json:"old_price,omitempty"`
	NewPrice       float64  `json:"new_price"`
	PriceChange    float64  `json:"price_change"`
	PriceChangePct float64  `json:"price_change_pct"`

	BuyBoxPrice        *float64 `json:"buybox_price,omitempty"`
	CompetitorsCount   int      `json:"competitors_count"`
	BuyBoxStatusBefore string   `json:"buybox_status_before"`
	BuyBoxStatusAfter  string   `json:"buybox_status_after"`

	PublicationSuccess  bool   `json:"publication_success"`
	PublicationMethod   string `json:"publication_method"`
	MarketplaceResponse string `gorm:"type:text" json:"marketplace_response"`

	Reasoning  string  `gorm:"type:text" json:"reasoning"`
	Confidence float64 `json:"confidence"`
	Warnings   string  `gorm:"type:text" json:"warnings"`
	WithinRules bool   `json:"within_rules"`

	CalculationDurationMs int64 `json:"calculation_duration_ms"`
	PublishDurationMs     int64 `json:"publish_duration_ms"`

	EffectiveAt *time.Time `json:"effective_at,omitempty"`
}

func (h *PricingHistory) BeforeCreate(_ *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}

// PricingBatch tracks bulk application of rules across many SKUs.
type PricingBatch struct {
	ID        string    `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID        string `gorm:"index;not null" json:"user_id"`
	MarketplaceID string `gorm:"not null" json:"marketplace_id"`

	SKUs      string `gorm:"type:text" json:"skus"` // JSON array of target SKUs
	TotalSKUs int    `json:"total_skus"`

	ProcessedSKUs  int `json:"processed_skus"`
	SuccessfulSKUs int `json:"successful_skus"`
	FailedSKUs     int `json:"failed_skus"`
	SkippedSKUs    int `json:"skipped_skus"`

	Status      string  `gorm:"not null;default:'pending'" json:"status"`
	ProgressPct float64 `json:"progress_pct"`

	Results string `gorm:"type:text" json:"results"` // JSON per-SKU results
	Errors  string `gorm:"type:text" json:"errors"`  // JSON per-SKU errors

	DurationSeconds float64    `json:"duration_seconds"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (b *PricingBatch) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BatchStatusPending
	}
	return nil
}
