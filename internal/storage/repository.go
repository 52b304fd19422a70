package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrDuplicateRule   = errors.New("a rule already exists for this (user, sku, marketplace)")
	ErrRuleNotFound    = errors.New("pricing rule not found")
	ErrVersionConflict = errors.New("rule was modified concurrently")
	ErrBatchNotFound   = errors.New("pricing batch not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Rules

func (r *Repository) CreateRule(rule *PricingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	var count int64
	err := r.db.Model(&PricingRule{}).
		Where("user_id = ? AND sku = ? AND marketplace_id = ?", rule.UserID, rule.SKU, rule.MarketplaceID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateRule
	}

	return r.db.Create(rule).Error
}

func (r *Repository) GetRule(id string) (*PricingRule, error) {
	var rule PricingRule
	err := r.db.Where("id = ?", id).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *Repository) GetRuleBySKU(userID, sku, marketplaceID string) (*PricingRule, error) {
	var rule PricingRule
	err := r.db.Where("user_id = ? AND sku = ? AND marketplace_id = ?", userID, sku, marketplaceID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns rules filtered by the non-empty arguments.
func (r *Repository) ListRules(userID, status, marketplaceID string) ([]PricingRule, error) {
	q := r.db.Order("created_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if marketplaceID != "" {
		q = q.Where("marketplace_id = ?", marketplaceID)
	}
	var rules []PricingRule
	err := q.Find(&rules).Error
	return rules, err
}

func (r *Repository) ListActiveRules() ([]PricingRule, error) {
	return r.ListRules("", RuleStatusActive, "")
}

// UpdateRule persists a mutated rule under an optimistic version check:
// the write succeeds only if the stored version still matches the one the
// caller read, and bumps the version on success.
func (r *Repository) UpdateRule(rule *PricingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	expected := rule.Version
	rule.Version = expected + 1

	res := r.db.Model(&PricingRule{}).
		Where("id = ? AND version = ?", rule.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(rule)
	if res.Error != nil {
		rule.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		rule.Version = expected
		return ErrVersionConflict
	}
	return nil
}

func (r *Repository) DeleteRule(id string) error {
	res := r.db.Where("id = ?", id).Delete(&PricingRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// MarkRuleApplied bumps LastAppliedAt after a successful apply cycle,
// under the same optimistic version check as UpdateRule.
func (r *Repository) MarkRuleApplied(rule *PricingRule) error {
	now := time.Now().UTC()
	expected := rule.Version

	res := r.db.Model(&PricingRule{}).
		Where("id = ? AND version = ?", rule.ID, expected).
		Updates(map[string]any{
			"last_applied_at": now,
			"version":         expected + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	rule.Version = expected + 1
	rule.LastAppliedAt = &now
	return nil
}

// History

func (r *Repository) SaveHistory(h *PricingHistory) error {
	return r.db.Create(h).Error
}

func (r *Repository) ListHistory(userID, sku string, limit int) ([]PricingHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.Order("created_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if sku != "" {
		q = q.Where("sku = ?", sku)
	}
	var entries []PricingHistory
	err := q.Find(&entries).Error
	return entries, err
}

func (r *Repository) LatestHistoryForSKU(userID, sku, marketplaceID string) (*PricingHistory, error) {
	var h PricingHistory
	err := r.db.Where("user_id = ? AND sku = ? AND marketplace_id = ?", userID, sku, marketplaceID).
		Order("created_at DESC").First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

type HistoryStats struct {
	TotalDecisions int64   `json:"total_decisions"`
	AvgConfidence  float64 `json:"avg_confidence"`
	PublishedCount int64   `json:"published_count"`
	BuyBoxWonCount int64   `json:"buybox_won_count"`
}

func (r *Repository) GetHistoryStats(userID string) (*HistoryStats, error) {
	stats := &HistoryStats{}
	base := func() *gorm.DB {
		q := r.db.Model(&PricingHistory{})
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		return q
	}

	if err := base().Count(&stats.TotalDecisions).Error; err != nil {
		return nil, err
	}
	if err := base().Select("COALESCE(AVG(confidence), 0)").Scan(&stats.AvgConfidence).Error; err != nil {
		return nil, err
	}
	if err := base().Where("publication_success = ?", true).Count(&stats.PublishedCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("buy_box_status_after = ?", "WON").Count(&stats.BuyBoxWonCount).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// PurgeHistoryBefore deletes audit records older than the cutoff and
// returns how many were removed.
func (r *Repository) PurgeHistoryBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&PricingHistory{})
	return res.RowsAffected, res.Error
}

// Batches

func (r *Repository) CreateBatch(b *PricingBatch) error {
	return r.db.Create(b).Error
}

func (r *Repository) GetBatch(id string) (*PricingBatch, error) {
	var b PricingBatch
	err := r.db.Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) UpdateBatch(b *PricingBatch) error {
	return r.db.Save(b).Error
}
