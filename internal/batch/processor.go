package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecomsimply/repricer/internal/apply"
	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/storage"
)

// Processor runs bulk repricing jobs: one rule lookup + apply per SKU,
// with incremental progress persisted after every SKU so the batch can be
// observed while it runs.
type Processor struct {
	applier *apply.Applier
	repo    *storage.Repository
	config  *config.Config
	logger  *logger.Logger
}

func NewProcessor(applier *apply.Applier, repo *storage.Repository, cfg *config.Config, log *logger.Logger) *Processor {
	return &Processor{applier: applier, repo: repo, config: cfg, logger: log}
}

// NewBatch builds and persists a pending batch for a SKU list.
func (p *Processor) NewBatch(userID, marketplaceID string, skus []string) (*storage.PricingBatch, error) {
	if len(skus) == 0 {
		return nil, fmt.Errorf("batch requires at least one SKU")
	}
	data, err := json.Marshal(skus)
	if err != nil {
		return nil, fmt.Errorf("marshal sku list: %w", err)
	}
	b := &storage.PricingBatch{
		UserID:        userID,
		MarketplaceID: marketplaceID,
		SKUs:          string(data),
		TotalSKUs:     len(skus),
		Status:        storage.BatchStatusPending,
	}
	if err := p.repo.CreateBatch(b); err != nil {
		return nil, err
	}
	return b, nil
}

type skuError struct {
	SKU   string `json:"sku"`
	Error string `json:"error"`
}

// Run processes the batch sequentially. SKUs without an active rule are
// counted skipped; a single failing SKU never aborts the batch.
func (p *Processor) Run(ctx context.Context, b *storage.PricingBatch) {
	start := time.Now()
	b.Status = storage.BatchStatusProcessing
	if err := p.repo.UpdateBatch(b); err != nil {
		p.logger.Error("update batch", "batch_id", b.ID, "error", err)
	}

	var skus []string
	if err := json.Unmarshal([]byte(b.SKUs), &skus); err != nil {
		p.finish(b, start, storage.BatchStatusFailed, nil, []skuError{{Error: "invalid sku list: " + err.Error()}})
		return
	}

	results := make([]*apply.Result, 0, len(skus))
	var errs []skuError

	for _, sku := range skus {
		if ctx.Err() != nil {
			p.logger.Warn("batch cancelled", "batch_id", b.ID, "processed", b.ProcessedSKUs)
			p.finish(b, start, storage.BatchStatusFailed, results, append(errs, skuError{Error: "batch cancelled"}))
			return
		}

		rule, err := p.repo.GetRuleBySKU(b.UserID, sku, b.MarketplaceID)
		switch {
		case errors.Is(err, storage.ErrRuleNotFound):
			b.SkippedSKUs++
			errs = append(errs, skuError{SKU: sku, Error: "no pricing rule"})
		case err != nil:
			b.FailedSKUs++
			errs = append(errs, skuError{SKU: sku, Error: err.Error()})
		default:
			res := p.applier.Apply(ctx, rule, p.config.Pricing.AutoPublish)
			results = append(results, res)
			switch {
			case res.Skipped:
				b.SkippedSKUs++
			case res.Error != "":
				b.FailedSKUs++
				errs = append(errs, skuError{SKU: sku, Error: res.Error})
			default:
				b.SuccessfulSKUs++
			}
		}

		b.ProcessedSKUs++
		b.ProgressPct = float64(b.ProcessedSKUs) / float64(b.TotalSKUs) * 100
		p.snapshot(b, results, errs)
	}

	p.finish(b, start, storage.BatchStatusCompleted, results, errs)
	p.logger.Info("batch completed",
		"batch_id", b.ID, "total", b.TotalSKUs,
		"successful", b.SuccessfulSKUs, "failed", b.FailedSKUs, "skipped", b.SkippedSKUs)
}

func (p *Processor) snapshot(b *storage.PricingBatch, results []*apply.Result, errs []skuError) {
	if data, err := json.Marshal(results); err == nil {
		b.Results = string(data)
	}
	if data, err := json.Marshal(errs); err == nil {
		b.Errors = string(data)
	}
	if err := p.repo.UpdateBatch(b); err != nil {
		p.logger.Error("update batch progress", "batch_id", b.ID, "error", err)
	}
}

func (p *Processor) finish(b *storage.PricingBatch, start time.Time, status string, results []*apply.Result, errs []skuError) {
	now := time.Now().UTC()
	b.Status = status
	b.DurationSeconds = time.Since(start).Seconds()
	b.CompletedAt = &now
	p.snapshot(b, results, errs)
}
