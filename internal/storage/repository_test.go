package storage

import (
	"errors"
	"testing"
	"time"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return NewRepository(db)
}

func TestCreateRuleRejectsDuplicates(t *testing.T) {
	repo := testRepo(t)

	if err := repo.CreateRule(validRule()); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	err := repo.CreateRule(validRule())
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("second create for same (user, sku, marketplace) = %v, want ErrDuplicateRule", err)
	}

	// Same SKU on a different marketplace is allowed.
	other := validRule()
	other.MarketplaceID = "A1PA6795UKMFR9"
	if err := repo.CreateRule(other); err != nil {
		t.Errorf("create on different marketplace: %v", err)
	}
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	repo := testRepo(t)

	bad := validRule()
	bad.MinPrice, bad.MaxPrice = 100, 50
	if err := repo.CreateRule(bad); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("create with max < min = %v, want ErrInvalidRule", err)
	}

	noMargin := validRule()
	noMargin.Strategy = StrategyMarginTarget
	if err := repo.CreateRule(noMargin); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("create margin strategy without target = %v, want ErrInvalidRule", err)
	}
}

func TestUpdateRuleOptimisticLocking(t *testing.T) {
	repo := testRepo(t)

	rule := validRule()
	if err := repo.CreateRule(rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	first, err := repo.GetRule(rule.ID)
	if err != nil {
		t.Fatalf("load rule: %v", err)
	}
	second, err := repo.GetRule(rule.ID)
	if err != nil {
		t.Fatalf("load rule again: %v", err)
	}

	first.MaxPrice = 200
	if err := repo.UpdateRule(first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("Version after update = %d, want 2", first.Version)
	}

	// The second reader still holds version 1; its write must lose.
	second.MaxPrice = 300
	if err := repo.UpdateRule(second); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale update = %v, want ErrVersionConflict", err)
	}

	stored, err := repo.GetRule(rule.ID)
	if err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if stored.MaxPrice != 200 {
		t.Errorf("MaxPrice = %v, want the first writer's 200", stored.MaxPrice)
	}
}

func TestMarkRuleApplied(t *testing.T) {
	repo := testRepo(t)

	rule := validRule()
	if err := repo.CreateRule(rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	if err := repo.MarkRuleApplied(rule); err != nil {
		t.Fatalf("mark applied: %v", err)
	}
	if rule.LastAppliedAt == nil {
		t.Error("LastAppliedAt not set")
	}
	if rule.Version != 2 {
		t.Errorf("Version = %d, want 2", rule.Version)
	}
}

func TestDeleteRule(t *testing.T) {
	repo := testRepo(t)

	rule := validRule()
	if err := repo.CreateRule(rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := repo.DeleteRule(rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if err := repo.DeleteRule(rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second delete = %v, want ErrRuleNotFound", err)
	}
	if _, err := repo.GetRule(rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("get after delete = %v, want ErrRuleNotFound", err)
	}
}

func TestListRulesFilters(t *testing.T) {
	repo := testRepo(t)

	active := validRule()
	if err := repo.CreateRule(active); err != nil {
		t.Fatal(err)
	}
	paused := validRule()
	paused.SKU = "SKU-2"
	paused.Status = RuleStatusPaused
	if err := repo.CreateRule(paused); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListRules("user-1", RuleStatusActive, "")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(got) != 1 || got[0].SKU != "SKU-1" {
		t.Errorf("active filter returned %d rules, want the single active one", len(got))
	}

	all, err := repo.ListRules("user-1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered list = %d rules, want 2", len(all))
	}
}

func TestPurgeHistoryBefore(t *testing.T) {
	repo := testRepo(t)

	old := &PricingHistory{
		UserID: "user-1", RuleID: "r1", SKU: "SKU-1", MarketplaceID: "M",
		NewPrice:  80,
		CreatedAt: time.Now().Add(-100 * 24 * time.Hour),
	}
	recent := &PricingHistory{
		UserID: "user-1", RuleID: "r1", SKU: "SKU-1", MarketplaceID: "M",
		NewPrice: 81,
	}
	if err := repo.SaveHistory(old); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveHistory(recent); err != nil {
		t.Fatal(err)
	}

	purged, err := repo.PurgeHistoryBefore(time.Now().Add(-90 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	remaining, err := repo.ListHistory("user-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].NewPrice != 81 {
		t.Errorf("remaining history = %+v, want only the recent entry", remaining)
	}
}

func TestGetHistoryStats(t *testing.T) {
	repo := testRepo(t)

	entries := []*PricingHistory{
		{UserID: "user-1", RuleID: "r1", SKU: "S1", MarketplaceID: "M", NewPrice: 80, Confidence: 100, PublicationSuccess: true, BuyBoxStatusAfter: "WON"},
		{UserID: "user-1", RuleID: "r1", SKU: "S1", MarketplaceID: "M", NewPrice: 81, Confidence: 60},
	}
	for _, e := range entries {
		if err := repo.SaveHistory(e); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.GetHistoryStats("user-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDecisions != 2 {
		t.Errorf("TotalDecisions = %d, want 2", stats.TotalDecisions)
	}
	if stats.AvgConfidence != 80 {
		t.Errorf("AvgConfidence = %v, want 80", stats.AvgConfidence)
	}
	if stats.PublishedCount != 1 {
		t.Errorf("PublishedCount = %d, want 1", stats.PublishedCount)
	}
	if stats.BuyBoxWonCount != 1 {
		t.Errorf("BuyBoxWonCount = %d, want 1", stats.BuyBoxWonCount)
	}
}
