// reprice applies (or dry-runs) the pricing rule of a single SKU and
// prints the resulting decision as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ecomsimply/repricer/internal/apply"
	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/pricing"
	"github.com/ecomsimply/repricer/internal/spapi"
	"github.com/ecomsimply/repricer/internal/storage"
	"github.com/ecomsimply/repricer/internal/telegram"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "data/repricer.db", "path to SQLite database")
	userID := flag.String("user", "", "rule owner user id")
	sku := flag.String("sku", "", "SKU to reprice")
	marketplaceID := flag.String("marketplace", "ATVPDKIKX0DER", "marketplace id")
	dryRun := flag.Bool("dry-run", false, "calculate only, do not publish")
	flag.Parse()

	if *userID == "" || *sku == "" {
		fmt.Fprintln(os.Stderr, "usage: reprice -user <user_id> -sku <sku> [-marketplace <id>] [-dry-run]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	rule, err := repo.GetRuleBySKU(*userID, *sku, *marketplaceID)
	if err != nil {
		log.Error("load rule", "sku", *sku, "error", err)
		os.Exit(1)
	}

	client := spapi.NewClient(cfg, log)
	engine := pricing.NewEngine(pricing.OptionsFromConfig(cfg), client, log)
	notifier := telegram.NewNotifier(cfg, log)
	applier := apply.NewApplier(engine, client, client, repo, notifier, cfg, log)

	result := applier.Apply(context.Background(), rule, !*dryRun)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Error("encode result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if result.Error != "" {
		os.Exit(1)
	}
}
