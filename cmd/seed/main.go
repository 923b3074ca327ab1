package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jordanlanch/directorist-affiliate/config"
	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/payout"
	"github.com/jordanlanch/directorist-affiliate/pkg/testdata"
	"github.com/jordanlanch/directorist-affiliate/pkg/tracking"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		seed    int64
		seedCfg = testdata.DefaultSeedConfig()
		driver  string
		dsn     string
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "🌱 Populate the affiliate database with demo data",
		Long: `Registers fake affiliates and drives visits, orders and payouts through
the same services the API uses.

Examples:
  seed                               # defaults from DATABASE_DRIVER / DATABASE_URL
  seed --driver sqlite3 --dsn demo.db
  seed --affiliates 50 --seed 42`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()
			if driver != "" {
				cfg.DatabaseDriver = driver
			}
			if dsn != "" {
				cfg.DatabaseURL = dsn
			}
			return run(cmd.Context(), cfg, seed, seedCfg, quiet)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed for reproducible data")
	f.IntVar(&seedCfg.Affiliates, "affiliates", seedCfg.Affiliates, "Number of affiliate applications")
	f.IntVar(&seedCfg.MaxVisits, "max-visits", seedCfg.MaxVisits, "Maximum visits per active affiliate")
	f.Float64Var(&seedCfg.ApprovalChance, "approval-rate", seedCfg.ApprovalChance, "Share of applications approved")
	f.Float64Var(&seedCfg.OrderChance, "order-rate", seedCfg.OrderChance, "Share of visits that place an order")
	f.Float64Var(&seedCfg.CompletionChance, "completion-rate", seedCfg.CompletionChance, "Share of orders that complete")
	f.Float64Var(&seedCfg.PayoutChance, "payout-rate", seedCfg.PayoutChance, "Share of affiliates that request a payout")
	f.StringVar(&driver, "driver", "", "Database driver override (postgres, sqlite3)")
	f.StringVar(&dsn, "dsn", "", "Database URL override")
	f.BoolVar(&quiet, "quiet", true, "Do not log domain events")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, seed int64, seedCfg testdata.SeedConfig, quiet bool) error {
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	var db *database.Client
	var err error
	if cfg.DatabaseDriver == "sqlite3" {
		db, err = database.NewSQLiteClient(cfg.DatabaseURL)
	} else {
		db, err = database.NewClient(cfg.DatabaseURL)
	}
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// No notifier: seeding must not mail anyone
	var pub events.Publisher = events.Discard{}
	if !quiet {
		bus := events.NewBus(appLogger)
		bus.SubscribeFunc(func(_ context.Context, e events.Event) error {
			appLogger.Debug("event", "type", string(e.Type))
			return nil
		})
		pub = bus
	}

	seeder := &testdata.Seeder{
		Affiliates: affiliate.NewService(db, pub, affiliate.Config{
			SiteURL:       cfg.SiteURL,
			ReferralParam: cfg.Tracking.ReferralParam,
			PhoneRegion:   cfg.PhoneRegion,
		}, appLogger),
		Tracking: tracking.NewService(db, nil, pub, tracking.Config{
			Param:            cfg.Tracking.ReferralParam,
			DuplicateWindow:  cfg.Tracking.DuplicateWindow,
			RateLimitPerHour: cfg.Tracking.RateLimitPerHour,
			TokenSecret:      cfg.JWTSecret,
		}, appLogger),
		Conversions: conversion.NewService(db, nil, nil, pub, conversion.Config{
			DefaultRate: decimal.NewNullDecimal(decimal.NewFromFloat(cfg.Program.DefaultCommissionRate)),
		}, appLogger),
		Payouts:   payout.NewService(db, pub, appLogger),
		Generator: testdata.NewGenerator(seed, cfg.SiteURL),
		Logger:    appLogger,
	}

	log.Printf("🌱 Seeding %d affiliates (seed %d)", seedCfg.Affiliates, seed)
	res, err := seeder.Run(ctx, seedCfg)
	if err != nil {
		return err
	}

	log.Printf("✅ Affiliates: %d (%d active)", res.Affiliates, res.Active)
	log.Printf("✅ Visits: %d", res.Visits)
	log.Printf("✅ Referrals: %d (%d approved, %d rejected)", res.Orders, res.Approved, res.Rejected)
	log.Printf("✅ Payout requests: %d", res.Payouts)
	return nil
}
