package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/supplylink/internal/auth"
	"github.com/xtrntr/supplylink/internal/cache"
	"github.com/xtrntr/supplylink/internal/config"
	"github.com/xtrntr/supplylink/internal/db"
	"github.com/xtrntr/supplylink/internal/logger"
	"github.com/xtrntr/supplylink/internal/models"
)

const seedPassword = "password123"

var seedUsers = []auth.Registration{
	{Username: "asha", Name: "Asha Vada Pav", Role: models.RoleVendor, State: "Maharashtra", Pincode: "411001"},
	{Username: "ravi", Name: "Ravi Chaat Corner", Role: models.RoleVendor, State: "Maharashtra", Pincode: "411002"},
	{Username: "meena", Name: "Meena Dosa", Role: models.RoleVendor, State: "Karnataka", Pincode: "560001"},
	{Username: "freshfarms", Name: "Fresh Farms", Role: models.RoleSupplier, State: "Maharashtra"},
	{Username: "greenco", Name: "Green Co", Role: models.RoleSupplier, State: "Maharashtra"},
	{Username: "deccan", Name: "Deccan Produce", Role: models.RoleSupplier, State: "Karnataka"},
}

// Seed the database with demo users, requirements, bids and past deals
func main() {
	configPath := flag.String("config", os.Getenv("SUPPLYLINK_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadStore(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

// store is what seeding writes through
type store interface {
	auth.UserStore
	CreateRequirement(ctx context.Context, req *models.Requirement) (*models.Requirement, error)
	UpsertBid(ctx context.Context, bid *models.Bid) (*models.Bid, error)
	CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error)
	GetPastDeals(ctx context.Context) ([]models.Deal, error)
}

// dealsCache is dropped after new deals are written
type dealsCache interface {
	Invalidate(ctx context.Context) error
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Database.Driver == config.DriverMemory {
		return errors.New("nothing to seed with the memory driver, the server starts empty")
	}

	// Connect to database
	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close(ctx)

	if err := database.ApplyMigration(ctx, cfg.Database.MigrationPath); err != nil {
		return err
	}

	var deals dealsCache
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		deals = cache.NewDeals(client, database, cfg.Redis.DealsTTL, log)
	}

	return seed(ctx, database, deals, log)
}

// seed writes the demo data unless deals already exist. deals may be nil.
func seed(ctx context.Context, database store, deals dealsCache, log *slog.Logger) error {
	// First check if we already have deals
	existing, err := database.GetPastDeals(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("database already seeded", "deals", len(existing))
		return nil
	}

	// Create demo users if they don't exist. Registration only hashes
	// passwords, so no signing secret is needed.
	authService := auth.NewAuthService(database, "", 0)
	users := map[string]*models.User{}
	for _, reg := range seedUsers {
		reg.Password = seedPassword
		user, err := database.GetUserByUsername(ctx, reg.Username)
		if errors.Is(err, db.ErrNotFound) {
			user, err = authService.Register(ctx, reg)
		}
		if err != nil {
			return err
		}
		users[reg.Username] = user
	}

	// Open requirements, posted as if outside a window
	requirements := []struct {
		owner, item string
		qty         int64
		unit        models.Unit
		price       int64
	}{
		{"asha", "Tomato", 50, models.UnitKg, 20},
		{"ravi", "Tomato", 30, models.UnitKg, 22},
		{"asha", "Onion", 5, models.UnitBags, 300},
		{"ravi", "Cooking Oil", 20, models.UnitLiters, 140},
		{"meena", "Rice", 100, models.UnitKg, 45},
	}
	for _, r := range requirements {
		owner := users[r.owner]
		if _, err := database.CreateRequirement(ctx, &models.Requirement{
			OwnerID:  owner.ID,
			Item:     r.item,
			Quantity: decimal.NewFromInt(r.qty),
			Unit:     r.unit,
			Price:    decimal.NewFromInt(r.price),
			Pincode:  owner.Pincode,
			State:    owner.State,
			Status:   models.StatusOpen,
		}); err != nil {
			return err
		}
	}

	// Live bids
	bids := []struct {
		supplier, item string
		price          string
	}{
		{"freshfarms", "Tomato", "19"},
		{"greenco", "Tomato", "18.5"},
		{"greenco", "Onion", "280"},
		{"deccan", "Rice", "42"},
	}
	for _, b := range bids {
		supplier := users[b.supplier]
		if _, err := database.UpsertBid(ctx, &models.Bid{
			Item:         b.item,
			State:        supplier.State,
			SupplierID:   supplier.ID,
			SupplierName: supplier.Name,
			Price:        decimal.RequireFromString(b.price),
		}); err != nil {
			return err
		}
	}

	// Closed deals from the last three days
	baseTime := time.Now().Add(-3 * 24 * time.Hour)
	pastDeals := []models.Deal{
		{Item: "Potato", State: "Maharashtra", Unit: models.UnitKg, WinningPrice: decimal.NewFromInt(18),
			WinningSupplierName: "Fresh Farms", VendorNames: []string{"Asha Vada Pav", "Ravi Chaat Corner"}, ClosedAt: baseTime},
		{Item: "Onion", State: "Maharashtra", Unit: models.UnitBags, WinningPrice: decimal.NewFromInt(290),
			WinningSupplierName: "Green Co", VendorNames: []string{"Asha Vada Pav"}, ClosedAt: baseTime.Add(24 * time.Hour)},
		{Item: "Rice", State: "Karnataka", Unit: models.UnitKg, WinningPrice: decimal.NewFromInt(44),
			WinningSupplierName: "Deccan Produce", VendorNames: []string{"Meena Dosa"}, ClosedAt: baseTime.Add(48 * time.Hour)},
	}
	for i := range pastDeals {
		if _, err := database.CreateDeal(ctx, &pastDeals[i]); err != nil {
			return err
		}
	}

	if deals != nil {
		if err := deals.Invalidate(ctx); err != nil {
			log.Warn("failed to invalidate deals cache", "error", err)
		}
	}

	log.Info("seeded database", "users", len(users), "requirements", len(requirements), "bids", len(bids), "deals", len(pastDeals))
	return nil
}
