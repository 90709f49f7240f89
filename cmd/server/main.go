package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/xtrntr/supplylink/internal/api"
	"github.com/xtrntr/supplylink/internal/auth"
	"github.com/xtrntr/supplylink/internal/cache"
	"github.com/xtrntr/supplylink/internal/config"
	"github.com/xtrntr/supplylink/internal/db"
	"github.com/xtrntr/supplylink/internal/logger"
)

// Main entry point: sets up database, services, live feed and HTTP server
func main() {
	configPath := flag.String("config", os.Getenv("SUPPLYLINK_CONFIG"), "path to YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Past deals go through Redis when it is configured
	var deals api.DealsReader = database
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		deals = cache.NewDeals(client, database, cfg.Redis.DealsTTL, log)
		log.Info("deals cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.DealsTTL)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	authService := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := api.NewHandler(database, deals, authService, policy, log)
	hub := api.NewHub(database, policy, log, cfg.Server.AllowedOrigins)
	handler.OnChange = func(state string) {
		go hub.Broadcast(context.Background(), state)
	}

	// Set up HTTP router
	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket endpoint
	r.Get("/ws", hub.ServeWS)
	r.Mount("/", handler.Routes())

	// Start periodic market broadcast
	go hub.Run(ctx, cfg.Server.BroadcastInterval)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.ListenAddr, "timezone", cfg.Market.Timezone, "window_hours", policy.Hours())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// store is everything the server reads and writes
type store interface {
	api.Store
	api.DealsReader
	auth.UserStore
}

// openStore connects the configured driver and applies the migration for Postgres
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return db.NewMemory(), func() {}, nil
	}

	database, err := db.NewDB(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { database.Close(context.Background()) }

	if err := database.Ping(ctx); err != nil {
		closeStore()
		return nil, nil, err
	}
	if cfg.MigrationPath != "" {
		if err := database.ApplyMigration(ctx, cfg.MigrationPath); err != nil {
			closeStore()
			return nil, nil, err
		}
	}
	return database, closeStore, nil
}
