/*
main.go - Server entry point

PURPOSE:
  Starts the payout engine HTTP server. Loads configuration, opens the
  SQLite store, seeds the default rule set on first run, wires the API,
  and handles graceful shutdown.

USAGE:
  server [-config payout.toml] [-addr :8080] [-db ./payout.db]

  Flags override the config file, which overrides the built-in defaults.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gigledger/payout-engine/api"
	"github.com/gigledger/payout-engine/config"
	"github.com/gigledger/payout-engine/engine"
	"github.com/gigledger/payout-engine/factory"
	"github.com/gigledger/payout-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("Database: %s", cfg.Storage.Path)

	if err := seedDefaultRuleSet(context.Background(), store); err != nil {
		log.Fatalf("Failed to seed default rule set: %v", err)
	}

	handler := api.NewHandler(store)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// seedDefaultRuleSet installs the standard preset as the active rule set
// when the database has none. Later runs leave existing rule sets alone.
func seedDefaultRuleSet(ctx context.Context, store *sqlite.Store) error {
	existing, err := store.ListRuleSets(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	rs := engine.RuleSet{
		ID:        engine.RuleSetID(uuid.NewString()),
		Name:      "Default",
		Rules:     factory.DefaultRules(),
		Notes:     "Standard preset installed on first run",
		CreatedAt: time.Now().UTC(),
	}
	return store.WithTx(ctx, func(s engine.Store) error {
		if err := s.CreateRuleSet(ctx, rs); err != nil {
			return err
		}
		return s.ActivateRuleSet(ctx, rs.ID)
	})
}
