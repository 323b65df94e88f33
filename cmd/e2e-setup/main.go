package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"orafinite-billing/internal/config"
	"orafinite-billing/internal/infra/api"
	"orafinite-billing/internal/infra/db/postgres"
	"orafinite-billing/internal/infra/esewa"
	"orafinite-billing/internal/infra/redis"
)

// This script prepares a clean, predictable state for a manual sandbox
// checkout: it resets one user's billing rows and rate-limit window and
// prints a session token for them.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "e2e-user", "user id to reset and mint a session for")
	ttl := flag.Duration("ttl", time.Hour, "session token lifetime")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	gw, err := esewa.NewConfig(cfg.Payment.Esewa.ProductCode, cfg.Payment.Esewa.SecretKey, cfg.Payment.Esewa.Environment, cfg.App.BaseURL, cfg.Payment.Esewa.StatusTimeout)
	if err != nil {
		log.Fatalf("esewa config: %v", err)
	}
	if gw.Environment != esewa.EnvSandbox {
		log.Fatalf("refusing to reset billing data against the %s gateway", gw.Environment)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Applying schema...")
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	log.Printf("[2/3] Removing billing rows of %s...", *userID)
	if _, err := pool.Exec(ctx, `DELETE FROM subscription WHERE user_id = $1`, *userID); err != nil {
		log.Fatalf("delete subscription: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM payment WHERE user_id = $1`, *userID); err != nil {
		log.Fatalf("delete payments: %v", err)
	}
	if cfg.Redis.URL != "" {
		rc, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer rc.Close()
		if err := rc.Del(ctx, redis.RateLimitKey("payment-initiate", *userID)); err != nil {
			log.Fatalf("reset rate limit: %v", err)
		}
	}

	log.Println("[3/3] Minting session token...")
	token, err := api.NewSessions(cfg.Session.Secret, cfg.Session.CookieName).Mint(*userID, *ttl)
	if err != nil {
		log.Fatalf("mint session: %v", err)
	}

	fmt.Printf("\ncurl -s -X POST %s \\\n  -H 'Authorization: Bearer %s' \\\n  -H 'Content-Type: application/json' \\\n  -d '{\"tierIndex\":3,\"column\":\"full\"}'\n\n",
		gw.AppURL("/api/payments/esewa/initiate", nil), token)
	log.Println("--- E2E Environment Setup Complete ---")
}
