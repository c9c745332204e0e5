package main

import (
	"context"
	"delivery-match-service/internal/adapters/cache"
	"delivery-match-service/internal/adapters/currency"
	"delivery-match-service/internal/adapters/notify"
	"delivery-match-service/internal/adapters/payment"
	"delivery-match-service/internal/adapters/repositories"
	"delivery-match-service/internal/adapters/vault"
	"delivery-match-service/internal/api"
	"delivery-match-service/internal/config"
	"delivery-match-service/internal/platform/db"
	"delivery-match-service/internal/ports"
	"delivery-match-service/internal/services"
	"delivery-match-service/internal/workers"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// main is the application composition root.
// It wires concrete adapters (Postgres, Stripe, Redis) behind ports and
// starts the HTTP server plus the settlement reconciler.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}
	stripeKey := os.Getenv("STRIPE_API_KEY")
	if strings.TrimSpace(stripeKey) == "" {
		log.Fatal("STRIPE_API_KEY is required")
	}

	port := config.Get("PORT", "8080")
	vaultPath := config.Get("VAULT_PATH", "data/seeds/payment_profiles.json")
	feePercent := config.GetFloat("PLATFORM_FEE_PERCENT", 15)

	sqlDB, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer sqlDB.Close()

	if err := repositories.InitSchema(sqlDB); err != nil {
		log.Fatal(err)
	}

	ledger := repositories.NewPostgresLedger(sqlDB)

	cardVault, err := vault.NewFileVault(vaultPath)
	if err != nil {
		log.Fatal(err)
	}
	processor, err := payment.NewStripeProcessor(stripeKey, cardVault)
	if err != nil {
		log.Fatal(err)
	}

	// Currency reference data is served through an explicit cache with TTL
	// when Redis is configured, and straight from the static table when not.
	var currencies ports.CurrencyDirectory = currency.NewStaticDirectory()
	if addr := config.Get("REDIS_ADDR", ""); addr != "" {
		ttl := time.Duration(config.GetInt("CURRENCY_CACHE_TTL_HOURS", 24)) * time.Hour
		client := redis.NewClient(&redis.Options{Addr: addr})
		cached, err := cache.NewRedisCurrencyCache(client, currencies, ttl)
		if err != nil {
			log.Fatal(err)
		}
		currencies = cached
	}

	notifier := notify.NewLogNotifier()

	settlement := services.NewSettlementService(ledger, processor, currencies, notifier, feePercent)
	match := services.NewMatchService(ledger, settlement, notifier)
	messages := services.NewMessageService(ledger, notifier)

	reconciler := workers.NewReconciler(ledger, processor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reconciler.Run(ctx)

	router := api.NewRouter(match, settlement, messages)

	// Write timeout leaves room for a slow processor round-trip on
	// settlement endpoints.
	log.Printf("Server listening addr=:%s", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}
