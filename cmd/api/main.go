package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/kv"
	"github.com/example/ec-storefront/internal/offers"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/users"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("[API] JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[API] JWT_SECRET must be at least 32 characters long")
	}

	log.Println("[API] ========================================")
	log.Println("[API] Storefront API")
	log.Println("[API] ========================================")
	log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[API] Topic: %s", cfg.KafkaTopic)
	log.Printf("[API] Collection store: %s", cfg.KVBackend)

	db, err := catalog.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[API] Connected to PostgreSQL")

	kvStore, closeKV, err := openKVStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open collection store: %v", err)
	}
	defer closeKV()

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry)

	handlers := api.NewHandlers(
		catalog.NewRepository(db),
		orders.NewRepository(db),
		kvStore,
		offers.NewFilter(cfg.PlaceholderImage),
		producer,
	)
	authHandlers := api.NewAuthHandlers(users.NewRepository(db), tokens)

	router := api.NewRouter(api.RouterConfig{
		Handlers:     handlers,
		AuthHandlers: authHandlers,
		Tokens:       tokens,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

// openKVStore selects the cart/wishlist snapshot backend. Redis is the
// default; DynamoDB suits serverless deployments, and the in-memory store is
// for local development only.
func openKVStore(ctx context.Context, cfg config.Config) (kv.Store, func(), error) {
	switch cfg.KVBackend {
	case "redis":
		store := kv.NewRedisStore(cfg.RedisAddr, cfg.SnapshotTTL)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := store.Ping(pingCtx); err != nil {
			return nil, nil, err
		}
		log.Printf("[API] Connected to Redis at %s", cfg.RedisAddr)
		return store, func() { store.Close() }, nil
	case "dynamo":
		store, err := kv.NewDynamoStore(ctx, cfg.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[API] Using DynamoDB table %s", cfg.DynamoTable)
		return store, func() {}, nil
	case "memory":
		log.Println("[API] Using in-memory collection store (non-durable)")
		return kv.NewMemoryStore(), func() {}, nil
	default:
		log.Printf("[API] Unknown KV_BACKEND %q, falling back to memory", cfg.KVBackend)
		return kv.NewMemoryStore(), func() {}, nil
	}
}
