package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ugc-maroc-backend/internal/api"
	"ugc-maroc-backend/internal/cache"
	"ugc-maroc-backend/internal/chat"
	"ugc-maroc-backend/internal/config"
	"ugc-maroc-backend/internal/crypto"
	"ugc-maroc-backend/internal/flags"
	"ugc-maroc-backend/internal/handlers"
	"ugc-maroc-backend/internal/kv"
	"ugc-maroc-backend/internal/notify"
	"ugc-maroc-backend/internal/ratelimit"
	"ugc-maroc-backend/internal/services"
	"ugc-maroc-backend/internal/sessioncache"
	"ugc-maroc-backend/internal/store/postgres"
)

func main() {
	log.Println("Starting UGC Maroc Backend...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Initialize Database Connection Pool
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Unable to create database connection pool: %v\n", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(dbCtx); err != nil {
		log.Fatalf("FATAL: Unable to ping database: %v\n", err)
	}
	log.Println("Database connection pool established and pinged successfully.")

	pgStore := postgres.NewPostgresStore(dbpool)
	log.Println("Postgres store initialized.")

	// 3. Initialize the embedded key-value store. One Badger instance backs
	// the response cache, the rate limiter, the session cache and the
	// feature flags; an empty path runs it in memory.
	kvStore, err := kv.NewBadgerStore(cfg.BadgerPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to open key-value store at %q: %v", cfg.BadgerPath, err)
	}
	defer kvStore.Close()
	log.Printf("Key-value store initialized (path=%q).", cfg.BadgerPath)

	// --- Edge Tier ---
	flagService := flags.NewService(kvStore)
	limiter := ratelimit.NewLimiter(kvStore, ratelimit.Config{
		Auth:    ratelimit.Bucket{Name: "auth", Limit: cfg.RateLimitAuth, Window: time.Duration(cfg.RateLimitWindowSec) * time.Second},
		Payment: ratelimit.Bucket{Name: "payment", Limit: cfg.RateLimitPayment, Window: time.Duration(cfg.RateLimitWindowSec) * time.Second},
		Default: ratelimit.Bucket{Name: "default", Limit: cfg.RateLimitDefault, Window: time.Duration(cfg.RateLimitWindowSec) * time.Second},
	})
	responseCache := cache.New(kvStore)
	principals := sessioncache.New(kvStore, pgStore, cfg.PrincipalTTL)
	if len(cfg.EncryptionKey) > 0 {
		aead, err := crypto.NewAESGCM(cfg.EncryptionKey)
		if err != nil {
			log.Fatalf("FATAL: Failed to create AES-GCM cipher: %v", err)
		}
		principals = principals.WithEncryption(aead)
		log.Println("Principal cache encryption enabled.")
	}
	log.Println("Edge tier (flags, limiter, cache, session cache) initialized.")

	notifier := notify.NewOpsNotifier(cfg.SlackBotToken, cfg.SlackOpsChannel)
	if notifier != nil {
		log.Println("Slack ops notifications enabled.")
	}

	// --- Conversation Actors ---
	registry := chat.NewRegistry(
		services.LoadHistory(pgStore, cfg.LogRetention),
		chat.Options{SnapshotSize: cfg.HistorySnapshot, Retention: cfg.LogRetention},
	)
	log.Println("Conversation registry initialized.")

	// --- Services ---
	authService := services.NewAuthService(pgStore, cfg)
	convService := services.NewConversationService(pgStore, registry, responseCache)
	log.Println("Services initialized.")

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	convHandler := handlers.NewConversationHandlers(convService, principals)
	wsHandler := handlers.NewWSHandlers(convService, cfg)
	flagHandler := handlers.NewFlagHandlers(flagService, notifier)
	log.Println("Handlers initialized.")

	// 4. Setup Router & Inject Dependencies
	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         authHandler,
		ConversationHandler: convHandler,
		WSHandler:           wsHandler,
		FlagHandler:         flagHandler,
		Flags:               flagService,
		Limiter:             limiter,
		Cache:               responseCache,
		Principals:          principals,
		Config:              cfg,
	})
	log.Println("HTTP router configured.")

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// Production hardening: Set timeouts to avoid Slowloris attacks
		ReadTimeout: 5 * time.Second,
		// WriteTimeout stays generous because websocket sessions write for
		// the lifetime of the connection.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting and listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Could not listen on %s: %v\n", cfg.HTTPPort, err)
		}
		log.Println("Server listener routine stopped.")
	}()

	<-stopChan
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: Server graceful shutdown failed: %v", err)
	}

	// Stop the actors after the listener so no command arrives for a dead
	// registry.
	registry.Shutdown()
	log.Println("Conversation registry stopped.")

	log.Println("Server shutdown complete.")
}
