package config

import (
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort        string
	DatabaseURL     string
	JWTSecret       string
	TokenExpiration time.Duration

	// BadgerPath is the directory for the embedded key-value store backing
	// caching, rate limiting, session caching and feature flags. Empty means
	// an in-memory instance.
	BadgerPath string

	// Cache-aside TTLs: short for volatile listings, longer for by-id
	// entities.
	CacheTTLVolatile time.Duration
	CacheTTLEntity   time.Duration

	// PrincipalTTL bounds how long cached principal data is trusted.
	PrincipalTTL time.Duration

	// EncryptionKey encrypts cached principal entries at rest. Empty
	// disables encryption (in-memory deployments).
	EncryptionKey []byte

	// Slack ops notifications; both empty disables them.
	SlackBotToken   string
	SlackOpsChannel string

	// Rate-limit buckets per endpoint class.
	RateLimitAuth      int64
	RateLimitPayment   int64
	RateLimitDefault   int64
	RateLimitWindowSec int

	// Conversation actor tuning.
	HistorySnapshot int
	LogRetention    int
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Could not load .env file. Using environment variables only.")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set.")
	}

	// Optional cache-encryption key (64 hex characters for 32 bytes).
	var encryptionKey []byte
	if keyHex := getEnv("ENCRYPTION_KEY", ""); keyHex != "" {
		decoded, err := hex.DecodeString(keyHex)
		if err != nil {
			log.Fatalf("FATAL: Failed to decode ENCRYPTION_KEY from hex: %v", err)
		}
		if len(decoded) != 32 {
			log.Fatalf("FATAL: ENCRYPTION_KEY must be 32 bytes (64 hex characters) long, got %d bytes", len(decoded))
		}
		encryptionKey = decoded
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        dbURL,
		JWTSecret:          getEnv("JWT_SECRET", "default-super-secret-key"), // CHANGE THIS IN PRODUCTION!
		TokenExpiration:    time.Hour * time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)),
		BadgerPath:         getEnv("BADGER_PATH", ""),
		CacheTTLVolatile:   time.Second * time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)),
		CacheTTLEntity:     time.Second * time.Duration(getEnvInt("CACHE_TTL_ENTITY_SECONDS", 3600)),
		PrincipalTTL:       time.Second * time.Duration(getEnvInt("PRINCIPAL_TTL_SECONDS", 3600)),
		EncryptionKey:      encryptionKey,
		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackOpsChannel:    getEnv("SLACK_OPS_CHANNEL", ""),
		RateLimitAuth:      int64(getEnvInt("RATE_LIMIT_AUTH", 10)),
		RateLimitPayment:   int64(getEnvInt("RATE_LIMIT_PAYMENT", 30)),
		RateLimitDefault:   int64(getEnvInt("RATE_LIMIT_DEFAULT", 100)),
		RateLimitWindowSec: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		HistorySnapshot:    getEnvInt("HISTORY_SNAPSHOT", 50),
		LogRetention:       getEnvInt("LOG_RETENTION", 512),
	}

	log.Printf("Loaded config: Port=%s, DB_URL=***, TokenExp=%s, Badger=%q", cfg.HTTPPort, cfg.TokenExpiration, cfg.BadgerPath)
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s', using default %d. Error: %v", key, value, fallback, err)
		return fallback
	}
	return n
}
