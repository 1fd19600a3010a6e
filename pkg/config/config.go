package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment           string
	Addr                  string
	DatabaseURL           string
	MigrationsDir         string
	JWTSecret             string
	SessionTokenTTL       time.Duration
	TeamCacheTTL          time.Duration
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	LiveKitURL            string
	LiveKitAPIKey         string
	LiveKitAPISecret      string
	LiveKitTokenTTL       time.Duration
	IdentityWebhookSecret string
	PresenceBuffer        int
	MigrateOnStart        bool
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:           GetString("APP_ENV", "development"),
		Addr:                  GetString("API_ADDR", ":1284"),
		DatabaseURL:           GetString("DATABASE_URL", "postgres://wavecall:wavecall@db:5432/wavecall?sslmode=disable"),
		MigrationsDir:         GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:             GetString("JWT_SECRET", "supersecuresecret"),
		SessionTokenTTL:       time.Duration(GetInt("SESSION_TOKEN_TTL_MIN", 60)) * time.Minute,
		TeamCacheTTL:          time.Duration(GetInt("TEAM_CACHE_TTL_MIN", 5)) * time.Minute,
		RedisAddr:             GetString("REDIS_ADDR", ""),
		RedisPassword:         GetString("REDIS_PASSWORD", ""),
		RedisDB:               GetInt("REDIS_DB", 0),
		LiveKitURL:            GetString("LIVEKIT_URL", "ws://localhost:7880"),
		LiveKitAPIKey:         GetString("LIVEKIT_API_KEY", "devkey"),
		LiveKitAPISecret:      GetString("LIVEKIT_API_SECRET", "secret"),
		LiveKitTokenTTL:       time.Duration(GetInt("LIVEKIT_TOKEN_TTL_MIN", 60)) * time.Minute,
		IdentityWebhookSecret: GetString("IDENTITY_WEBHOOK_SECRET", ""),
		PresenceBuffer:        GetInt("WS_PRESENCE_BUFFER", 100),
		MigrateOnStart:        GetBool("MIGRATE_ON_START", true),
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
