package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type StoreBackend string

const (
	BackendFirestore StoreBackend = "firestore"
	BackendPostgres  StoreBackend = "postgres"
	BackendMemory    StoreBackend = "memory"
)

// Config holds the configuration for the API server.
type Config struct {
	Port         string
	StoreBackend StoreBackend
	DatabaseURL  string

	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirebaseServiceAccount  string // base64 encoded JSON

	ClerkSecretKey     string
	ClerkWebhookSecret string

	MetricsUser string
	MetricsPass string

	// Location defines the calendar day boundary for every user.
	Location *time.Location

	RateLimitRPS   float64
	RateLimitBurst int

	PushEnabled bool
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY environment variable not set")
	}

	backend := StoreBackend(getEnv("STORE_BACKEND", string(BackendFirestore)))
	switch backend {
	case BackendFirestore, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be one of firestore, postgres, memory; got %q", backend)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if backend == BackendPostgres && databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	loc := time.Local
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("APP_TIMEZONE %q: %w", tz, err)
		}
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5"), 64)
	if err != nil || rps <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must be a positive number")
	}
	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "30"))
	if err != nil || burst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be a positive integer")
	}

	pushEnabled, err := strconv.ParseBool(getEnv("PUSH_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("PUSH_ENABLED must be a boolean")
	}

	return &Config{
		Port:                    getEnv("PORT", "3333"),
		StoreBackend:            backend,
		DatabaseURL:             databaseURL,
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FirebaseServiceAccount:  os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"),
		ClerkSecretKey:          clerkSecretKey,
		ClerkWebhookSecret:      os.Getenv("CLERK_WEBHOOK_SECRET"),
		MetricsUser:             os.Getenv("METRICS_USER"),
		MetricsPass:             os.Getenv("METRICS_PASS"),
		Location:                loc,
		RateLimitRPS:            rps,
		RateLimitBurst:          burst,
		PushEnabled:             pushEnabled,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
