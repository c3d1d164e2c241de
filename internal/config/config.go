package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Document store backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Auth providers.
const (
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

// Event buses.
const (
	BusRedis = "redis"
	BusNATS  = "nats"
	BusNone  = "none"
)

type Config struct {
	ServerPort string
	AppEnv     string

	DocstoreBackend string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string

	AuthProvider string
	JWTSecret    string

	RedisURL string
	EventBus string
	NatsURL  string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	OTLPEndpoint string

	ReadRetryAttempts  int
	ReadRetryBaseDelay time.Duration

	WorkerCount    int
	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),

		DocstoreBackend: strings.ToLower(getEnv("DOCSTORE_BACKEND", BackendMemory)),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),

		FirebaseProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseClientEmail: os.Getenv("FIREBASE_CLIENT_EMAIL"),
		// Keys pasted into .env usually carry literal \n sequences.
		FirebasePrivateKey: strings.ReplaceAll(os.Getenv("FIREBASE_PRIVATE_KEY"), `\n`, "\n"),

		AuthProvider: strings.ToLower(getEnv("AUTH_PROVIDER", AuthJWT)),
		JWTSecret:    os.Getenv("JWT_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),
		EventBus: strings.ToLower(getEnv("EVENT_BUS", BusRedis)),
		NatsURL:  getEnv("NATS_URL", "nats://127.0.0.1:4222"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		ReadRetryAttempts:  getInt("READ_RETRY_ATTEMPTS", 3),
		ReadRetryBaseDelay: time.Duration(getInt("READ_RETRY_BASE_MS", 100)) * time.Millisecond,

		WorkerCount:    getInt("WORKER_COUNT", 2),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 40),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MediaEnabled reports whether every R2 setting is present.
func (c *Config) MediaEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicURL != ""
}

func (c *Config) validate() error {
	switch c.DocstoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres backend")
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown DOCSTORE_BACKEND %q", c.DocstoreBackend)
	}

	switch c.AuthProvider {
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required for jwt auth")
		}
	case AuthFirebase:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for firebase auth")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}

	switch c.EventBus {
	case BusRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis event bus")
		}
	case BusNATS, BusNone:
	default:
		return fmt.Errorf("unknown EVENT_BUS %q", c.EventBus)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
