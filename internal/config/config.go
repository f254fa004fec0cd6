package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PagBank PagBankConfig
	Billing BillingConfig
}

// PagBankConfig configures the payment gateway adapter.
type PagBankConfig struct {
	BaseURL        string
	APIToken       string
	RequestTimeout time.Duration
}

// BillingConfig controls the auto-billing runner.
type BillingConfig struct {
	CronSpec          string
	BatchSize         int
	WorkerCount       int
	MaxChargeAttempts int
	SessionTTL        time.Duration
	RunLockTTL        time.Duration
	ReceiptUploadDir  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "proteamcare-billing"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "proteamcare"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		PagBank: PagBankConfig{
			BaseURL:        getenv("PAGBANK_BASE_URL", "https://api.pagseguro.com"),
			APIToken:       strings.TrimSpace(getenv("PAGBANK_API_TOKEN", "")),
			RequestTimeout: getenvDuration("PAGBANK_REQUEST_TIMEOUT", 12*time.Second),
		},
		Billing: BillingConfig{
			CronSpec:          getenv("BILLING_CRON", "0 6 * * *"),
			BatchSize:         getenvInt("BILLING_BATCH_SIZE", 100),
			WorkerCount:       getenvInt("BILLING_WORKERS", 8),
			MaxChargeAttempts: getenvInt("BILLING_MAX_CHARGE_ATTEMPTS", 3),
			SessionTTL:        getenvDuration("BILLING_SESSION_TTL", 30*time.Minute),
			RunLockTTL:        getenvDuration("BILLING_RUN_LOCK_TTL", 10*time.Minute),
			ReceiptUploadDir:  getenv("BILLING_RECEIPT_UPLOAD_DIR", "uploads/receipts"),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
