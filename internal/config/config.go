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

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Payment   PaymentConfig
	Inventory InventoryConfig
	Booking   BookingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// PaymentConfig holds PhonePe gateway configuration
type PaymentConfig struct {
	Environment string // "sandbox" or "production"
	MerchantID  string
	SaltKey     string // SECRET - never expose to client
	SaltIndex   string
	RedirectURL string // URL the gateway redirects the customer back to
	CallbackURL string // server webhook URL for payment notifications
}

// InventoryConfig holds the stall inventory service configuration
type InventoryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// BookingConfig holds the checkout orchestration windows
type BookingConfig struct {
	Currency          string
	DebounceWindow    time.Duration // coalesce window for duplicate pay clicks
	CooldownWindow    time.Duration // rejection window after a completed attempt
	RetryBudget       int           // gateway attempts per payment session
	AbandonWarnAfter  time.Duration // warning stage of the abandonment timer
	AbandonResetAfter time.Duration // cancel + reset stage
	WizardIdleTTL     time.Duration // registry sweep for abandoned wizards
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Payment: PaymentConfig{
			Environment: getEnv("PHONEPE_ENVIRONMENT", "sandbox"),
			MerchantID:  getEnv("PHONEPE_MERCHANT_ID", ""),
			SaltKey:     getEnv("PHONEPE_SALT_KEY", ""),
			SaltIndex:   getEnv("PHONEPE_SALT_INDEX", "1"),
			RedirectURL: getEnv("PHONEPE_REDIRECT_URL", ""),
			CallbackURL: getEnv("PHONEPE_CALLBACK_URL", ""),
		},
		Inventory: InventoryConfig{
			BaseURL: getEnv("INVENTORY_BASE_URL", ""),
			APIKey:  getEnv("INVENTORY_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("INVENTORY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Booking: BookingConfig{
			Currency:          getEnv("BOOKING_CURRENCY", "INR"),
			DebounceWindow:    time.Duration(getEnvAsInt("PAYMENT_DEBOUNCE_MS", 1000)) * time.Millisecond,
			CooldownWindow:    time.Duration(getEnvAsInt("PAYMENT_COOLDOWN_MS", 3000)) * time.Millisecond,
			RetryBudget:       getEnvAsInt("PAYMENT_RETRY_BUDGET", 3),
			AbandonWarnAfter:  time.Duration(getEnvAsInt("ABANDON_WARN_SECONDS", 90)) * time.Second,
			AbandonResetAfter: time.Duration(getEnvAsInt("ABANDON_RESET_SECONDS", 120)) * time.Second,
			WizardIdleTTL:     time.Duration(getEnvAsInt("WIZARD_IDLE_TTL_SECONDS", 1800)) * time.Second,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.Inventory.BaseURL == "" {
		return fmt.Errorf("INVENTORY_BASE_URL is required")
	}

	// Gateway credentials are only enforced in production; sandbox can run
	// with the placeholder flow for local development
	if c.Server.Environment == "production" {
		if c.Payment.MerchantID == "" {
			return fmt.Errorf("PHONEPE_MERCHANT_ID is required in production")
		}
		if c.Payment.SaltKey == "" {
			return fmt.Errorf("PHONEPE_SALT_KEY is required in production")
		}
	}

	if c.Booking.RetryBudget < 1 {
		return fmt.Errorf("PAYMENT_RETRY_BUDGET must be at least 1")
	}
	if c.Booking.AbandonWarnAfter >= c.Booking.AbandonResetAfter {
		return fmt.Errorf("ABANDON_WARN_SECONDS must be less than ABANDON_RESET_SECONDS")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
