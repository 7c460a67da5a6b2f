package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config carries everything the binaries read from the environment. Values
// have development defaults; credentials default to empty, which individual
// components treat as "not configured".
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	KafkaBrokers string
	RedisAddr    string

	StripeSecretKey         string
	StripeWebhookSecret     string
	AllowUnverifiedWebhooks bool

	PrintfulAPIKey string
	PrintfulAPIURL string
	EproloAPIKey   string
	EproloAPIURL   string
	ZendropAPIKey  string
	ZendropAPIURL  string

	ResendAPIKey string
	SupportEmail string
	FromEmail    string

	AdminUsername     string
	AdminPasswordHash string

	Pricing PricingConfig

	RateLimitWindow time.Duration
	RateLimitMax    int

	SupplierTimeout time.Duration
	PaymentTimeout  time.Duration
	EmailTimeout    time.Duration
}

// PricingConfig holds the money knobs the pricing engine runs on. The
// defaults match the US storefront; other jurisdictions override via env.
type PricingConfig struct {
	TaxRate           decimal.Decimal
	FreeShippingOver  decimal.Decimal
	FlatShippingFee   decimal.Decimal
	ProcessorFeeRate  decimal.Decimal
	ProcessorFeeFixed decimal.Decimal
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "storefront"),
		DBPassword: getEnv("DB_PASSWORD", "storefront"),
		DBName:     getEnv("DB_NAME", "storefront"),

		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),

		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
		AllowUnverifiedWebhooks: getEnvBool("STRIPE_WEBHOOK_ALLOW_UNVERIFIED", false),

		PrintfulAPIKey: getEnv("PRINTFUL_API_KEY", ""),
		PrintfulAPIURL: getEnv("PRINTFUL_API_URL", "https://api.printful.com"),
		EproloAPIKey:   getEnv("EPROLO_API_KEY", ""),
		EproloAPIURL:   getEnv("EPROLO_API_URL", "https://api.eprolo.com"),
		ZendropAPIKey:  getEnv("ZENDROP_API_KEY", ""),
		ZendropAPIURL:  getEnv("ZENDROP_API_URL", "https://api.zendrop.com"),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		SupportEmail: getEnv("SUPPORT_EMAIL", "support@tuathcoir.com"),
		FromEmail:    getEnv("FROM_EMAIL", "Tuath Coir <orders@tuathcoir.com>"),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		Pricing: PricingConfig{
			TaxRate:           getEnvDecimal("TAX_RATE", "0.08"),
			FreeShippingOver:  getEnvDecimal("FREE_SHIPPING_OVER", "50.00"),
			FlatShippingFee:   getEnvDecimal("FLAT_SHIPPING_FEE", "5.99"),
			ProcessorFeeRate:  getEnvDecimal("PROCESSOR_FEE_RATE", "0.029"),
			ProcessorFeeFixed: getEnvDecimal("PROCESSOR_FEE_FIXED", "0.30"),
		},

		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 60),

		SupplierTimeout: getEnvDuration("SUPPLIER_TIMEOUT", 30*time.Second),
		PaymentTimeout:  getEnvDuration("PAYMENT_TIMEOUT", 15*time.Second),
		EmailTimeout:    getEnvDuration("EMAIL_TIMEOUT", 10*time.Second),
	}
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}
