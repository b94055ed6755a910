// Package config loads service settings from an optional config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"medicart/internal/pricing"
)

type Config struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`

	// memory or redis
	CartStore     string        `mapstructure:"CART_STORE"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	CartTTL       time.Duration `mapstructure:"CART_TTL"`

	// memory or sqlite
	OrderStore string `mapstructure:"ORDER_STORE"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	// empty brokers disable the Kafka sink
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	EventBuffer  int           `mapstructure:"EVENT_BUFFER"`
	EventTimeout time.Duration `mapstructure:"EVENT_TIMEOUT"`

	DependencyTimeout         time.Duration `mapstructure:"DEPENDENCY_TIMEOUT"`
	PrescriptionSweepInterval time.Duration `mapstructure:"PRESCRIPTION_SWEEP_INTERVAL"`

	TaxRate               string `mapstructure:"TAX_RATE"`
	FreeDeliveryThreshold string `mapstructure:"FREE_DELIVERY_THRESHOLD"`
	DeliveryFee           string `mapstructure:"DELIVERY_FEE"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                   ":8080",
	"SHUTDOWN_TIMEOUT":            "10s",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
	"JWT_SECRET":                  "",
	"CART_STORE":                  "memory",
	"REDIS_ADDR":                  "localhost:6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"CART_TTL":                    "0s",
	"ORDER_STORE":                 "memory",
	"SQLITE_PATH":                 "medicart.db",
	"KAFKA_BROKERS":               "",
	"KAFKA_TOPIC":                 "medicart.orders",
	"EVENT_BUFFER":                256,
	"EVENT_TIMEOUT":               "5s",
	"DEPENDENCY_TIMEOUT":          "2s",
	"PRESCRIPTION_SWEEP_INTERVAL": "1m",
	"TAX_RATE":                    "0.18",
	"FREE_DELIVERY_THRESHOLD":     "500",
	"DELIVERY_FEE":                "50",
}

// Load reads path (any format viper understands, skipped when empty) and
// lets environment variables override every key.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch strings.ToLower(c.CartStore) {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("CART_STORE %q: want memory or redis", c.CartStore))
	}
	switch strings.ToLower(c.OrderStore) {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("ORDER_STORE %q: want memory or sqlite", c.OrderStore))
	}
	if c.DependencyTimeout <= 0 {
		errs = append(errs, errors.New("DEPENDENCY_TIMEOUT must be positive"))
	}
	if _, err := c.Pricing(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Pricing converts the money settings.
func (c *Config) Pricing() (pricing.Config, error) {
	var out pricing.Config
	var err error
	if out.TaxRate, err = decimal.NewFromString(c.TaxRate); err != nil || out.TaxRate.IsNegative() {
		return out, fmt.Errorf("TAX_RATE %q is not a non-negative decimal", c.TaxRate)
	}
	if out.FreeDeliveryThreshold, err = decimal.NewFromString(c.FreeDeliveryThreshold); err != nil || out.FreeDeliveryThreshold.IsNegative() {
		return out, fmt.Errorf("FREE_DELIVERY_THRESHOLD %q is not a non-negative decimal", c.FreeDeliveryThreshold)
	}
	if out.FlatDeliveryFee, err = decimal.NewFromString(c.DeliveryFee); err != nil || out.FlatDeliveryFee.IsNegative() {
		return out, fmt.Errorf("DELIVERY_FEE %q is not a non-negative decimal", c.DeliveryFee)
	}
	return out, nil
}
