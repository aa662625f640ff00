package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Endpoint binds one resource kind to its API endpoint and worksheet anchor.
type Endpoint struct {
	URL       string
	Worksheet string
	StartRow  int
	StartCol  int
}

// Config holds the full environment-derived configuration. It is built once
// at startup and passed by reference into the pipeline; core packages never
// read the environment themselves.
type Config struct {
	Orders    Endpoint
	Inventory Endpoint

	Credentials string
	SheetName   string

	MaxRetries int
	RetryDelay time.Duration

	LogDir string
}

// Load reads the configuration from the environment. If envFile is non-empty
// it is loaded first (missing .env files are not an error when the default
// name is used - the environment may already be populated by cron or CI).
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) || envFile != ".env" {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		Orders: Endpoint{
			URL:       getEnv("ORDERS_API_URL", ""),
			Worksheet: getEnv("ORDERS_WORKSHEET_NAME", "orders"),
			StartRow:  getEnvInt("ORDERS_START_ROW", 1),
			StartCol:  getEnvInt("ORDERS_START_COL", 4),
		},
		Inventory: Endpoint{
			URL:       getEnv("INVENTORY_API_URL", ""),
			Worksheet: getEnv("INVENTORY_WORKSHEET_NAME", "inventory"),
			StartRow:  getEnvInt("INVENTORY_START_ROW", 1),
			StartCol:  getEnvInt("INVENTORY_START_COL", 4),
		},
		Credentials: getEnv("CREDENTIALS_FILE_NAME", ""),
		SheetName:   getEnv("SHEET_NAME", ""),
		MaxRetries:  getEnvInt("MAX_RETRIES", 3),
		RetryDelay:  time.Duration(getEnvInt("RETRY_DELAY", 2)) * time.Second,
		LogDir:      getEnv("LOG_DIR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Orders.URL == "" {
		return fmt.Errorf("ORDERS_API_URL is required")
	}
	if c.Inventory.URL == "" {
		return fmt.Errorf("INVENTORY_API_URL is required")
	}
	for _, endpoint := range []Endpoint{c.Orders, c.Inventory} {
		parsed, err := url.Parse(endpoint.URL)
		if err != nil {
			return fmt.Errorf("invalid API URL %q: %w", endpoint.URL, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("API URL %q must include a host", endpoint.URL)
		}
		if endpoint.Worksheet == "" {
			return fmt.Errorf("worksheet name cannot be empty")
		}
		if endpoint.StartRow < 1 || endpoint.StartCol < 1 {
			return fmt.Errorf("worksheet anchor must be at least row 1, column 1 (got row %d, column %d)", endpoint.StartRow, endpoint.StartCol)
		}
	}

	if c.Credentials == "" {
		return fmt.Errorf("CREDENTIALS_FILE_NAME is required")
	}
	if c.SheetName == "" {
		return fmt.Errorf("SHEET_NAME is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("RETRY_DELAY cannot be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
