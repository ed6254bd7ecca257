package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (empty URL disables the accrual ledger pipeline)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Timezone fallback for unknown user zones
	DefaultTimezone string

	// Recalculation sweep
	RecalcInterval    time.Duration
	RecalcConcurrency int

	// Google Sheets ledger
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/dailybudget.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "dailybudget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "accruals"),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "Europe/Moscow"),

		RecalcInterval:    getEnvDuration("RECALC_INTERVAL", 5*time.Minute),
		RecalcConcurrency: getEnvInt("RECALC_CONCURRENCY", 4),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Ledger"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

	if c.DefaultTimezone == "" {
		errors = append(errors, "default timezone cannot be empty")
	} else if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default timezone '%s': %v", c.DefaultTimezone, err))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecalcInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recalc interval %v: must be at least 1 second", c.RecalcInterval))
	} else if c.RecalcInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recalc interval %v: must be at most 24 hours", c.RecalcInterval))
	}

	if c.RecalcConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid recalc concurrency %d: must be at least 1", c.RecalcConcurrency))
	} else if c.RecalcConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid recalc concurrency %d: must be at most 64", c.RecalcConcurrency))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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
