package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	applog "fintrack/internal/log"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names an optional YAML file loaded before the environment.
const EnvConfigFile = "FINTRACK_CONFIG"

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres}

type Config struct {
	// HTTP Server
	Port                string `yaml:"port"`
	UploadMaxBytes      int64  `yaml:"upload_max_bytes"`
	UploadRatePerMinute int    `yaml:"upload_rate_per_minute"`

	// Storage
	DataBackend  string        `yaml:"data_backend"`
	SQLiteDBPath string        `yaml:"sqlite_db_path"`
	DatabaseURL  string        `yaml:"database_url"`
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// AMQP, disabled when the URL is empty
	AMQPURL              string `yaml:"amqp_url"`
	AMQPExchange         string `yaml:"amqp_exchange"`
	AMQPQueue            string `yaml:"amqp_queue"`
	AMQPEventsRoutingKey string `yaml:"amqp_events_routing_key"`

	// Extraction and inbox
	InboxDir       string        `yaml:"inbox_dir"`
	InboxSchedule  string        `yaml:"inbox_schedule"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	JobTTL         time.Duration `yaml:"job_ttl"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaults() *Config {
	return &Config{
		Port:                "8081",
		UploadMaxBytes:      20 << 20,
		UploadRatePerMinute: 10,

		DataBackend:  BackendSQLite,
		SQLiteDBPath: "./data/fintrack.db",
		StoreTimeout: 10 * time.Second,

		AMQPExchange:         "fintrack",
		AMQPQueue:            "import_requests",
		AMQPEventsRoutingKey: "import_completed",

		InboxSchedule:  "*/5 * * * *",
		ExtractTimeout: 2 * time.Minute,
		JobTTL:         time.Hour,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// FINTRACK_CONFIG if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.UploadMaxBytes = int64(getEnvInt("UPLOAD_MAX_BYTES", int(c.UploadMaxBytes)))
	c.UploadRatePerMinute = getEnvInt("UPLOAD_RATE_PER_MINUTE", c.UploadRatePerMinute)

	c.DataBackend = strings.ToLower(getEnv("DATA_BACKEND", c.DataBackend))
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.StoreTimeout = getEnvDuration("STORE_TIMEOUT", c.StoreTimeout)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)
	c.AMQPEventsRoutingKey = getEnv("AMQP_EVENTS_ROUTING_KEY", c.AMQPEventsRoutingKey)

	c.InboxDir = getEnv("INBOX_DIR", c.InboxDir)
	c.InboxSchedule = getEnv("INBOX_SCHEDULE", c.InboxSchedule)
	c.ExtractTimeout = getEnvDuration("EXTRACT_TIMEOUT", c.ExtractTimeout)
	c.JobTTL = getEnvDuration("JOB_TTL", c.JobTTL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid database URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid database URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.StoreTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
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
		if c.AMQPEventsRoutingKey == "" {
			errors = append(errors, "AMQP events routing key cannot be empty when AMQP URL is provided")
		}
	}

	if c.InboxDir != "" {
		if _, err := cron.ParseStandard(c.InboxSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid inbox schedule '%s': %v", c.InboxSchedule, err))
		}
	}

	if c.ExtractTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid extract timeout %v: must be at least 1 second", c.ExtractTimeout))
	} else if c.ExtractTimeout > 30*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid extract timeout %v: must be at most 30 minutes", c.ExtractTimeout))
	}
	if c.JobTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid job TTL %v: must be at least 1 minute", c.JobTTL))
	}

	if c.UploadMaxBytes < 1<<10 || c.UploadMaxBytes > 100<<20 {
		errors = append(errors, fmt.Sprintf("invalid upload limit %d bytes: must be between 1KiB and 100MiB", c.UploadMaxBytes))
	}
	if c.UploadRatePerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid upload rate %d: must be at least 1 per minute", c.UploadRatePerMinute))
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
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
