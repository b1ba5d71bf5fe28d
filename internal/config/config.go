package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Check     CheckConfig
	Storage   StorageConfig
	Ingestion IngestionConfig
	Server    ServerConfig
	Log       LogConfig
}

// CheckConfig identifies the team to export and how to reach the Check API
type CheckConfig struct {
	Team   string
	APIKey string
	Host   string
	// AnswerDateFromResponse dates task answers with the response timestamp
	// rather than the media creation time
	AnswerDateFromResponse bool
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type        string // "memory", "dynamodb", "mongodb", "postgresql"
	Region      string // For AWS DynamoDB
	TableName   string
	Endpoint    string // Custom endpoint for local testing
	MongoDBURI  string
	PostgresURI string
	MemoryTTL   time.Duration
}

// IngestionConfig holds ingestion-related configuration
type IngestionConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	RetryCount int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      int
	Anonymize bool // default when a request does not say
	CacheTTL  time.Duration
}

// LogConfig selects log verbosity and output format
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

var storageTypes = []string{"memory", "dynamodb", "mongodb", "postgresql"}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Check: CheckConfig{
			Team:                   strings.TrimSpace(getEnv("CHECK_TEAM", "")),
			APIKey:                 strings.TrimSpace(getEnv("CHECK_API_KEY", "")),
			Host:                   strings.TrimSpace(getEnv("CHECK_HOST", "https://check-api.checkmedia.org")),
			AnswerDateFromResponse: getEnvBool("ANSWER_DATE_FROM_RESPONSE", false),
		},
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", "memory"),
			Region:      getEnv("AWS_REGION", "us-west-2"),
			TableName:   getEnv("TABLE_NAME", "check_snapshots"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			MongoDBURI:  getEnv("MONGODB_URI", ""),
			PostgresURI: getEnv("POSTGRES_URI", ""),
			MemoryTTL:   getEnvDuration("MEMORY_TTL", 24*time.Hour),
		},
		Ingestion: IngestionConfig{
			Interval:   getEnvDuration("INGESTION_INTERVAL", 15*time.Minute),
			Timeout:    getEnvDuration("API_TIMEOUT", 60*time.Second),
			RetryCount: getEnvInt("RETRY_COUNT", 3),
		},
		Server: ServerConfig{
			Port:      getEnvInt("SERVER_PORT", 8080),
			Anonymize: getEnvBool("ANONYMIZE", false),
			CacheTTL:  getEnvDuration("EXPORT_CACHE_TTL", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	valid := false
	for _, t := range storageTypes {
		if c.Storage.Type == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Ingestion.RetryCount < 1 {
		return fmt.Errorf("RETRY_COUNT must be at least 1")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

// RequireCheck reports missing Check credentials
func (c *CheckConfig) RequireCheck() error {
	if c.Team == "" {
		return fmt.Errorf("CHECK_TEAM is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("CHECK_API_KEY is required")
	}
	if c.Host == "" {
		return fmt.Errorf("CHECK_HOST is required")
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
