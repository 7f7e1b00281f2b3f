package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Event source kinds
const (
	SourceREST     = "rest"
	SourcePostgres = "postgres"
)

// Config represents application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Backend  BackendConfig  `json:"backend"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Cache    CacheConfig    `json:"cache"`
	Security SecurityConfig `json:"security"`
	Report   ReportConfig   `json:"report"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

// BackendConfig represents where change logs are read from
type BackendConfig struct {
	Source   string        `json:"source"` // rest, postgres
	BaseURL  string        `json:"base_url"`
	Timeout  time.Duration `json:"timeout"`
	Timezone string        `json:"timezone"`
}

// DatabaseConfig represents the backend database, used by the postgres source
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"dbname"`
	SSLMode        string        `json:"sslmode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	URL string `json:"url"`
}

// CacheConfig represents the backend response cache
type CacheConfig struct {
	Enabled bool          `json:"enabled"`
	TTL     time.Duration `json:"ttl"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AuthEnabled       bool          `json:"auth_enabled"`
	JWTSecret         string        `json:"jwt_secret"`
	CORSOrigins       []string      `json:"cors_origins"`
	CORSCredentials   bool          `json:"cors_credentials"`
	RateLimitEnabled  bool          `json:"rate_limit_enabled"`
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
}

// ReportConfig represents report rendering configuration
type ReportConfig struct {
	Timezone          string   `json:"timezone"`
	DiffIgnoredFields []string `json:"diff_ignored_fields"`
	MissingEqualsNull bool     `json:"missing_equals_null"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json, text
}

// Load loads configuration from environment variables and defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Backend: BackendConfig{
			Source:   strings.ToLower(getEnv("EVENT_SOURCE", SourceREST)),
			BaseURL:  getEnv("BACKEND_BASE_URL", "http://localhost:8000/api"),
			Timeout:  getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
			Timezone: getEnv("BACKEND_TIMEZONE", "UTC"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvInt("DB_PORT", 5432),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			DBName:         getEnv("DB_NAME", "backend"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleTime:    getEnvDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			ConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", false),
			TTL:     getEnvDuration("CACHE_TTL", 30*time.Second),
		},
		Security: SecurityConfig{
			AuthEnabled:       getEnvBool("AUTH_ENABLED", false),
			JWTSecret:         getEnv("JWT_SECRET", ""),
			CORSOrigins:       getEnvSlice("CORS_ORIGINS", []string{"*"}),
			CORSCredentials:   getEnvBool("CORS_CREDENTIALS", false),
			RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", false),
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Report: ReportConfig{
			Timezone:          getEnv("REPORT_TIMEZONE", "Local"),
			DiffIgnoredFields: getEnvSlice("DIFF_IGNORED_FIELDS", []string{"updated_at"}),
			MissingEqualsNull: getEnvBool("DIFF_MISSING_EQUALS_NULL", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Backend.Source {
	case SourceREST:
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend base URL must be an absolute URL, got %q", c.Backend.BaseURL)
		}
	case SourcePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unknown event source %q, expected %s or %s", c.Backend.Source, SourceREST, SourcePostgres)
	}

	if _, err := c.BackendLocation(); err != nil {
		return fmt.Errorf("invalid backend timezone: %w", err)
	}
	if _, err := c.ReportLocation(); err != nil {
		return fmt.Errorf("invalid report timezone: %w", err)
	}

	if c.Security.AuthEnabled && c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required when auth is enabled")
	}

	if (c.Cache.Enabled || c.Security.RateLimitEnabled) && c.Redis.URL == "" {
		return fmt.Errorf("Redis URL is required when caching or rate limiting is enabled")
	}

	return nil
}

// GetDatabaseURL returns the database connection URL
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
		int(c.Database.ConnectTimeout.Seconds()),
	)
}

// BackendLocation is the zone of timestamps the backend writes without an offset
func (c *Config) BackendLocation() (*time.Location, error) {
	return time.LoadLocation(c.Backend.Timezone)
}

// ReportLocation is the default viewer zone for day grouping
func (c *Config) ReportLocation() (*time.Location, error) {
	return time.LoadLocation(c.Report.Timezone)
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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

// getEnvSlice reads a comma-separated list. "-" yields an empty list.
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "-" {
		return []string{}
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
