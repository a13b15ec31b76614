// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Source        SourceConfig       `mapstructure:"source"`
	Relevance     RelevanceConfig    `mapstructure:"relevance"`
	Sync          SyncConfig         `mapstructure:"sync"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Matching      MatchingConfig     `mapstructure:"matching"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds the operational HTTP endpoint settings (health, metrics).
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Domain Configuration Sections ---

// SourceConfig holds settings for the external listing source.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	AppID          string `mapstructure:"app_id"`
	AppKey         string `mapstructure:"app_key"`
	Country        string `mapstructure:"country"`
	ResultsPerPage int    `mapstructure:"results_per_page"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
	MaxRetries     int    `mapstructure:"max_retries"`
}

// RelevanceConfig holds settings for the remote relevance service.
type RelevanceConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Tenant     string `mapstructure:"tenant"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

// SyncConfig holds ingestion settings.
type SyncConfig struct {
	MaxPages           int      `mapstructure:"max_pages"`
	ExpiryDays         int      `mapstructure:"expiry_days"`
	RefreshTime        string   `mapstructure:"refresh_time"` // HH:MM, UTC
	BulkCategories     []string `mapstructure:"bulk_categories"`
	CategoryPause      int      `mapstructure:"category_pause"` // milliseconds
	RetentionDays      int      `mapstructure:"retention_days"`
	MinQueryTextLength int      `mapstructure:"min_query_text_length"`
}

// CacheConfig holds result-cache settings.
type CacheConfig struct {
	ExpiryHours int `mapstructure:"expiry_hours"`
}

// MatchingConfig holds query-time matching settings.
type MatchingConfig struct {
	MaxResults int `mapstructure:"max_results"`
}

// NotificationConfig holds settings for the digest email sweep.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		TopJobs   int    `mapstructure:"top_jobs"`
	} `mapstructure:"email"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// SchedulerConfig holds cron trigger settings.
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DigestHour     int    `mapstructure:"digest_hour"`
	WeeklyDay      string `mapstructure:"weekly_day"`
	BiweeklyDays   string `mapstructure:"biweekly_days"`
	RunSyncOnStart bool   `mapstructure:"run_sync_on_start"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
