// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like SOURCE_APP_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or any parent that
// holds go.mod, so tests under internal/... pick it up too.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from plain environment variables when
// the yaml left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Source.AppID == "" {
		if val := os.Getenv("SOURCE_APP_ID"); val != "" {
			cfg.Source.AppID = val
		}
	}
	if cfg.Source.AppKey == "" {
		if val := os.Getenv("SOURCE_APP_KEY"); val != "" {
			cfg.Source.AppKey = val
		}
	}

	if cfg.Relevance.APIKey == "" {
		if val := os.Getenv("RELEVANCE_API_KEY"); val != "" {
			cfg.Relevance.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = "https://api.adzuna.com/v1/api"
	}
	if cfg.Source.Country == "" {
		cfg.Source.Country = "us"
	}
	if cfg.Source.ResultsPerPage == 0 {
		cfg.Source.ResultsPerPage = 50
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 30000
	}
	if cfg.Source.MaxRetries == 0 {
		cfg.Source.MaxRetries = 2
	}

	if cfg.Relevance.Timeout == 0 {
		cfg.Relevance.Timeout = 15000
	}
	if cfg.Relevance.MaxRetries == 0 {
		cfg.Relevance.MaxRetries = 3
	}

	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 20
	}
	if cfg.Sync.ExpiryDays == 0 {
		cfg.Sync.ExpiryDays = 30
	}
	if cfg.Sync.RefreshTime == "" {
		cfg.Sync.RefreshTime = "03:00"
	}
	if cfg.Sync.CategoryPause == 0 {
		cfg.Sync.CategoryPause = 2000
	}
	if cfg.Sync.RetentionDays == 0 {
		cfg.Sync.RetentionDays = 90
	}
	if cfg.Sync.MinQueryTextLength == 0 {
		cfg.Sync.MinQueryTextLength = 20
	}

	if cfg.Cache.ExpiryHours == 0 {
		cfg.Cache.ExpiryHours = 24
	}

	if cfg.Matching.MaxResults == 0 {
		cfg.Matching.MaxResults = 50
	}

	if cfg.Notifications.Email.TopJobs == 0 {
		cfg.Notifications.Email.TopJobs = 10
	}
	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = "us-east-1"
	}

	if cfg.Scheduler.DigestHour == 0 {
		cfg.Scheduler.DigestHour = 10
	}
	if cfg.Scheduler.WeeklyDay == "" {
		cfg.Scheduler.WeeklyDay = "TUE"
	}
	if cfg.Scheduler.BiweeklyDays == "" {
		cfg.Scheduler.BiweeklyDays = "TUE,THU"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Source.AppID == "" || cfg.Source.AppKey == "" {
		return fmt.Errorf("source.app_id and source.app_key are required")
	}

	if _, err := ParseRefreshTime(cfg.Sync.RefreshTime); err != nil {
		return fmt.Errorf("sync.refresh_time: %w", err)
	}

	return nil
}

// ParseRefreshTime parses an HH:MM clock time.
func ParseRefreshTime(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t, nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
