package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	OBSUsername string `mapstructure:"OBS_USERNAME"`
	OBSPassword string `mapstructure:"OBS_PASSWORD"`
	OBSBaseURL  string `mapstructure:"OBS_BASE_URL"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `mapstructure:"TELEGRAM_CHAT_ID"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModels string `mapstructure:"GEMINI_MODELS"` // comma-separated fallback order

	CheckIntervalMinutes int    `mapstructure:"CHECK_INTERVAL"`
	LoginRetries         int    `mapstructure:"LOGIN_RETRIES"`
	PageTimeoutSeconds   int    `mapstructure:"PAGE_TIMEOUT_SECONDS"`
	Headless             bool   `mapstructure:"HEADLESS"`
	SnapshotBackend      string `mapstructure:"SNAPSHOT_BACKEND"` // 'file' or 'redis'
	CacheFile            string `mapstructure:"CACHE_FILE"`
	RedisAddr            string `mapstructure:"REDIS_ADDR"`
	PostgresURL          string `mapstructure:"POSTGRES_URL"`
	MetricsAddr          string `mapstructure:"METRICS_ADDR"`
}

// Load reads configuration from a .env file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	// Required keys get empty defaults so the env override is picked up
	// during Unmarshal; Validate catches the ones still empty.
	viper.SetDefault("OBS_USERNAME", "")
	viper.SetDefault("OBS_PASSWORD", "")
	viper.SetDefault("TELEGRAM_BOT_TOKEN", "")
	viper.SetDefault("TELEGRAM_CHAT_ID", 0)
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GEMINI_MODELS", "")
	viper.SetDefault("POSTGRES_URL", "")
	viper.SetDefault("METRICS_ADDR", "")

	viper.SetDefault("OBS_BASE_URL", "https://obs.btu.edu.tr")
	viper.SetDefault("CHECK_INTERVAL", 30) // minutes
	viper.SetDefault("LOGIN_RETRIES", 2)
	viper.SetDefault("PAGE_TIMEOUT_SECONDS", 15)
	viper.SetDefault("HEADLESS", true)
	viper.SetDefault("SNAPSHOT_BACKEND", "file")
	viper.SetDefault("CACHE_FILE", "grades_cache.json")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing required variable by name; optional
// integrations (Gemini, Postgres, metrics) are not checked.
func (c *Config) Validate() error {
	var missing []string
	if c.OBSUsername == "" {
		missing = append(missing, "OBS_USERNAME")
	}
	if c.OBSPassword == "" {
		missing = append(missing, "OBS_PASSWORD")
	}
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.TelegramChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.SnapshotBackend != "file" && c.SnapshotBackend != "redis" {
		return fmt.Errorf("SNAPSHOT_BACKEND must be 'file' or 'redis', got %q", c.SnapshotBackend)
	}
	return nil
}

// LoginURL is the portal's login page.
func (c *Config) LoginURL() string {
	return c.OBSBaseURL + "/oibs/std/login.aspx"
}

// GradesURL is the "Not Listesi" page.
func (c *Config) GradesURL() string {
	return c.OBSBaseURL + "/oibs/std/index.aspx?curOp=0"
}

// GeminiModelList splits the configured fallback order; empty means use the
// built-in default list.
func (c *Config) GeminiModelList() []string {
	if strings.TrimSpace(c.GeminiModels) == "" {
		return nil
	}
	parts := strings.Split(c.GeminiModels, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			models = append(models, p)
		}
	}
	return models
}
