// Package config loads and validates application configuration from
// config.yaml, PEANUT_* environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DiscordConfig holds settings for the chat platform connection.
type DiscordConfig struct {
	Token           string   `mapstructure:"token"             validate:"required"`
	AllowedGuildIDs []string `mapstructure:"allowed_guild_ids"`
	BotIDs          []string `mapstructure:"bot_ids"`
}

// CollectorConfig holds message collection tuning parameters.
type CollectorConfig struct {
	Interval    time.Duration `mapstructure:"interval"     validate:"min=1m"`
	PageSize    int           `mapstructure:"page_size"    validate:"min=1,max=100"`
	BatchSize   int           `mapstructure:"batch_size"   validate:"min=1"`
	MaxBackfill int           `mapstructure:"max_backfill" validate:"min=1"`
}

// DatabaseConfig holds storage settings. PathTemplate must contain a single
// %s placeholder which is replaced by the tenant (guild) ID.
type DatabaseConfig struct {
	PathTemplate string `mapstructure:"path_template" validate:"required,contains=%s"`
}

// LLMConfig holds settings for the OpenAI-compatible generation backend.
type LLMConfig struct {
	APIURL      string        `mapstructure:"api_url"     validate:"required,url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `mapstructure:"max_tokens"  validate:"min=1"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// SearchConfig holds relevance search settings.
type SearchConfig struct {
	// Stopwords overrides the built-in stop-word list when non-empty.
	Stopwords []string `mapstructure:"stopwords"`
}

// Config is the root application configuration.
type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord"`
	Collector CollectorConfig `mapstructure:"collector"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Log       LogConfig       `mapstructure:"log"`
	Search    SearchConfig    `mapstructure:"search"`
}

// Load reads configuration from the given file path (or ./config.yaml when
// empty), applies defaults and environment overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PEANUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine when relying on env vars; an explicit
		// path that cannot be read is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default are still registered so environment
	// overrides bind when no config file is present.
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.allowed_guild_ids", []string{})
	v.SetDefault("discord.bot_ids", []string{})
	v.SetDefault("llm.api_key", "")
	v.SetDefault("search.stopwords", []string{})

	v.SetDefault("collector.interval", 3*time.Hour)
	v.SetDefault("collector.page_size", 100)
	v.SetDefault("collector.batch_size", 50)
	v.SetDefault("collector.max_backfill", 1000)

	v.SetDefault("database.path_template", "data/messages_%s.db")

	v.SetDefault("llm.api_url", "http://localhost:1234/v1")
	v.SetDefault("llm.model", "local")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 3*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
