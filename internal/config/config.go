package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/newthinker/quantbench/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours" validate:"gte=0"`
	MaxJobs     int    `mapstructure:"max_jobs" validate:"gte=0"`
}

// BacktestConfig holds the engine defaults applied when a request does not
// override them.
type BacktestConfig struct {
	PriceField   string  `mapstructure:"price_field" validate:"omitempty,oneof=adj_close close"`
	RiskFreeRate float64 `mapstructure:"risk_free_rate" validate:"gte=0,lt=1"`
	SharpePeriod string  `mapstructure:"sharpe_period" validate:"omitempty,oneof=daily yearly"`
}

// OutputConfig names the files written by the backtest command.
type OutputConfig struct {
	WorkDir     string `mapstructure:"work_dir"`
	ResultsFile string `mapstructure:"results_file"`
	MetricsFile string `mapstructure:"metrics_file"`
}

type StorageConfig struct {
	Artifacts ArtifactConfig `mapstructure:"artifacts"`
	Runs      RunsConfig     `mapstructure:"runs"`
}

type ArtifactConfig struct {
	Type string   `mapstructure:"type" validate:"omitempty,oneof=localfs s3"` // "localfs" or "s3"
	Path string   `mapstructure:"path"`                                       // For localfs
	S3   S3Config `mapstructure:"s3"`                                         // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// RunsConfig points at the SQLite run history. An empty DSN disables it.
type RunsConfig struct {
	DSN string `mapstructure:"dsn"`
}

// FetchConfig controls the price downloader.
type FetchConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Retries   int           `mapstructure:"retries" validate:"gte=0,lte=10"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"` // requests per second
}

type LLMConfig struct {
	Provider string       `mapstructure:"provider" validate:"omitempty,oneof=claude openai"`
	Claude   ClaudeConfig `mapstructure:"claude"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
}

type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// NotifyConfig lists where run completion events are sent. A notifier
// without its URL or token is disabled.
type NotifyConfig struct {
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url" validate:"omitempty,url"`
	Headers map[string]string `mapstructure:"headers"`
	Retries int               `mapstructure:"retries" validate:"gte=0,lte=10"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	BaseURL  string `mapstructure:"base_url"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file, layered over Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("QUANTBENCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Backtest: BacktestConfig{
			PriceField:   "adj_close",
			RiskFreeRate: 0.02,
			SharpePeriod: "daily",
		},
		Output: OutputConfig{
			WorkDir:     ".",
			ResultsFile: "backtest_results",
			MetricsFile: "backtest_metrics.txt",
		},
		Storage: StorageConfig{
			Artifacts: ArtifactConfig{
				Type: "localfs",
				Path: "./data/runs",
			},
		},
		Fetch: FetchConfig{
			BaseURL:   "https://query1.finance.yahoo.com",
			Timeout:   30 * time.Second,
			Retries:   3,
			RateLimit: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var validate = validator.New()

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	if c.Storage.Artifacts.Type == "s3" && c.Storage.Artifacts.S3.Bucket == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("s3 bucket required when artifacts type is s3"))
	}

	// LLM validation - if provider set, check config exists
	switch c.LLM.Provider {
	case "claude":
		if c.LLM.Claude.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("claude api_key required when provider is claude"))
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("openai api_key required when provider is openai"))
		}
	}

	if c.Notify.Telegram.BotToken != "" && c.Notify.Telegram.ChatID == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("telegram chat_id required when bot_token is set"))
	}

	return nil
}
