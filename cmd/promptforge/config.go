package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/quota"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/scheduler"
)

const envPrefix = "PROMPTFORGE"

// Config holds all promptforge configuration.
// Priority: env vars > config file > defaults.
type Config struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	DBPath      string        `mapstructure:"db_path"`
	LogLevel    string        `mapstructure:"log_level"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	Claude struct {
		APIKey    string `mapstructure:"api_key"`
		BaseURL   string `mapstructure:"base_url"`
		Model     string `mapstructure:"model"`
		MaxTokens int    `mapstructure:"max_tokens"`
		Version   string `mapstructure:"version"`
	} `mapstructure:"claude"`

	Groq struct {
		APIKey      string  `mapstructure:"api_key"`
		BaseURL     string  `mapstructure:"base_url"`
		Model       string  `mapstructure:"model"`
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
	} `mapstructure:"groq"`

	Quota struct {
		MonthlyLimit int    `mapstructure:"monthly_limit"`
		Rule         string `mapstructure:"rule"`
	} `mapstructure:"quota"`

	Retention struct {
		Enabled  bool          `mapstructure:"enabled"`
		Schedule string        `mapstructure:"schedule"`
		MaxAge   time.Duration `mapstructure:"max_age"`
		Vacuum   bool          `mapstructure:"vacuum"`
	} `mapstructure:"retention"`
}

func promptforgeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".promptforge"
	}
	return filepath.Join(home, ".promptforge")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "file:"+filepath.Join(promptforgeDir(), "promptforge.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("http_timeout", 60*time.Second)

	v.SetDefault("claude.api_key", "")
	v.SetDefault("claude.base_url", "https://api.anthropic.com")
	v.SetDefault("claude.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("claude.max_tokens", 1024)
	v.SetDefault("claude.version", "2023-06-01")

	v.SetDefault("groq.api_key", "")
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("groq.max_tokens", 1024)
	v.SetDefault("groq.temperature", 0.7)

	v.SetDefault("quota.monthly_limit", quota.DefaultMonthlyLimit)
	v.SetDefault("quota.rule", quota.DefaultRule)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.schedule", scheduler.DefaultSchedule)
	v.SetDefault("retention.max_age", scheduler.DefaultMaxAge)
	v.SetDefault("retention.vacuum", false)
}

// loadConfig reads configuration into a fresh viper instance. An explicit
// configFile must exist; the default search locations are optional.
func loadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider-standard variable names are accepted too.
	_ = v.BindEnv("claude.api_key", envPrefix+"_CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("groq.api_key", envPrefix+"_GROQ_API_KEY", "GROQ_API_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("promptforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(promptforgeDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ensureDBDir creates the parent directory of a local file database.
func ensureDBDir(dbPath string) error {
	path := strings.TrimPrefix(dbPath, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, "://") || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
