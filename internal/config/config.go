package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic      AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract        ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Scrape         ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Rod            RodConfig        `yaml:"rod" mapstructure:"rod"`
	Playwright     PlaywrightConfig `yaml:"playwright" mapstructure:"playwright"`
	BrowserBreaker BreakerConfig    `yaml:"browser_breaker" mapstructure:"browser_breaker"`
	SitePolicy     SitePolicyConfig `yaml:"sitepolicy" mapstructure:"sitepolicy"`
	Submission     SubmissionConfig `yaml:"submission" mapstructure:"submission"`
	Server         ServerConfig     `yaml:"server" mapstructure:"server"`
	Sweeper        SweeperConfig    `yaml:"sweeper" mapstructure:"sweeper"`
	Log            LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds completion service credentials and model choice.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExtractConfig configures structured extraction.
type ExtractConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs      int     `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ScrapeConfig configures the fallback chain shared by every strategy.
type ScrapeConfig struct {
	MinContentChars     int    `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	StaticTimeoutSecs   int    `yaml:"static_timeout_secs" mapstructure:"static_timeout_secs"`
	BrowserTimeoutSecs  int    `yaml:"browser_timeout_secs" mapstructure:"browser_timeout_secs"`
	TotalTimeoutSecs    int    `yaml:"total_timeout_secs" mapstructure:"total_timeout_secs"`
	SettleMs            int    `yaml:"settle_ms" mapstructure:"settle_ms"`
	ScriptHeavySettleMs int    `yaml:"script_heavy_settle_ms" mapstructure:"script_heavy_settle_ms"`
	BlockResources      bool   `yaml:"block_resources" mapstructure:"block_resources"`
	UserAgent           string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RodConfig configures browser A.
type RodConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Bin      string `yaml:"bin" mapstructure:"bin"`
	Headless bool   `yaml:"headless" mapstructure:"headless"`
	Stealth  bool   `yaml:"stealth" mapstructure:"stealth"`
}

// PlaywrightConfig configures browser B.
type PlaywrightConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	Headless bool `yaml:"headless" mapstructure:"headless"`
	Install  bool `yaml:"install" mapstructure:"install"`
}

// BreakerConfig configures the circuit breaker around browser launches.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// SitePolicyConfig adds hosts to the built-in classification lists.
// RulesFile is an optional YAML file with named restricted hosts.
type SitePolicyConfig struct {
	RulesFile        string   `yaml:"rules_file" mapstructure:"rules_file"`
	ExtraRestricted  []string `yaml:"extra_restricted" mapstructure:"extra_restricted"`
	ExtraScriptHeavy []string `yaml:"extra_script_heavy" mapstructure:"extra_script_heavy"`
}

// SubmissionConfig bounds a whole submission.
type SubmissionConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SweeperConfig configures the expiry job.
type SweeperConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so that env overrides reach Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("extract.timeout_secs", 30)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("extract.retry_delay_ms", 1000)
	v.SetDefault("extract.requests_per_second", 2.0)
	v.SetDefault("scrape.min_content_chars", 100)
	v.SetDefault("scrape.static_timeout_secs", 15)
	v.SetDefault("scrape.browser_timeout_secs", 30)
	v.SetDefault("scrape.total_timeout_secs", 90)
	v.SetDefault("scrape.settle_ms", 1500)
	v.SetDefault("scrape.script_heavy_settle_ms", 4000)
	v.SetDefault("scrape.block_resources", true)
	v.SetDefault("scrape.user_agent", "")
	v.SetDefault("rod.enabled", true)
	v.SetDefault("rod.bin", "")
	v.SetDefault("rod.headless", true)
	v.SetDefault("rod.stealth", true)
	v.SetDefault("playwright.enabled", true)
	v.SetDefault("playwright.headless", true)
	v.SetDefault("playwright.install", false)
	v.SetDefault("browser_breaker.failure_threshold", 3)
	v.SetDefault("browser_breaker.reset_timeout_secs", 60)
	v.SetDefault("sitepolicy.rules_file", "")
	v.SetDefault("sitepolicy.extra_restricted", []string{})
	v.SetDefault("sitepolicy.extra_script_heavy", []string{})
	v.SetDefault("submission.timeout_secs", 150)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_minute", 30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@daily")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: "serve",
// "submit", "store" (migrate, expire) and "scrape".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore, needAI := false, false
	switch mode {
	case "serve":
		needStore, needAI = true, true
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "submit":
		needStore, needAI = true, true
	case "store":
		needStore = true
	case "scrape":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needStore {
		switch c.Store.Driver {
		case "postgres", "sqlite":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
		}
	}
	if needAI {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Extract.MaxRetries < 1 {
			errs = append(errs, "extract.max_retries must be >= 1")
		}
	}
	if c.Scrape.MinContentChars < 1 {
		errs = append(errs, "scrape.min_content_chars must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Seconds converts an integer setting to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Millis converts an integer setting to a duration.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
