package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Lock      LockConfig      `yaml:"lock" mapstructure:"lock"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Message   MessageConfig   `yaml:"message" mapstructure:"message"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lead database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LockConfig configures the per-key critical section. An empty RedisAddr
// selects the in-process locker.
type LockConfig struct {
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	TTLSecs       int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// LLMConfig configures the text generation / classification backend.
type LLMConfig struct {
	Provider          string `yaml:"provider" mapstructure:"provider"` // anthropic | openai | none
	APIKey            string `yaml:"api_key" mapstructure:"api_key"`
	Model             string `yaml:"model" mapstructure:"model"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold  int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs  int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxRetries        int    `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs  int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// Enabled reports whether an LLM backend is configured.
func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "none" && c.APIKey != ""
}

// ScoringConfig selects the scoring strategy and its qualification threshold.
type ScoringConfig struct {
	Strategy   string  `yaml:"strategy" mapstructure:"strategy"` // heuristic | ai
	Threshold  float64 `yaml:"threshold" mapstructure:"threshold"`
	ConfigPath string  `yaml:"config_path" mapstructure:"config_path"`
}

// FilterConfig configures the competitor filter.
type FilterConfig struct {
	AIEnabled      bool   `yaml:"ai_enabled" mapstructure:"ai_enabled"`
	ExcerptChars   int    `yaml:"excerpt_chars" mapstructure:"excerpt_chars"`
	VocabularyPath string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// NormalizeConfig points at optional mapping overrides and per-platform
// keyword lists used to derive matched_keywords.
type NormalizeConfig struct {
	MappingsPath string              `yaml:"mappings_path" mapstructure:"mappings_path"`
	Keywords     map[string][]string `yaml:"keywords" mapstructure:"keywords"`
}

// MessageConfig configures outreach generation.
type MessageConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	DelayMs          int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	MaxTokens        int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	BatchLimit       int     `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// BatchConfig configures concurrent source processing.
type BatchConfig struct {
	MaxConcurrentSources int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
}

// ExportConfig configures qualified-lead export targets. Empty values
// disable the corresponding target.
type ExportConfig struct {
	XLSXPath     string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	SheetName    string `yaml:"sheet_name" mapstructure:"sheet_name"`
	NotionToken  string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionDBID   string `yaml:"notion_database_id" mapstructure:"notion_database_id"`
	NotionRateHz int    `yaml:"notion_rate_hz" mapstructure:"notion_rate_hz"`

	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// SalesforceConfig holds Salesforce JWT auth settings. An empty ClientID
// disables the CRM target.
type SalesforceConfig struct {
	ClientID   string  `yaml:"client_id" mapstructure:"client_id"`
	Username   string  `yaml:"username" mapstructure:"username"`
	KeyPath    string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string  `yaml:"login_url" mapstructure:"login_url"`
	LeadSource string  `yaml:"lead_source" mapstructure:"lead_source"`
	RateHz     float64 `yaml:"rate_hz" mapstructure:"rate_hz"`
}

// SourcesConfig lists the adapters a run pulls from.
type SourcesConfig struct {
	Files  []FileSourceConfig `yaml:"files" mapstructure:"files"`
	Reddit RedditSourceConfig `yaml:"reddit" mapstructure:"reddit"`
}

// FileSourceConfig is a JSON / JSON-lines dump produced by a scraper.
type FileSourceConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Platform string `yaml:"platform" mapstructure:"platform"`
}

// RedditSourceConfig configures the listing-page adapter.
type RedditSourceConfig struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	Subreddits  []string `yaml:"subreddits" mapstructure:"subreddits"`
	Keywords    []string `yaml:"keywords" mapstructure:"keywords"`
	MaxLeads    int      `yaml:"max_leads" mapstructure:"max_leads"`
	UserAgent   string   `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateHz      float64  `yaml:"rate_hz" mapstructure:"rate_hz"`
}

// ScheduleConfig configures the recurring jobs. An empty MessagesCron
// disables scheduled message generation.
type ScheduleConfig struct {
	Cron         string `yaml:"cron" mapstructure:"cron"`
	MessagesCron string `yaml:"messages_cron" mapstructure:"messages_cron"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leads.db")
	v.SetDefault("store.timeout_secs", 10)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("lock.ttl_secs", 30)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.timeout_secs", 30)
	v.SetDefault("llm.failure_threshold", 5)
	v.SetDefault("llm.reset_timeout_secs", 30)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.initial_backoff_ms", 500)
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("scoring.strategy", "heuristic")
	v.SetDefault("scoring.threshold", 30)
	v.SetDefault("filter.ai_enabled", false)
	v.SetDefault("filter.excerpt_chars", 500)
	v.SetDefault("message.max_attempts", 3)
	v.SetDefault("message.initial_backoff_ms", 1000)
	v.SetDefault("message.delay_ms", 1000)
	v.SetDefault("message.max_tokens", 500)
	v.SetDefault("message.temperature", 0.7)
	v.SetDefault("message.batch_limit", 100)
	v.SetDefault("batch.max_concurrent_sources", 4)
	v.SetDefault("export.sheet_name", "Leads")
	v.SetDefault("export.notion_rate_hz", 3)
	v.SetDefault("export.salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("export.salesforce.rate_hz", 5)
	v.SetDefault("sources.reddit.base_url", "https://old.reddit.com")
	v.SetDefault("sources.reddit.subreddits", []string{"careerguidance", "careeradvice", "jobs", "productivity", "selfimprovement", "getdisciplined"})
	v.SetDefault("sources.reddit.keywords", []string{"stuck", "lost", "burnout", "overwhelmed", "career change", "unfulfilled", "no direction"})
	v.SetDefault("sources.reddit.max_leads", 50)
	v.SetDefault("sources.reddit.user_agent", "lead-cli/1.0")
	v.SetDefault("sources.reddit.timeout_secs", 20)
	v.SetDefault("sources.reddit.rate_hz", 0.5)
	v.SetDefault("schedule.cron", "0 */6 * * *")
	v.SetDefault("server.port", 8080)
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

// Validate checks the settings a command mode depends on. Modes: ingest,
// rescore, query, messages, serve, schedule.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (postgres, sqlite)", c.Store.Driver))
	}

	switch mode {
	case "ingest", "rescore", "serve", "schedule":
		errs = append(errs, c.validateScoring()...)
		if c.Batch.MaxConcurrentSources < 1 || c.Batch.MaxConcurrentSources > 32 {
			errs = append(errs, "batch.max_concurrent_sources must be between 1 and 32")
		}
		if c.Filter.ExcerptChars <= 0 {
			errs = append(errs, "filter.excerpt_chars must be > 0")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "schedule" && c.Schedule.Cron == "" {
			errs = append(errs, "schedule.cron is required")
		}
		if mode == "schedule" && c.Schedule.MessagesCron != "" && !c.LLM.Enabled() {
			errs = append(errs, "schedule.messages_cron requires llm.provider and llm.api_key")
		}
	case "messages":
		if !c.LLM.Enabled() {
			errs = append(errs, "llm.provider and llm.api_key are required for message generation")
		}
		if c.Message.MaxAttempts < 1 {
			errs = append(errs, "message.max_attempts must be >= 1")
		}
		if c.Message.DelayMs < 0 {
			errs = append(errs, "message.delay_ms must be >= 0")
		}
	case "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateScoring() []string {
	var errs []string
	switch c.Scoring.Strategy {
	case "heuristic":
		if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 100 {
			errs = append(errs, "scoring.threshold must be within 0-100 for the heuristic strategy")
		}
	case "ai":
		if !c.LLM.Enabled() {
			errs = append(errs, "llm.provider and llm.api_key are required for the ai strategy")
		}
		if c.Scoring.Threshold < 1 || c.Scoring.Threshold > 10 {
			errs = append(errs, "scoring.threshold must be within 1-10 for the ai strategy")
		}
	default:
		errs = append(errs, fmt.Sprintf("scoring.strategy %q is not supported (heuristic, ai)", c.Scoring.Strategy))
	}
	if c.Filter.AIEnabled && !c.LLM.Enabled() {
		errs = append(errs, "filter.ai_enabled requires llm.provider and llm.api_key")
	}
	return errs
}

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
