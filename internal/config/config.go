package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the settings tree read from config.yaml and MARKETMAP_* variables.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Meili     MeiliConfig     `yaml:"meili" mapstructure:"meili"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the dataset and the pipeline's state files.
type DataConfig struct {
	Dataset       string `yaml:"dataset" mapstructure:"dataset"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	SourcesDir    string `yaml:"sources_dir" mapstructure:"sources_dir"`
	GeocacheFile  string `yaml:"geocache_file" mapstructure:"geocache_file"`
	ManifestFile  string `yaml:"manifest_file" mapstructure:"manifest_file"`
	ReportFile    string `yaml:"report_file" mapstructure:"report_file"`
	ProvinceCache string `yaml:"province_cache_file" mapstructure:"province_cache_file"`
	RunsFile      string `yaml:"runs_file" mapstructure:"runs_file"`
	RulesFile     string `yaml:"rules_file" mapstructure:"rules_file"`
}

// Path joins name onto the data directory unless it is already absolute.
func (d DataConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// SourcePath joins name onto the sources directory unless it is already
// absolute.
func (d DataConfig) SourcePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.SourcesPath(), name)
}

// SourcesPath is the directory holding fetched pages.
func (d DataConfig) SourcesPath() string {
	return d.Path(d.SourcesDir)
}

// StoreConfig configures the state backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FetchConfig configures source page downloads.
type FetchConfig struct {
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	DelayMs      int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	CooldownMs   int    `yaml:"cooldown_ms" mapstructure:"cooldown_ms"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// NominatimConfig configures geocoding.
type NominatimConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	Country      string `yaml:"country" mapstructure:"country"`
	CountryCodes string `yaml:"country_codes" mapstructure:"country_codes"`
	DelayMs      int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	CooldownMs   int    `yaml:"cooldown_ms" mapstructure:"cooldown_ms"`
}

// AnthropicConfig configures semantic verification.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	Model            string `yaml:"model" mapstructure:"model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	DelayMs          int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	CircuitThreshold int    `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
}

// MeiliConfig configures the search index.
type MeiliConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Key   string `yaml:"key" mapstructure:"key"`
	Index string `yaml:"index" mapstructure:"index"`
}

// ServerConfig configures the reindex webhook server.
type ServerConfig struct {
	Port                int    `yaml:"port" mapstructure:"port"`
	ReindexToken        string `yaml:"reindex_token" mapstructure:"reindex_token"`
	ReindexIntervalSecs int    `yaml:"reindex_interval_secs" mapstructure:"reindex_interval_secs"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load merges defaults, an optional ./config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// ./config.yaml
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// MARKETMAP_FETCH_DELAY_MS overrides fetch.delay_ms, and so on.
	v.SetEnvPrefix("MARKETMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data.dataset", "static/weekly_markets_netherlands.json")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.sources_dir", "sources")
	v.SetDefault("data.geocache_file", "geocache.json")
	v.SetDefault("data.manifest_file", "sources/manifest.json")
	v.SetDefault("data.report_file", "sources/ai-report.json")
	v.SetDefault("data.province_cache_file", "province-cache.json")
	v.SetDefault("data.runs_file", "runs.json")
	v.SetDefault("data.rules_file", "")
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.database_url", "")
	v.SetDefault("fetch.user_agent", "MarketMap/1.0 (source-verification-script)")
	v.SetDefault("fetch.delay_ms", 1100)
	v.SetDefault("fetch.cooldown_ms", 5000)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "MarketMap/1.0 (geocoding script)")
	v.SetDefault("nominatim.country", "Netherlands")
	v.SetDefault("nominatim.country_codes", "nl")
	v.SetDefault("nominatim.delay_ms", 1100)
	v.SetDefault("nominatim.cooldown_ms", 5000)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_retries", 3)
	v.SetDefault("anthropic.delay_ms", 1000)
	v.SetDefault("anthropic.circuit_threshold", 5)
	v.SetDefault("meili.url", "http://localhost:7700")
	v.SetDefault("meili.key", "")
	v.SetDefault("meili.index", "markets")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.reindex_token", "")
	v.SetDefault("server.reindex_interval_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// A missing file is fine; a broken one is not.
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

// Validate checks the settings a command needs before it has any side
// effect. mode is the command being run.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch c.Store.Driver {
	case "file", "sqlite":
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	default:
		errs = append(errs, "store.driver must be one of file, sqlite, postgres")
	}

	switch mode {
	case "fetch", "compare":
		require(c.Data.Dataset != "", "data.dataset is required")
		require(c.Fetch.MaxBodyBytes > 0, "fetch.max_body_bytes must be > 0")
	case "geocode", "provinces":
		require(c.Data.Dataset != "", "data.dataset is required")
		require(c.Nominatim.BaseURL != "", "nominatim.base_url is required")
		require(c.Nominatim.UserAgent != "", "nominatim.user_agent is required")
	case "validate":
		require(c.Data.Dataset != "", "data.dataset is required")
	case "verify":
		require(c.Data.Dataset != "", "data.dataset is required")
		require(c.Anthropic.Key != "", "anthropic.key is required")
		require(c.Anthropic.MaxTokens > 0, "anthropic.max_tokens must be > 0")
	case "publish":
		require(c.Data.Dataset != "", "data.dataset is required")
		require(c.Meili.URL != "", "meili.url is required")
	case "serve":
		require(c.Meili.URL != "", "meili.url is required")
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Server.ReindexToken != "", "server.reindex_token is required")
		require(c.Server.ReindexIntervalSecs >= 0, "server.reindex_interval_secs must be >= 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger builds the global zap logger from cfg and installs it.
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
