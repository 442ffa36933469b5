package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"econindex/internal/logging"
	"econindex/internal/model"
	"econindex/internal/rebase"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Rebase    RebaseConfig    `mapstructure:"rebase"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// SchedulerConfig governs how often the pipeline is re-run.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SourcesConfig lists the upstream producers.
type SourcesConfig struct {
	WorldBank WorldBankConfig   `mapstructure:"worldbank"`
	CSV       []CSVSourceConfig `mapstructure:"csv"`
}

// WorldBankConfig covers the World Bank indicators API.
type WorldBankConfig struct {
	Enabled        bool                    `mapstructure:"enabled"`
	BaseURL        string                  `mapstructure:"base_url"`
	PerPage        int                     `mapstructure:"per_page"`
	RequestTimeout time.Duration           `mapstructure:"request_timeout"`
	FXIndicator    string                  `mapstructure:"fx_indicator"`
	Series         []WorldBankSeriesConfig `mapstructure:"series"`
}

// WorldBankSeriesConfig maps one WB indicator code onto an indicator type.
type WorldBankSeriesConfig struct {
	Code      string `mapstructure:"code"`
	Indicator string `mapstructure:"indicator"`
	Unit      string `mapstructure:"unit"`
}

// CSVSourceConfig describes a bulk-download file.
type CSVSourceConfig struct {
	Name          string            `mapstructure:"name"`
	Path          string            `mapstructure:"path"`
	Indicator     string            `mapstructure:"indicator"`
	Unit          string            `mapstructure:"unit"`
	CountryColumn string            `mapstructure:"country_column"`
	NameColumn    string            `mapstructure:"name_column"`
	PeriodColumn  string            `mapstructure:"period_column"`
	ValueColumn   string            `mapstructure:"value_column"`
	Delimiter     string            `mapstructure:"delimiter"`
	CountryCodes  map[string]string `mapstructure:"country_codes"`
}

// MergeConfig declares primary/fallback pairs per indicator.
type MergeConfig struct {
	Pairs []MergePairConfig `mapstructure:"pairs"`
}

// MergePairConfig is one {indicator: (primary, fallback|none)} declaration.
type MergePairConfig struct {
	Indicator string `mapstructure:"indicator"`
	Primary   string `mapstructure:"primary"`
	Fallback  string `mapstructure:"fallback"`
}

// PipelineConfig tunes the normalization run.
type PipelineConfig struct {
	Workers           int          `mapstructure:"workers"`
	ReferenceFile     string       `mapstructure:"redenominations_file"`
	ConvertIndicators []string     `mapstructure:"convert_indicators"`
	EmitFX            bool         `mapstructure:"emit_fx"`
	RoundCommon       int32        `mapstructure:"round_common"`
	RoundIndex        int32        `mapstructure:"round_index"`
	Sparse            SparseConfig `mapstructure:"sparse"`
}

// SparseConfig drops thin series.
type SparseConfig struct {
	Indicators []string `mapstructure:"indicators"`
	MinPoints  int      `mapstructure:"min_points"`
}

// RebaseConfig selects the base year and value column of a run.
type RebaseConfig struct {
	Policy      string `mapstructure:"policy"`
	BaseYear    int    `mapstructure:"base_year"`
	ValueColumn string `mapstructure:"value_column"`
}

// AnomalyConfig controls the discontinuity guard.
type AnomalyConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	JumpFactor float64 `mapstructure:"jump_factor"`
}

// AlertingConfig routes anomaly reports.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot parameters.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets chart export behaviour.
type ExportConfig struct {
	Width        int `mapstructure:"width"`
	Height       int `mapstructure:"height"`
	MaxCountries int `mapstructure:"max_countries"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ECONINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "econindex")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x65636f6e))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("sources.worldbank.enabled", true)
	v.SetDefault("sources.worldbank.base_url", "https://api.worldbank.org/v2")
	v.SetDefault("sources.worldbank.per_page", 20000)
	v.SetDefault("sources.worldbank.request_timeout", "60s")
	v.SetDefault("sources.worldbank.fx_indicator", "PA.NUS.FCRF")
	v.SetDefault("sources.worldbank.series", []map[string]any{
		{"code": "FP.CPI.TOTL", "indicator": "cpi", "unit": "index 2010=100"},
	})

	v.SetDefault("merge.pairs", []map[string]any{
		{"indicator": "wage", "primary": "ilostat", "fallback": "oecd"},
	})

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.redenominations_file", "")
	v.SetDefault("pipeline.convert_indicators", []string{"wage"})
	v.SetDefault("pipeline.emit_fx", true)
	v.SetDefault("pipeline.round_common", 4)
	v.SetDefault("pipeline.round_index", 2)
	v.SetDefault("pipeline.sparse.indicators", []string{"wage"})
	v.SetDefault("pipeline.sparse.min_points", 3)

	v.SetDefault("rebase.policy", "fixed")
	v.SetDefault("rebase.base_year", 2016)
	v.SetDefault("rebase.value_column", "local")

	v.SetDefault("anomaly.enabled", true)
	v.SetDefault("anomaly.jump_factor", 50.0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 720)
	v.SetDefault("export.max_countries", 8)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1")
	}
	if c.Pipeline.RoundCommon < 0 || c.Pipeline.RoundIndex < 0 {
		return fmt.Errorf("pipeline.round_common and pipeline.round_index cannot be negative")
	}
	if c.Pipeline.Sparse.MinPoints < 0 {
		return fmt.Errorf("pipeline.sparse.min_points cannot be negative")
	}
	for _, name := range append(append([]string{}, c.Pipeline.ConvertIndicators...), c.Pipeline.Sparse.Indicators...) {
		if _, err := model.ParseIndicatorType(name); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	for _, name := range c.Pipeline.ConvertIndicators {
		if t, _ := model.ParseIndicatorType(name); !t.CurrencyDenominated() {
			return fmt.Errorf("pipeline.convert_indicators: %s is not currency-denominated", t)
		}
	}

	policy, err := rebase.ParsePolicy(c.Rebase.Policy)
	if err != nil {
		return fmt.Errorf("rebase.policy: %w", err)
	}
	if policy == rebase.PolicyFixed && c.Rebase.BaseYear <= 0 {
		return fmt.Errorf("rebase.base_year is required for the fixed policy")
	}
	if _, err := model.ParseValueColumn(c.Rebase.ValueColumn); err != nil {
		return fmt.Errorf("rebase.value_column: %w", err)
	}

	for i, pair := range c.Merge.Pairs {
		if _, err := model.ParseIndicatorType(pair.Indicator); err != nil {
			return fmt.Errorf("merge.pairs[%d]: %w", i, err)
		}
		if pair.Primary == "" {
			return fmt.Errorf("merge.pairs[%d].primary is required", i)
		}
	}

	if c.Sources.WorldBank.Enabled {
		if c.Sources.WorldBank.PerPage < 1 {
			return fmt.Errorf("sources.worldbank.per_page must be >= 1")
		}
		for i, s := range c.Sources.WorldBank.Series {
			if s.Code == "" {
				return fmt.Errorf("sources.worldbank.series[%d].code is required", i)
			}
			if _, err := model.ParseIndicatorType(s.Indicator); err != nil {
				return fmt.Errorf("sources.worldbank.series[%d]: %w", i, err)
			}
		}
	}
	for i, src := range c.Sources.CSV {
		if src.Name == "" || src.Path == "" {
			return fmt.Errorf("sources.csv[%d] requires name and path", i)
		}
		if _, err := model.ParseIndicatorType(src.Indicator); err != nil {
			return fmt.Errorf("sources.csv[%d]: %w", i, err)
		}
	}

	if c.Anomaly.Enabled && c.Anomaly.JumpFactor <= 1 {
		return fmt.Errorf("anomaly.jump_factor must be greater than 1")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		return fmt.Errorf("export.width and export.height must be greater than zero")
	}
	return nil
}

// IndicatorList parses a list of indicator names.
func IndicatorList(names []string) ([]model.IndicatorType, error) {
	out := make([]model.IndicatorType, 0, len(names))
	for _, name := range names {
		t, err := model.ParseIndicatorType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Selector returns the configured base-year selector.
func (c *Config) Selector() rebase.Selector {
	policy, _ := rebase.ParsePolicy(c.Rebase.Policy)
	return rebase.Selector{Policy: policy, Year: c.Rebase.BaseYear}
}

// Column returns the configured rebasing value column.
func (c *Config) Column() model.ValueColumn {
	column, _ := model.ParseValueColumn(c.Rebase.ValueColumn)
	return column
}
