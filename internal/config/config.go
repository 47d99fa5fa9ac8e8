package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Kyiv must resolve on minimal images.

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"uah-rates-bot/internal/logging"
	"uah-rates-bot/internal/version"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// HistoryConfig bounds the rate history log.
type HistoryConfig struct {
	MaxEntries   int           `mapstructure:"max_entries"`
	ChangeWindow time.Duration `mapstructure:"change_window"`
}

// SchedulerConfig governs the two background loops. Their intervals are
// independent even though both default to five minutes.
type SchedulerConfig struct {
	IngestInterval  time.Duration `mapstructure:"ingest_interval"`
	AlertInterval   time.Duration `mapstructure:"alert_interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SourcesConfig covers the external rate providers.
type SourcesConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	NBUURL         string        `mapstructure:"nbu_url"`
	MonobankURL    string        `mapstructure:"monobank_url"`
	PrivatBankURL  string        `mapstructure:"privatbank_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timezone       string        `mapstructure:"timezone"`
}

// TelegramConfig describes the bot connection.
type TelegramConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	BotToken    string  `mapstructure:"bot_token"`
	APIBase     string  `mapstructure:"api_base"`
	AdminIDs    []int64 `mapstructure:"admin_ids"`
	PollTimeout int     `mapstructure:"poll_timeout"`
}

// AlertingConfig toggles the evaluator and bounds delivery.
type AlertingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// HTTPConfig configures the read-only JSON API.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATEBOT")
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
	v.SetDefault("app.name", "ratebot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "data/ratebot.db")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 2)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("history.max_entries", 1000)
	v.SetDefault("history.change_window", "2h")

	v.SetDefault("scheduler.ingest_interval", "5m")
	v.SetDefault("scheduler.alert_interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x72617465))

	v.SetDefault("sources.request_timeout", "10s")
	v.SetDefault("sources.nbu_url", "https://bank.gov.ua/NBUStatService/v1/statdirectory/exchange?json")
	v.SetDefault("sources.monobank_url", "https://api.monobank.ua/bank/currency")
	v.SetDefault("sources.privatbank_url", "https://api.privatbank.ua/p24api/pubinfo?exchange&coursid=5")
	v.SetDefault("sources.user_agent", version.UserAgent())
	v.SetDefault("sources.timezone", "Europe/Kyiv")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.poll_timeout", 60)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.send_timeout", "10s")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("export.max_data_points", 2000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToInt64SliceHook(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// stringToInt64SliceHook splits env lists such as RATEBOT_TELEGRAM_ADMIN_IDS=11,22.
func stringToInt64SliceHook() mapstructure.DecodeHookFuncType {
	int64Slice := reflect.TypeOf([]int64(nil))
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != int64Slice {
			return data, nil
		}
		raw := strings.TrimSpace(reflect.ValueOf(data).String())
		if raw == "" {
			return []int64{}, nil
		}
		parts := strings.Split(raw, ",")
		ids := make([]int64, 0, len(parts))
		for _, part := range parts {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q as int64: %w", part, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Storage.Driver)
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries must be greater than zero")
	}
	if c.History.ChangeWindow <= 0 {
		return fmt.Errorf("history.change_window must be greater than zero")
	}
	if c.Scheduler.IngestInterval <= 0 {
		return fmt.Errorf("scheduler.ingest_interval must be greater than zero")
	}
	if c.Scheduler.AlertInterval <= 0 {
		return fmt.Errorf("scheduler.alert_interval must be greater than zero")
	}
	if c.Sources.RequestTimeout <= 0 {
		return fmt.Errorf("sources.request_timeout must be greater than zero")
	}
	if _, err := time.LoadLocation(c.Sources.Timezone); err != nil {
		return fmt.Errorf("sources.timezone: %w", err)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token must be set when telegram.enabled is true")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// Location resolves the configured display timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sources.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin reports whether the Telegram user may edit the exchanger directory.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
