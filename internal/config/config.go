package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration for the control plane process.
type Config struct {
	Runtime struct {
		Mode         string `mapstructure:"mode" validate:"required,oneof=full ingest process risk trade backtest monitor"`
		CycleTimeout int    `mapstructure:"cycle_timeout_ms" validate:"gt=0"`
		GraceWindow  int    `mapstructure:"grace_window_ms" validate:"gt=0"`
	} `mapstructure:"runtime"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	RiskBudget struct {
		Tiers []EquityTierConfig `mapstructure:"tiers"`
	} `mapstructure:"risk_budget"`

	Health struct {
		StalenessSeconds     map[string]int `mapstructure:"staleness_seconds"`
		DebounceTicks        int            `mapstructure:"debounce_ticks" validate:"gte=1"`
		MetricsWindowSamples int            `mapstructure:"metrics_window_samples" validate:"gt=0"`
	} `mapstructure:"health"`

	Guard struct {
		MaxDeviationPct   float64 `mapstructure:"max_deviation_pct" validate:"gt=0"`
		MaxStalenessSec   int     `mapstructure:"max_staleness_seconds" validate:"gt=0"`
		ReferenceCacheTTL int     `mapstructure:"reference_cache_ttl_seconds" validate:"gte=0"`
	} `mapstructure:"guard"`

	SRC struct {
		MonitorIntervalSeconds   int            `mapstructure:"monitor_interval_seconds" validate:"gt=0"`
		MonitorTimeoutSeconds    int            `mapstructure:"monitor_timeout_seconds" validate:"gt=0"`
		MonitorIntervalOverrides map[string]int `mapstructure:"monitor_interval_overrides_seconds"`
		MonitorTimeoutOverrides  map[string]int `mapstructure:"monitor_timeout_overrides_seconds"`
		RecoveryThresholdPct     float64 `mapstructure:"recovery_threshold_pct"`
		RequireManualResumeSoft  bool    `mapstructure:"require_manual_resume_soft"`
	} `mapstructure:"src"`

	Monitoring struct {
		PrometheusPort int    `mapstructure:"prometheus_port"`
		LogLevel       string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	} `mapstructure:"monitoring"`

	Auth struct {
		JWTSecret     string `mapstructure:"jwt_secret"`
		TokenDuration int    `mapstructure:"token_duration"`
	} `mapstructure:"auth"`

	EventBus struct {
		Driver      string `mapstructure:"driver" validate:"oneof=gochannel nats"`
		NatsURL     string `mapstructure:"nats_url"`
		TopicPrefix string `mapstructure:"topic_prefix"`
	} `mapstructure:"event_bus"`
}

// EquityTierConfig is one row of the per-equity-bucket risk budget table
// ("Capital tiers").
type EquityTierConfig struct {
	MinEquity      float64 `mapstructure:"min_equity"`
	PerTradePct    float64 `mapstructure:"per_trade_pct"`
	DailyPct       float64 `mapstructure:"daily_pct"`
	OpenPct        float64 `mapstructure:"open_pct"`
	DrawdownPct    float64 `mapstructure:"drawdown_pct"`
	MaxPositions   int     `mapstructure:"max_positions"`
}

var (
	cfg  *Config
	once sync.Once
)

// Load reads configuration from configPath (a directory) plus
// CONTROLPLANE_-prefixed environment variables, falling back to defaults,
// and validates the result. A validation failure is the one class of error
// this process treats as fatal at startup.
func Load(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		cfg = &Config{}
		setDefaults()

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/controlplane")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("CONTROLPLANE")

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("read config: %w", readErr)
				return
			}
		}

		if unmarshalErr := v.Unmarshal(cfg); unmarshalErr != nil {
			err = fmt.Errorf("unmarshal config: %w", unmarshalErr)
			return
		}

		if validateErr := validator.New().Struct(cfg); validateErr != nil {
			err = fmt.Errorf("invalid configuration: %w", validateErr)
			return
		}
	})

	return cfg, err
}

// Get returns the already-loaded configuration, loading defaults if Load
// was never called — used by components constructed outside the fx graph
// (tests, one-shot CLI flags).
func Get() *Config {
	if cfg == nil {
		c, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(4)
		}
		return c
	}
	return cfg
}

func setDefaults() {
	cfg.Runtime.Mode = "full"
	cfg.Runtime.CycleTimeout = 5000
	cfg.Runtime.GraceWindow = 10000

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Name = "controlplane"
	cfg.Database.SSLMode = "disable"

	cfg.RiskBudget.Tiers = []EquityTierConfig{
		{MinEquity: 0, PerTradePct: 0.01, DailyPct: 0.03, OpenPct: 0.06, DrawdownPct: 0.10, MaxPositions: 3},
		{MinEquity: 50000, PerTradePct: 0.015, DailyPct: 0.04, OpenPct: 0.08, DrawdownPct: 0.12, MaxPositions: 5},
		{MinEquity: 250000, PerTradePct: 0.02, DailyPct: 0.05, OpenPct: 0.10, DrawdownPct: 0.15, MaxPositions: 8},
	}

	cfg.Health.StalenessSeconds = map[string]int{"default": 30}
	cfg.Health.DebounceTicks = 3
	cfg.Health.MetricsWindowSamples = 100

	cfg.Guard.MaxDeviationPct = 0.02
	cfg.Guard.MaxStalenessSec = 15
	cfg.Guard.ReferenceCacheTTL = 5

	cfg.SRC.MonitorIntervalSeconds = 10
	cfg.SRC.MonitorTimeoutSeconds = 10
	cfg.SRC.MonitorIntervalOverrides = map[string]int{
		"execution":       2,
		"data_integrity":  5,
		"processing":      5,
		"infrastructure":  15,
	}
	cfg.SRC.MonitorTimeoutOverrides = map[string]int{
		"execution": 5,
	}
	cfg.SRC.RecoveryThresholdPct = 0.5
	cfg.SRC.RequireManualResumeSoft = false

	cfg.Monitoring.PrometheusPort = 9090
	cfg.Monitoring.LogLevel = "info"

	cfg.Auth.TokenDuration = 60

	cfg.EventBus.Driver = "gochannel"
	cfg.EventBus.TopicPrefix = "controlplane."
}

// InitLogger builds the process logger per the configured log level.
func InitLogger(c *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch c.Monitoring.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}
