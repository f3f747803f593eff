package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	EventBrokers []string
	BlockCount   int

	CORSAllowedOrigins []string

	ConsensusBlockLock   bool
	ClosedBlockCacheSize int
	RecomputeWorkers     int
	RecomputeMaxAttempts int
	RecomputeBackoff     time.Duration
	RecomputeInterval    time.Duration
	WorkerPollInterval   time.Duration
	EnableOutboxRelay    bool

	Log LogConfig
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var defaults = map[string]any{
	"CONFIG_FILE":             "",
	"SERVICE_NAME":            "quiltqc",
	"HTTP_PORT":               "8080",
	"POSTGRES_DSN":            "",
	"EVENT_BROKERS":           "localhost:9092",
	"BLOCK_COUNT":             6066,
	"CORS_ALLOWED_ORIGINS":    "*",
	"CONSENSUS_BLOCK_LOCK":    true,
	"CLOSED_BLOCK_CACHE_SIZE": 8192,
	"RECOMPUTE_WORKERS":       4,
	"RECOMPUTE_MAX_ATTEMPTS":  3,
	"RECOMPUTE_BACKOFF":       "200ms",
	"RECOMPUTE_INTERVAL":      "5m",
	"WORKER_POLL_INTERVAL":    "2s",
	"ENABLE_OUTBOX_RELAY":     true,
	"LOG_LEVEL":               "info",
	"LOG_FILE":                "",
	"LOG_MAX_SIZE_MB":         100,
	"LOG_MAX_BACKUPS":         5,
	"LOG_MAX_AGE_DAYS":        28,
}

// Load reads configuration from the environment and the optional CONFIG_FILE
// (any format viper understands).
func Load() (Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with command-line overrides. Flag names are the
// lower-kebab form of the keys (http-port for HTTP_PORT).
func LoadWithFlags(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}
	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := Config{
		ServiceName:  strings.TrimSpace(v.GetString("SERVICE_NAME")),
		HTTPPort:     strings.TrimSpace(v.GetString("HTTP_PORT")),
		PostgresDSN:  strings.TrimSpace(v.GetString("POSTGRES_DSN")),
		EventBrokers: splitList(v.GetString("EVENT_BROKERS")),
		BlockCount:   v.GetInt("BLOCK_COUNT"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),

		ConsensusBlockLock:   v.GetBool("CONSENSUS_BLOCK_LOCK"),
		ClosedBlockCacheSize: v.GetInt("CLOSED_BLOCK_CACHE_SIZE"),
		RecomputeWorkers:     v.GetInt("RECOMPUTE_WORKERS"),
		RecomputeMaxAttempts: v.GetInt("RECOMPUTE_MAX_ATTEMPTS"),
		RecomputeBackoff:     v.GetDuration("RECOMPUTE_BACKOFF"),
		RecomputeInterval:    v.GetDuration("RECOMPUTE_INTERVAL"),
		WorkerPollInterval:   v.GetDuration("WORKER_POLL_INTERVAL"),
		EnableOutboxRelay:    v.GetBool("ENABLE_OUTBOX_RELAY"),

		Log: LogConfig{
			Level:      strings.TrimSpace(v.GetString("LOG_LEVEL")),
			File:       strings.TrimSpace(v.GetString("LOG_FILE")),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "quiltqc"
	}
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}
	if len(cfg.EventBrokers) == 0 {
		cfg.EventBrokers = []string{"localhost:9092"}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.BlockCount < 0 {
		errs = append(errs, errors.New("BLOCK_COUNT must not be negative"))
	}
	if c.RecomputeWorkers < 0 {
		errs = append(errs, errors.New("RECOMPUTE_WORKERS must not be negative"))
	}
	if c.RecomputeMaxAttempts < 0 {
		errs = append(errs, errors.New("RECOMPUTE_MAX_ATTEMPTS must not be negative"))
	}
	if c.WorkerPollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		key := strings.ToUpper(strings.ReplaceAll(flag.Name, "-", "_"))
		if _, known := defaults[key]; !known {
			return
		}
		if err := v.BindPFlag(key, flag); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	})
	return bindErr
}

func splitList(raw string) []string {
	var items []string
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
