package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, so http.port is
// read from ROUTER_HTTP_PORT.
const EnvPrefix = "ROUTER"

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogFileConfig enables rotated file output next to stdout when Path is set.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TraceConfig exports spans over OTLP/HTTP when Endpoint is set.
type TraceConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type AppConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Env         string        `mapstructure:"env"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFile     LogFileConfig `mapstructure:"log_file"`
	MetricsPath string        `mapstructure:"metrics_path"`
	HTTP        HTTPConfig    `mapstructure:"http"`
	Trace       TraceConfig   `mapstructure:"trace"`
}

// NewViper returns a viper instance reading path (default config.yaml) with
// ROUTER_ environment overrides. A missing file is not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func Load(path string) (*AppConfig, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(v)
}

// Unmarshal decodes the shared app section from v.
func Unmarshal(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.HTTP.Port <= 0 {
		return nil, fmt.Errorf("http port must be positive")
	}
	if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
		return nil, fmt.Errorf("trace sample_ratio must be within [0, 1]")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "fee-router")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file.path", "")
	v.SetDefault("log_file.max_size_mb", 100)
	v.SetDefault("log_file.max_backups", 3)
	v.SetDefault("log_file.max_age_days", 28)
	v.SetDefault("log_file.compress", true)
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("trace.endpoint", "")
	v.SetDefault("trace.insecure", true)
	v.SetDefault("trace.sample_ratio", 1.0)
}

// An explicit config path reports a missing file as an fs error rather than
// viper.ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
