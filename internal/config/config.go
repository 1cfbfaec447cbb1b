package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type StoreDriver string

const (
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverMemory   StoreDriver = "memory"
)

type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

type Config struct {
	Environment string            `mapstructure:"-" yaml:"environment,omitempty"`
	ConfigFiles []string          `mapstructure:"-" yaml:"config_files,omitempty"`
	Application ApplicationConfig `mapstructure:"application" yaml:"application"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Polling     PollingConfig     `mapstructure:"polling" yaml:"polling"`
	Tracing     TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type ApplicationConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Address returns the host:port the HTTP API listens on.
func (a ApplicationConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type DatabaseConfig struct {
	Driver         StoreDriver   `mapstructure:"driver" yaml:"driver"`
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Database       string        `mapstructure:"database" yaml:"database"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	Migrate        bool          `mapstructure:"migrate" yaml:"migrate"`
}

// URL builds a postgres connection string for the pgx driver.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if d.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted returns a copy safe to print.
func (d DatabaseConfig) Redacted() DatabaseConfig {
	if d.Password != "" {
		d.Password = "********"
	}
	return d
}

type PollingConfig struct {
	PollingAddress           string        `mapstructure:"polling_address" yaml:"polling_address"`
	MaxConcurrentRuns        int           `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	MaxPendingRuns           int           `mapstructure:"max_pending_runs" yaml:"max_pending_runs"`
	ConcurrentRequestsPerRun int           `mapstructure:"concurrent_requests_per_run" yaml:"concurrent_requests_per_run"`
	RequestTimeout           time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RatePerRun               int           `mapstructure:"rate_per_run" yaml:"rate_per_run"`
}

// Normalized coerces the pool sizes to a minimum of one.
func (p PollingConfig) Normalized() PollingConfig {
	if p.MaxConcurrentRuns < 1 {
		p.MaxConcurrentRuns = 1
	}
	if p.MaxPendingRuns < 1 {
		p.MaxPendingRuns = 1
	}
	if p.ConcurrentRequestsPerRun < 1 {
		p.ConcurrentRequestsPerRun = 1
	}
	if p.RatePerRun < 0 {
		p.RatePerRun = 0
	}
	return p
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	Propagate   *bool   `mapstructure:"propagate" yaml:"propagate,omitempty"`
}

// Enabled reports whether an exporter endpoint is configured, either directly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type LogConfig struct {
	Level  string    `mapstructure:"level" yaml:"level"`
	Format LogFormat `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when no file, env var or flag overrides a value.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{Host: "127.0.0.1", Port: 8080},
		Database: DatabaseConfig{
			Driver:         StoreDriverMemory,
			Host:           "localhost",
			Port:           5432,
			Database:       "poller",
			Username:       "postgres",
			Password:       "password",
			ConnectTimeout: 2 * time.Second,
			MaxOpenConns:   10,
		},
		Polling: PollingConfig{
			PollingAddress:           "http://localhost:3000",
			MaxConcurrentRuns:        4,
			MaxPendingRuns:           16,
			ConcurrentRequestsPerRun: 8,
			RequestTimeout:           10 * time.Second,
		},
		Tracing: TracingConfig{SampleRate: 1.0},
		Log:     LogConfig{Level: "info", Format: LogFormatJSON},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every invalid setting at once. Pool sizes below one are
// not errors; they are coerced by PollingConfig.Normalized.
func (c Config) Validate() error {
	var issues []string

	if c.Application.Port < 0 || c.Application.Port > 65535 {
		issues = append(issues, fmt.Sprintf("application.port %d is out of range", c.Application.Port))
	}

	switch c.Database.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Database.Host) == "" {
			issues = append(issues, "database.host is required for the postgres driver")
		}
		if strings.TrimSpace(c.Database.Database) == "" {
			issues = append(issues, "database.database is required for the postgres driver")
		}
		if c.Database.MaxOpenConns < 1 {
			issues = append(issues, "database.max_open_conns must be >= 1")
		}
		if c.Database.ConnectTimeout <= 0 {
			issues = append(issues, "database.connect_timeout must be positive")
		}
	default:
		issues = append(issues, fmt.Sprintf("database.driver %q is not supported (use postgres or memory)", c.Database.Driver))
	}

	addr := strings.TrimSpace(c.Polling.PollingAddress)
	if addr == "" {
		issues = append(issues, "polling.polling_address is required")
	} else if u, err := url.Parse(addr); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("polling.polling_address %q must be an absolute URL", addr))
	}
	if c.Polling.RequestTimeout < 0 {
		issues = append(issues, "polling.request_timeout must be >= 0")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q is not supported (use grpc or http)", c.Tracing.Protocol))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log.level %q is not supported", c.Log.Level))
	}
	switch c.Log.Format {
	case LogFormatJSON, LogFormatText:
	default:
		issues = append(issues, fmt.Sprintf("log.format %q is not supported (use json or text)", c.Log.Format))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
