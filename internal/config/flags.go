package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers every configuration flag on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all configuration flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Sources
	flags.String("config", "", "Path to a single configuration file (JSON or YAML); disables the configuration directory")
	flags.String("config-dir", defaultConfigDir, "Directory holding default.yaml and <environment>.yaml")
	flags.String("environment", "", "Configuration environment overlay: 'development' or 'production' (defaults to $APP_ENVIRONMENT)")

	// HTTP API
	flags.String("host", "", "Address the HTTP API binds to")
	flags.IntP("port", "p", 0, "Port the HTTP API listens on")

	// Storage
	flags.String("db-driver", "", "Run store driver: 'postgres' or 'memory'")
	flags.String("db-host", "", "Postgres host")
	flags.Int("db-port", 0, "Postgres port")
	flags.String("db-name", "", "Postgres database name")
	flags.String("db-user", "", "Postgres user")
	flags.Duration("db-connect-timeout", 0, "Postgres connect timeout")
	flags.Bool("migrate", false, "Apply database migrations on startup")

	// Polling engine
	flags.String("polling-address", "", "URL of the faulty server")
	flags.Int("max-concurrent-runs", 0, "Number of runs executed at the same time (worker count)")
	flags.Int("max-pending-runs", 0, "Number of accepted runs allowed to wait for a worker")
	flags.Int("concurrent-requests-per-run", 0, "In-flight upstream requests allowed per run")
	flags.Duration("request-timeout", 0, "Per-request timeout for upstream calls")
	flags.Int("rate-per-run", 0, "Upper bound on upstream requests per second per run (0 means unlimited)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (empty disables export)")
	flags.String("tracing-protocol", "", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 0, "Trace sampling ratio between 0.0 and 1.0")

	// Logging
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: json or text")
}

// applyFlagOverrides applies explicitly set flags on top of file and env values.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	steps := []func() error{
		func() error { return overrideString(fs, "host", &cfg.Application.Host) },
		func() error { return overrideInt(fs, "port", &cfg.Application.Port) },
		func() error {
			var driver string
			if err := overrideString(fs, "db-driver", &driver); err != nil || driver == "" {
				return err
			}
			cfg.Database.Driver = StoreDriver(driver)
			return nil
		},
		func() error { return overrideString(fs, "db-host", &cfg.Database.Host) },
		func() error { return overrideInt(fs, "db-port", &cfg.Database.Port) },
		func() error { return overrideString(fs, "db-name", &cfg.Database.Database) },
		func() error { return overrideString(fs, "db-user", &cfg.Database.Username) },
		func() error { return overrideDuration(fs, "db-connect-timeout", &cfg.Database.ConnectTimeout) },
		func() error { return overrideBool(fs, "migrate", &cfg.Database.Migrate) },
		func() error { return overrideString(fs, "polling-address", &cfg.Polling.PollingAddress) },
		func() error { return overrideInt(fs, "max-concurrent-runs", &cfg.Polling.MaxConcurrentRuns) },
		func() error { return overrideInt(fs, "max-pending-runs", &cfg.Polling.MaxPendingRuns) },
		func() error {
			return overrideInt(fs, "concurrent-requests-per-run", &cfg.Polling.ConcurrentRequestsPerRun)
		},
		func() error { return overrideDuration(fs, "request-timeout", &cfg.Polling.RequestTimeout) },
		func() error { return overrideInt(fs, "rate-per-run", &cfg.Polling.RatePerRun) },
		func() error { return overrideString(fs, "tracing-endpoint", &cfg.Tracing.Endpoint) },
		func() error { return overrideString(fs, "tracing-protocol", &cfg.Tracing.Protocol) },
		func() error { return overrideBool(fs, "tracing-insecure", &cfg.Tracing.Insecure) },
		func() error { return overrideFloat(fs, "tracing-sample-rate", &cfg.Tracing.SampleRate) },
		func() error { return overrideString(fs, "log-level", &cfg.Log.Level) },
		func() error {
			var format string
			if err := overrideString(fs, "log-format", &format); err != nil || format == "" {
				return err
			}
			cfg.Log.Format = LogFormat(format)
			return nil
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func overrideString(fs *pflag.FlagSet, name string, dst *string) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideInt(fs *pflag.FlagSet, name string, dst *int) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetInt(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideBool(fs *pflag.FlagSet, name string, dst *bool) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetBool(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideFloat(fs *pflag.FlagSet, name string, dst *float64) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideDuration(fs *pflag.FlagSet, name string, dst *time.Duration) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func flagString(fs *pflag.FlagSet, name string) string {
	if fs == nil || fs.Lookup(name) == nil {
		return ""
	}
	return fs.Lookup(name).Value.String()
}
