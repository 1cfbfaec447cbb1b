package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "APP"
	environmentEnv   = "APP_ENVIRONMENT"
	defaultConfigDir = "configuration"
)

// Environments that may overlay default.yaml.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// ErrUnknownEnvironment is returned for an environment other than development or production.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Loader resolves a Config from, in increasing priority: built-in defaults,
// configuration files, APP_-prefixed environment variables and changed flags.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads sources selected by fs. fs may be nil, in which case only the
// default configuration directory and the environment are consulted.
func (Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	environment := strings.ToLower(strings.TrimSpace(flagString(fs, "environment")))
	if environment == "" {
		environment = strings.ToLower(strings.TrimSpace(os.Getenv(environmentEnv)))
	}
	switch environment {
	case "", EnvironmentDevelopment, EnvironmentProduction:
	default:
		return nil, fmt.Errorf("%w %q: set %s to either %q or %q",
			ErrUnknownEnvironment, environment, environmentEnv, EnvironmentDevelopment, EnvironmentProduction)
	}

	configDir := flagString(fs, "config-dir")
	if configDir == "" {
		configDir = defaultConfigDir
	}
	files, err := configFiles(flagString(fs, "config"), configDir, environment)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	registerDefaults(v, cfg)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	for _, file := range files {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	}

	if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	cfg.Environment = environment
	cfg.ConfigFiles = files
	cfg.Polling.PollingAddress = strings.TrimSpace(cfg.Polling.PollingAddress)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	return cfg, nil
}

// configFiles lists the files to merge. An explicit path wins; otherwise the
// directory, when present, must hold default.yaml and the environment overlay.
func configFiles(explicit, dir, environment string) ([]string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return []string{explicit}, nil
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("configuration path %s is not a directory", dir)
	}

	files := []string{filepath.Join(dir, "default.yaml")}
	if environment != "" {
		files = append(files, filepath.Join(dir, environment+".yaml"))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("required configuration file: %w", err)
		}
	}
	return files, nil
}

// registerDefaults makes every key known to viper so AllSettings picks up
// environment overrides for keys absent from the files.
func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("application.host", cfg.Application.Host)
	v.SetDefault("application.port", cfg.Application.Port)

	v.SetDefault("database.driver", string(cfg.Database.Driver))
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.database", cfg.Database.Database)
	v.SetDefault("database.username", cfg.Database.Username)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout.String())
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.migrate", cfg.Database.Migrate)

	v.SetDefault("polling.polling_address", cfg.Polling.PollingAddress)
	v.SetDefault("polling.max_concurrent_runs", cfg.Polling.MaxConcurrentRuns)
	v.SetDefault("polling.max_pending_runs", cfg.Polling.MaxPendingRuns)
	v.SetDefault("polling.concurrent_requests_per_run", cfg.Polling.ConcurrentRequestsPerRun)
	v.SetDefault("polling.request_timeout", cfg.Polling.RequestTimeout.String())
	v.SetDefault("polling.rate_per_run", cfg.Polling.RatePerRun)

	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.protocol", cfg.Tracing.Protocol)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.propagate", "")

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", string(cfg.Log.Format))
}

// applyConfigSettings applies merged file and env settings to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	sections := []struct {
		name  string
		apply func(*Config, map[string]interface{}) error
	}{
		{"application", applyApplicationSettings},
		{"database", applyDatabaseSettings},
		{"polling", applyPollingSettings},
		{"tracing", applyTracingSettings},
		{"log", applyLogSettings},
	}
	for _, s := range sections {
		section, err := lookupSection(settings, s.name)
		if err != nil {
			return err
		}
		if section == nil {
			continue
		}
		if err := s.apply(cfg, section); err != nil {
			return fmt.Errorf("%s.%w", s.name, err)
		}
	}
	return nil
}

func applyApplicationSettings(cfg *Config, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		cfg.Application.Host = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Application.Port = val
	}
	return nil
}

func applyDatabaseSettings(cfg *Config, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "driver"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("driver: %w", err)
		}
		cfg.Database.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(val)))
	}
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"host", &cfg.Database.Host},
		{"database", &cfg.Database.Database},
		{"username", &cfg.Database.Username},
		{"password", &cfg.Database.Password},
	} {
		if raw, ok := lookupSetting(settings, field.key); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.key, err)
			}
			*field.dst = val
		}
	}
	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Database.Port = val
	}
	if raw, ok := lookupSetting(settings, "connect_timeout", "connecttimeout", "connect_timeout_sec"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		cfg.Database.ConnectTimeout = dur
	}
	if raw, ok := lookupSetting(settings, "max_open_conns", "maxopenconns"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_open_conns: %w", err)
		}
		cfg.Database.MaxOpenConns = val
	}
	if raw, ok := lookupSetting(settings, "migrate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		cfg.Database.Migrate = val
	}
	return nil
}

func applyPollingSettings(cfg *Config, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "polling_address", "pollingaddress"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("polling_address: %w", err)
		}
		cfg.Polling.PollingAddress = val
	}
	for _, field := range []struct {
		keys []string
		dst  *int
	}{
		{[]string{"max_concurrent_runs", "maxconcurrentruns"}, &cfg.Polling.MaxConcurrentRuns},
		{[]string{"max_pending_runs", "maxpendingruns"}, &cfg.Polling.MaxPendingRuns},
		{[]string{"concurrent_requests_per_run", "concurrentrequestsperrun"}, &cfg.Polling.ConcurrentRequestsPerRun},
		{[]string{"rate_per_run", "rateperrun"}, &cfg.Polling.RatePerRun},
	} {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = val
		}
	}
	if raw, ok := lookupSetting(settings, "request_timeout", "requesttimeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.Polling.RequestTimeout = dur
	}
	return nil
}

func applyTracingSettings(cfg *Config, settings map[string]interface{}) error {
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"endpoint", &cfg.Tracing.Endpoint},
		{"protocol", &cfg.Tracing.Protocol},
		{"service_name", &cfg.Tracing.ServiceName},
	} {
		if raw, ok := lookupSetting(settings, field.key); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.key, err)
			}
			*field.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		cfg.Tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		if s, isString := raw.(string); !isString || strings.TrimSpace(s) != "" {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("propagate: %w", err)
			}
			cfg.Tracing.Propagate = &val
		}
	}
	return nil
}

func applyLogSettings(cfg *Config, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		cfg.Log.Level = val
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		cfg.Log.Format = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	return nil
}
