package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BDNK1/agentflow/cli/internal/telemetry"
	"github.com/BDNK1/agentflow/runtime"
)

const (
	EnvPrefix       = "AGENTFLOW"
	DefaultFileName = "agentflow"
)

// Config represents the agentflow.yaml structure
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Engine  runtime.EngineConfig
	Storage StorageConfig

	Telemetry telemetry.Config

	// Plugins holds the raw section of every collaborator plugin, keyed by
	// plugin name. A plugin without a section is not registered unless it
	// is always on (http, extract).
	Plugins map[string]map[string]any

	// Tokens maps provider -> user id -> access token for email and calendar.
	Tokens map[string]map[string]string
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" default:":8080" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" default:"10s" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" default:"15s" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

type StorageConfig struct {
	Driver   string        `yaml:"driver" default:"memory" validate:"oneof=memory postgres redis"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"5m" validate:"gte=0"`
}

// Load reads the config file (agentflow.yaml in the working directory when
// path is empty), overlays AGENTFLOW_* environment variables and expands
// ${VAR} references in every section.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Known keys so that env overrides show up in AllSettings.
	for _, key := range []string{
		"server.addr", "server.read_header_timeout", "server.shutdown_timeout",
		"log.level", "log.format",
		"engine.step_timeout", "engine.workflows_dir",
		"storage.driver", "storage.cache_ttl",
		"telemetry.enabled", "telemetry.endpoint", "telemetry.insecure",
		"telemetry.service_name", "telemetry.metric_interval", "telemetry.export_logs",
	} {
		v.SetDefault(key, nil)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	settings := v.AllSettings()
	// AllSettings drops empty sections, and "email: {}" is enough to turn a
	// plugin on.
	if plugins, ok := v.Get("plugins").(map[string]any); ok {
		settings["plugins"] = plugins
	}
	return FromSettings(settings)
}

// FromSettings builds a Config from already decoded settings.
func FromSettings(settings map[string]any) (*Config, error) {
	cfg := &Config{
		Plugins: make(map[string]map[string]any),
		Tokens:  make(map[string]map[string]string),
	}

	sections := []struct {
		name   string
		target any
	}{
		{"server", &cfg.Server},
		{"log", &cfg.Log},
		{"engine", &cfg.Engine},
		{"storage", &cfg.Storage},
		{"telemetry", &cfg.Telemetry},
	}
	for _, s := range sections {
		raw, err := ExpandEnv(section(settings, s.name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		if err := runtime.InitializeConfig(s.target, raw); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	plugins, _ := settings["plugins"].(map[string]any)
	for name := range plugins {
		raw, err := ExpandEnv(section(plugins, name))
		if err != nil {
			return nil, fmt.Errorf("plugins.%s: %w", name, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		cfg.Plugins[name] = raw
	}

	tokens, err := ExpandEnv(section(settings, "tokens"))
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	for provider := range tokens {
		users := section(tokens, provider)
		cfg.Tokens[provider] = make(map[string]string, len(users))
		for user, token := range users {
			cfg.Tokens[provider][user] = fmt.Sprint(token)
		}
	}

	return cfg, nil
}

// section returns a nested map, dropping the nil placeholders left by
// unset defaults.
func section(settings map[string]any, name string) map[string]any {
	raw, ok := settings[name].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// HasPlugin reports whether the plugin has a section in the config file
func (c *Config) HasPlugin(name string) bool {
	_, ok := c.Plugins[name]
	return ok
}
