// Package builder assembles a runnable App from the CLI configuration:
// logger, stores, collaborator plugins and their lifecycle.
package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BDNK1/agentflow/cli/internal/config"
	"github.com/BDNK1/agentflow/plugins/calendar"
	"github.com/BDNK1/agentflow/plugins/chat"
	"github.com/BDNK1/agentflow/plugins/email"
	"github.com/BDNK1/agentflow/plugins/extract"
	httpplugin "github.com/BDNK1/agentflow/plugins/http"
	"github.com/BDNK1/agentflow/plugins/memory"
	"github.com/BDNK1/agentflow/plugins/postgres"
	redisplugin "github.com/BDNK1/agentflow/plugins/redis"
	"github.com/BDNK1/agentflow/plugins/sms"
	"github.com/BDNK1/agentflow/runtime"
)

// NewLogger creates the process logger described by the log section
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// pluginEntry is one plugin to register, with the config struct its
// section decodes into.
type pluginEntry struct {
	name     string
	instance any
	config   any
	always   bool
}

// Build registers and initializes every configured plugin and returns the
// App wired to the selected stores. On error, plugins that were already
// initialized are shut down.
func Build(ctx context.Context, cfg *config.Config, l *slog.Logger) (*runtime.App, error) {
	container := runtime.NewContainer()
	tokens := memory.StaticTokenSource(cfg.Tokens)

	stores, storePlugins, err := selectStores(cfg, l)
	if err != nil {
		return nil, err
	}

	httpPlugin := &httpplugin.HTTPPlugin{}
	extractor := &extract.ExtractorPlugin{}
	emailPlugin := &email.EmailPlugin{Tokens: tokens}
	calendarPlugin := &calendar.CalendarPlugin{Tokens: tokens}
	smsPlugin := &sms.SMSPlugin{}
	chatPlugin := &chat.ChatPlugin{}
	botPlugin := &chat.BotPlugin{}

	entries := append(storePlugins,
		pluginEntry{name: "http", instance: httpPlugin, config: &httpPlugin.Config, always: true},
		pluginEntry{name: "extract", instance: extractor, config: &extractor.Config, always: true},
		pluginEntry{name: "email", instance: emailPlugin, config: &emailPlugin.Config},
		pluginEntry{name: "calendar", instance: calendarPlugin, config: &calendarPlugin.Config},
		pluginEntry{name: "sms", instance: smsPlugin, config: &smsPlugin.Config},
		pluginEntry{name: "chat", instance: chatPlugin, config: &chatPlugin.Config},
		pluginEntry{name: "bot", instance: botPlugin, config: &botPlugin.Config},
	)

	for _, e := range entries {
		if !e.always && !cfg.HasPlugin(e.name) {
			l.DebugContext(ctx, fmt.Sprintf("Plugin %s not configured, skipping", e.name))
			continue
		}
		if err := runtime.InitializeConfig(e.config, cfg.Plugins[e.name]); err != nil {
			return nil, fmt.Errorf("plugin %s config: %w", e.name, err)
		}
		if err := container.RegisterPlugin(e.name, e.instance); err != nil {
			return nil, err
		}
	}

	if err := container.Initialize(ctx); err != nil {
		if shutdownErr := container.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			l.ErrorContext(ctx, "Plugin shutdown after failed start", "error", shutdownErr)
		}
		return nil, err
	}

	l.InfoContext(ctx, "Container initialized", "storage", cfg.Storage.Driver)
	return runtime.NewApp(l, cfg.Engine, container, stores), nil
}

// selectStores picks the persistence for the storage driver. Store plugins
// are registered ahead of collaborators so they start first and stop last.
func selectStores(cfg *config.Config, l *slog.Logger) (runtime.Stores, []pluginEntry, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		store := memory.NewStore()
		return runtime.Stores{Workflows: store, Executions: store, StepLogs: store}, nil, nil

	case "postgres":
		if !cfg.HasPlugin("postgres") {
			return runtime.Stores{}, nil, fmt.Errorf("storage driver postgres needs a plugins.postgres section")
		}
		pg := &postgres.PostgresPlugin{Logger: l}
		stores := runtime.Stores{
			Workflows:  memory.NewCachedWorkflowStore(pg, cfg.Storage.CacheTTL),
			Executions: pg,
			StepLogs:   pg,
		}
		return stores, []pluginEntry{{name: "postgres", instance: pg, config: &pg.Config}}, nil

	case "redis":
		rp := &redisplugin.RedisPlugin{Logger: l}
		stores := runtime.Stores{
			Workflows:  memory.NewStore(),
			Executions: rp,
			StepLogs:   rp,
		}
		return stores, []pluginEntry{{name: "redis", instance: rp, config: &rp.Config, always: true}}, nil

	default:
		return runtime.Stores{}, nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}
