package runtime

import (
	"context"
	"errors"
	"fmt"
)

// Container holds the collaborators steps talk to and the plugins that
// provide them.
type Container struct {
	Extractor ContentExtractor
	Email     EmailSender
	Calendar  Calendar
	SMS       SMSSender
	Chat      ChatCompleter
	Bot       BotConversation
	HTTP      HTTPClient

	plugins     map[string]any // Plugin instances (name -> plugin)
	lifecycles  []namedLifecycle
	initialized int
}

type namedLifecycle struct {
	name string
	Lifecycle
}

func NewContainer() *Container {
	return &Container{
		plugins: make(map[string]any),
	}
}

// RegisterPlugin stores a plugin and binds every collaborator contract it
// satisfies to the first free slot. Plugins registered earlier win.
func (c *Container) RegisterPlugin(pluginName string, plugin any) error {
	if plugin == nil {
		return fmt.Errorf("plugin cannot be nil")
	}
	if _, exists := c.plugins[pluginName]; exists {
		return fmt.Errorf("plugin %q already registered", pluginName)
	}

	c.plugins[pluginName] = plugin
	c.detectPluginInterfaces(pluginName, plugin)
	return nil
}

// detectPluginInterfaces binds the contracts a plugin implements
func (c *Container) detectPluginInterfaces(name string, plugin any) {
	if l, ok := plugin.(Lifecycle); ok {
		c.lifecycles = append(c.lifecycles, namedLifecycle{name: name, Lifecycle: l})
	}
	if p, ok := plugin.(ContentExtractor); ok && c.Extractor == nil {
		c.Extractor = p
	}
	if p, ok := plugin.(EmailSender); ok && c.Email == nil {
		c.Email = p
	}
	if p, ok := plugin.(Calendar); ok && c.Calendar == nil {
		c.Calendar = p
	}
	if p, ok := plugin.(SMSSender); ok && c.SMS == nil {
		c.SMS = p
	}
	if p, ok := plugin.(ChatCompleter); ok && c.Chat == nil {
		c.Chat = p
	}
	if p, ok := plugin.(BotConversation); ok && c.Bot == nil {
		c.Bot = p
	}
	if p, ok := plugin.(HTTPClient); ok && c.HTTP == nil {
		c.HTTP = p
	}
}

// GetPlugin returns a plugin instance by name
func (c *Container) GetPlugin(name string) any {
	return c.plugins[name]
}

// Initialize calls Initialize on lifecycle plugins in registration order and
// stops at the first failure. Plugins initialized before the failure are
// still shut down by Shutdown.
func (c *Container) Initialize(ctx context.Context) error {
	for c.initialized < len(c.lifecycles) {
		p := c.lifecycles[c.initialized]
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("plugin %s initialization failed: %w", p.name, err)
		}
		c.initialized++
	}
	return nil
}

// Shutdown calls Shutdown on initialized plugins in reverse order
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for i := c.initialized - 1; i >= 0; i-- {
		p := c.lifecycles[i]
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s shutdown failed: %w", p.name, err))
		}
	}
	c.initialized = 0

	return errors.Join(errs...)
}
