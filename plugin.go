package hookable

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/poltergeist-framework/hookable/debug"
	"github.com/poltergeist-framework/hookable/hooks"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

// PluginName is the name the plugin registers under.
const PluginName = "hookable"

// ErrPluginInUse is returned when one Plugin value is registered on a
// second server. Each server needs its own plugin and registry.
var ErrPluginInUse = errors.New("hookable: plugin already registered on a server")

// DecorationName is the property name of the registry on the server and on
// every request context.
const DecorationName = "hooks"

// Options configures the plugin. Every field is optional.
type Options struct {
	// Close runs first during server shutdown, before the hooks are cleared.
	Close func(ctx context.Context) error
	// Before observes every hook dispatch before the callbacks run.
	Before hooks.Observer
	// After observes every hook dispatch once all callbacks have completed.
	After hooks.Observer
	// DebuggerOptions enables debug logging of dispatches. It is typically
	// decoded from configuration, so it is validated with IsDebuggerOptions
	// and ignored when malformed. See DebuggerOptions for the accepted keys.
	DebuggerOptions any
	// Logger defaults to the server logger.
	Logger *slog.Logger
}

// Plugin attaches a hook registry to a poltergeist server.
type Plugin struct {
	mu       sync.Mutex
	opts     Options
	logger   *slog.Logger
	registry *hooks.Registry
	debugger *debug.Debugger
	detach   func()
}

// New creates the plugin. Hand it to Server.Register.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts}
}

// Register creates the plugin with opts and registers it on s.
func Register(s *poltergeist.Server, opts Options) (*Plugin, error) {
	p := New(opts)
	if err := s.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements poltergeist.Plugin.
func (p *Plugin) Name() string {
	return PluginName
}

// Register implements poltergeist.Plugin. A plugin serves one server;
// registering it again returns ErrPluginInUse. On failure the plugin is
// left unregistered and can be retried.
func (p *Plugin) Register(s *poltergeist.Server) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registry != nil {
		return ErrPluginInUse
	}

	logger := p.opts.Logger
	if logger == nil {
		logger = s.Logger()
	}
	reg := hooks.New(hooks.WithLogger(logger))

	getter := func() any { return reg }
	if err := s.Decorate(DecorationName, getter); err != nil {
		return err
	}
	if err := s.DecorateRequest(DecorationName, getter); err != nil {
		return err
	}

	if p.opts.Before != nil {
		reg.BeforeEach(p.opts.Before)
	}
	if p.opts.After != nil {
		reg.AfterEach(p.opts.After)
	}

	var debugger *debug.Debugger
	if debuggerOptionsPresent(p.opts.DebuggerOptions) {
		if dopts, ok := decodeDebuggerOptions(p.opts.DebuggerOptions); ok {
			if dopts.Logger == nil {
				dopts.Logger = logger
			}
			debugger = debug.New(reg, dopts)
		} else {
			logger.Debug("ignoring malformed debugger options", "plugin", PluginName)
		}
	}

	p.logger = logger
	p.registry = reg
	p.debugger = debugger
	p.detach = p.bridge(s.Pipeline())
	s.OnClose(p.close)
	return nil
}

// close runs the user callback and then always detaches from the server
// events, disposes of the debugger and clears the registry, even when the
// callback fails or panics.
func (p *Plugin) close(ctx context.Context) (err error) {
	defer func() {
		if p.detach != nil {
			p.detach()
		}
		var cleanupErr error
		if p.debugger != nil {
			cleanupErr = p.debugger.Close()
		}
		p.registry.RemoveAllHooks()
		err = errors.Join(err, cleanupErr)
	}()

	if p.opts.Close != nil {
		return p.opts.Close(ctx)
	}
	return nil
}

// Registry returns the registry created at registration, or nil before.
func (p *Plugin) Registry() *hooks.Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry
}

// Debugger returns the debug handle, or nil when debugging is disabled.
func (p *Plugin) Debugger() *debug.Debugger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.debugger
}

// FromServer returns the registry decorating s, or nil when the plugin is
// not registered.
func FromServer(s *poltergeist.Server) *hooks.Registry {
	return fromDecoration(s)
}

// FromContext returns the registry decorating the request, or nil when the
// plugin is not registered.
func FromContext(c *poltergeist.Context) *hooks.Registry {
	return fromDecoration(c)
}

func fromDecoration(r poltergeist.DecorationReader) *hooks.Registry {
	v, ok := r.Decoration(DecorationName)
	if !ok {
		return nil
	}
	reg, _ := v.(*hooks.Registry)
	return reg
}
