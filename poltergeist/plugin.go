package poltergeist

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPluginRegistered is returned when a plugin name is registered twice
	ErrPluginRegistered = errors.New("poltergeist: plugin already registered")
	// ErrDecorationExists is returned when a decoration name is already taken
	ErrDecorationExists = errors.New("poltergeist: decoration already exists")
	// ErrInvalidDecoration is returned for an empty name or a nil getter
	ErrInvalidDecoration = errors.New("poltergeist: invalid decoration")
	// ErrServerClosed is returned when registering on a closed server
	ErrServerClosed = errors.New("poltergeist: server closed")
)

// =============================================================================
// PLUGIN - Registration contract
// =============================================================================

// Plugin extends a server. Register runs once, when the plugin is added.
type Plugin interface {
	Name() string
	Register(s *Server) error
}

// CloseFunc runs during server shutdown
type CloseFunc func(ctx context.Context) error

// Register adds plugins to the server in order. A plugin name can only be
// registered once per server. When a plugin fails to register, its name,
// the decorations it added and its close handlers are removed again.
func (s *Server) Register(plugins ...Plugin) error {
	for _, p := range plugins {
		if p == nil {
			continue
		}
		name := p.Name()

		s.lifecycle.mu.Lock()
		if s.lifecycle.closed {
			s.lifecycle.mu.Unlock()
			return ErrServerClosed
		}
		if _, exists := s.lifecycle.plugins[name]; exists {
			s.lifecycle.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrPluginRegistered, name)
		}
		s.lifecycle.plugins[name] = struct{}{}
		handlers := len(s.lifecycle.onClose)
		s.lifecycle.mu.Unlock()

		server := s.decorations.names()
		request := s.router.requestDecorations.names()
		if err := p.Register(s); err != nil {
			s.decorations.keepOnly(server)
			s.router.requestDecorations.keepOnly(request)

			s.lifecycle.mu.Lock()
			delete(s.lifecycle.plugins, name)
			if len(s.lifecycle.onClose) > handlers {
				s.lifecycle.onClose = s.lifecycle.onClose[:handlers]
			}
			s.lifecycle.mu.Unlock()
			return fmt.Errorf("register plugin %s: %w", name, err)
		}
		s.config.Logger.Debug("plugin registered", "plugin", name)
	}
	return nil
}

// HasPlugin reports whether a plugin with the given name is registered
func (s *Server) HasPlugin(name string) bool {
	s.lifecycle.mu.Lock()
	defer s.lifecycle.mu.Unlock()
	_, ok := s.lifecycle.plugins[name]
	return ok
}

// =============================================================================
// DECORATIONS - Named values on the server and on every request
// =============================================================================

// decorations stores named getters. Reads evaluate the getter every time.
type decorations struct {
	mu      sync.RWMutex
	getters map[string]func() any
}

func newDecorations() *decorations {
	return &decorations{getters: make(map[string]func() any)}
}

func (d *decorations) add(name string, getter func() any) error {
	if name == "" || getter == nil {
		return ErrInvalidDecoration
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.getters[name]; exists {
		return fmt.Errorf("%w: %s", ErrDecorationExists, name)
	}
	d.getters[name] = getter
	return nil
}

func (d *decorations) get(name string) (any, bool) {
	if d == nil {
		return nil, false
	}
	d.mu.RLock()
	getter, ok := d.getters[name]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return getter(), true
}

func (d *decorations) has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.getters[name]
	return ok
}

func (d *decorations) names() map[string]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make(map[string]struct{}, len(d.getters))
	for name := range d.getters {
		names[name] = struct{}{}
	}
	return names
}

// keepOnly drops every getter whose name is not in names
func (d *decorations) keepOnly(names map[string]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name := range d.getters {
		if _, ok := names[name]; !ok {
			delete(d.getters, name)
		}
	}
}

// Decorate attaches a named value to the server. The getter is evaluated on
// every read.
func (s *Server) Decorate(name string, getter func() any) error {
	return s.decorations.add(name, getter)
}

// DecorateRequest attaches a named value to every request context. The
// getter is evaluated on every read.
func (s *Server) DecorateRequest(name string, getter func() any) error {
	return s.router.requestDecorations.add(name, getter)
}

// Decoration returns a server decoration
func (s *Server) Decoration(name string) (any, bool) {
	return s.decorations.get(name)
}

// HasDecoration reports whether the server has a decoration with this name
func (s *Server) HasDecoration(name string) bool {
	return s.decorations.has(name)
}

// HasRequestDecoration reports whether requests carry a decoration with this name
func (s *Server) HasRequestDecoration(name string) bool {
	return s.router.requestDecorations.has(name)
}

// =============================================================================
// CLOSE - Shutdown lifecycle
// =============================================================================

// lifecycle tracks plugins and close handlers of one server
type lifecycle struct {
	mu        sync.Mutex
	plugins   map[string]struct{}
	onClose   []CloseFunc
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func newLifecycle() *lifecycle {
	return &lifecycle{plugins: make(map[string]struct{})}
}

// OnClose registers a handler run once during shutdown
func (s *Server) OnClose(fn CloseFunc) *Server {
	if fn == nil {
		return s
	}
	s.lifecycle.mu.Lock()
	defer s.lifecycle.mu.Unlock()
	s.lifecycle.onClose = append(s.lifecycle.onClose, fn)
	return s
}

// Close runs the OnClose handlers in registration order. Every handler runs
// even if an earlier one fails; the errors are joined. Later calls block
// until the first one finishes and return its result.
func (s *Server) Close(ctx context.Context) error {
	s.lifecycle.closeOnce.Do(func() {
		s.lifecycle.mu.Lock()
		s.lifecycle.closed = true
		handlers := append([]CloseFunc(nil), s.lifecycle.onClose...)
		s.lifecycle.mu.Unlock()

		var errs []error
		for _, fn := range handlers {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.lifecycle.closeErr = errors.Join(errs...)
		if s.lifecycle.closeErr != nil {
			s.config.Logger.Error("close handlers failed", "error", s.lifecycle.closeErr)
		}
	})
	return s.lifecycle.closeErr
}

// Closed reports whether Close has started
func (s *Server) Closed() bool {
	s.lifecycle.mu.Lock()
	defer s.lifecycle.mu.Unlock()
	return s.lifecycle.closed
}
