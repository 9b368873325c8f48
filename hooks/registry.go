// Package hooks provides a named-hook registry with serial and parallel
// dispatch and global before/after observers.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Func is a hook callback. The returned value becomes the result of the
// dispatch when the callback is the last one registered for its name.
type Func func(ctx context.Context, args ...any) (any, error)

// Observer is invoked around every dispatch of any hook.
type Observer func(ev *Event)

type entry struct {
	fn Func
	// name moves with the entry when its hook is deprecated
	name string
}

type observer struct {
	fn Observer
}

// Registry holds the hooks of one server instance.
type Registry struct {
	mu         sync.RWMutex
	hooks      map[string][]*entry
	before     []*observer
	after      []*observer
	deprecated map[string]deprecation
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for deprecation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		hooks:      make(map[string][]*entry),
		deprecated: make(map[string]deprecation),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Hook registers fn under name and returns a function that removes it.
// The returned function is safe to call more than once.
func (r *Registry) Hook(name string, fn Func) func() {
	if fn == nil {
		return func() {}
	}
	name = r.resolve(name)
	e := &entry{fn: fn, name: name}

	r.mu.Lock()
	r.hooks[name] = append(r.hooks[name], e)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(e) })
	}
}

// HookOnce registers fn so that it runs for a single dispatch only.
func (r *Registry) HookOnce(name string, fn Func) func() {
	if fn == nil {
		return func() {}
	}
	var unregister func()
	unregister = r.Hook(name, func(ctx context.Context, args ...any) (any, error) {
		unregister()
		return fn(ctx, args...)
	})
	return unregister
}

// AddHooks registers every callback in the map and returns a function
// that removes all of them.
func (r *Registry) AddHooks(fns map[string]Func) func() {
	removers := make([]func(), 0, len(fns))
	for name, fn := range fns {
		removers = append(removers, r.Hook(name, fn))
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

// BeforeEach registers an observer invoked before every dispatch.
func (r *Registry) BeforeEach(fn Observer) func() {
	return r.observe(&r.before, fn)
}

// AfterEach registers an observer invoked after every dispatch, once all
// callbacks for the name have completed.
func (r *Registry) AfterEach(fn Observer) func() {
	return r.observe(&r.after, fn)
}

func (r *Registry) observe(list *[]*observer, fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	o := &observer{fn: fn}

	r.mu.Lock()
	*list = append(*list, o)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			*list = removeObserver(*list, o)
		})
	}
}

// RemoveHook removes every callback registered under name.
func (r *Registry) RemoveHook(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, name)
}

// RemoveAllHooks removes every callback of every name. Observers are kept.
func (r *Registry) RemoveAllHooks() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = make(map[string][]*entry)
}

func (r *Registry) remove(target *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := target.name
	entries := r.hooks[name]
	for i, e := range entries {
		if e != target {
			continue
		}
		next := make([]*entry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(r.hooks, name)
		} else {
			r.hooks[name] = next
		}
		return
	}
}

func removeObserver(list []*observer, target *observer) []*observer {
	for i, o := range list {
		if o == target {
			next := make([]*observer, 0, len(list)-1)
			next = append(next, list[:i]...)
			return append(next, list[i+1:]...)
		}
	}
	return list
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// Has reports whether name has at least one callback.
func (r *Registry) Has(name string) bool {
	return r.Count(name) > 0
}

// Count returns the number of callbacks registered under name.
func (r *Registry) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[name])
}

// Names returns the sorted names that currently have callbacks.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// =============================================================================
// DISPATCH
// =============================================================================

// Call runs the callbacks registered under name one after another with the
// same arguments and returns the result of the last one. The first error
// stops the chain. Observers run even when name has no callbacks, and the
// after observers run even when a callback fails.
func (r *Registry) Call(ctx context.Context, name string, args ...any) (result any, err error) {
	entries, before, after := r.snapshot(name)
	ev := newEvent(name, args)
	ctx = withEvent(ctx, ev)

	notify(before, ev)
	defer notify(after, ev)

	for _, e := range entries {
		result, err = e.fn(ctx, args...)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", name, err)
		}
	}
	return result, nil
}

// CallParallel runs every callback registered under name concurrently and
// returns their results in registration order.
func (r *Registry) CallParallel(ctx context.Context, name string, args ...any) ([]any, error) {
	entries, before, after := r.snapshot(name)
	ev := newEvent(name, args)

	notify(before, ev)
	defer notify(after, ev)

	results := make([]any, len(entries))
	g, gctx := errgroup.WithContext(withEvent(ctx, ev))
	for i, e := range entries {
		g.Go(func() error {
			res, err := e.fn(gctx, args...)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hook %s: %w", name, err)
	}
	return results, nil
}

// snapshot copies the callback and observer lists so dispatch runs without
// holding the lock.
func (r *Registry) snapshot(name string) ([]*entry, []*observer, []*observer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := append([]*entry(nil), r.hooks[name]...)
	before := append([]*observer(nil), r.before...)
	after := append([]*observer(nil), r.after...)
	return entries, before, after
}

func notify(observers []*observer, ev *Event) {
	for _, o := range observers {
		o.fn(ev)
	}
}
