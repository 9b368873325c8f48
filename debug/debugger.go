// Package debug logs hook dispatches of a hooks.Registry.
package debug

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poltergeist-framework/hookable/hooks"
)

// startKey is the bag key holding the dispatch start time.
const startKey = "debug.start"

// Options controls what the debugger logs.
type Options struct {
	// Tag labels every log line (e.g. the server name)
	Tag string
	// Inspect includes the dispatch arguments
	Inspect bool
	// Group nests the attributes under a group named after the tag
	Group bool
	// Filter selects the hook names to log; nil logs everything
	Filter func(name string) bool
	// Logger receives the log lines (default: slog.Default())
	Logger *slog.Logger
}

// PrefixFilter returns a filter matching names that start with prefix.
func PrefixFilter(prefix string) func(string) bool {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// Debugger is the handle returned by New. Close detaches it.
type Debugger struct {
	opts   Options
	logger *slog.Logger
	calls  atomic.Uint64

	closeOnce    sync.Once
	removeBefore func()
	removeAfter  func()
}

// New attaches a debugger to the registry.
func New(r *hooks.Registry, opts Options) *Debugger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Debugger{opts: opts, logger: logger}
	d.removeBefore = r.BeforeEach(d.before)
	d.removeAfter = r.AfterEach(d.after)
	return d
}

// Calls returns the number of dispatches the debugger has logged.
func (d *Debugger) Calls() uint64 {
	return d.calls.Load()
}

// Close detaches the debugger from its registry.
func (d *Debugger) Close() error {
	d.closeOnce.Do(func() {
		d.removeBefore()
		d.removeAfter()
	})
	return nil
}

func (d *Debugger) match(name string) bool {
	return d.opts.Filter == nil || d.opts.Filter(name)
}

func (d *Debugger) before(ev *hooks.Event) {
	if !d.match(ev.Name) {
		return
	}
	ev.Context.Set(startKey, time.Now())
}

func (d *Debugger) after(ev *hooks.Event) {
	if !d.match(ev.Name) {
		return
	}
	d.calls.Add(1)

	attrs := []any{slog.String("hook", ev.Name)}
	if v, ok := ev.Context.Get(startKey); ok {
		if start, ok := v.(time.Time); ok {
			attrs = append(attrs, slog.Duration("duration", time.Since(start)))
		}
	}
	if d.opts.Inspect {
		attrs = append(attrs, slog.Any("args", ev.Args))
	}

	if d.opts.Group {
		group := d.opts.Tag
		if group == "" {
			group = "hooks"
		}
		attrs = []any{slog.Group(group, attrs...)}
	} else if d.opts.Tag != "" {
		attrs = append(attrs, slog.String("tag", d.opts.Tag))
	}

	d.logger.Info("hook dispatched", attrs...)
}
