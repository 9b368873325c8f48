package hookable

import (
	"context"

	"github.com/poltergeist-framework/hookable/poltergeist"
)

// Hooks dispatched for host lifecycle events. Request and WebSocket hooks
// receive the *poltergeist.Context; request:error also receives the handler
// error. Server hooks receive no arguments.
const (
	HookServerStart  = "server:start"
	HookServerStop   = "server:stop"
	HookRequestError = "request:error"
	HookWSConnect    = "ws:connect"
	HookWSDisconnect = "ws:disconnect"
)

var lifecycleHooks = []struct {
	event poltergeist.EventType
	hook  string
}{
	{poltergeist.EventServerStart, HookServerStart},
	{poltergeist.EventServerStop, HookServerStop},
	{poltergeist.EventError, HookRequestError},
	{poltergeist.EventWSConnect, HookWSConnect},
	{poltergeist.EventWSDisconnect, HookWSDisconnect},
}

// bridge forwards the host pipeline events to the registry until the
// returned func is called.
func (p *Plugin) bridge(pipeline *poltergeist.EventPipeline) (detach func()) {
	offs := make([]func(), 0, len(lifecycleHooks))
	for _, lh := range lifecycleHooks {
		offs = append(offs, pipeline.On(lh.event, func(c *poltergeist.Context) {
			p.forward(lh.hook, c)
		}))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (p *Plugin) forward(name string, c *poltergeist.Context) {
	ctx := context.Background()
	var args []any
	if c != nil {
		ctx = c.Context()
		args = append(args, c)
		if name == HookRequestError {
			err, _ := c.Get(poltergeist.ErrorKey)
			args = append(args, err)
		}
	}
	if _, err := p.registry.Call(ctx, name, args...); err != nil {
		p.logger.Warn("lifecycle hook failed", "hook", name, "error", err)
	}
}
