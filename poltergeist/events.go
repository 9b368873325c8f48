package poltergeist

import "sync"

// EventType names a request, server or WebSocket lifecycle event
type EventType string

const (
	EventBeforeRequest EventType = "before_request"
	EventAfterRequest  EventType = "after_request"
	EventError         EventType = "on_error" // handler returned an error, see ErrorKey
	EventServerStart   EventType = "server_start"
	EventServerStop    EventType = "server_stop" // emitted by Shutdown before the close handlers
	EventWSConnect     EventType = "ws_connect"
	EventWSDisconnect  EventType = "ws_disconnect"
)

// EventHandler handles a pipeline event. c is nil for server events.
type EventHandler func(c *Context)

type subscription struct {
	handler EventHandler
}

// EventPipeline fans lifecycle events out to subscribed handlers. Handlers
// run synchronously on the emitting goroutine in subscription order.
type EventPipeline struct {
	mu       sync.RWMutex
	handlers map[EventType][]*subscription
}

// NewEventPipeline creates an empty pipeline
func NewEventPipeline() *EventPipeline {
	return &EventPipeline{handlers: make(map[EventType][]*subscription)}
}

// On subscribes handler to event. The returned func unsubscribes it and may
// be called more than once.
func (p *EventPipeline) On(event EventType, handler EventHandler) (off func()) {
	sub := &subscription{handler: handler}

	p.mu.Lock()
	p.handlers[event] = append(p.handlers[event], sub)
	p.mu.Unlock()

	return func() { p.remove(event, sub) }
}

func (p *EventPipeline) remove(event EventType, sub *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.handlers[event]
	for i, s := range subs {
		if s == sub {
			p.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(p.handlers[event]) == 0 {
		delete(p.handlers, event)
	}
}

// Off removes every handler of event
func (p *EventPipeline) Off(event EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, event)
}

// Emit runs the handlers of event
func (p *EventPipeline) Emit(event EventType, c *Context) {
	p.mu.RLock()
	subs := p.handlers[event]
	p.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(c)
	}
}

// Count returns the number of handlers subscribed to event
func (p *EventPipeline) Count(event EventType) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers[event])
}
