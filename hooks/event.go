package hooks

import (
	"context"
	"sort"
	"sync"
)

// Event describes a single dispatch. Observers receive it directly and
// callbacks can fetch it with EventFrom.
type Event struct {
	Name    string
	Args    []any
	Context *Bag
}

func newEvent(name string, args []any) *Event {
	return &Event{
		Name:    name,
		Args:    args,
		Context: &Bag{},
	}
}

// Bag is the mutable store shared by the observers and callbacks of one
// dispatch.
type Bag struct {
	mu     sync.RWMutex
	values map[string]any
}

// Set stores a value in the bag.
func (b *Bag) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.values[key] = value
}

// Get retrieves a value from the bag.
func (b *Bag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Keys returns the sorted keys currently in the bag.
func (b *Bag) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

type eventKey struct{}

func withEvent(ctx context.Context, ev *Event) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, eventKey{}, ev)
}

// EventFrom returns the event of the dispatch running the callback that
// received ctx.
func EventFrom(ctx context.Context) (*Event, bool) {
	if ctx == nil {
		return nil, false
	}
	ev, ok := ctx.Value(eventKey{}).(*Event)
	return ev, ok
}
