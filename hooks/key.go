package hooks

import (
	"context"
	"fmt"
)

// Key is a typed hook name. Applications declare their own keys to give a
// hook a fixed input and output type:
//
//	var Greet = hooks.Key[string, string]("greet")
//
//	Greet.Hook(reg, func(ctx context.Context, name string) (string, error) {
//	    return "hi-" + name, nil
//	})
//	msg, err := Greet.Call(ctx, reg, "x")
type Key[In, Out any] string

// Name returns the hook name.
func (k Key[In, Out]) Name() string {
	return string(k)
}

// Hook registers a typed callback.
func (k Key[In, Out]) Hook(r *Registry, fn func(ctx context.Context, in In) (Out, error)) func() {
	return r.Hook(string(k), func(ctx context.Context, args ...any) (any, error) {
		var in In
		if len(args) > 0 {
			v, ok := args[0].(In)
			if !ok && args[0] != nil {
				return nil, fmt.Errorf("argument of type %T does not match hook input", args[0])
			}
			in = v
		}
		return fn(ctx, in)
	})
}

// Call dispatches the hook with a typed argument and returns the typed
// result. A hook without callbacks yields the zero value of Out.
func (k Key[In, Out]) Call(ctx context.Context, r *Registry, in In) (Out, error) {
	var out Out
	res, err := r.Call(ctx, string(k), in)
	if err != nil || res == nil {
		return out, err
	}
	v, ok := res.(Out)
	if !ok {
		return out, fmt.Errorf("hook %s: result of type %T does not match hook output", k, res)
	}
	return v, nil
}

// CallAll dispatches the hook to every callback concurrently and returns
// their typed results in registration order.
func (k Key[In, Out]) CallAll(ctx context.Context, r *Registry, in In) ([]Out, error) {
	res, err := r.CallParallel(ctx, string(k), in)
	if err != nil {
		return nil, err
	}
	outs := make([]Out, len(res))
	for i, v := range res {
		if v == nil {
			continue
		}
		out, ok := v.(Out)
		if !ok {
			return nil, fmt.Errorf("hook %s: result of type %T does not match hook output", k, v)
		}
		outs[i] = out
	}
	return outs, nil
}
