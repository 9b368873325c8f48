package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallReturnsLastResult(t *testing.T) {
	r := New()
	r.Hook("build", func(ctx context.Context, args ...any) (any, error) {
		return "first", nil
	})
	r.Hook("build", func(ctx context.Context, args ...any) (any, error) {
		return "second:" + args[0].(string), nil
	})

	res, err := r.Call(context.Background(), "build", "x")
	require.NoError(t, err)
	assert.Equal(t, "second:x", res)
}

func TestCallUnknownHook(t *testing.T) {
	r := New()
	var before, after int
	r.BeforeEach(func(ev *Event) { before++ })
	r.AfterEach(func(ev *Event) { after++ })

	res, err := r.Call(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after)
}

func TestCallStopsAtFirstError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	var ran bool
	r.Hook("save", func(ctx context.Context, args ...any) (any, error) {
		return nil, boom
	})
	r.Hook("save", func(ctx context.Context, args ...any) (any, error) {
		ran = true
		return nil, nil
	})
	var after int
	r.AfterEach(func(ev *Event) { after++ })

	_, err := r.Call(context.Background(), "save")
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
	assert.Equal(t, 1, after, "after observers run when a callback fails")
}

func TestObserversSeeEventAndSharedBag(t *testing.T) {
	r := New()
	var order []string
	r.BeforeEach(func(ev *Event) {
		order = append(order, "before:"+ev.Name)
		ev.Context.Set("seen", true)
	})
	r.AfterEach(func(ev *Event) {
		order = append(order, "after:"+ev.Name)
		v, _ := ev.Context.Get("callback")
		assert.Equal(t, "done", v)
		assert.Equal(t, []any{1, "two"}, ev.Args)
	})
	r.Hook("step", func(ctx context.Context, args ...any) (any, error) {
		order = append(order, "callback")
		ev, ok := EventFrom(ctx)
		require.True(t, ok)
		seen, _ := ev.Context.Get("seen")
		assert.Equal(t, true, seen)
		ev.Context.Set("callback", "done")
		return nil, nil
	})

	_, err := r.Call(context.Background(), "step", 1, "two")
	require.NoError(t, err)
	assert.Equal(t, []string{"before:step", "callback", "after:step"}, order)
}

func TestUnregister(t *testing.T) {
	r := New()
	remove := r.Hook("a", func(ctx context.Context, args ...any) (any, error) { return 1, nil })
	r.Hook("a", func(ctx context.Context, args ...any) (any, error) { return 2, nil })
	assert.Equal(t, 2, r.Count("a"))

	remove()
	remove()
	assert.Equal(t, 1, r.Count("a"))

	res, err := r.Call(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, res)
}

func TestObserverUnregister(t *testing.T) {
	r := New()
	var calls int
	remove := r.BeforeEach(func(ev *Event) { calls++ })
	_, _ = r.Call(context.Background(), "x")
	remove()
	_, _ = r.Call(context.Background(), "x")
	assert.Equal(t, 1, calls)
}

func TestHookOnce(t *testing.T) {
	r := New()
	var calls int
	r.HookOnce("init", func(ctx context.Context, args ...any) (any, error) {
		calls++
		return nil, nil
	})

	_, _ = r.Call(context.Background(), "init")
	_, _ = r.Call(context.Background(), "init")
	assert.Equal(t, 1, calls)
	assert.False(t, r.Has("init"))
}

func TestAddHooksAndRemoveAll(t *testing.T) {
	r := New()
	noop := func(ctx context.Context, args ...any) (any, error) { return nil, nil }
	remove := r.AddHooks(map[string]Func{"a": noop, "b": noop})
	assert.Equal(t, []string{"a", "b"}, r.Names())
	remove()
	assert.Empty(t, r.Names())

	r.Hook("c", noop)
	r.Hook("d", noop)
	var observed int
	r.BeforeEach(func(ev *Event) { observed++ })
	r.RemoveAllHooks()
	assert.Empty(t, r.Names())

	_, _ = r.Call(context.Background(), "c")
	assert.Equal(t, 1, observed, "observers survive RemoveAllHooks")
}

func TestRemoveHook(t *testing.T) {
	r := New()
	noop := func(ctx context.Context, args ...any) (any, error) { return nil, nil }
	r.Hook("a", noop)
	r.Hook("a", noop)
	r.Hook("b", noop)
	r.RemoveHook("a")
	assert.Equal(t, []string{"b"}, r.Names())
}

func TestCallParallel(t *testing.T) {
	r := New()
	var running atomic.Int32
	for i := 0; i < 3; i++ {
		r.Hook("fan", func(ctx context.Context, args ...any) (any, error) {
			running.Add(1)
			return i * 10, nil
		})
	}
	var after int
	r.AfterEach(func(ev *Event) { after++ })

	res, err := r.CallParallel(context.Background(), "fan")
	require.NoError(t, err)
	assert.Equal(t, []any{0, 10, 20}, res)
	assert.EqualValues(t, 3, running.Load())
	assert.Equal(t, 1, after)
}

func TestCallParallelError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Hook("fan", func(ctx context.Context, args ...any) (any, error) { return nil, boom })
	r.Hook("fan", func(ctx context.Context, args ...any) (any, error) { return 1, nil })

	_, err := r.CallParallel(context.Background(), "fan")
	require.ErrorIs(t, err, boom)
}

func TestDeprecate(t *testing.T) {
	r := New()
	offMoved := r.Hook("old", func(ctx context.Context, args ...any) (any, error) { return "moved", nil })
	r.Deprecate("old", "new")
	offRedirected := r.Hook("old", func(ctx context.Context, args ...any) (any, error) { return "redirected", nil })

	assert.False(t, r.Has("old"))
	assert.Equal(t, 2, r.Count("new"))

	res, err := r.Call(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "redirected", res)

	offMoved()
	assert.Equal(t, 1, r.Count("new"), "moved callbacks stay removable")
	offRedirected()
	assert.Zero(t, r.Count("new"))
}

func TestKey(t *testing.T) {
	r := New()
	greet := Key[string, string]("greet")
	greet.Hook(r, func(ctx context.Context, in string) (string, error) {
		return "hi-" + in, nil
	})

	out, err := greet.Call(context.Background(), r, "x")
	require.NoError(t, err)
	assert.Equal(t, "hi-x", out)
	assert.Equal(t, "greet", greet.Name())

	empty := Key[string, int]("nothing")
	n, err := empty.Call(context.Background(), r, "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKeyTypeMismatch(t *testing.T) {
	r := New()
	count := Key[int, int]("count")
	count.Hook(r, func(ctx context.Context, in int) (int, error) { return in + 1, nil })

	_, err := r.Call(context.Background(), "count", "not-an-int")
	require.Error(t, err)

	r.Hook("count", func(ctx context.Context, args ...any) (any, error) { return "text", nil })
	_, err = count.Call(context.Background(), r, 1)
	require.Error(t, err)
}

func TestNilCallbacksAreIgnored(t *testing.T) {
	r := New()
	r.Hook("x", nil)()
	r.HookOnce("x", nil)()
	assert.False(t, r.Has("x"))

	require.NotPanics(t, func() {
		_, err := r.Call(context.Background(), "x")
		require.NoError(t, err)
	})
}

func TestKeyCallAll(t *testing.T) {
	r := New()
	check := Key[int, bool]("check")
	check.Hook(r, func(ctx context.Context, n int) (bool, error) { return n > 0, nil })
	check.Hook(r, func(ctx context.Context, n int) (bool, error) { return n > 10, nil })

	outs, err := check.CallAll(context.Background(), r, 5)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, outs)

	outs, err = Key[int, bool]("nothing").CallAll(context.Background(), r, 5)
	require.NoError(t, err)
	assert.Empty(t, outs)
}
