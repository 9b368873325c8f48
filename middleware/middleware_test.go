package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist-framework/hookable"
	"github.com/poltergeist-framework/hookable/hooks"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

func newServer(t *testing.T, buf *bytes.Buffer, withPlugin bool) *poltergeist.Server {
	t.Helper()
	cfg := poltergeist.DefaultConfig()
	if buf != nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(buf, nil))
	}
	s := poltergeist.NewWithConfig(cfg)
	if withPlugin {
		_, err := hookable.Register(s, hookable.Options{})
		require.NoError(t, err)
	}
	return s
}

func do(s *poltergeist.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func get(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

// record collects the names dispatched on a registry.
type record struct {
	mu    sync.Mutex
	names []string
	args  [][]any
}

func (r *record) observe(ev *hooks.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, ev.Name)
	r.args = append(r.args, ev.Args)
}

func TestRequestID(t *testing.T) {
	s := newServer(t, nil, false)
	s.Use(RequestID())
	var seen string
	s.GET("/", func(c *poltergeist.Context) error {
		seen = c.GetString(RequestIDKey)
		return c.NoContent()
	})

	rec := do(s, get("/"))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(poltergeist.HeaderXRequestID))

	req := get("/")
	req.Header.Set(poltergeist.HeaderXRequestID, "abc")
	rec = do(s, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(poltergeist.HeaderXRequestID))
}

func TestChainAndIf(t *testing.T) {
	var order []string
	mark := func(name string) poltergeist.MiddlewareFunc {
		return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
			return func(c *poltergeist.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	s := newServer(t, nil, false)
	s.Use(Chain(mark("a"), mark("b")))
	s.Use(If(func(c *poltergeist.Context) bool { return c.Query("c") != "" }, mark("c")))
	s.GET("/", func(c *poltergeist.Context) error { return c.NoContent() })

	do(s, get("/"))
	assert.Equal(t, []string{"a", "b"}, order)

	order = nil
	do(s, get("/?c=1"))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSecureHeaders(t *testing.T) {
	s := newServer(t, nil, false)
	s.Use(Secure())
	s.GET("/", func(c *poltergeist.Context) error { return c.NoContent() })

	rec := do(s, get("/"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestLifecycleDispatchesHooks(t *testing.T) {
	s := newServer(t, nil, true)
	var rec record
	hookable.FromServer(s).BeforeEach(rec.observe)

	s.Use(Lifecycle())
	s.GET("/ok", func(c *poltergeist.Context) error { return c.NoContent() })
	boom := errors.New("boom")
	s.GET("/fail", func(c *poltergeist.Context) error { return boom })

	do(s, get("/ok"))
	assert.Equal(t, []string{HookRequestStart, HookRequestEnd}, rec.names)
	assert.Nil(t, rec.args[1][1])

	rec.names, rec.args = nil, nil
	res := do(s, get("/fail"))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, []string{HookRequestStart, HookRequestEnd, hookable.HookRequestError}, rec.names)
	assert.Equal(t, boom, rec.args[1][1])
}

func TestLifecycleStartHookAborts(t *testing.T) {
	s := newServer(t, nil, true)
	hookable.FromServer(s).Hook(HookRequestStart, func(ctx context.Context, args ...any) (any, error) {
		c := args[0].(*poltergeist.Context)
		if c.Header("X-Block") != "" {
			_ = c.Error(http.StatusForbidden, "blocked")
			return nil, errors.New("blocked")
		}
		return nil, nil
	})

	var called int
	s.Use(Lifecycle())
	s.GET("/", func(c *poltergeist.Context) error {
		called++
		return c.NoContent()
	})

	req := get("/")
	req.Header.Set("X-Block", "1")
	res := do(s, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Zero(t, called)

	res = do(s, get("/"))
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, 1, called)
}

func TestLifecycleWithoutPlugin(t *testing.T) {
	s := newServer(t, nil, false)
	s.Use(Lifecycle())
	s.GET("/", func(c *poltergeist.Context) error { return c.NoContent() })

	assert.Equal(t, http.StatusNoContent, do(s, get("/")).Code)
}

func TestLoggerWritesAccessLog(t *testing.T) {
	var buf bytes.Buffer
	s := newServer(t, &buf, false)
	s.Use(RequestID(), Logger())
	s.GET("/teapot", func(c *poltergeist.Context) error { return c.String(http.StatusTeapot, "short and stout") })
	s.GET("/health", func(c *poltergeist.Context) error { return c.NoContent() })

	do(s, get("/teapot"))
	do(s, get("/health"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"request"`)
	assert.Contains(t, out, `"path":"/teapot"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"request_id"`)
	assert.NotContains(t, out, "/health")
}

func TestRecoveryDispatchesPanicHook(t *testing.T) {
	var buf bytes.Buffer
	s := newServer(t, &buf, true)

	var recovered any
	hookable.FromServer(s).Hook(HookRequestPanic, func(ctx context.Context, args ...any) (any, error) {
		recovered = args[1]
		return nil, nil
	})

	s.Use(Recovery())
	s.GET("/", func(c *poltergeist.Context) error { panic("kaboom") })

	res := do(s, get("/"))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, "kaboom", recovered)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestRecoveryCustomHandler(t *testing.T) {
	s := newServer(t, nil, false)
	s.Use(RecoveryWithConfig(&RecoveryConfig{
		RecoveryHandler: func(c *poltergeist.Context, err any) error {
			return c.String(http.StatusServiceUnavailable, "recovered")
		},
	}))
	s.GET("/", func(c *poltergeist.Context) error { panic("kaboom") })

	res := do(s, get("/"))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Equal(t, "recovered", res.Body.String())
}

func TestRateLimitDispatchesExceeded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newServer(t, nil, true)
	var keys []string
	hookable.FromServer(s).Hook(HookRateLimitExceeded, func(ctx context.Context, args ...any) (any, error) {
		keys = append(keys, args[1].(string))
		return nil, nil
	})

	s.Use(RateLimitWithContext(ctx, &RateLimitConfig{
		RPS:     0.001,
		Burst:   1,
		KeyFunc: func(c *poltergeist.Context) string { return c.Header("X-Client") },
	}))
	s.GET("/", func(c *poltergeist.Context) error { return c.NoContent() })

	req := func(client string) *http.Request {
		r := get("/")
		r.Header.Set("X-Client", client)
		return r
	}

	assert.Equal(t, http.StatusNoContent, do(s, req("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, req("a")).Code)
	assert.Equal(t, http.StatusNoContent, do(s, req("b")).Code)
	assert.Equal(t, []string{"a"}, keys)
}

func TestLimiterStoreSweep(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	store := newLimiterStore(cfg)
	store.get("a")
	store.get("b")
	require.Equal(t, 2, store.size())

	store.sweep(store.visitors["a"].lastSeen.Add(cfg.ExpirationTime / 2))
	assert.Equal(t, 2, store.size())

	store.sweep(store.visitors["b"].lastSeen.Add(2 * cfg.ExpirationTime))
	assert.Zero(t, store.size())
}

func TestHookAuth(t *testing.T) {
	s := newServer(t, nil, true)
	VerifyToken.Hook(hookable.FromServer(s), func(ctx context.Context, token string) (bool, error) {
		if token == "broken" {
			return false, errors.New("backend down")
		}
		return token == "secret", nil
	})

	s.GET("/private", func(c *poltergeist.Context) error {
		return c.String(http.StatusOK, c.GetString(TokenKey))
	}, HookAuth())

	for _, tc := range []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"hook error", "Bearer broken", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
		{"lower-case scheme", "bearer secret", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := get("/private")
			if tc.header != "" {
				req.Header.Set(poltergeist.HeaderAuthorization, tc.header)
			}
			res := do(s, req)
			assert.Equal(t, tc.code, res.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "secret", strings.TrimSpace(res.Body.String()))
			} else {
				assert.Equal(t, "Bearer", res.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestHookAuthRequiresEveryCallback(t *testing.T) {
	s := newServer(t, nil, true)
	reg := hookable.FromServer(s)
	VerifyToken.Hook(reg, func(ctx context.Context, token string) (bool, error) {
		return token != "revoked", nil
	})
	VerifyToken.Hook(reg, func(ctx context.Context, token string) (bool, error) {
		return true, nil
	})
	s.GET("/private", func(c *poltergeist.Context) error { return c.NoContent() }, HookAuth())

	for token, code := range map[string]int{"fine": http.StatusNoContent, "revoked": http.StatusUnauthorized} {
		req := get("/private")
		req.Header.Set(poltergeist.HeaderAuthorization, "Bearer "+token)
		assert.Equal(t, code, do(s, req).Code, token)
	}
}

func TestHookAuthWithoutVerifier(t *testing.T) {
	for name, withPlugin := range map[string]bool{"no plugin": false, "no callback": true} {
		t.Run(name, func(t *testing.T) {
			s := newServer(t, nil, withPlugin)
			s.GET("/private", func(c *poltergeist.Context) error { return c.NoContent() }, HookAuth())

			req := get("/private")
			req.Header.Set(poltergeist.HeaderAuthorization, "Bearer secret")
			assert.Equal(t, http.StatusUnauthorized, do(s, req).Code)
		})
	}
}

func TestBearerAuthValidatorOverridesHook(t *testing.T) {
	s := newServer(t, nil, false)
	s.GET("/private", func(c *poltergeist.Context) error { return c.NoContent() },
		BearerAuth(func(token string, c *poltergeist.Context) bool { return token == "static" }))

	req := get("/private")
	req.Header.Set(poltergeist.HeaderAuthorization, "Bearer static")
	assert.Equal(t, http.StatusNoContent, do(s, req).Code)
}
