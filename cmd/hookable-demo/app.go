package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/poltergeist-framework/hookable"
	"github.com/poltergeist-framework/hookable/hooks"
	"github.com/poltergeist-framework/hookable/internal/config"
	"github.com/poltergeist-framework/hookable/middleware"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

var (
	greetHook = hooks.Key[string, string]("greet")
	chatHook  = hooks.Key[chatMessage, chatMessage]("chat:message")
)

type chatMessage struct {
	From string `json:"from"`
	Room string `json:"room,omitempty"`
	Text string `json:"text"`
}

// stats counts dispatches per hook name.
type stats struct {
	mu     sync.Mutex
	counts map[string]int
}

func newStats() *stats {
	return &stats{counts: make(map[string]int)}
}

func (s *stats) observe(ev *hooks.Event) {
	s.mu.Lock()
	s.counts[ev.Name]++
	s.mu.Unlock()
}

func (s *stats) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

type app struct {
	server *poltergeist.Server
	plugin *hookable.Plugin
	hub    *poltergeist.WSHub
	stats  *stats
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	scfg := poltergeist.DefaultConfig()
	scfg.Addr = cfg.Server.Address
	scfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	scfg.Logger = log

	a := &app{
		server: poltergeist.NewWithConfig(scfg),
		hub:    poltergeist.NewWSHub(),
		stats:  newStats(),
	}

	var debuggerOptions any
	if cfg.Hooks.Debugger != nil {
		debuggerOptions = cfg.Hooks.Debugger
	}
	plugin, err := hookable.Register(a.server, hookable.Options{
		Before:          a.stats.observe,
		DebuggerOptions: debuggerOptions,
		Close: func(ctx context.Context) error {
			log.Info("hooks shutting down", "dispatches", a.stats.snapshot())
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	a.plugin = plugin

	a.registerHooks(cfg.Hooks.Tokens)
	a.routes(ctx, cfg)
	return a, nil
}

func (a *app) registerHooks(tokens []string) {
	reg := a.plugin.Registry()

	greetHook.Hook(reg, func(ctx context.Context, name string) (string, error) {
		return "hi-" + name, nil
	})

	chatHook.Hook(reg, func(ctx context.Context, msg chatMessage) (chatMessage, error) {
		msg.Text = strings.TrimSpace(msg.Text)
		return msg, nil
	})

	middleware.VerifyToken.Hook(reg, func(ctx context.Context, token string) (bool, error) {
		for _, t := range tokens {
			if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
				return true, nil
			}
		}
		return false, nil
	})
}

func (a *app) routes(ctx context.Context, cfg *config.Config) {
	s := a.server
	s.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Lifecycle(),
		middleware.RateLimitWithContext(ctx, &middleware.RateLimitConfig{
			RPS:   cfg.Server.RateLimit.RPS,
			Burst: cfg.Server.RateLimit.Burst,
		}),
	)

	s.GET("/greet/:name", a.greet)
	s.WebSocketWithHub("/ws/chat", a.hub, a.chat)

	admin := s.Group("/admin", middleware.HookAuth())
	admin.GET("/hooks", a.listHooks)
	admin.POST("/hooks/:name", a.callHook)
}

func (a *app) greet(c *poltergeist.Context) error {
	msg, err := greetHook.Call(c.Context(), hookable.FromContext(c), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, poltergeist.H{"message": msg})
}

type hookInfo struct {
	Name       string `json:"name"`
	Callbacks  int    `json:"callbacks"`
	Dispatches int    `json:"dispatches"`
}

func (a *app) listHooks(c *poltergeist.Context) error {
	reg := hookable.FromContext(c)
	counts := a.stats.snapshot()

	seen := make(map[string]bool)
	var out []hookInfo
	for _, name := range reg.Names() {
		seen[name] = true
		out = append(out, hookInfo{Name: name, Callbacks: reg.Count(name), Dispatches: counts[name]})
	}
	for name, n := range counts {
		if !seen[name] {
			out = append(out, hookInfo{Name: name, Dispatches: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return c.JSON(http.StatusOK, out)
}

// callHook dispatches the named hook with the JSON array in the body as
// arguments and returns the result of the last callback.
func (a *app) callHook(c *poltergeist.Context) error {
	var args []any
	if err := c.Bind(&args); err != nil {
		return c.Error(http.StatusBadRequest, err.Error())
	}
	name := c.Param("name")
	reg := hookable.FromContext(c)
	if !reg.Has(name) {
		return c.Error(http.StatusNotFound, "no callbacks for hook "+name)
	}
	res, err := reg.Call(c.Context(), name, args...)
	if err != nil {
		return c.Error(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, poltergeist.H{"hook": name, "result": res})
}

// chat runs every incoming message through the chat:message hook and
// broadcasts the result to the room, or to everyone without a room.
func (a *app) chat(c *poltergeist.Context, conn *poltergeist.WSConn, _ int, data []byte) {
	var msg chatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = conn.SendJSON(poltergeist.H{"error": "invalid message"})
		return
	}
	if msg.From == "" {
		msg.From = conn.ID
	}

	out, err := chatHook.Call(c.Context(), hookable.FromContext(c), msg)
	if err != nil {
		_ = conn.SendJSON(poltergeist.H{"error": err.Error()})
		return
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	if out.Room == "" {
		a.hub.Broadcast(payload)
		return
	}
	a.hub.JoinRoom(conn.ID, out.Room)
	a.hub.BroadcastToRoom(out.Room, payload)
}
