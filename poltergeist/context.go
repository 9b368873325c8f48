package poltergeist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
)

// Context carries one request through middleware and handlers. Contexts
// are pooled: do not keep one after the handler returns, except on
// WebSocket routes where it lives as long as the connection.
type Context struct {
	// Writer records the status of what is written through it
	Writer  http.ResponseWriter
	Request *http.Request
	Params  map[string]string

	// WS is set once the request has been upgraded
	WS *WSConn

	rw          responseWriter
	mu          sync.RWMutex
	keys        map[string]any
	decorations *decorations
	logger      *slog.Logger
}

// NewContext creates a standalone context, mostly for tests
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	c := &Context{}
	c.reset(w, r)
	return c
}

func (c *Context) reset(w http.ResponseWriter, r *http.Request) {
	c.rw = responseWriter{ResponseWriter: w, status: http.StatusOK}
	c.Writer = &c.rw
	c.Request = r
	c.Params = nil
	c.WS = nil
	c.keys = nil
	c.decorations = nil
	c.logger = nil
}

// Decoration returns a per-request decoration registered with
// Server.DecorateRequest. The getter is evaluated on every call.
func (c *Context) Decoration(name string) (any, bool) {
	return c.decorations.get(name)
}

// Context returns the request's context.Context
func (c *Context) Context() context.Context {
	if c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// Logger returns the server logger
func (c *Context) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// =============================================================================
// REQUEST
// =============================================================================

// MaxBindBytes caps the request bodies accepted by Bind
const MaxBindBytes = 1 << 20

// Bind decodes the JSON request body into v
func (c *Context) Bind(v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBindBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

func (c *Context) Query(key string) string  { return c.Request.URL.Query().Get(key) }
func (c *Context) Param(key string) string  { return c.Params[key] }
func (c *Context) Header(key string) string { return c.Request.Header.Get(key) }
func (c *Context) Method() string           { return c.Request.Method }
func (c *Context) Path() string             { return c.Request.URL.Path }

// ClientIP returns the client address. X-Forwarded-For and X-Real-IP win
// over the connection address.
func (c *Context) ClientIP() string {
	if fwd := c.Header(HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := c.Header(HeaderXRealIP); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// =============================================================================
// RESPONSE
// =============================================================================

// SetHeader sets a response header
func (c *Context) SetHeader(key, value string) {
	c.Writer.Header().Set(key, value)
}

func (c *Context) write(code int, contentType string, body []byte) error {
	c.SetHeader(HeaderContentType, contentType)
	c.Writer.WriteHeader(code)
	_, err := c.Writer.Write(body)
	return err
}

// JSON writes v as a JSON response
func (c *Context) JSON(code int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(code, ContentTypeJSON, append(body, '\n'))
}

// String writes a plain text response
func (c *Context) String(code int, s string) error {
	return c.write(code, ContentTypeText, []byte(s))
}

// NoContent writes a 204
func (c *Context) NoContent() error {
	c.Writer.WriteHeader(http.StatusNoContent)
	return nil
}

// Error writes {"error": message}
func (c *Context) Error(code int, message string) error {
	return c.JSON(code, H{"error": message})
}

// StatusCode returns the status written so far, 200 if nothing was written
func (c *Context) StatusCode() int { return c.rw.status }

// Written reports whether a response has been started
func (c *Context) Written() bool { return c.rw.written }

// =============================================================================
// STORE
// =============================================================================

// Set stores a request-scoped value
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[string]any)
	}
	c.keys[key] = value
}

// Get returns a request-scoped value
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.keys[key]
	return v, ok
}

// GetString returns a request-scoped string, or "" if absent or not a string
func (c *Context) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}
