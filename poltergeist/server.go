package poltergeist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ErrServerRunning is returned by Serve when the server is already serving
var ErrServerRunning = errors.New("poltergeist: server already running")

// Config holds server settings. Zero values fall back to the defaults.
type Config struct {
	Addr             string        // default ":8080"
	ReadTimeout      time.Duration // default 30s
	WriteTimeout     time.Duration // default 30s
	IdleTimeout      time.Duration // default 120s
	MaxHeaderBytes   int           // default 1MB
	GracefulShutdown bool          // Run stops on SIGINT and SIGTERM
	ShutdownTimeout  time.Duration // default 30s
	TLSCertFile      string
	TLSKeyFile       string
	Logger           *slog.Logger // default slog.Default()
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8080",
		ReadTimeout:      DefaultReadTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		MaxHeaderBytes:   DefaultMaxHeaderBytes,
		GracefulShutdown: true,
		ShutdownTimeout:  DefaultShutdownTimeout,
		Logger:           slog.Default(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the HTTP server plugins attach to
type Server struct {
	router      *Router
	config      *Config
	decorations *decorations
	lifecycle   *lifecycle

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a server with the default configuration
func New() *Server {
	return NewWithConfig(nil)
}

// NewWithConfig creates a server. A nil config means DefaultConfig.
func NewWithConfig(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	config.applyDefaults()

	router := NewRouter()
	router.logger = config.Logger
	return &Server{
		router:      router,
		config:      config,
		decorations: newDecorations(),
		lifecycle:   newLifecycle(),
	}
}

// Router returns the underlying router
func (s *Server) Router() *Router { return s.router }

// Config returns the server configuration
func (s *Server) Config() *Config { return s.config }

// Logger returns the server logger
func (s *Server) Logger() *slog.Logger { return s.config.Logger }

// Pipeline returns the event pipeline
func (s *Server) Pipeline() *EventPipeline { return s.router.Pipeline() }

// ServeHTTP lets the server be used as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Use adds global middleware
func (s *Server) Use(middlewares ...MiddlewareFunc) *Server {
	s.router.Use(middlewares...)
	return s
}

// Group creates a route group
func (s *Server) Group(prefix string, middlewares ...MiddlewareFunc) *RouteGroup {
	return s.router.Group(prefix, middlewares...)
}

// Handle registers a route for method
func (s *Server) Handle(method, path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return s.router.Handle(method, path, handler, middlewares...)
}

func (s *Server) GET(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return s.router.GET(path, handler, middlewares...)
}

func (s *Server) POST(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return s.router.POST(path, handler, middlewares...)
}

func (s *Server) PUT(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return s.router.PUT(path, handler, middlewares...)
}

func (s *Server) DELETE(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return s.router.DELETE(path, handler, middlewares...)
}

// NotFound sets the 404 handler
func (s *Server) NotFound(handler HandlerFunc) *Server {
	s.router.NotFound(handler)
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Run listens on addr (default Config.Addr) and blocks until the server
// stops. With GracefulShutdown, SIGINT and SIGTERM trigger Shutdown.
func (s *Server) Run(addr ...string) error {
	address := s.config.Addr
	if len(addr) > 0 && addr[0] != "" {
		address = addr[0]
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Join(fmt.Errorf("listen %s: %w", address, err), s.Close(context.Background()))
	}

	ctx := context.Background()
	if s.config.GracefulShutdown {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down within
// Config.ShutdownTimeout. If the listener fails the close handlers still run.
// Serve owns ln: it is closed on every return path.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.newHTTPServer()
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerRunning
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.config.Logger.Info("server starting", "addr", ln.Addr().String(), "version", Version)
	s.router.pipeline.Emit(EventServerStart, nil)

	errCh := make(chan error, 1)
	go func() {
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			errCh <- srv.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			// Shutdown was called elsewhere
			return nil
		}
		return errors.Join(err, s.Close(context.Background()))
	case <-ctx.Done():
	}

	s.config.Logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.config.Logger.Info("server stopped gracefully")
	return nil
}

// Shutdown emits EventServerStop, stops the HTTP server gracefully and then
// runs the close handlers. Close handlers run even if stopping the HTTP
// server fails.
func (s *Server) Shutdown(ctx context.Context) error {
	s.router.pipeline.Emit(EventServerStop, nil)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var httpErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			httpErr = fmt.Errorf("server shutdown: %w", err)
		}
	}
	return errors.Join(httpErr, s.Close(ctx))
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.config.Logger.Handler(), slog.LevelError),
	}
}
