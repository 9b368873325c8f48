package middleware

import (
	"log/slog"
	"time"

	"github.com/poltergeist-framework/hookable/poltergeist"
)

// LogConfig holds logging middleware configuration
type LogConfig struct {
	// Skip certain paths from logging
	SkipPaths []string
	// Logger receives the access log; nil uses the server logger
	Logger *slog.Logger
	// Level for successful requests (default: Info)
	Level slog.Level
	// Include request headers in logs
	IncludeHeaders bool
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		SkipPaths: []string{"/health", "/healthz", "/ping"},
		Level:     slog.LevelInfo,
	}
}

// Logger returns a logging middleware with default config
func Logger() poltergeist.MiddlewareFunc {
	return LoggerWithConfig(DefaultLogConfig())
}

// LoggerWithConfig returns a logging middleware with custom config
func LoggerWithConfig(config *LogConfig) poltergeist.MiddlewareFunc {
	if config == nil {
		config = DefaultLogConfig()
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) error {
			if skipPaths[c.Path()] {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			status := c.StatusCode()
			if err != nil && !c.Written() {
				status = 500
			}

			attrs := []slog.Attr{
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Duration("latency", latency),
				slog.String("ip", c.ClientIP()),
			}
			if id := c.GetString(RequestIDKey); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if config.IncludeHeaders {
				attrs = append(attrs, slog.Any("headers", c.Request.Header))
			}

			level := config.Level
			switch {
			case err != nil || status >= 500:
				level = slog.LevelError
				attrs = append(attrs, slog.Any("error", err))
			case status >= 400:
				level = slog.LevelWarn
			}

			logger := config.Logger
			if logger == nil {
				logger = c.Logger()
			}
			logger.LogAttrs(c.Context(), level, "request", attrs...)

			return err
		}
	}
}
