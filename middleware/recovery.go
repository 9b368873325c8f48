package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/poltergeist-framework/hookable"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

// RecoveryConfig holds recovery middleware configuration
type RecoveryConfig struct {
	// Log the stack trace
	PrintStack bool
	// Stack trace size (default: 4096)
	StackSize int
	// Logger receives the panic; nil uses the server logger
	Logger *slog.Logger
	// Custom recovery handler, replaces the default 500 response
	RecoveryHandler func(c *poltergeist.Context, err any) error
}

// DefaultRecoveryConfig returns default recovery configuration
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		PrintStack: true,
		StackSize:  4096,
	}
}

// Recovery returns a recovery middleware with default config
func Recovery() poltergeist.MiddlewareFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig())
}

// RecoveryWithConfig returns a recovery middleware with custom config. A
// recovered panic is dispatched to the request:panic hook with the context
// and the panic value before the response is written.
func RecoveryWithConfig(config *RecoveryConfig) poltergeist.MiddlewareFunc {
	if config == nil {
		config = DefaultRecoveryConfig()
	}
	stackSize := config.StackSize
	if stackSize <= 0 {
		stackSize = 4096
	}

	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				logger := config.Logger
				if logger == nil {
					logger = c.Logger()
				}
				attrs := []any{"path", c.Path(), "panic", fmt.Sprint(r)}
				if config.PrintStack {
					stack := make([]byte, stackSize)
					stack = stack[:runtime.Stack(stack, false)]
					attrs = append(attrs, "stack", string(stack))
				}
				logger.Error("panic recovered", attrs...)

				if reg := hookable.FromContext(c); reg != nil {
					if _, hookErr := reg.Call(c.Context(), HookRequestPanic, c, r); hookErr != nil {
						logger.Warn("request:panic hook failed", "error", hookErr)
					}
				}

				if config.RecoveryHandler != nil {
					err = config.RecoveryHandler(c, r)
					return
				}
				if !c.Written() {
					err = c.Error(http.StatusInternalServerError, "Internal Server Error")
				}
			}()

			return next(c)
		}
	}
}
