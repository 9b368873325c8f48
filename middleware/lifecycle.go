package middleware

import (
	"github.com/poltergeist-framework/hookable"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

// Hook names dispatched by the middleware in this package.
const (
	HookRequestStart      = "request:start"
	HookRequestEnd        = "request:end"
	HookRequestPanic      = "request:panic"
	HookRateLimitExceeded = "ratelimit:exceeded"
	HookAuthVerify        = "auth:verify"
)

// Lifecycle dispatches request:start before the handler and request:end
// after it. Both receive the request context; request:end also receives the
// handler error. An error from request:start aborts the request.
func Lifecycle() poltergeist.MiddlewareFunc {
	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) error {
			reg := hookable.FromContext(c)
			if reg == nil {
				return next(c)
			}

			if _, err := reg.Call(c.Context(), HookRequestStart, c); err != nil {
				return err
			}

			err := next(c)

			if _, hookErr := reg.Call(c.Context(), HookRequestEnd, c, err); hookErr != nil {
				c.Logger().Warn("request:end hook failed", "path", c.Path(), "error", hookErr)
			}
			return err
		}
	}
}
