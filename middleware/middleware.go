// Package middleware provides common middleware for poltergeist servers.
// Middleware that dispatches hooks looks the registry up on the request
// context and does nothing hook-related when the hookable plugin is not
// registered.
package middleware

import (
	"github.com/google/uuid"

	"github.com/poltergeist-framework/hookable/poltergeist"
)

// RequestIDKey is the context key holding the request ID.
const RequestIDKey = "request_id"

// Secure adds security headers
func Secure() poltergeist.MiddlewareFunc {
	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) error {
			c.SetHeader("X-Content-Type-Options", "nosniff")
			c.SetHeader("X-Frame-Options", "DENY")
			c.SetHeader("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// RequestID adds a unique request ID to each request. An incoming
// X-Request-ID header is reused.
func RequestID() poltergeist.MiddlewareFunc {
	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) error {
			id := c.Header(poltergeist.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}

			c.SetHeader(poltergeist.HeaderXRequestID, id)
			c.Set(RequestIDKey, id)

			return next(c)
		}
	}
}

// Chain combines multiple middlewares into one
func Chain(middlewares ...poltergeist.MiddlewareFunc) poltergeist.MiddlewareFunc {
	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// If conditionally applies middleware
func If(condition func(c *poltergeist.Context) bool, middleware poltergeist.MiddlewareFunc) poltergeist.MiddlewareFunc {
	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		wrapped := middleware(next)
		return func(c *poltergeist.Context) error {
			if condition(c) {
				return wrapped(c)
			}
			return next(c)
		}
	}
}
