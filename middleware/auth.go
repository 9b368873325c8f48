package middleware

import (
	"net/http"
	"strings"

	"github.com/poltergeist-framework/hookable"
	"github.com/poltergeist-framework/hookable/hooks"
	"github.com/poltergeist-framework/hookable/poltergeist"
)

// TokenKey is the context key holding the verified bearer token.
const TokenKey = "token"

// VerifyToken is the typed auth:verify hook. Callbacks receive the bearer
// token and return whether it is valid; every callback must accept it.
var VerifyToken = hooks.Key[string, bool](HookAuthVerify)

// BearerAuthConfig holds bearer token auth configuration
type BearerAuthConfig struct {
	// Validator overrides the auth:verify hook when set
	Validator func(token string, c *poltergeist.Context) bool
	// Skip function
	SkipFunc func(c *poltergeist.Context) bool
	// Error message
	ErrorMessage string
}

// HookAuth returns a bearer token middleware that asks the auth:verify hook
// whether the token is valid. Requests are rejected when no plugin is
// registered, no callback is hooked, or any callback fails or says no.
func HookAuth() poltergeist.MiddlewareFunc {
	return BearerAuthWithConfig(&BearerAuthConfig{})
}

// BearerAuth returns a bearer token middleware with a fixed validator
func BearerAuth(validator func(token string, c *poltergeist.Context) bool) poltergeist.MiddlewareFunc {
	return BearerAuthWithConfig(&BearerAuthConfig{Validator: validator})
}

// BearerAuthWithConfig returns a bearer token middleware with custom config
func BearerAuthWithConfig(config *BearerAuthConfig) poltergeist.MiddlewareFunc {
	message := config.ErrorMessage
	if message == "" {
		message = "Invalid or missing token"
	}

	return func(next poltergeist.HandlerFunc) poltergeist.HandlerFunc {
		return func(c *poltergeist.Context) error {
			if config.SkipFunc != nil && config.SkipFunc(c) {
				return next(c)
			}

			token, ok := bearerToken(c.Header(poltergeist.HeaderAuthorization))
			if !ok || !verify(c, config, token) {
				c.SetHeader("WWW-Authenticate", "Bearer")
				return c.Error(http.StatusUnauthorized, message)
			}

			c.Set(TokenKey, token)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func verify(c *poltergeist.Context, config *BearerAuthConfig, token string) bool {
	if config.Validator != nil {
		return config.Validator(token, c)
	}
	reg := hookable.FromContext(c)
	if reg == nil {
		return false
	}
	verdicts, err := VerifyToken.CallAll(c.Context(), reg, token)
	if err != nil {
		c.Logger().Debug("auth:verify hook failed", "error", err)
		return false
	}
	if len(verdicts) == 0 {
		return false
	}
	for _, ok := range verdicts {
		if !ok {
			return false
		}
	}
	return true
}
