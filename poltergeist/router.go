package poltergeist

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// HandlerFunc handles a request. A returned error is reported through
// EventError and answered with a 500 unless a response was written.
type HandlerFunc func(*Context) error

// MiddlewareFunc wraps a handler
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// ErrorKey is the context key holding the error returned by a handler
const ErrorKey = "error"

// Route is a registered route
type Route struct {
	Method      string
	Path        string
	Handler     HandlerFunc
	Middlewares []MiddlewareFunc
}

// =============================================================================
// ROUTER
// =============================================================================

// Router dispatches requests to routes. Routes are matched in registration
// order within their method.
type Router struct {
	mu          sync.RWMutex
	routes      map[string][]*Route // method -> routes
	middlewares []MiddlewareFunc
	notFound    HandlerFunc
	pool        sync.Pool
	pipeline    *EventPipeline
	logger      *slog.Logger

	requestDecorations *decorations
}

// NewRouter creates an empty router
func NewRouter() *Router {
	r := &Router{
		routes:             make(map[string][]*Route),
		pipeline:           NewEventPipeline(),
		requestDecorations: newDecorations(),
		logger:             slog.Default(),
	}
	r.pool.New = func() any { return &Context{} }
	return r
}

// Use adds global middleware
func (r *Router) Use(middlewares ...MiddlewareFunc) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, middlewares...)
	return r
}

// Group creates a route group with a shared prefix and middleware
func (r *Router) Group(prefix string, middlewares ...MiddlewareFunc) *RouteGroup {
	return &RouteGroup{prefix: prefix, middlewares: middlewares, router: r}
}

// Pipeline returns the event pipeline
func (r *Router) Pipeline() *EventPipeline {
	return r.pipeline
}

// NotFound sets the 404 handler
func (r *Router) NotFound(handler HandlerFunc) *Router {
	r.notFound = handler
	return r
}

// Routes returns the registered routes grouped by method
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Route
	for _, routes := range r.routes {
		all = append(all, routes...)
	}
	return all
}

// Handle registers a route for method
func (r *Router) Handle(method, path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	route := &Route{
		Method:      method,
		Path:        path,
		Handler:     handler,
		Middlewares: middlewares,
	}
	r.mu.Lock()
	r.routes[method] = append(r.routes[method], route)
	r.mu.Unlock()
	return route
}

func (r *Router) GET(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return r.Handle(http.MethodGet, path, handler, middlewares...)
}

func (r *Router) POST(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return r.Handle(http.MethodPost, path, handler, middlewares...)
}

func (r *Router) PUT(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return r.Handle(http.MethodPut, path, handler, middlewares...)
}

func (r *Router) DELETE(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return r.Handle(http.MethodDelete, path, handler, middlewares...)
}

// =============================================================================
// HTTP HANDLER
// =============================================================================

// ServeHTTP runs the request through the pipeline and the matching route
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	c := r.pool.Get().(*Context)
	c.reset(w, req)
	c.decorations = r.requestDecorations
	c.logger = r.logger
	defer r.pool.Put(c)

	r.pipeline.Emit(EventBeforeRequest, c)
	if err := r.dispatch(c); err != nil {
		c.Set(ErrorKey, err)
		r.pipeline.Emit(EventError, c)
		if !c.Written() {
			_ = c.Error(http.StatusInternalServerError, err.Error())
		}
	}
	r.pipeline.Emit(EventAfterRequest, c)
}

func (r *Router) dispatch(c *Context) error {
	route, params, allowed := r.match(c.Request.Method, c.Request.URL.Path)
	switch {
	case route != nil:
		c.Params = params
		return r.chain(route)(c)
	case len(allowed) > 0:
		c.SetHeader("Allow", strings.Join(allowed, ", "))
		return c.Error(http.StatusMethodNotAllowed, "Method Not Allowed")
	case r.notFound != nil:
		return r.notFound(c)
	default:
		return c.Error(http.StatusNotFound, "Not Found")
	}
}

// match finds the route for method and path. Without one, allowed lists the
// methods whose routes match the path.
func (r *Router) match(method, path string) (route *Route, params map[string]string, allowed []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, candidate := range r.routes[method] {
		if params, ok := matchPath(candidate.Path, path); ok {
			return candidate, params, nil
		}
	}
	for m, routes := range r.routes {
		if m == method {
			continue
		}
		for _, candidate := range routes {
			if _, ok := matchPath(candidate.Path, path); ok {
				allowed = append(allowed, m)
				break
			}
		}
	}
	sort.Strings(allowed)
	return nil, nil, allowed
}

// chain wraps the route handler with its own middleware, then the global
// middleware, so global middleware runs first.
func (r *Router) chain(route *Route) HandlerFunc {
	r.mu.RLock()
	global := r.middlewares
	r.mu.RUnlock()

	h := route.Handler
	for i := len(route.Middlewares) - 1; i >= 0; i-- {
		h = route.Middlewares[i](h)
	}
	for i := len(global) - 1; i >= 0; i-- {
		h = global[i](h)
	}
	return h
}

// =============================================================================
// PATH MATCHING
// =============================================================================

// matchPath matches a route pattern against a request path. Patterns support
// literal segments, ":name" parameters and a trailing "*name" wildcard.
func matchPath(pattern, requestPath string) (map[string]string, bool) {
	params := make(map[string]string)
	if pattern == requestPath {
		return params, true
	}

	patternParts := splitPath(pattern)
	pathParts := splitPath(requestPath)

	for i, part := range patternParts {
		if strings.HasPrefix(part, "*") {
			params[part[1:]] = strings.Join(pathParts[min(i, len(pathParts)):], "/")
			return params, true
		}
		if i >= len(pathParts) {
			return nil, false
		}
		switch {
		case strings.HasPrefix(part, ":"):
			params[part[1:]] = pathParts[i]
		case part != pathParts[i]:
			return nil, false
		}
	}
	if len(patternParts) != len(pathParts) {
		return nil, false
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// =============================================================================
// ROUTE GROUP
// =============================================================================

// RouteGroup registers routes under a shared prefix and middleware
type RouteGroup struct {
	prefix      string
	middlewares []MiddlewareFunc
	router      *Router
}

// Use adds middleware to routes registered on the group afterwards
func (g *RouteGroup) Use(middlewares ...MiddlewareFunc) *RouteGroup {
	g.middlewares = append(g.middlewares, middlewares...)
	return g
}

// Group creates a nested group
func (g *RouteGroup) Group(prefix string, middlewares ...MiddlewareFunc) *RouteGroup {
	return &RouteGroup{
		prefix:      g.prefix + prefix,
		middlewares: append(append([]MiddlewareFunc(nil), g.middlewares...), middlewares...),
		router:      g.router,
	}
}

// Handle registers a route for method under the group prefix
func (g *RouteGroup) Handle(method, path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	all := append(append([]MiddlewareFunc(nil), g.middlewares...), middlewares...)
	return g.router.Handle(method, g.prefix+path, handler, all...)
}

func (g *RouteGroup) GET(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return g.Handle(http.MethodGet, path, handler, middlewares...)
}

func (g *RouteGroup) POST(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return g.Handle(http.MethodPost, path, handler, middlewares...)
}

func (g *RouteGroup) PUT(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return g.Handle(http.MethodPut, path, handler, middlewares...)
}

func (g *RouteGroup) DELETE(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route {
	return g.Handle(http.MethodDelete, path, handler, middlewares...)
}
