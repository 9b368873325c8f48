package poltergeist

import "context"

// ResponseWriter writes responses
type ResponseWriter interface {
	JSON(code int, v any) error
	String(code int, s string) error
	NoContent() error
	Error(code int, message string) error
}

// RequestReader reads requests
type RequestReader interface {
	Bind(v any) error
	Query(key string) string
	Param(key string) string
	Header(key string) string
}

// RouteRegistrar registers routes
type RouteRegistrar interface {
	Handle(method, path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route
	GET(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route
	POST(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route
	PUT(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route
	DELETE(path string, handler HandlerFunc, middlewares ...MiddlewareFunc) *Route
}

// Decorator is the surface plugins use to attach values and teardown
type Decorator interface {
	Decorate(name string, getter func() any) error
	DecorateRequest(name string, getter func() any) error
	OnClose(fn CloseFunc) *Server
}

// DecorationReader reads a named decoration
type DecorationReader interface {
	Decoration(name string) (any, bool)
}

// Broadcaster sends to WebSocket connections
type Broadcaster interface {
	Broadcast(data []byte)
	BroadcastToRoom(room string, data []byte)
}

// RoomManager groups WebSocket connections
type RoomManager interface {
	JoinRoom(clientID string, room string)
	LeaveRoom(clientID string, room string)
	RoomCount(room string) int
}

// Closer is shut down with a context
type Closer interface {
	Close(ctx context.Context) error
}

var (
	_ ResponseWriter   = (*Context)(nil)
	_ RequestReader    = (*Context)(nil)
	_ RouteRegistrar   = (*Router)(nil)
	_ RouteRegistrar   = (*RouteGroup)(nil)
	_ RouteRegistrar   = (*Server)(nil)
	_ Decorator        = (*Server)(nil)
	_ DecorationReader = (*Server)(nil)
	_ DecorationReader = (*Context)(nil)
	_ Broadcaster      = (*WSHub)(nil)
	_ RoomManager      = (*WSHub)(nil)
	_ Closer           = (*Server)(nil)
)
