package poltergeist

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrWSClosed is returned when sending on a closed connection
	ErrWSClosed = errors.New("poltergeist: websocket closed")
	// ErrWSBufferFull is returned when the send buffer of a connection is full
	ErrWSBufferFull = errors.New("poltergeist: websocket send buffer full")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// WSConfig holds WebSocket endpoint settings
type WSConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64                    // Read limit per message (default: 64KB)
	SendBuffer      int                      // Queued outgoing messages (default: 256)
	WriteWait       time.Duration            // Write deadline (default: 10s)
	PongWait        time.Duration            // Read deadline renewed by pongs (default: 60s)
	PingInterval    time.Duration            // Must be shorter than PongWait (default: 54s)
	CheckOrigin     func(*http.Request) bool // nil accepts same-origin only
}

// DefaultWSConfig returns default WebSocket settings
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  64 << 10,
		SendBuffer:      256,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    54 * time.Second,
	}
}

// WSHandler handles one incoming WebSocket message. c is the request
// context of the upgraded connection and stays valid until it closes.
type WSHandler func(c *Context, conn *WSConn, messageType int, data []byte)

// =============================================================================
// CONNECTION
// =============================================================================

// WSConn is a single upgraded WebSocket connection
type WSConn struct {
	ID string

	ws     *websocket.Conn
	config *WSConfig
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newWSConn(ws *websocket.Conn, config *WSConfig) *WSConn {
	return &WSConn{
		ID:     uuid.NewString(),
		ws:     ws,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues a text message
func (c *WSConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrWSClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrWSClosed
	default:
		return ErrWSBufferFull
	}
}

// SendJSON encodes v and queues it
func (c *WSConn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Close closes the connection. It is safe to call more than once.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the connection closes
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

func (c *WSConn) readLoop(onMessage func(messageType int, data []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(messageType, data)
	}
}

func (c *WSConn) writeLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// =============================================================================
// ROUTES
// =============================================================================

// WebSocket registers a WebSocket endpoint with default settings
func (s *Server) WebSocket(path string, handler WSHandler, middlewares ...MiddlewareFunc) *Route {
	return s.WebSocketWithConfig(path, nil, nil, handler, middlewares...)
}

// WebSocketWithHub registers a WebSocket endpoint whose connections join hub
func (s *Server) WebSocketWithHub(path string, hub *WSHub, handler WSHandler, middlewares ...MiddlewareFunc) *Route {
	return s.WebSocketWithConfig(path, nil, hub, handler, middlewares...)
}

// WebSocketWithConfig registers a WebSocket endpoint. The handler runs on
// the reading goroutine, one message at a time.
func (s *Server) WebSocketWithConfig(path string, config *WSConfig, hub *WSHub, handler WSHandler, middlewares ...MiddlewareFunc) *Route {
	if config == nil {
		config = DefaultWSConfig()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}

	return s.GET(path, func(c *Context) error {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader has already replied
			c.Logger().Debug("websocket upgrade failed", "path", c.Path(), "error", err)
			return nil
		}

		conn := newWSConn(ws, config)
		c.WS = conn
		if hub != nil {
			hub.register(conn)
			defer hub.unregister(conn)
		}

		s.router.pipeline.Emit(EventWSConnect, c)
		defer s.router.pipeline.Emit(EventWSDisconnect, c)

		go conn.writeLoop()
		conn.readLoop(func(messageType int, data []byte) {
			handler(c, conn, messageType, data)
		})
		return nil
	}, middlewares...)
}
