package poltergeist

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestServeStopsWhenContextDone(t *testing.T) {
	s := NewWithConfig(quietConfig())
	s.GET("/ping", func(c *Context) error { return c.String(http.StatusOK, "pong") })

	var events []EventType
	started := make(chan struct{})
	s.Pipeline().On(EventServerStart, func(*Context) {
		events = append(events, EventServerStart)
		close(started)
	})
	s.Pipeline().On(EventServerStop, func(*Context) { events = append(events, EventServerStop) })
	closed := 0
	s.OnClose(func(ctx context.Context) error {
		closed++
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	<-started

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, []EventType{EventServerStart, EventServerStop}, events)
	assert.Equal(t, 1, closed)
	assert.True(t, s.Closed())
}

func TestServeTwice(t *testing.T) {
	s := NewWithConfig(quietConfig())
	started := make(chan struct{})
	s.Pipeline().On(EventServerStart, func(*Context) { close(started) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), ln) }()
	<-started

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Serve(context.Background(), ln2), ErrServerRunning)
	_, err = ln2.Accept()
	assert.ErrorIs(t, err, net.ErrClosed, "the rejected listener is closed")

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}

func TestConfigDefaults(t *testing.T) {
	s := NewWithConfig(&Config{Addr: ":9999"})
	cfg := s.Config()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultMaxHeaderBytes, cfg.MaxHeaderBytes)
	assert.NotNil(t, s.Logger())
}
