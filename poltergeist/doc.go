// Package poltergeist is a lightweight HTTP and WebSocket framework with a
// plugin surface: plugins register once per server, decorate the server and
// every request context with named values, and hook into shutdown.
//
// # Quick Start
//
//	app := poltergeist.New()
//
//	app.GET("/", func(c *poltergeist.Context) error {
//	    return c.JSON(200, poltergeist.H{"message": "Hello, Ghost!"})
//	})
//
//	app.Run(":8080")
//
// # Plugins
//
// A plugin implements Name and Register. Register runs immediately and may
// decorate the server and the per-request context:
//
//	type counter struct{ n int }
//
//	func (p *counter) Name() string { return "counter" }
//
//	func (p *counter) Register(s *poltergeist.Server) error {
//	    if err := s.DecorateRequest("counter", func() any { return p }); err != nil {
//	        return err
//	    }
//	    s.OnClose(func(ctx context.Context) error { p.n = 0; return nil })
//	    return nil
//	}
//
// Decorations are read through accessors, so the getter is evaluated on
// every read:
//
//	v, ok := c.Decoration("counter")
//
// # Events
//
// The event pipeline reports request, server and WebSocket lifecycle events.
// Subscriptions return a func that removes them again, which lets plugins
// detach on shutdown:
//
//	off := app.Pipeline().On(poltergeist.EventError, func(c *poltergeist.Context) {
//	    err, _ := c.Get(poltergeist.ErrorKey)
//	    c.Logger().Warn("handler failed", "error", err)
//	})
//	defer off()
//
// # Shutdown
//
// Shutdown (or a SIGINT/SIGTERM while Run is blocking, or the end of the
// context given to Serve) stops the HTTP server and then runs the OnClose
// handlers exactly once. Their errors are joined
// and returned to the caller.
package poltergeist
