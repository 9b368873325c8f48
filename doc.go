// Package hookable attaches a hook registry to a poltergeist server.
//
// Registering the plugin creates one hooks.Registry per server and exposes
// it as the "hooks" decoration on the server and on every request context.
// Both scopes return the same registry. On shutdown the plugin runs the
// optional Close callback and then removes every hook, even if Close fails.
//
//	app := poltergeist.New()
//
//	_, err := hookable.Register(app, hookable.Options{
//	    Before: func(ev *hooks.Event) { log.Println("calling", ev.Name) },
//	    DebuggerOptions: map[string]any{"tag": "api", "filter": "user:"},
//	})
//
//	greet := hooks.Key[string, string]("greet")
//	greet.Hook(hookable.FromServer(app), func(ctx context.Context, name string) (string, error) {
//	    return "hi-" + name, nil
//	})
//
//	app.GET("/greet/:name", func(c *poltergeist.Context) error {
//	    msg, err := greet.Call(c.Context(), hookable.FromContext(c), c.Param("name"))
//	    if err != nil {
//	        return err
//	    }
//	    return c.String(200, msg)
//	})
package hookable
