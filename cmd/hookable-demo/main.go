// Command hookable-demo runs a poltergeist server with the hookable plugin.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/poltergeist-framework/hookable/internal/config"
	"github.com/poltergeist-framework/hookable/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hookable-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Close()

	app, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return errors.Join(err, app.server.Close(context.Background()))
	}
	return app.server.Serve(ctx, ln)
}
