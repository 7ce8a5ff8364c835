// Command wsecho runs the WebSocket reply server and the demo HTTP endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitalvas/wsecho/demohttp"
	"github.com/vitalvas/wsecho/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "wsecho:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("wsecho", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to a YAML config file")
	addr := fs.String("addr", "", "WebSocket listen address (overrides config)")
	httpAddr := fs.String("http-addr", "", "demo HTTP listen address (overrides config, \"-\" disables)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if *addr != "" {
		cfg.Addr = *addr
	}

	switch *httpAddr {
	case "":
	case "-":
		cfg.DemoHTTPAddr = ""
	default:
		cfg.DemoHTTPAddr = *httpAddr
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := server.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg server.Config, logger *slog.Logger) error {
	errCh := make(chan error, 2)

	ws := server.New(cfg, logger)
	go func() { errCh <- ws.ListenAndServe(ctx) }()

	var demo *http.Server
	if cfg.DemoHTTPAddr != "" {
		handler := demohttp.NewHandler(logger)

		hostname, err := demohttp.Hostname("")
		if err != nil {
			logger.Warn("hostname header disabled", slog.String("error", err.Error()))
		} else {
			handler = hostname(handler)
		}

		demo = demohttp.NewServer(cfg.DemoHTTPAddr, handler)

		go func() {
			logger.Info("demo http server listening", slog.String("addr", cfg.DemoHTTPAddr))
			errCh <- demo.ListenAndServe()
		}()
	}

	var runErr error

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := ws.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket server shutdown", slog.String("error", err.Error()))
	}

	if demo != nil {
		if err := demo.Shutdown(shutdownCtx); err != nil {
			logger.Error("demo http server shutdown", slog.String("error", err.Error()))
		}
	}

	if runErr == nil || errors.Is(runErr, server.ErrServerClosed) || errors.Is(runErr, http.ErrServerClosed) {
		return nil
	}

	return runErr
}
