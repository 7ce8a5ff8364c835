// Package server runs the WebSocket endpoint: a TCP accept loop with one
// Session per connection.
//
// A Session moves through four states:
//
//	handshaking -> open -> closing -> closed
//
// While handshaking it buffers the request head until the blank line,
// negotiates the upgrade and writes either the 101 response or an HTTP
// error response followed by a close. While open it decodes frames in
// arrival order. A CLOSE frame is answered with a CLOSE frame echoing the
// peer's status code, after which the connection is released. Every other
// frame is answered with a text frame rendered from Config.ReplyTemplate.
// Malformed frames end the session with a protocol error close.
//
// States only move forward, and a closed session stays closed. Sessions run
// in their own goroutine and never share mutable state. Close is idempotent.
//
// Example:
//
//	cfg := server.DefaultConfig()
//	cfg.Addr = "127.0.0.1:3000"
//
//	srv := server.New(cfg, slog.Default())
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := srv.ListenAndServe(ctx); !errors.Is(err, server.ErrServerClosed) {
//	    log.Fatal(err)
//	}
package server
