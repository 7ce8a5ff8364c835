package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/vitalvas/wsecho/websocket"
)

// expectedCloseCodes are the close statuses of an orderly session end.
var expectedCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown or
// after the serving context is cancelled.
var ErrServerClosed = errors.New("server: closed")

// Server accepts TCP connections and runs one Session per connection.
// Sessions share no mutable state; an error in one never affects another.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool

	sessions sync.WaitGroup
	active   atomic.Int64
}

// New returns a server for cfg. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = discardLogger()
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Addr returns the listener address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// ActiveSessions returns the number of sessions currently running.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// Listen opens the TCP listener described by the configuration.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{}
	if s.cfg.ReusePort {
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	return ln, nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called, then waits for every session to finish. It always returns a
// non-nil error; after a clean stop that error is ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	defer close(done)
	defer s.sessions.Wait()
	defer cancel()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("websocket server listening", slog.String("addr", ln.Addr().String()))

	var tempDelay time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}

			if !isTemporary(err) {
				return fmt.Errorf("accept: %w", err)
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}

			s.logger.Warn("accept failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("delay", tempDelay),
			)

			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return ErrServerClosed
			}

			continue
		}

		tempDelay = 0

		s.sessions.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.sessions.Done()

	s.active.Add(1)
	defer s.active.Add(-1)

	sess := NewSession(conn, s.cfg, s.logger)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panic",
				slog.String("session_id", sess.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			_ = sess.Close()
		}
	}()

	s.logSessionEnd(sess.ID(), sess.Serve(ctx))
}

func (s *Server) logSessionEnd(id string, err error) {
	code, _ := websocket.CloseCode(err)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case websocket.IsUnexpectedCloseError(err, expectedCloseCodes...):
		s.logger.Info("session closed abnormally",
			slog.String("session_id", id),
			slog.Int("close_code", code),
			slog.String("error", err.Error()),
		)
	case websocket.IsCloseError(err, expectedCloseCodes...):
		s.logger.Debug("session closed by peer",
			slog.String("session_id", id),
			slog.Int("close_code", code),
		)
	default:
		s.logger.Debug("session ended",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Shutdown stops accepting connections, closes every live session and waits
// for them to exit or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isTemporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
