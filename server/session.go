package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vitalvas/wsecho/websocket"
)

// State is the lifecycle state of a Session.
type State int32

// Session states. StateHandshaking is initial and StateClosed is terminal.
const (
	StateHandshaking State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var headerTerminator = []byte("\r\n\r\n")

// Session drives one accepted connection through the opening handshake and
// the frame exchange. A session owns its connection exclusively and is not
// shared with other sessions.
type Session struct {
	id      string
	conn    net.Conn
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	state     atomic.Int32
	closeOnce sync.Once

	// buf holds received bytes not yet consumed by the handshake or the
	// frame decoder. Only the Serve goroutine touches it.
	buf    []byte
	frames *queue.Queue
}

// NewSession wraps conn in a session in StateHandshaking.
func NewSession(conn net.Conn, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = discardLogger()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = DefaultConfig().MaxHeaderBytes
	}

	id := uuid.New().String()

	s := &Session{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		frames: queue.New(),
		logger: logger.With(
			slog.String("session_id", id),
			slog.String("remote_addr", conn.RemoteAddr().String()),
		),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.FramesPerSecond), cfg.RateLimit.Burst)
	}

	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// advance moves the session forward to st. States never go backwards, so
// it reports false once the session has reached st or a later state.
func (s *Session) advance(st State) bool {
	for {
		cur := s.state.Load()
		if State(cur) >= st {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return true
		}
	}
}

// Close releases the connection and moves the session to StateClosed.
// Only the first call closes the connection; later calls return nil.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		err = s.conn.Close()
		s.logger.Debug("session closed")
	})
	return err
}

// Serve runs the session until the connection is closed. It returns nil when
// the peer drops the connection, a *websocket.CloseError after a close
// handshake started by the peer, the *websocket.HandshakeError for a rejected
// upgrade, the decode error joined with the *websocket.CloseError that was
// sent for it, or ctx.Err() when ctx is cancelled.
func (s *Session) Serve(ctx context.Context) error {
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.logger.Debug("session started")

	var handshakeDeadline time.Time
	if s.cfg.HandshakeTimeout > 0 {
		handshakeDeadline = time.Now().Add(s.cfg.HandshakeTimeout)
	}

	chunk := make([]byte, s.cfg.ReadBufferSize)

	for {
		deadline := handshakeDeadline
		if s.State() == StateOpen {
			deadline = time.Time{}
			if s.cfg.ReadTimeout > 0 {
				deadline = time.Now().Add(s.cfg.ReadTimeout)
			}
		}
		_ = s.conn.SetReadDeadline(deadline)

		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)

			done, perr := s.process()
			if done {
				return perr
			}
		}

		if err != nil {
			return s.readError(ctx, err)
		}
	}
}

func (s *Session) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if errors.Is(err, io.EOF) {
		s.logger.Debug("peer disconnected", slog.String("state", s.State().String()))
		return nil
	}

	if s.State() == StateClosed {
		return nil
	}

	return fmt.Errorf("read: %w", err)
}

// process consumes buffered bytes. done reports that the session has ended.
func (s *Session) process() (done bool, err error) {
	if s.State() == StateHandshaking {
		ready, err := s.handshake()
		if err != nil {
			return true, err
		}
		if !ready {
			return false, nil
		}
	}

	if s.State() != StateOpen {
		return true, nil
	}

	return s.readFrames()
}

// handshake negotiates the upgrade once a full request head is buffered.
// ready is false while more bytes are needed.
func (s *Session) handshake() (ready bool, err error) {
	end := bytes.Index(s.buf, headerTerminator)

	if end < 0 && len(s.buf) <= s.cfg.MaxHeaderBytes {
		return false, nil
	}

	if end < 0 || end > s.cfg.MaxHeaderBytes {
		return false, s.reject(&websocket.HandshakeError{
			Err:    websocket.ErrHeaderTooLarge,
			Status: http.StatusRequestHeaderFieldsTooLarge,
		})
	}

	up, err := websocket.Negotiate(websocket.ParseHeader(string(s.buf[:end])))
	if err != nil {
		return false, s.reject(err)
	}

	if err := s.write(up.Response()); err != nil {
		_ = s.Close()
		return false, fmt.Errorf("write handshake: %w", err)
	}

	s.buf = append(s.buf[:0], s.buf[end+len(headerTerminator):]...)

	// Close may have run while the response was being written.
	if !s.advance(StateOpen) {
		return false, nil
	}

	s.logger.Debug("handshake accepted")

	return true, nil
}

func (s *Session) reject(err error) error {
	s.logger.Warn("handshake rejected", slog.String("reason", err.Error()))

	var herr *websocket.HandshakeError
	if errors.As(err, &herr) {
		if werr := s.write(herr.Response()); werr != nil {
			s.logger.Debug("write handshake rejection", slog.String("error", werr.Error()))
		}
	}

	_ = s.Close()

	return err
}

// readFrames decodes every complete frame in the buffer and handles them in
// arrival order. A decode error is acted on after the frames preceding it.
func (s *Session) readFrames() (done bool, err error) {
	consumed := 0

	var decodeErr error
	for {
		f, n, err := websocket.DecodeLimit(s.buf[consumed:], s.cfg.MaxFrameSize)
		if errors.Is(err, websocket.ErrTruncatedFrame) {
			break
		}
		if err != nil {
			decodeErr = err
			break
		}
		consumed += n
		s.frames.Add(f)
	}

	s.buf = append(s.buf[:0], s.buf[consumed:]...)

	for s.frames.Length() > 0 {
		f := s.frames.Remove().(websocket.Frame)

		if done, err := s.handleFrame(f); done {
			for s.frames.Length() > 0 {
				s.frames.Remove()
			}
			return true, err
		}
	}

	if decodeErr != nil {
		return true, s.fail(decodeErr)
	}

	return false, nil
}

func (s *Session) handleFrame(f websocket.Frame) (done bool, err error) {
	if s.limiter != nil && f.Opcode != websocket.OpClose && !s.limiter.Allow() {
		return true, s.fail(websocket.ErrRateLimited)
	}

	s.logger.Debug("frame received",
		slog.String("opcode", f.Opcode.String()),
		slog.Bool("fin", f.Fin),
		slog.Int("length", f.PayloadLength()),
	)

	var reply websocket.Frame

	switch {
	case f.Opcode == websocket.OpClose:
		return true, s.peerClose(f.Payload)
	case s.cfg.AutoPong && f.Opcode == websocket.OpPing:
		reply = websocket.Frame{Fin: true, Opcode: websocket.OpPong, Payload: f.Payload}
	case s.cfg.AutoPong && f.Opcode == websocket.OpPong:
		return false, nil
	default:
		reply = websocket.NewTextFrame(renderReply(s.cfg.ReplyTemplate, f.Payload))
	}

	if err := s.write(websocket.Encode(reply)); err != nil {
		_ = s.Close()
		return true, fmt.Errorf("write frame: %w", err)
	}

	return false, nil
}

// peerClose answers a CLOSE from the peer. A status code that must not
// appear on the wire is answered with 1002.
func (s *Session) peerClose(payload []byte) error {
	code, text := websocket.ParseCloseMessage(payload)

	reply := code
	if code != websocket.CloseNoStatusReceived && !websocket.IsValidCloseCode(code) {
		reply = websocket.CloseProtocolError
	}

	closeErr := &websocket.CloseError{Code: code, Text: text}

	s.logger.Debug("close received", slog.Int("close_code", code), slog.Int("reply_code", reply))

	if err := s.closeHandshake(websocket.FormatCloseMessage(reply, "")); err != nil {
		return fmt.Errorf("%w: %w", closeErr, err)
	}

	return closeErr
}

// closeHandshake sends a close frame with payload and closes the connection.
// It does nothing once the session is already closing or closed.
func (s *Session) closeHandshake(payload []byte) error {
	if !s.advance(StateClosing) {
		return nil
	}

	err := s.write(websocket.Encode(websocket.Frame{
		Fin:     true,
		Opcode:  websocket.OpClose,
		Payload: payload,
	}))

	if cerr := s.Close(); err == nil && cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}

	if err != nil {
		return fmt.Errorf("close handshake: %w", err)
	}

	return nil
}

// fail closes the session with the status code matching err. The returned
// error wraps both err and the *websocket.CloseError that was sent.
func (s *Session) fail(err error) error {
	code := websocket.CloseCodeForError(err)

	s.logger.Warn("closing session",
		slog.String("error", err.Error()),
		slog.Int("close_code", code),
	)

	if cerr := s.closeHandshake(websocket.FormatCloseMessage(code, "")); cerr != nil {
		s.logger.Debug("close handshake failed", slog.String("error", cerr.Error()))
	}

	return fmt.Errorf("%w: %w", &websocket.CloseError{Code: code}, err)
}

func (s *Session) write(b []byte) error {
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	_, err := s.conn.Write(b)
	return err
}

// renderReply substitutes the payload text into tmpl. Invalid UTF-8 is
// replaced so the reply is always a valid text frame.
func renderReply(tmpl string, payload []byte) []byte {
	text := strings.ToValidUTF8(string(payload), "\uFFFD")
	return []byte(strings.ReplaceAll(tmpl, PayloadPlaceholder, text))
}
