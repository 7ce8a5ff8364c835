package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// WebSocket protocol constants per RFC 6455.
const (
	// websocketGUID is the globally unique identifier for WebSocket handshake
	// per RFC 6455, section 4.2.2, item 5.4.
	websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// Version is the only protocol version accepted, per RFC 6455, section 4.2.1, item 6.
	Version = 13
)

// Handshake rejection reasons.
var (
	ErrNotWebSocket       = errors.New("websocket: not a websocket upgrade")
	ErrUnsupportedVersion = errors.New("websocket: unsupported version")
	ErrMissingKey         = errors.New("websocket: missing Sec-WebSocket-Key")
	ErrHeaderTooLarge     = errors.New("websocket: request header too large")
)

// HandshakeError is returned by Negotiate when an upgrade request is
// rejected. Status is the HTTP status sent back to the client.
type HandshakeError struct {
	Err    error
	Status int
}

func (e *HandshakeError) Error() string {
	return e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Response renders the HTTP error response for the rejection. The response
// asks the client to close the connection.
func (e *HandshakeError) Response() []byte {
	body := e.Err.Error() + "\n"

	var sb strings.Builder
	sb.WriteString("HTTP/1.1 ")
	sb.WriteString(strconv.Itoa(e.Status))
	sb.WriteString(" ")
	sb.WriteString(http.StatusText(e.Status))
	sb.WriteString("\r\n")

	// RFC 6455, section 4.4: advertise the supported version.
	if errors.Is(e.Err, ErrUnsupportedVersion) {
		sb.WriteString("Sec-WebSocket-Version: ")
		sb.WriteString(strconv.Itoa(Version))
		sb.WriteString("\r\n")
	}

	sb.WriteString("Connection: close\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("Content-Length: ")
	sb.WriteString(strconv.Itoa(len(body)))
	sb.WriteString("\r\n\r\n")
	sb.WriteString(body)

	return []byte(sb.String())
}

// HandshakeRequest is the view of a Header the negotiator works with.
type HandshakeRequest struct {
	Upgrade string
	Version string
	Key     string
}

// ParseHandshakeRequest extracts the handshake fields from h.
func ParseHandshakeRequest(h Header) HandshakeRequest {
	return HandshakeRequest{
		Upgrade: h.Get("Upgrade"),
		Version: h.Get("Sec-WebSocket-Version"),
		Key:     h.Get("Sec-WebSocket-Key"),
	}
}

// Upgrade is an accepted handshake.
type Upgrade struct {
	AcceptKey string
}

// Response renders the 101 Switching Protocols response that must be
// written before any frame.
func (u *Upgrade) Response() []byte {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-Websocket-Accept: ")
	sb.WriteString(u.AcceptKey)
	sb.WriteString("\r\n\r\n")
	return []byte(sb.String())
}

// Negotiate validates an opening handshake per RFC 6455, section 4.2.1.
// The checks run in order and the first failure is returned as a
// *HandshakeError.
func Negotiate(h Header) (*Upgrade, error) {
	req := ParseHandshakeRequest(h)

	if !strings.EqualFold(req.Upgrade, "websocket") {
		return nil, &HandshakeError{Err: ErrNotWebSocket, Status: http.StatusBadRequest}
	}

	if v, err := strconv.Atoi(req.Version); err != nil || v != Version {
		return nil, &HandshakeError{Err: ErrUnsupportedVersion, Status: http.StatusUpgradeRequired}
	}

	if req.Key == "" {
		return nil, &HandshakeError{Err: ErrMissingKey, Status: http.StatusBadRequest}
	}

	return &Upgrade{AcceptKey: AcceptKey(req.Key)}, nil
}

// AcceptKey computes the Sec-WebSocket-Accept value per RFC 6455, section 4.2.2, item 5.4.
// The accept key is the base64-encoded SHA-1 hash of the challenge key concatenated with the GUID.
func AcceptKey(challengeKey string) string {
	h := sha1.New()
	h.Write([]byte(challengeKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
