package websocket

import (
	"bufio"
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptKey(t *testing.T) {
	tests := []struct {
		name         string
		challengeKey string
		expected     string
	}{
		{
			name:         "RFC example",
			challengeKey: "dGhlIHNhbXBsZSBub25jZQ==",
			expected:     "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=",
		},
		{
			name:         "Opaque key",
			challengeKey: "x3JJHMbDL1EzLkh9GBhXDw==",
			expected:     "HSmrc0sMlYUkAGmm5OPpG2HaGWk=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AcceptKey(tt.challengeKey))
		})
	}
}

func validHeader() Header {
	return Header{
		"upgrade":               "websocket",
		"connection":            "Upgrade",
		"sec-websocket-version": "13",
		"sec-websocket-key":     "dGhlIHNhbXBsZSBub25jZQ==",
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(h Header)
		err    error
		status int
	}{
		{
			name:   "Valid request",
			modify: func(Header) {},
		},
		{
			name:   "Upgrade compared case-insensitively",
			modify: func(h Header) { h["upgrade"] = "WebSocket" },
		},
		{
			name:   "Missing upgrade",
			modify: func(h Header) { delete(h, "upgrade") },
			err:    ErrNotWebSocket,
			status: http.StatusBadRequest,
		},
		{
			name:   "Wrong upgrade token",
			modify: func(h Header) { h["upgrade"] = "h2c" },
			err:    ErrNotWebSocket,
			status: http.StatusBadRequest,
		},
		{
			name:   "Version 8",
			modify: func(h Header) { h["sec-websocket-version"] = "8" },
			err:    ErrUnsupportedVersion,
			status: http.StatusUpgradeRequired,
		},
		{
			name:   "Version not a number",
			modify: func(h Header) { h["sec-websocket-version"] = "thirteen" },
			err:    ErrUnsupportedVersion,
			status: http.StatusUpgradeRequired,
		},
		{
			name:   "Missing version",
			modify: func(h Header) { delete(h, "sec-websocket-version") },
			err:    ErrUnsupportedVersion,
			status: http.StatusUpgradeRequired,
		},
		{
			name:   "Missing key",
			modify: func(h Header) { delete(h, "sec-websocket-key") },
			err:    ErrMissingKey,
			status: http.StatusBadRequest,
		},
		{
			name: "First failure wins",
			modify: func(h Header) {
				h["upgrade"] = "nope"
				delete(h, "sec-websocket-key")
				h["sec-websocket-version"] = "8"
			},
			err:    ErrNotWebSocket,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHeader()
			tt.modify(h)

			up, err := Negotiate(h)

			if tt.err == nil {
				require.NoError(t, err)
				assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", up.AcceptKey)
				return
			}

			require.ErrorIs(t, err, tt.err)
			assert.Nil(t, up)

			var herr *HandshakeError
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, tt.status, herr.Status)
		})
	}
}

func TestUpgradeResponse(t *testing.T) {
	up, err := Negotiate(validHeader())
	require.NoError(t, err)

	expected := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-Websocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
		"\r\n"

	assert.Equal(t, expected, string(up.Response()))

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(up.Response())), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))
}

func TestHandshakeErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     *HandshakeError
		version string
	}{
		{
			name: "Not websocket",
			err:  &HandshakeError{Err: ErrNotWebSocket, Status: http.StatusBadRequest},
		},
		{
			name:    "Unsupported version advertises 13",
			err:     &HandshakeError{Err: ErrUnsupportedVersion, Status: http.StatusUpgradeRequired},
			version: "13",
		},
		{
			name: "Header too large",
			err:  &HandshakeError{Err: ErrHeaderTooLarge, Status: http.StatusRequestHeaderFieldsTooLarge},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.err.Response()
			assert.False(t, strings.HasPrefix(string(raw), "HTTP/1.1 101"))

			resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.err.Status, resp.StatusCode)
			assert.True(t, resp.Close)
			assert.Equal(t, tt.version, resp.Header.Get("Sec-WebSocket-Version"))
			assert.Equal(t, tt.err.Error(), tt.err.Err.Error())
		})
	}
}

func TestParseHandshakeRequest(t *testing.T) {
	req := ParseHandshakeRequest(ParseHeader("GET / HTTP/1.1\r\n" +
		"UPGRADE: websocket\r\n" +
		"sec-websocket-version: 13\r\n" +
		"Sec-WebSocket-Key: abc\r\n"))

	assert.Equal(t, HandshakeRequest{Upgrade: "websocket", Version: "13", Key: "abc"}, req)
}
