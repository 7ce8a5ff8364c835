package websocket

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCloseMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		text     string
		expected []byte
	}{
		{
			name:     "Normal closure with text",
			code:     CloseNormalClosure,
			text:     "goodbye",
			expected: []byte{0x03, 0xe8, 'g', 'o', 'o', 'd', 'b', 'y', 'e'},
		},
		{
			name:     "Protocol error without text",
			code:     CloseProtocolError,
			expected: []byte{0x03, 0xea},
		},
		{
			name:     "No status received returns empty",
			code:     CloseNoStatusReceived,
			text:     "ignored",
			expected: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatCloseMessage(tt.code, tt.text))
		})
	}
}

func TestParseCloseMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		code    int
		text    string
	}{
		{name: "Empty body", payload: nil, code: CloseNoStatusReceived},
		{name: "Single byte", payload: []byte{0x03}, code: CloseNoStatusReceived},
		{name: "Code only", payload: []byte{0x03, 0xe9}, code: CloseGoingAway},
		{name: "Code and reason", payload: []byte{0x03, 0xe8, 'b', 'y', 'e'}, code: CloseNormalClosure, text: "bye"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, text := ParseCloseMessage(tt.payload)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.text, text)
		})
	}
}

func TestCloseCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "Frame too large", err: ErrFrameTooLarge, code: CloseMessageTooBig},
		{name: "Wrapped frame too large", err: fmt.Errorf("read: %w", ErrFrameTooLarge), code: CloseMessageTooBig},
		{name: "Rate limited", err: ErrRateLimited, code: ClosePolicyViolation},
		{name: "Invalid opcode", err: ErrInvalidOpcode, code: CloseProtocolError},
		{name: "Reserved bits", err: ErrReservedBits, code: CloseProtocolError},
		{name: "Unknown error", err: errors.New("boom"), code: CloseProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CloseCodeForError(tt.err))
		})
	}
}

func TestCloseError(t *testing.T) {
	tests := []struct {
		name     string
		err      *CloseError
		expected string
	}{
		{name: "Known code with text", err: &CloseError{Code: CloseProtocolError, Text: "bad frame"}, expected: "websocket: close 1002 (protocol error): bad frame"},
		{name: "Known code without text", err: &CloseError{Code: CloseNormalClosure}, expected: "websocket: close 1000 (normal)"},
		{name: "Application code", err: &CloseError{Code: 4000, Text: "custom"}, expected: "websocket: close 4000: custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestIsValidCloseCode(t *testing.T) {
	tests := []struct {
		code     int
		expected bool
	}{
		{code: 0, expected: false},
		{code: 999, expected: false},
		{code: CloseNormalClosure, expected: true},
		{code: CloseUnsupportedData, expected: true},
		{code: 1004, expected: false},
		{code: CloseNoStatusReceived, expected: false},
		{code: CloseAbnormalClosure, expected: false},
		{code: CloseInvalidFramePayloadData, expected: true},
		{code: CloseTryAgainLater, expected: true},
		{code: CloseTLSHandshake, expected: false},
		{code: 2999, expected: false},
		{code: 3000, expected: true},
		{code: 4999, expected: true},
		{code: 5000, expected: false},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidCloseCode(tt.code))
		})
	}
}

func TestCloseCode(t *testing.T) {
	code, ok := CloseCode(fmt.Errorf("%w: %w", &CloseError{Code: CloseMessageTooBig}, ErrFrameTooLarge))
	assert.True(t, ok)
	assert.Equal(t, CloseMessageTooBig, code)

	_, ok = CloseCode(ErrFrameTooLarge)
	assert.False(t, ok)

	_, ok = CloseCode(nil)
	assert.False(t, ok)
}

func TestIsCloseError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		codes    []int
		expected bool
	}{
		{
			name:     "Matching close error",
			err:      &CloseError{Code: CloseNormalClosure, Text: "bye"},
			codes:    []int{CloseNormalClosure, CloseGoingAway},
			expected: true,
		},
		{
			name:     "Non-matching close error",
			err:      &CloseError{Code: CloseProtocolError, Text: "error"},
			codes:    []int{CloseNormalClosure, CloseGoingAway},
			expected: false,
		},
		{
			name:     "Wrapped close error",
			err:      fmt.Errorf("session: %w", &CloseError{Code: CloseGoingAway}),
			codes:    []int{CloseGoingAway},
			expected: true,
		},
		{
			name:     "Not a close error",
			err:      errors.New("some error"),
			codes:    []int{CloseNormalClosure},
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			codes:    []int{CloseNormalClosure},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCloseError(tt.err, tt.codes...))
		})
	}
}

func TestIsUnexpectedCloseError(t *testing.T) {
	err := &CloseError{Code: CloseProtocolError}

	assert.True(t, IsUnexpectedCloseError(err, CloseNormalClosure, CloseGoingAway))
	assert.False(t, IsUnexpectedCloseError(err, CloseProtocolError))
	assert.False(t, IsUnexpectedCloseError(errors.New("plain"), CloseNormalClosure))
}
