package websocket

import (
	"encoding/binary"
	"errors"
	"slices"
	"strconv"
)

// Close codes defined in RFC 6455, section 7.4.1.
const (
	CloseNormalClosure           = 1000
	CloseGoingAway               = 1001
	CloseProtocolError           = 1002
	CloseUnsupportedData         = 1003
	CloseNoStatusReceived        = 1005
	CloseAbnormalClosure         = 1006
	CloseInvalidFramePayloadData = 1007
	ClosePolicyViolation         = 1008
	CloseMessageTooBig           = 1009
	CloseMandatoryExtension      = 1010
	CloseInternalServerErr       = 1011
	CloseServiceRestart          = 1012
	CloseTryAgainLater           = 1013
	CloseTLSHandshake            = 1015
)

// ErrRateLimited is used when a peer sends frames faster than allowed.
var ErrRateLimited = errors.New("websocket: frame rate limit exceeded")

// CloseError describes how a peer or the server ended a session: the
// status code carried by the CLOSE frame and its reason text.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	msg := "websocket: close " + strconv.Itoa(e.Code)
	if name, ok := closeCodeNames[e.Code]; ok {
		msg += " (" + name + ")"
	}
	if e.Text != "" {
		msg += ": " + e.Text
	}
	return msg
}

var closeCodeNames = map[int]string{
	CloseNormalClosure:           "normal",
	CloseGoingAway:               "going away",
	CloseProtocolError:           "protocol error",
	CloseUnsupportedData:         "unsupported data",
	CloseNoStatusReceived:        "no status",
	CloseAbnormalClosure:         "abnormal closure",
	CloseInvalidFramePayloadData: "invalid payload",
	ClosePolicyViolation:         "policy violation",
	CloseMessageTooBig:           "message too big",
	CloseMandatoryExtension:      "mandatory extension",
	CloseInternalServerErr:       "internal server error",
	CloseServiceRestart:          "service restart",
	CloseTryAgainLater:           "try again later",
	CloseTLSHandshake:            "TLS handshake",
}

// IsValidCloseCode reports whether code may appear in a CLOSE frame on the
// wire (RFC 6455, section 7.4). 1005, 1006 and 1015 are reserved for local
// use and never sent.
func IsValidCloseCode(code int) bool {
	switch {
	case code >= 1000 && code <= 1003:
		return true
	case code >= 1007 && code <= 1014:
		return true
	case code >= 3000 && code <= 4999:
		return true
	default:
		return false
	}
}

// FormatCloseMessage formats closeCode and text as a close frame body
// per RFC 6455, section 5.5.1: a 2-byte status code followed by optional
// UTF-8 reason text.
func FormatCloseMessage(closeCode int, text string) []byte {
	if closeCode == CloseNoStatusReceived {
		return []byte{}
	}
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(closeCode))
	copy(buf[2:], text)
	return buf
}

// ParseCloseMessage splits a close frame body into status code and reason.
// An empty or one-byte body yields CloseNoStatusReceived.
func ParseCloseMessage(payload []byte) (code int, text string) {
	if len(payload) < 2 {
		return CloseNoStatusReceived, ""
	}
	return int(binary.BigEndian.Uint16(payload)), string(payload[2:])
}

// CloseCodeForError maps a decode or session error to the status code sent
// in the closing frame.
func CloseCodeForError(err error) int {
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return CloseMessageTooBig
	case errors.Is(err, ErrRateLimited):
		return ClosePolicyViolation
	default:
		return CloseProtocolError
	}
}

// CloseCode returns the status code of the *CloseError in err's chain.
func CloseCode(err error) (int, bool) {
	var ce *CloseError
	if !errors.As(err, &ce) {
		return 0, false
	}
	return ce.Code, true
}

// IsCloseError reports whether err carries a close status listed in codes.
func IsCloseError(err error, codes ...int) bool {
	code, ok := CloseCode(err)
	return ok && slices.Contains(codes, code)
}

// IsUnexpectedCloseError reports whether err carries a close status that is
// not listed in expected.
func IsUnexpectedCloseError(err error, expected ...int) bool {
	code, ok := CloseCode(err)
	return ok && !slices.Contains(expected, code)
}
