package websocket

import "strings"

// Header maps lower-cased header names to trimmed values.
type Header map[string]string

// Get returns the value for name, matched case-insensitively.
// Missing headers return an empty string.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// ParseHeader parses the raw text of a request head. The first line (the
// request line) is discarded and every following "Name: value" line up to
// the first empty line is added to the map.
//
// Lines without a colon, or with an empty name or value after trimming, are
// skipped. When a header repeats, the last occurrence wins. ParseHeader
// never fails: callers treat missing keys as handshake failures.
func ParseHeader(raw string) Header {
	h := make(Header)

	lines := strings.Split(raw, "\r\n")
	if len(lines) == 0 {
		return h
	}

	for _, line := range lines[1:] {
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}

		h[strings.ToLower(name)] = value
	}

	return h
}
