// Package websocket implements the server side of the WebSocket wire
// protocol defined in RFC 6455: the opening handshake and the frame codec.
//
// The package performs no I/O. ParseHeader and Negotiate turn the raw text
// of an upgrade request into either a 101 response or a *HandshakeError
// carrying the HTTP status to reply with. Encode and Decode convert between
// Frame values and wire bytes.
//
// Handshake Example:
//
//	up, err := websocket.Negotiate(websocket.ParseHeader(head))
//	if err != nil {
//	    var herr *websocket.HandshakeError
//	    if errors.As(err, &herr) {
//	        conn.Write(herr.Response())
//	    }
//	    conn.Close()
//	    return
//	}
//	conn.Write(up.Response())
//
// Frame Example:
//
//	frame, n, err := websocket.Decode(buf)
//	switch {
//	case errors.Is(err, websocket.ErrTruncatedFrame):
//	    // read more bytes and retry
//	case err != nil:
//	    conn.Write(websocket.Encode(websocket.Frame{
//	        Fin:     true,
//	        Opcode:  websocket.OpClose,
//	        Payload: websocket.FormatCloseMessage(websocket.CloseCodeForError(err), ""),
//	    }))
//	default:
//	    buf = buf[n:]
//	}
//
// Decoding:
//
// Decode never reads past the end of its input. A buffer holding only part
// of a frame yields ErrTruncatedFrame and consumes nothing, so callers can
// append more bytes and decode again. Payloads are copied out of the input
// and unmasked.
//
// Encoding:
//
// Encode produces server frames, which are never masked. Lengths below 126
// use the 7-bit form, lengths up to 65535 the 16-bit extended form and larger
// lengths the 64-bit extended form.
package websocket
