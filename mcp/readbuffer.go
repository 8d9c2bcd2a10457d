package mcp

import (
	"bytes"

	"github.com/honganh1206/mcp-runtime/logger"
)

// ReadBuffer accumulates bytes off a stream and extracts complete
// LF-terminated lines, decoding each as a JSON-RPC message (spec §4.2). It is
// not internally synchronized: callers must use it from a single goroutine
// at a time.
type ReadBuffer struct {
	buf []byte
}

// Append adds bytes to the internal buffer.
func (b *ReadBuffer) Append(data []byte) {
	b.buf = append(b.buf, data...)
}

// Clear drops all buffered data.
func (b *ReadBuffer) Clear() {
	b.buf = nil
}

// ReadLine returns the next complete line, sans its terminator (LF, or
// CRLF), or ok=false if no LF is buffered yet. A line consisting solely of a
// leading LF (i.e. an empty line) is consumed and reported as absent, per
// spec: "an isolated leading LF is consumed and returns None".
func (b *ReadBuffer) ReadLine() (line string, ok bool) {
	idx := bytes.IndexByte(b.buf, '\n')
	if idx < 0 {
		return "", false
	}
	raw := b.buf[:idx]
	b.buf = b.buf[idx+1:]
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	if len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

// ReadMessage returns the next successfully decoded message, or ok=false if
// no complete line is buffered. On decode failure it attempts one recovery
// by seeking the first '{' in the line; if that also fails the line is
// discarded and an error is logged (spec §4.2).
func (b *ReadBuffer) ReadMessage() (*Message, bool) {
	for {
		line, ok := b.ReadLine()
		if !ok {
			return nil, false
		}
		msg, err := DecodeMessage([]byte(line))
		if err == nil {
			return msg, true
		}

		idx := bytes.IndexByte([]byte(line), '{')
		if idx < 0 {
			logger.Warning("mcp: discarding unparseable line: %v", err)
			continue
		}
		recovered := line[idx:]
		msg, err = DecodeMessage([]byte(recovered))
		if err != nil {
			logger.Warning("mcp: discarding line after failed recovery: %v", err)
			continue
		}
		return msg, true
	}
}

// SerializeMessage renders a Message as the LF-terminated JSON text written
// to an outbound stream.
func SerializeMessage(m *Message) ([]byte, error) {
	data, err := EncodeMessage(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, data...)
	out = append(out, '\n')
	return out, nil
}
