package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/honganh1206/mcp-runtime/logger"
)

const (
	stdioInitialBufferSize = 64 * 1024
	stdioMaxMessageSize    = 10 * 1024 * 1024
)

// StdioTransport speaks newline-delimited JSON-RPC over an arbitrary
// reader/writer pair, normally os.Stdin/os.Stdout (spec §5.1). It is the
// preferred transport for a client and server sharing a process tree, e.g.
// Claude Desktop launching a local server as a subprocess.
type StdioTransport struct {
	baseTransport

	reader io.Reader
	writer io.Writer

	writeMu sync.Mutex
	done    chan struct{}
}

// NewStdioTransport wraps reader/writer for newline-delimited JSON framing.
// Start must be called before any message is read or sent.
func NewStdioTransport(reader io.Reader, writer io.Writer) *StdioTransport {
	return &StdioTransport{reader: reader, writer: writer, done: make(chan struct{})}
}

func (t *StdioTransport) Start(ctx context.Context) error {
	if err := t.transition(StateNew, StateInitializing); err != nil {
		return err
	}
	go t.readLoop(ctx)
	if err := t.transition(StateInitializing, StateOperational); err != nil {
		return err
	}
	return nil
}

func (t *StdioTransport) readLoop(ctx context.Context) {
	defer close(t.done)

	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, stdioInitialBufferSize), stdioMaxMessageSize)
	var buf ReadBuffer
	for scanner.Scan() {
		buf.Append(scanner.Bytes())
		buf.Append([]byte("\n"))
		for {
			msg, ok := buf.ReadMessage()
			if !ok {
				break
			}
			t.onMessage(ctx, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		t.onError(fmt.Errorf("mcp: stdio read: %w", err))
	}
	t.forceState(StateStopped)
	t.onClose()
}

func (t *StdioTransport) Send(ctx context.Context, message *Message) error {
	if t.current() != StateOperational {
		return fmt.Errorf("mcp: stdio send while %s", t.current())
	}
	data, err := SerializeMessage(message)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.writer.Write(data)
	return err
}

func (t *StdioTransport) Close() error {
	cur := t.current()
	if cur == StateStopped || cur == StateShutdownFailed {
		return nil
	}
	if err := t.transition(StateOperational, StateShuttingDown); err != nil {
		logger.Debug("mcp: stdio close from non-operational state %s", cur)
	}
	if closer, ok := t.writer.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			t.forceState(StateShutdownFailed)
			return err
		}
	}
	<-t.done
	return nil
}
