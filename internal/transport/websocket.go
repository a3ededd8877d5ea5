package transport

import (
	"context"
	"errors"
	"fmt"

	"nhooyr.io/websocket"
)

// ErrClosed wraps every error surfaced once the underlying socket has
// ended, spec's TransportClosed error kind.
var ErrClosed = errors.New("transport: closed")

// Conn is what the session layer needs from one connection: read the
// next complete protocol line, write one, and close with a reason.
// It is the seam the core packages never cross (spec §2: "no component
// below (4) references any component above it").
type Conn interface {
	ReadLine(ctx context.Context) ([]byte, error)
	WriteLine(ctx context.Context, line []byte) error
	Close(reason string) error
}

// wsConn adapts an nhooyr.io/websocket connection to Conn, treating
// every inbound WebSocket message as one chunk fed to a LineReader
// (SPEC_FULL.md §4: the socket library supplies the accept/read/write
// loop; line framing stays the byte-oriented contract of spec §6
// regardless of the message boundaries the socket happens to use).
type wsConn struct {
	ws *websocket.Conn
	lr *LineReader
}

// NewConn wraps an accepted WebSocket connection as a line-oriented Conn.
func NewConn(ws *websocket.Conn) Conn {
	c := &wsConn{ws: ws}
	c.lr = NewLineReader(c)
	return c
}

// ReadChunk implements ChunkReader by pulling the next WebSocket
// message, regardless of its declared message type: the protocol is
// plain bytes either way.
func (c *wsConn) ReadChunk(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return data, nil
}

func (c *wsConn) ReadLine(ctx context.Context) ([]byte, error) {
	return c.lr.ReadLine(ctx)
}

func (c *wsConn) WriteLine(ctx context.Context, line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if err := c.ws.Write(ctx, websocket.MessageText, buf); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}

func (c *wsConn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

// IsNormalClosure reports whether err represents a peer-initiated
// clean close rather than a real transport failure.
func IsNormalClosure(err error) bool {
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
