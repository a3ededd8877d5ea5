package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiv248/editserver/internal/edit"
	"github.com/shiv248/editserver/internal/history"
	"github.com/shiv248/editserver/internal/transport"
)

// ErrBadNegotiation covers a negotiation line that isn't the
// recognized "new:<name>" form (Open Question 3: "old:" reconnect is
// not implemented, so it is just another unrecognized verb here).
var ErrBadNegotiation = errors.New("session: unrecognized negotiation line")

// readTimeout bounds how long a read loop waits for the next line
// before treating the connection as dead, matching the teacher's
// per-message read deadline in pkg/server/connection.go.
const readTimeout = 30 * time.Second

// Connection runs one client's lifecycle against a single document's
// EditServer: negotiation, then a read loop dispatching submission
// lines, plus a writer goroutine draining the editor's outbox. writeMu
// serializes the two so they never issue concurrent writes on conn,
// same guard as the teacher's sendMu.
type Connection struct {
	conn    transport.Conn
	es      *history.EditServer
	editor  edit.EditorID
	writeMu sync.Mutex
}

// Negotiate performs the one-line-each-way handshake of spec §6 and
// returns a Connection ready for Run. The display name is accepted but
// not retained: presence/identity broadcast is a named Non-goal.
func Negotiate(ctx context.Context, conn transport.Conn, es *history.EditServer) (*Connection, error) {
	line, err := conn.ReadLine(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}

	typ, _, err := edit.SplitLine(line)
	if err != nil || typ != "new" {
		return nil, fmt.Errorf("%w: %q", ErrBadNegotiation, line)
	}

	editorID, initialSeq, initialText := es.Negotiate()
	secret := uuid.NewString()

	resp := fmt.Sprintf("%d:%s:%d:%s", editorID, secret, initialSeq, edit.EncodeText(initialText))
	if err := conn.WriteLine(ctx, []byte(resp)); err != nil {
		es.Disconnect(editorID)
		return nil, err
	}

	return &Connection{conn: conn, es: es, editor: editorID}, nil
}

// Run drains the connection until it closes: reading submission lines
// in this goroutine while a second goroutine writes broadcasts,
// matching the teacher's split between the read loop and
// broadcastUpdates in pkg/server/connection.go. Run always leaves the
// editor's shadow and outbox cleaned up before returning.
func (c *Connection) Run(ctx context.Context) error {
	defer c.es.Disconnect(c.editor)

	writeCtx, stopWriter := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(writeCtx)
	}()

	err := c.readLoop(ctx)
	stopWriter()
	<-writerDone
	return err
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		line, err := c.conn.ReadLine(readCtx)
		cancel()
		if err != nil {
			if transport.IsNormalClosure(err) {
				return nil
			}
			return err
		}

		if err := c.handleLine(ctx, line); err != nil {
			return err
		}
	}
}

func (c *Connection) handleLine(ctx context.Context, line []byte) error {
	typ, body, err := edit.SplitLine(line)
	if err != nil {
		return err
	}

	switch typ {
	case "s":
		e, err := edit.DecodeSubmission(body, c.editor)
		if err != nil {
			return err
		}
		res, err := c.es.Submit(c.editor, e)
		if err != nil {
			return err
		}
		return c.write(ctx, append([]byte("a:"), edit.EncodeAccept(res.AckSeq)...))
	case "k":
		// Reserved acknowledgement (Open Question 2): recognized but
		// deliberately inert.
		return nil
	default:
		return fmt.Errorf("session: unrecognized line type %q", typ)
	}
}

func (c *Connection) writeLoop(ctx context.Context) {
	outbox := c.es.Outbox(c.editor)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-outbox:
			if !ok {
				return
			}
			if err := c.write(ctx, line); err != nil {
				return
			}
		}
	}
}

func (c *Connection) write(ctx context.Context, line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.conn.WriteLine(writeCtx, line)
}
