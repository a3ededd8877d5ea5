package history

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shiv248/editserver/internal/edit"
	"github.com/shiv248/editserver/internal/logging"
	"github.com/shiv248/editserver/internal/ot"
	"github.com/shiv248/editserver/internal/shadow"
)

// ErrDocumentTooLarge is a supplemented guard beyond spec scope: a
// submission whose resulting document would exceed the configured
// size limit is treated as a normal rejection (ack only, no append),
// same shape as a dirty-shadow Rejected, never a protocol violation.
var ErrDocumentTooLarge = errors.New("history: resulting document exceeds max size")

// SubmitResult reports the outcome of one call to EditServer.Submit.
// AckSeq always echoes E.id.seq (spec §4.2 step 7, Open Question 1).
// Broadcast is the server-space edit appended to H, or nil when the
// submission was rejected and nothing was appended.
type SubmitResult struct {
	AckSeq    int
	Broadcast *edit.Edit
}

// Rejected reports whether this submission produced no history append.
func (r SubmitResult) Rejected() bool { return r.Broadcast == nil }

// outbox is a connection's bounded outbound line queue (spec §5).
type outbox chan []byte

// EditServer holds one document's authoritative history, current text,
// and the shadow for every connected editor. One EditServer instance
// is the single owner of all mutable state for its document, matching
// the "shared mutable state" guidance of spec §9: the whole of Submit
// runs under a single exclusive lock so the critical section is
// atomic regardless of how many goroutines call it concurrently.
type EditServer struct {
	mu sync.Mutex

	log             *Log
	doc             []byte
	shadows         map[edit.EditorID]*shadow.Shadow
	outboxes        map[edit.EditorID]outbox
	nextEditor      uint64
	maxDocumentSize int
	outboxCapacity  int

	lastEditTime int64 // unix seconds, read via LastEditTime
}

// NewEditServer creates an EditServer for a fresh, empty document.
func NewEditServer(maxDocumentSize, outboxCapacity int) *EditServer {
	return newEditServer(New(), nil, maxDocumentSize, outboxCapacity)
}

// NewEditServerWithText creates an EditServer whose document already
// carries initial_text, for the case where a document is restored from
// storage (a SPEC_FULL.md supplement, see internal/session.Persister).
func NewEditServerWithText(text []byte, maxDocumentSize, outboxCapacity int) *EditServer {
	return newEditServer(NewWithText(text), append([]byte(nil), text...), maxDocumentSize, outboxCapacity)
}

func newEditServer(l *Log, doc []byte, maxDocumentSize, outboxCapacity int) *EditServer {
	return &EditServer{
		log:             l,
		doc:             doc,
		shadows:         make(map[edit.EditorID]*shadow.Shadow),
		outboxes:        make(map[edit.EditorID]outbox),
		maxDocumentSize: maxDocumentSize,
		outboxCapacity:  outboxCapacity,
	}
}

// Text returns a copy of the current document bytes.
func (es *EditServer) Text() []byte {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]byte(nil), es.doc...)
}

// Revision is the seq of the most recent entry in H.
func (es *EditServer) Revision() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.log.Last().ID.Seq
}

// LastEditTime is the time of the most recent successful append, or
// the zero Time if the document has never been edited.
func (es *EditServer) LastEditTime() time.Time {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.lastEditTime == 0 {
		return time.Time{}
	}
	return time.Unix(es.lastEditTime, 0)
}

// ConnectionCount is the number of editors with an open outbox.
func (es *EditServer) ConnectionCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return len(es.outboxes)
}

// Negotiate registers a new connection (spec §6 negotiation): it
// assigns a fresh editor id, creates a clean shadow based at the
// current history tail, and opens that editor's outbox. It returns
// everything the negotiation response line needs.
func (es *EditServer) Negotiate() (editor edit.EditorID, initialSeq int, initialText []byte) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.nextEditor++
	editor = edit.EditorID(es.nextEditor)

	last := es.log.Last()
	es.shadows[editor] = shadow.New(last.ID)
	es.outboxes[editor] = make(outbox, es.outboxCapacity)

	return editor, last.ID.Seq, append([]byte(nil), es.doc...)
}

// Disconnect removes an editor's shadow and closes its outbox (spec
// §5 cancellation): in-flight broadcasts to it are simply discarded
// since nothing drains a closed channel.
func (es *EditServer) Disconnect(editor edit.EditorID) {
	es.mu.Lock()
	defer es.mu.Unlock()

	delete(es.shadows, editor)
	if ob, ok := es.outboxes[editor]; ok {
		close(ob)
		delete(es.outboxes, editor)
	}
}

// Outbox returns the channel of outbound line bodies queued for
// editor, or nil if it has no open connection.
func (es *EditServer) Outbox(editor edit.EditorID) <-chan []byte {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.outboxes[editor]
}

// Submit runs the seven-step submission algorithm of spec §4.2 for a
// client submission e arriving on connection editor. A non-nil error
// is always a protocol violation (BadParent) that should close the
// connection; a nil error with result.Rejected() true is the normal
// "Rejected" outcome (accept sent, nothing broadcast).
func (es *EditServer) Submit(editor edit.EditorID, e edit.Edit) (SubmitResult, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	sh, err := es.resolveShadow(editor, e)
	if err != nil {
		return SubmitResult{}, err
	}

	// Step 2: pull new external edits into the tail.
	newEdits := es.log.Since(sh.LastKnownID.Seq + 1)
	sh.AbsorbExternal(newEdits)

	// Step 3: dirty check (no state changed beyond step 2 if so).
	if sh.Dirty {
		return SubmitResult{AckSeq: e.ID.Seq}, nil
	}

	// Steps 4-6: extend tail (done inside AbsorbExternal above, since
	// it is the same operation regardless of dirtiness) and double
	// rebase.
	serverOp, applied := sh.Submit(e)
	if !applied {
		return SubmitResult{AckSeq: e.ID.Seq}, nil
	}

	if es.maxDocumentSize > 0 && projectedLen(es.doc, serverOp) > es.maxDocumentSize {
		// sh.Submit already recorded e into Submissions on the
		// assumption it would be committed; since it won't be, force
		// the shadow dirty so that bookkeeping mismatch never matters
		// again (the client must restart on a fresh server parent,
		// same recovery path as any other conflict).
		sh.Dirty = true
		logging.Warn("submission dropped: document too large", "editor", editor, "limit", es.maxDocumentSize)
		return SubmitResult{AckSeq: e.ID.Seq}, nil
	}

	// Step 7: append and broadcast.
	last := es.log.Last()
	s := edit.Edit{
		Op:        serverOp,
		ID:        edit.ID{Seq: es.log.Len(), Editor: edit.Server},
		Parent:    last.ID,
		Submitter: e.Submitter,
	}
	es.log.Append(s)
	es.doc = ot.Apply(es.doc, s.Op)
	es.lastEditTime = time.Now().Unix()
	sh.RecordServerID(s.ID)

	es.broadcastExcept(editor, s)

	return SubmitResult{AckSeq: e.ID.Seq, Broadcast: &s}, nil
}

// resolveShadow implements step 1 (parent validation), replacing the
// connection's shadow with a fresh one when the submission claims a
// server-space parent.
func (es *EditServer) resolveShadow(editor edit.EditorID, e edit.Edit) (*shadow.Shadow, error) {
	switch {
	case e.Parent.Editor == edit.Server:
		if e.Parent.Seq < 0 || e.Parent.Seq >= es.log.Len() {
			return nil, fmt.Errorf("%w: parent seq %d out of range (have %d edits)", edit.ErrBadParent, e.Parent.Seq, es.log.Len())
		}
		sh := shadow.New(e.Parent)
		es.shadows[editor] = sh
		return sh, nil

	case e.Parent.Editor == editor:
		sh, ok := es.shadows[editor]
		if !ok {
			return nil, fmt.Errorf("%w: no shadow for editor %d", edit.ErrBadParent, editor)
		}
		// A dirty shadow accepts any claimed parent without validation
		// (Open Question 4): its submissions are always rejected below
		// regardless, so the check would be pure overhead.
		if !sh.Dirty && e.Parent != sh.ExpectedParent() {
			return nil, fmt.Errorf("%w: parent %s does not match expected %s", edit.ErrBadParent, e.Parent, sh.ExpectedParent())
		}
		return sh, nil

	default:
		return nil, fmt.Errorf("%w: parent editor %d is neither SERVER nor %d", edit.ErrBadParent, e.Parent.Editor, editor)
	}
}

// broadcastExcept enqueues the external-edit line for s onto every
// outbox but origin's. A full outbox drops the message rather than
// blocking the caller, which is holding es.mu for the whole critical
// section (spec §5 permits substituting a documented spillover
// strategy for the default blocking-channel backpressure).
func (es *EditServer) broadcastExcept(origin edit.EditorID, s edit.Edit) {
	for editor, ob := range es.outboxes {
		if editor == origin {
			continue
		}
		line := append([]byte("x:"), edit.EncodeExternal(s.ID.Seq, s.Op)...)
		select {
		case ob <- line:
		default:
			logging.Warn("outbox full, dropping broadcast", "editor", editor, "seq", s.ID.Seq)
		}
	}
}

func projectedLen(doc []byte, op ot.Op) int {
	switch op.Kind {
	case ot.KindInsert:
		return len(doc) + len(op.Text)
	case ot.KindDelete:
		return len(doc) - op.NChars
	default:
		return len(doc)
	}
}
