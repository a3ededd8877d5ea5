// Package history holds the authoritative append-only edit log (spec
// §3, §4.2) and the EditServer that accepts client submissions against
// it, consulting each connection's shadow to double-rebase and
// broadcasting the result.
package history

import (
	"github.com/shiv248/editserver/internal/edit"
	"github.com/shiv248/editserver/internal/ot"
)

// Log is the authoritative history H: an append-only sequence of
// server-space edits, index 0 always the sentinel Insert(0, "") whose
// parent is itself (P6).
type Log struct {
	edits []edit.Edit
}

// New returns a Log containing only the sentinel edit.
func New() *Log {
	sentinel := edit.Edit{
		Op:        ot.Insert(0, nil),
		ID:        edit.ID{Seq: 0, Editor: edit.Server},
		Submitter: edit.Server,
	}
	sentinel.Parent = sentinel.ID
	return &Log{edits: []edit.Edit{sentinel}}
}

// NewWithText returns a Log seeded with initial_text as edit index 1,
// parented on the sentinel, per spec §3.
func NewWithText(text []byte) *Log {
	l := New()
	l.edits = append(l.edits, edit.Edit{
		Op:        ot.Insert(0, text),
		ID:        edit.ID{Seq: 1, Editor: edit.Server},
		Parent:    l.edits[0].ID,
		Submitter: edit.Server,
	})
	return l
}

// Len is the number of edits in H, including the sentinel.
func (l *Log) Len() int { return len(l.edits) }

// Last returns H's most recent edit.
func (l *Log) Last() edit.Edit { return l.edits[len(l.edits)-1] }

// At returns H[seq].
func (l *Log) At(seq int) edit.Edit { return l.edits[seq] }

// Since returns a copy of H[seq:], or nil if seq is past the end.
func (l *Log) Since(seq int) []edit.Edit {
	if seq < 0 {
		seq = 0
	}
	if seq >= len(l.edits) {
		return nil
	}
	out := make([]edit.Edit, len(l.edits)-seq)
	copy(out, l.edits[seq:])
	return out
}

// Append adds e to H. The caller is responsible for e.ID.Seq == Len()
// and e.Parent == Last().ID (P6); Append does not itself validate
// this, since by construction EditServer.Submit always builds e that
// way.
func (l *Log) Append(e edit.Edit) {
	l.edits = append(l.edits, e)
}
