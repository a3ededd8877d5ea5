// Package edit defines the wire-serializable envelope around one
// operation (Edit), its identifier (ID), and the line-oriented
// codec used to encode/decode submissions and broadcasts (spec §6).
package edit

import (
	"fmt"

	"github.com/shiv248/editserver/internal/ot"
)

// EditorID identifies the author of an edit. 0 is reserved for the
// server's own authoritative-history edits; client editor ids start
// at 1, assigned by negotiation.
type EditorID uint64

// Server is the reserved editor id for authoritative-history edits.
const Server EditorID = 0

// ID is a (seq, editor) pair, unique server-wide. seq is monotonic
// within its editor.
type ID struct {
	Seq    int
	Editor EditorID
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Seq, id.Editor)
}

// Edit is the immutable envelope carrying one operation with its
// identity and parentage.
type Edit struct {
	Op        ot.Op
	ID        ID
	Parent    ID
	Submitter EditorID
}
