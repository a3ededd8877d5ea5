// Package shadow implements the per-connection rebase state machine
// (spec §3, §4.3, §4.4) that lets a client's in-flight submissions and
// the server's authoritative history converge on the same document.
package shadow

import (
	"github.com/shiv248/editserver/internal/edit"
	"github.com/shiv248/editserver/internal/ot"
)

// Mod pairs a rebased operation with the authoritative Edit it
// originated from. Origin is kept only for diagnostics: it is a
// snapshot, not an owning reference, so it never creates a cycle back
// into the authoritative history.
type Mod struct {
	Op     ot.Op
	Origin edit.Edit
}

// Shadow tracks one connection's view of the authoritative history
// relative to its own in-flight submissions. See spec §3 for the L1-L3
// invariants it maintains.
type Shadow struct {
	LastKnownID   edit.ID
	Dirty         bool
	Submissions   []edit.Edit
	SubmissionIDs map[edit.ID]struct{}
	Tail          []Mod
}

// New creates a clean shadow rooted at base, the highest server edit
// id the connection has proven awareness of.
func New(base edit.ID) *Shadow {
	return &Shadow{
		LastKnownID:   base,
		SubmissionIDs: make(map[edit.ID]struct{}),
	}
}

// LastSubmissionID returns the id of the most recent accepted
// submission and whether one exists.
func (s *Shadow) LastSubmissionID() (edit.ID, bool) {
	if len(s.Submissions) == 0 {
		return edit.ID{}, false
	}
	return s.Submissions[len(s.Submissions)-1].ID, true
}

// ExpectedParent is the id a same-editor submission must claim as its
// parent (spec §4.2 step 1): the last accepted submission on this
// shadow, or the shadow's base if it has not submitted anything yet.
func (s *Shadow) ExpectedParent() edit.ID {
	if id, ok := s.LastSubmissionID(); ok {
		return id
	}
	return s.LastKnownID
}

// AbsorbExternal extends the tail with new authoritative edits the
// connection has not yet seen, dropping the leading edit if it is the
// rebased form of a submission this shadow just made (step 2 of
// spec §4.2). It advances LastKnownID regardless of dirtiness. Once
// dirty, the tail is frozen (L3) and this is a no-op beyond advancing
// LastKnownID.
func (s *Shadow) AbsorbExternal(newEdits []edit.Edit) {
	if len(newEdits) == 0 {
		return
	}
	s.LastKnownID = newEdits[len(newEdits)-1].ID

	if s.Dirty {
		return
	}

	external := newEdits
	if _, ok := s.SubmissionIDs[newEdits[0].ID]; ok {
		external = newEdits[1:]
	}
	for _, e := range external {
		s.Tail = append(s.Tail, Mod{Op: e.Op, Origin: e})
	}
}

// Submit runs the double rebase of spec §4.2 step 5 for submission e,
// whose own Op is x. It walks the full tail front-to-back, rebasing x
// past every element; for the prefix before any conflict is observed,
// each tail element is also rebased onto x in place. applied reports
// whether there is a server-space operation to append to the
// authoritative history at all.
//
// applied is false only when the shadow was already dirty on entry, or
// in the edge case where the tail annuls x entirely (a chain of
// Delete/Delete subsumption): conflicts() guarantees that case was
// already flagged as a conflict, so there is nothing left to commit.
//
// Critically, a conflict discovered partway through this call does
// NOT make applied false for the current submission — ties and
// collisions (spec scenarios S3, S4) still land on the document, they
// just leave Dirty set so every later submission is rejected. e is
// appended to Submissions only when no conflict was observed during
// this call; once dirty, bookkeeping for future submissions is moot
// since they're rejected unconditionally.
func (s *Shadow) Submit(e edit.Edit) (serverOp ot.Op, applied bool) {
	if s.Dirty {
		return ot.Op{}, false
	}

	x := e.Op
	newlyDirty := false
	for i := range s.Tail {
		t := &s.Tail[i]
		if ot.Conflicts(x, t.Op) {
			newlyDirty = true
		}
		xNext, xOK := ot.After(x, t.Op)
		if !xOK {
			s.Dirty = true
			return ot.Op{}, false
		}
		if !newlyDirty {
			tNext, _ := ot.After(t.Op, x)
			t.Op = tNext
		}
		x = xNext
	}

	if newlyDirty {
		s.Dirty = true
		return x, true
	}

	s.Submissions = append(s.Submissions, e)
	return x, true
}

// RecordServerID registers the server-space id that resulted from
// appending one of this shadow's own submissions to the authoritative
// history. The caller (the history/edit-server layer) must invoke this
// immediately after the append that Submit's returned op feeds into,
// so that the next AbsorbExternal call recognizes and drops that
// edit's echo from the tail (spec §4.2 step 2): in the single-threaded
// submission loop this echo is always the first new edit a later
// submission's pull would otherwise see.
func (s *Shadow) RecordServerID(id edit.ID) {
	s.SubmissionIDs[id] = struct{}{}
}
