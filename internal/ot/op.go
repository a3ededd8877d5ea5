// Package ot implements the operation algebra for the collaborative
// editor: a two-variant operation sum type (Insert, Delete) and the
// pure functions apply, after, inverse, and conflicts that the server's
// shadow history and submission protocol are built on.
package ot

import "errors"

// ErrNonInvertible is returned by Inverse when a Delete carries no
// recovered text, which happens for every server-authored Delete and
// for any Delete that After widens or trims because of an overlap.
var ErrNonInvertible = errors.New("ot: operation is not invertible")

// Kind distinguishes the two operation variants.
type Kind int

const (
	KindInsert Kind = iota
	KindDelete
)

// Op is an Insert or a Delete over a byte-sequence document.
//
// Insert(Idx, Text) splices Text into the document at Idx.
// Delete(Idx, NChars, Recovered) removes NChars bytes starting at Idx;
// Recovered holds the removed bytes only when this Delete was produced
// by Inverse() of a prior Insert, making it eligible to be inverted
// back into that Insert. A Delete with Recovered == nil is
// non-invertible.
type Op struct {
	Kind      Kind
	Idx       int
	Text      []byte // Insert only
	NChars    int    // Delete only
	Recovered []byte // Delete only; nil means non-invertible
}

// Insert constructs an Insert operation.
func Insert(idx int, text []byte) Op {
	return Op{Kind: KindInsert, Idx: idx, Text: text}
}

// Delete constructs a Delete operation. recovered may be nil.
func Delete(idx, nchars int, recovered []byte) Op {
	return Op{Kind: KindDelete, Idx: idx, NChars: nchars, Recovered: recovered}
}

// Invertible reports whether Inverse can be called without error.
func (o Op) Invertible() bool {
	return o.Kind == KindInsert || o.Recovered != nil
}

// Apply applies o to doc and returns the resulting document.
func Apply(doc []byte, o Op) []byte {
	switch o.Kind {
	case KindInsert:
		out := make([]byte, 0, len(doc)+len(o.Text))
		out = append(out, doc[:o.Idx]...)
		out = append(out, o.Text...)
		out = append(out, doc[o.Idx:]...)
		return out
	case KindDelete:
		out := make([]byte, 0, len(doc)-o.NChars)
		out = append(out, doc[:o.Idx]...)
		out = append(out, doc[o.Idx+o.NChars:]...)
		return out
	default:
		panic("ot: unknown operation kind")
	}
}

// Inverse returns the operation that cancels o when applied
// immediately after it: Apply(Apply(doc, o), Inverse(o)) == doc.
// The reverse composition is not defined. Returns ErrNonInvertible for
// a Delete with no recovered text.
func Inverse(o Op) (Op, error) {
	switch o.Kind {
	case KindInsert:
		return Delete(o.Idx, len(o.Text), o.Text), nil
	case KindDelete:
		if o.Recovered == nil {
			return Op{}, ErrNonInvertible
		}
		return Insert(o.Idx, o.Recovered), nil
	default:
		panic("ot: unknown operation kind")
	}
}

// Conflicts reports whether applying a then b produces a different
// document than applying b then a, or whether the pair's transform
// would lose invertibility. Symmetric: Conflicts(a, b) == Conflicts(b, a).
func Conflicts(a, b Op) bool {
	switch {
	case a.Kind == KindInsert && b.Kind == KindInsert:
		return a.Idx == b.Idx
	case a.Kind == KindDelete && b.Kind == KindDelete:
		// Closed intervals [idx, idx+nchars] intersect; touching counts.
		aLo, aHi := a.Idx, a.Idx+a.NChars
		bLo, bHi := b.Idx, b.Idx+b.NChars
		return aLo <= bHi && bLo <= aHi
	default:
		var ins, del Op
		if a.Kind == KindInsert {
			ins, del = a, b
		} else {
			ins, del = b, a
		}
		return ins.Idx >= del.Idx && ins.Idx <= del.Idx+del.NChars
	}
}

// After returns self as it should be applied given that other was
// applied first, such that for non-conflicting pairs:
//
//	Apply(Apply(doc, other), After(self, other)) == Apply(Apply(doc, self), After(other, self))
//
// A Delete.After(...) result may be a "no-op" (the zero Op, with false
// as second value) when the operation has been entirely subsumed by other;
// callers must treat this as an annulled edit with no further effect.
func After(self, other Op) (Op, bool) {
	switch self.Kind {
	case KindInsert:
		return afterInsert(self, other), true
	case KindDelete:
		return afterDelete(self, other)
	default:
		panic("ot: unknown operation kind")
	}
}

func afterInsert(self, other Op) Op {
	i, t := self.Idx, self.Text
	switch other.Kind {
	case KindInsert:
		j, u := other.Idx, other.Text
		switch {
		case j > i:
			return self
		case j == i:
			return Insert(i+len(u), t)
		default: // j < i
			return Insert(i+len(u), t)
		}
	case KindDelete:
		j, n := other.Idx, other.NChars
		switch {
		case j > i:
			return self
		case j+n < i:
			return Insert(i-n, t)
		default:
			return Insert(j, t)
		}
	default:
		panic("ot: unknown operation kind")
	}
}

func afterDelete(self, other Op) (Op, bool) {
	i, n, t := self.Idx, self.NChars, self.Recovered
	switch other.Kind {
	case KindInsert:
		j, u := other.Idx, other.Text
		switch {
		case j > i+n:
			return self, true
		case j < i:
			return Delete(i+len(u), n, t), true
		case j == i:
			return Delete(i+len(u), n, t), true
		case j == i+n:
			return self, true
		default: // i < j < i+n
			return Delete(i, n+len(u), nil), true
		}
	case KindDelete:
		j, m := other.Idx, other.NChars
		switch {
		case j >= i+n:
			return self, true
		case j+m <= i:
			return Delete(i-m, n, t), true
		case j <= i && j+m >= i+n:
			// our range is fully subsumed
			return Op{}, false
		case j <= i && j+m < i+n:
			overlap := m - (i - j)
			return Delete(j, n-overlap, nil), true
		case j > i && j+m > i+n:
			return Delete(i, j-i, nil), true
		default: // j > i && j+m <= i+n
			return Delete(i, n-m, nil), true
		}
	default:
		panic("ot: unknown operation kind")
	}
}
