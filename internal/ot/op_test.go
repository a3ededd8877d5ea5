package ot

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestApplyInsert(t *testing.T) {
	doc := []byte("hello world")
	got := Apply(doc, Insert(6, []byte("cruel ")))
	if string(got) != "hello cruel world" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyDelete(t *testing.T) {
	doc := []byte("hello world")
	got := Apply(doc, Delete(5, 6, nil))
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

// P2: insert inverse always round-trips.
func TestInverseInsert(t *testing.T) {
	doc := []byte("hello world")
	op := Insert(5, []byte(", dear"))
	inv, err := Inverse(op)
	if err != nil {
		t.Fatal(err)
	}
	got := Apply(Apply(doc, op), inv)
	if !bytes.Equal(got, doc) {
		t.Fatalf("round-trip failed: got %q want %q", got, doc)
	}
}

// P2: an invertible delete (recovered text matches doc) round-trips.
func TestInverseDelete(t *testing.T) {
	doc := []byte("hello world")
	recovered := doc[5:8]
	op := Delete(5, 3, recovered)
	inv, err := Inverse(op)
	if err != nil {
		t.Fatal(err)
	}
	got := Apply(Apply(doc, op), inv)
	if !bytes.Equal(got, doc) {
		t.Fatalf("round-trip failed: got %q want %q", got, doc)
	}
}

func TestInverseNonInvertibleDelete(t *testing.T) {
	op := Delete(0, 3, nil)
	if _, err := Inverse(op); err != ErrNonInvertible {
		t.Fatalf("expected ErrNonInvertible, got %v", err)
	}
}

// P3: conflict symmetry.
func TestConflictsSymmetric(t *testing.T) {
	pairs := []struct{ a, b Op }{
		{Insert(3, []byte("x")), Insert(3, []byte("y"))},
		{Insert(3, []byte("x")), Insert(5, []byte("y"))},
		{Delete(2, 3, nil), Delete(4, 2, nil)},
		{Delete(2, 3, nil), Delete(5, 2, nil)},
		{Insert(5, []byte("x")), Delete(2, 3, nil)},
		{Insert(2, []byte("x")), Delete(2, 3, nil)},
		{Insert(6, []byte("x")), Delete(2, 4, nil)},
	}
	for _, p := range pairs {
		if Conflicts(p.a, p.b) != Conflicts(p.b, p.a) {
			t.Fatalf("asymmetric conflict result for %+v / %+v", p.a, p.b)
		}
	}
}

func TestConflictsDeleteTouchingEndpoints(t *testing.T) {
	a := Delete(0, 3, nil) // [0,3]
	b := Delete(3, 2, nil) // [3,5]
	if !Conflicts(a, b) {
		t.Fatal("touching delete endpoints must count as conflict")
	}
}

func TestConflictsInsertDeleteBoundary(t *testing.T) {
	d := Delete(2, 3, nil) // [2,5]
	if !Conflicts(Insert(2, []byte("x")), d) {
		t.Fatal("insert at left boundary of delete must conflict")
	}
	if !Conflicts(Insert(5, []byte("x")), d) {
		t.Fatal("insert at right boundary of delete must conflict")
	}
	if Conflicts(Insert(1, []byte("x")), d) {
		t.Fatal("insert strictly before delete must not conflict")
	}
	if Conflicts(Insert(6, []byte("x")), d) {
		t.Fatal("insert strictly after delete must not conflict")
	}
}

// S3: simultaneous inserts at the same index resolve deterministically
// by shifting the later-applied one to the right.
func TestAfterInsertInsertTie(t *testing.T) {
	a := Insert(11, []byte("!"))
	b := Insert(11, []byte("?"))
	if !Conflicts(a, b) {
		t.Fatal("same-index inserts must conflict")
	}
	bPrime, _ := After(b, a)
	doc := []byte("hello world")
	doc = Apply(doc, a)
	doc = Apply(doc, bPrime)
	if string(doc) != "hello world!?" {
		t.Fatalf("got %q", doc)
	}
}

// S4: insert colliding with a delete collapses to the deletion site and
// the result is still applicable; document converges.
func TestAfterInsertDeleteConflictCollapse(t *testing.T) {
	a := Delete(5, 6, nil) // "hello world" -> "hello"
	b := Insert(8, []byte("XX"))
	if !Conflicts(a, b) {
		t.Fatal("expected conflict")
	}
	bPrime, _ := After(b, a)
	doc := []byte("hello world")
	doc = Apply(doc, a)
	doc = Apply(doc, bPrime)
	if string(doc) != "helloXX" {
		t.Fatalf("got %q", doc)
	}
}

func TestAfterDeleteSubsumed(t *testing.T) {
	outer := Delete(0, 10, nil)
	inner := Delete(2, 3, nil)
	got, ok := After(inner, outer)
	if ok {
		t.Fatalf("expected annulled delete, got %+v", got)
	}
}

// P1: convergence for a battery of random non-conflicting op pairs.
func TestConvergenceRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		doc := randomDoc(rng, 20)
		a := randomOp(rng, doc)
		b := randomOp(rng, doc)
		if Conflicts(a, b) {
			continue
		}
		aPrime, aOK := After(a, b)
		bPrime, bOK := After(b, a)
		if !aOK || !bOK {
			continue
		}
		left := Apply(Apply(append([]byte(nil), doc...), b), aPrime)
		right := Apply(Apply(append([]byte(nil), doc...), a), bPrime)
		if !bytes.Equal(left, right) {
			t.Fatalf("convergence failed: doc=%q a=%+v b=%+v\nleft=%q right=%q", doc, a, b, left, right)
		}
	}
}

func randomDoc(rng *rand.Rand, maxLen int) []byte {
	n := rng.Intn(maxLen)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte('a' + rng.Intn(26))
	}
	return buf
}

func randomOp(rng *rand.Rand, doc []byte) Op {
	if rng.Intn(2) == 0 || len(doc) == 0 {
		idx := rng.Intn(len(doc) + 1)
		n := rng.Intn(4)
		text := make([]byte, n)
		for i := range text {
			text[i] = byte('A' + rng.Intn(26))
		}
		return Insert(idx, text)
	}
	idx := rng.Intn(len(doc))
	maxN := len(doc) - idx
	n := 1 + rng.Intn(maxN)
	return Delete(idx, n, append([]byte(nil), doc[idx:idx+n]...))
}
