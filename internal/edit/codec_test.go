package edit

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shiv248/editserver/internal/ot"
)

func TestEncodeDecodeTextRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello world"),
		[]byte("a\x00b\x08c\x09d\x0ae\x0df\\g"),
		[]byte{1, 2, 3, 7, 11, 12, 14, 31, 127},
		[]byte("hello world\n"),
	}
	for _, c := range cases {
		enc := EncodeText(c)
		dec, err := DecodeText(enc)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", enc, err)
		}
		if !bytes.Equal(dec, c) {
			t.Fatalf("round-trip mismatch: got %v want %v", dec, c)
		}
	}
}

func TestEncodeTextNamedEscapes(t *testing.T) {
	got := EncodeText([]byte("hello world\n"))
	want := []byte(`hello world\n`)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEncodeTextHexEscape(t *testing.T) {
	got := EncodeText([]byte{1, 127})
	want := []byte(`\x01\x7f`)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDecodeTextAcceptsUpperAndLowerHex(t *testing.T) {
	lower, err := DecodeText([]byte(`\x1f`))
	if err != nil {
		t.Fatal(err)
	}
	upper, err := DecodeText([]byte(`\x1F`))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(lower, upper) || lower[0] != 0x1f {
		t.Fatalf("got lower=%v upper=%v", lower, upper)
	}
}

func TestDecodeTextUnknownEscape(t *testing.T) {
	if _, err := DecodeText([]byte(`\q`)); !errors.Is(err, ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}

func TestDecodeSubmissionInsert(t *testing.T) {
	e, err := DecodeSubmission([]byte("0:0:0:i:0:hello world"), EditorID(1))
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != (ID{0, 1}) || e.Parent != (ID{0, Server}) {
		t.Fatalf("bad ids: %+v", e)
	}
	if e.Op.Kind != ot.KindInsert || e.Op.Idx != 0 || string(e.Op.Text) != "hello world" {
		t.Fatalf("bad op: %+v", e.Op)
	}
}

func TestDecodeSubmissionDelete(t *testing.T) {
	e, err := DecodeSubmission([]byte("1:1:0:d:5:6"), EditorID(2))
	if err != nil {
		t.Fatal(err)
	}
	if e.Op.Kind != ot.KindDelete || e.Op.Idx != 5 || e.Op.NChars != 6 {
		t.Fatalf("bad op: %+v", e.Op)
	}
}

func TestDecodeSubmissionWrongFieldCount(t *testing.T) {
	if _, err := DecodeSubmission([]byte("0:0:0:i:0"), EditorID(1)); !errors.Is(err, ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}

func TestDecodeSubmissionUnknownOptype(t *testing.T) {
	if _, err := DecodeSubmission([]byte("0:0:0:z:0:x"), EditorID(1)); !errors.Is(err, ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}

func TestEncodeSubmissionRoundTrip(t *testing.T) {
	e := Edit{
		Op:        ot.Insert(6, []byte("cruel ")),
		ID:        ID{1, 1},
		Parent:    ID{1, 1},
		Submitter: 1,
	}
	line := EncodeSubmission(e)
	got, err := DecodeSubmission(line, e.Submitter)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || got.Parent != e.Parent {
		t.Fatalf("got %+v want %+v", got, e)
	}
	if got.Op.Idx != e.Op.Idx || string(got.Op.Text) != string(e.Op.Text) {
		t.Fatalf("op mismatch: %+v vs %+v", got.Op, e.Op)
	}
}

func TestSplitLine(t *testing.T) {
	typ, body, err := SplitLine([]byte("s:0:0:0:i:0:x"))
	if err != nil {
		t.Fatal(err)
	}
	if typ != "s" || string(body) != "0:0:0:i:0:x" {
		t.Fatalf("got typ=%q body=%q", typ, body)
	}
}

func TestSplitLineNoColon(t *testing.T) {
	if _, _, err := SplitLine([]byte("garbage")); !errors.Is(err, ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}
