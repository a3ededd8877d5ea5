package transport

import (
	"context"
	"errors"
	"io"
	"testing"
)

type fakeChunks struct {
	chunks [][]byte
	i      int
}

func (f *fakeChunks) ReadChunk(ctx context.Context) ([]byte, error) {
	if f.i >= len(f.chunks) {
		return nil, io.EOF
	}
	c := f.chunks[f.i]
	f.i++
	return c, nil
}

func TestLineReaderSingleChunkMultipleLines(t *testing.T) {
	lr := NewLineReader(&fakeChunks{chunks: [][]byte{[]byte("a:1\nb:2\n")}})
	first, err := lr.ReadLine(context.Background())
	if err != nil || string(first) != "a:1" {
		t.Fatalf("got %q err=%v", first, err)
	}
	second, err := lr.ReadLine(context.Background())
	if err != nil || string(second) != "b:2" {
		t.Fatalf("got %q err=%v", second, err)
	}
}

func TestLineReaderLineSpansChunks(t *testing.T) {
	lr := NewLineReader(&fakeChunks{chunks: [][]byte{[]byte("s:0:0"), []byte(":0:i:0:"), []byte("hi\n")}})
	line, err := lr.ReadLine(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(line) != "s:0:0:0:i:0:hi" {
		t.Fatalf("got %q", line)
	}
}

func TestLineReaderEOF(t *testing.T) {
	lr := NewLineReader(&fakeChunks{})
	if _, err := lr.ReadLine(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestLineReaderTooLong(t *testing.T) {
	big := make([]byte, MaxLineBytes+1)
	for i := range big {
		big[i] = 'x'
	}
	lr := NewLineReader(&fakeChunks{chunks: [][]byte{big, []byte("\n")}})
	if _, err := lr.ReadLine(context.Background()); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
}
