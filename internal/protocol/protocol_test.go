package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	md := Metadata{Filename: "clip.mp4", ProducerID: "prod-1", ContentHash: "8b1a9953c4611296a827abf8c47804d7"}
	if err := w.WriteMetadata(md); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	for i, part := range []string{"He", "llo"} {
		if err := w.WriteChunk(Chunk{Sequence: uint32(i), Payload: []byte(part)}); err != nil {
			t.Fatalf("WriteChunk %d: %v", i, err)
		}
	}
	if err := w.Close(2); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(&buf)
	var assembled []byte
	var chunks []Chunk
	for {
		c, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, c)
		assembled = append(assembled, c.Payload...)
		if c.Last {
			break
		}
	}

	gotMeta, ok := r.Metadata()
	if !ok {
		t.Fatal("metadata not captured")
	}
	if gotMeta != md {
		t.Errorf("metadata = %+v, want %+v", gotMeta, md)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3 (incl. closing marker)", len(chunks))
	}
	last := chunks[2]
	if !last.Last || len(last.Payload) != 0 || last.Sequence != 2 {
		t.Errorf("closing marker = %+v, want last, empty, seq 2", last)
	}
	if string(assembled) != "Hello" {
		t.Errorf("assembled = %q, want Hello", assembled)
	}
	if HashBytes(assembled) != md.ContentHash {
		t.Errorf("hash of assembled bytes = %s, want %s", HashBytes(assembled), md.ContentHash)
	}
}

func TestDataBeforeMetadata(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteChunk(Chunk{Sequence: 0, Payload: []byte("rogue")}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	r := NewReader(&buf)
	_, err := r.Next()
	if !errors.Is(err, ErrDataBeforeMetadata) {
		t.Fatalf("Next = %v, want ErrDataBeforeMetadata", err)
	}
}

func TestDuplicateMetadataRejected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteMetadata(Metadata{Filename: "a"})
	w.WriteMetadata(Metadata{Filename: "b"})

	r := NewReader(&buf)
	if _, err := r.Next(); err == nil {
		t.Fatal("want error on duplicate metadata frame")
	}
}

func TestTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteMetadata(Metadata{Filename: "a"})
	w.WriteChunk(Chunk{Sequence: 0, Payload: []byte("data")})

	full := buf.Bytes()
	r := NewReader(bytes.NewReader(full[:len(full)-2]))
	if _, err := r.Next(); err == nil {
		t.Fatal("want error on truncated frame body")
	}
}

func TestCleanEOFAfterMetadataOnly(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).WriteMetadata(Metadata{Filename: "empty.bin"})

	r := NewReader(&buf)
	_, err := r.Next()
	if err != io.EOF {
		t.Fatalf("Next = %v, want io.EOF", err)
	}
	if _, ok := r.Metadata(); !ok {
		t.Fatal("metadata lost on EOF")
	}
}

func TestHashBytes(t *testing.T) {
	// Well-known digest: MD5("Hello").
	if got := HashBytes([]byte("Hello")); got != "8b1a9953c4611296a827abf8c47804d7" {
		t.Fatalf("HashBytes = %s", got)
	}
}
