// Package protocol defines the upload stream carried in the body of
// POST /api/v1/upload. The stream is a sequence of length-prefixed frames:
// exactly one metadata frame first, then data frames in sequence order. A
// data frame flagged last with an empty payload is the closing marker; the
// transport's own EOF ends the stream as well. The server replies with a
// single JSON Result.
package protocol

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ContentType identifies an upload stream request body.
const ContentType = "application/x-mediasink-stream"

// Frame type bytes on the wire.
const (
	frameMetadata = 'M'
	frameData     = 'D'
)

// maxFrameSize bounds a single frame body. Producers chunk well below
// this; the limit exists so a malformed length prefix cannot force a huge
// allocation.
const maxFrameSize = 16 << 20

const flagLast = 0x01

// ErrDataBeforeMetadata is returned when a data frame arrives before the
// metadata frame.
var ErrDataBeforeMetadata = errors.New("data frame before metadata")

// Metadata is the first message of an upload stream.
type Metadata struct {
	Filename    string `json:"filename"`
	ProducerID  string `json:"producer_id"`
	ContentHash string `json:"content_hash,omitempty"` // hex MD5, optional
}

// Chunk is one data message.
type Chunk struct {
	Sequence uint32
	Last     bool
	Payload  []byte
}

// Result is the single server reply to an upload stream.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	VideoID   string `json:"video_id,omitempty"`
	QueueFull bool   `json:"queue_full,omitempty"`
}

// Writer encodes frames onto a stream.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for frame output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMetadata writes the metadata frame. Must be called exactly once,
// before any chunk.
func (fw *Writer) WriteMetadata(md Metadata) error {
	body, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return fw.writeFrame(frameMetadata, body)
}

// WriteChunk writes one data frame.
func (fw *Writer) WriteChunk(c Chunk) error {
	body := make([]byte, 5+len(c.Payload))
	binary.BigEndian.PutUint32(body[0:4], c.Sequence)
	if c.Last {
		body[4] = flagLast
	}
	copy(body[5:], c.Payload)
	return fw.writeFrame(frameData, body)
}

// Close writes the closing marker: a last-flagged chunk with no payload.
func (fw *Writer) Close(finalSequence uint32) error {
	return fw.WriteChunk(Chunk{Sequence: finalSequence, Last: true})
}

func (fw *Writer) writeFrame(kind byte, body []byte) error {
	var hdr [5]byte
	hdr[0] = kind
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(body)))
	if _, err := fw.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := fw.w.Write(body)
	return err
}

// Reader decodes frames from a stream and enforces metadata-first order.
type Reader struct {
	r       io.Reader
	gotMeta bool
	meta    Metadata
}

// NewReader wraps r for frame input.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Metadata returns the stream's metadata once it has been read.
func (fr *Reader) Metadata() (Metadata, bool) {
	return fr.meta, fr.gotMeta
}

// Next returns the next chunk. The metadata frame is consumed transparently
// when it leads the stream; a data frame arriving first yields
// ErrDataBeforeMetadata. io.EOF signals a clean end of stream.
func (fr *Reader) Next() (Chunk, error) {
	for {
		kind, body, err := fr.readFrame()
		if err != nil {
			return Chunk{}, err
		}
		switch kind {
		case frameMetadata:
			if fr.gotMeta {
				return Chunk{}, errors.New("duplicate metadata frame")
			}
			if err := json.Unmarshal(body, &fr.meta); err != nil {
				return Chunk{}, fmt.Errorf("parse metadata: %w", err)
			}
			fr.gotMeta = true
		case frameData:
			if !fr.gotMeta {
				return Chunk{}, ErrDataBeforeMetadata
			}
			if len(body) < 5 {
				return Chunk{}, fmt.Errorf("short data frame: %d bytes", len(body))
			}
			return Chunk{
				Sequence: binary.BigEndian.Uint32(body[0:4]),
				Last:     body[4]&flagLast != 0,
				Payload:  body[5:],
			}, nil
		default:
			return Chunk{}, fmt.Errorf("unknown frame type %q", kind)
		}
	}
}

func (fr *Reader) readFrame() (byte, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("truncated frame header: %w", err)
		}
		return 0, nil, err
	}
	size := binary.BigEndian.Uint32(hdr[1:])
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return 0, nil, fmt.Errorf("truncated frame body: %w", err)
	}
	return hdr[0], body, nil
}

// HashBytes returns the hex MD5 digest used for integrity checks and
// deduplication.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
