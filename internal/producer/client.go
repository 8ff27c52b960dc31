package producer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/protocol"
)

// ClientOptions configures an upload client.
type ClientOptions struct {
	ServerURL      string
	ProducerID     string
	AuthToken      string // optional, sent as a bearer token when set
	ChunkSize      int
	MaxAttempts    int // whole-upload retries on queue-full
	InitialBackoff time.Duration
	Log            zerolog.Logger
}

// Client streams files to the ingestion server.
type Client struct {
	opts ClientOptions
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates an upload client.
func NewClient(opts ClientOptions) *Client {
	return &Client{
		opts: opts,
		http: &http.Client{},
		log:  opts.Log.With().Str("component", "uploader").Str("producer", opts.ProducerID).Logger(),
	}
}

// WaitReady polls the server's health endpoint until it answers or the
// context expires. A timeout here is a local failure, not a queue-full
// condition.
func (c *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.ServerURL+"/api/v1/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Upload streams one file. Queue-full responses are retried with
// exponential backoff up to MaxAttempts; any other outcome is returned as
// is. The returned Result reports terminal rejections with Success=false.
func (c *Client) Upload(ctx context.Context, path string) (protocol.Result, error) {
	hash, size, err := fileMD5(path)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("hash %s: %w", path, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0

	var res protocol.Result
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		res, err = c.tryUpload(ctx, path, hash)
		if err != nil {
			return protocol.Result{}, err
		}
		if !res.QueueFull {
			if res.Success {
				c.log.Info().
					Str("file", filepath.Base(path)).
					Int64("bytes", size).
					Str("job_id", res.VideoID).
					Int("attempt", attempt).
					Msg("upload accepted")
			}
			return res, nil
		}
		if attempt < c.opts.MaxAttempts {
			delay := bo.NextBackOff()
			c.log.Info().
				Str("file", filepath.Base(path)).
				Dur("backoff", delay).
				Int("attempt", attempt).
				Msg("queue full, backing off")
			select {
			case <-ctx.Done():
				return protocol.Result{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return res, fmt.Errorf("queue full after %d attempts", c.opts.MaxAttempts)
}

// tryUpload performs a single streaming POST. The file is read chunk by
// chunk into the request body through a pipe, so a slow transport pauses
// the disk read instead of buffering the whole file.
func (c *Client) tryUpload(ctx context.Context, path, hash string) (protocol.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return protocol.Result{}, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(c.streamFile(pw, f, filepath.Base(path), hash))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ServerURL+"/api/v1/upload", pr)
	if err != nil {
		return protocol.Result{}, err
	}
	req.Header.Set("Content-Type", protocol.ContentType)
	if c.opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	defer resp.Body.Close()

	var res protocol.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return protocol.Result{}, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return res, nil
}

func (c *Client) streamFile(w io.Writer, f *os.File, filename, hash string) error {
	fw := protocol.NewWriter(w)
	if err := fw.WriteMetadata(protocol.Metadata{
		Filename:    filename,
		ProducerID:  c.opts.ProducerID,
		ContentHash: hash,
	}); err != nil {
		return err
	}

	buf := make([]byte, c.opts.ChunkSize)
	var seq uint32
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if werr := fw.WriteChunk(protocol.Chunk{Sequence: seq, Payload: buf[:n]}); werr != nil {
				return werr
			}
			seq++
		}
		if err == io.EOF {
			return fw.Close(seq)
		}
		if err != nil {
			return err
		}
	}
}

// fileMD5 returns the hex digest and size of the file at path.
func fileMD5(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
