// Package log writes append-only event journals as hourly zstd JSONL files.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// segment is one open hourly file.
type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, file: f, zw: zw, buf: bufio.NewWriterSize(zw, 64*1024)}, nil
}

// close ends the zstd frame; a later reopen appends a new frame.
func (s *segment) close() error {
	flushErr := s.buf.Flush()
	zErr := s.zw.Close()
	fErr := s.file.Close()
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// HourlyJSONL appends one JSON document per line to <dir>/<prefix>-<UTC hour>.jsonl.zst.
// Every line is flushed through the encoder before Write returns.
type HourlyJSONL struct {
	dir    string
	prefix string
	now    func() time.Time

	mu  sync.Mutex
	cur *segment
}

func NewHourlyJSONL(dir, prefix string) *HourlyJSONL {
	return &HourlyJSONL{dir: dir, prefix: prefix, now: time.Now}
}

func (h *HourlyJSONL) Path(hour time.Time) string {
	return filepath.Join(h.dir, fmt.Sprintf("%s-%s.jsonl.zst", h.prefix, hour.UTC().Format(hourLayout)))
}

func (h *HourlyJSONL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	at := h.now()
	if hour := at.UTC().Format(hourLayout); h.cur == nil || h.cur.hour != hour {
		if err := h.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(h.Path(at), hour)
		if err != nil {
			return err
		}
		h.cur = seg
	}
	if _, err := h.cur.buf.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := h.cur.buf.Flush(); err != nil {
		return err
	}
	return h.cur.zw.Flush()
}

func (h *HourlyJSONL) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

func (h *HourlyJSONL) closeLocked() error {
	if h.cur == nil {
		return nil
	}
	err := h.cur.close()
	h.cur = nil
	return err
}

// ReadJSONL decodes every line of a zstd JSONL file into T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []T
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return out, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
