package framing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"editormcp/internal/domain"
)

// DefaultMaxLineBytes bounds a single inbound document.
const DefaultMaxLineBytes = 16 * 1024 * 1024

var (
	ErrEmbeddedNewline = errors.New("line contains a newline")
	// ErrLineTooLong is returned for a line over the reader limit. The
	// line has been consumed and the next read continues after it.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

type readResult struct {
	line string
	err  error
}

// LineReader yields newline-delimited documents from a byte stream. A
// single pump goroutine owns the stream, so a reader can outlive the
// consumer that started it and hand unread lines to the next one.
type LineReader struct {
	reader  *bufio.Reader
	closer  io.Closer
	maxLine int

	pumpOnce  sync.Once
	results   chan readResult
	closed    chan struct{}
	closeOnce sync.Once
	eof       atomic.Bool
	err       error

	mu      sync.Mutex
	pending *readResult
}

func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderLimit(r, DefaultMaxLineBytes)
}

// NewLineReaderLimit returns a reader that rejects lines longer than
// maxLine bytes, excluding the newline.
func NewLineReaderLimit(r io.Reader, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	lr := &LineReader{
		reader:  bufio.NewReaderSize(r, 64*1024),
		maxLine: maxLine,
		results: make(chan readResult),
		closed:  make(chan struct{}),
	}
	if closer, ok := r.(io.Closer); ok {
		lr.closer = closer
	}
	return lr
}

// ReadLine blocks until a full non-empty line is available. It returns
// io.EOF at end of stream; a final unterminated line is returned first.
func (r *LineReader) ReadLine() (string, error) {
	return r.ReadLineContext(context.Background())
}

// ReadLineContext is ReadLine bounded by ctx. A line that arrives as ctx
// is cancelled is kept for the next call.
func (r *LineReader) ReadLineContext(ctx context.Context) (string, error) {
	if r.isClosed() {
		return "", domain.ErrTransportClosed
	}
	if res, ok := r.takePending(); ok {
		return res.line, res.err
	}
	r.pumpOnce.Do(func() { go r.pump() })
	if err := ctx.Err(); err != nil {
		return "", err
	}

	select {
	case res, ok := <-r.results:
		if !ok {
			if r.isClosed() {
				return "", domain.ErrTransportClosed
			}
			return "", r.err
		}
		if ctx.Err() != nil {
			r.putPending(res)
			return "", ctx.Err()
		}
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.closed:
		return "", domain.ErrTransportClosed
	}
}

func (r *LineReader) takePending() (readResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return readResult{}, false
	}
	res := *r.pending
	r.pending = nil
	return res, true
}

func (r *LineReader) putPending(res readResult) {
	r.mu.Lock()
	r.pending = &res
	r.mu.Unlock()
}

func (r *LineReader) pump() {
	for {
		line, err := r.next()
		if err != nil && !errors.Is(err, ErrLineTooLong) {
			r.err = err
			close(r.results)
			return
		}
		select {
		case r.results <- readResult{line: line, err: err}:
		case <-r.closed:
			return
		}
	}
}

// next skips blank lines and trims a trailing carriage return.
func (r *LineReader) next() (string, error) {
	for {
		line, err := r.readRaw()
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line, nil
	}
}

// readRaw reads one line in buffer-sized fragments. Past maxLine the rest
// of the line is discarded without being retained.
func (r *LineReader) readRaw() (string, error) {
	if r.eof.Load() {
		return "", io.EOF
	}
	var line []byte
	oversized := false
	for {
		frag, err := r.reader.ReadSlice('\n')
		if !oversized {
			size := len(line) + len(frag)
			if err == nil {
				size--
			}
			if size > r.maxLine {
				oversized = true
				line = nil
			} else {
				line = append(line, frag...)
			}
		}
		switch {
		case err == nil:
			if oversized {
				return "", ErrLineTooLong
			}
			return string(line[:len(line)-1]), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			r.eof.Store(true)
			if oversized {
				return "", ErrLineTooLong
			}
			if len(line) > 0 {
				return string(line), nil
			}
			return "", io.EOF
		default:
			if r.isClosed() {
				return "", domain.ErrTransportClosed
			}
			return "", err
		}
	}
}

func (r *LineReader) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// MaxLineBytes is the longest line the reader accepts.
func (r *LineReader) MaxLineBytes() int {
	return r.maxLine
}

// EndOfStream is a best-effort peek. ReadLine returning io.EOF is the
// authoritative signal.
func (r *LineReader) EndOfStream() bool {
	return r.isClosed() || r.eof.Load()
}

// Close marks the reader closed and closes the underlying stream when it
// is closable, which unblocks a pending read.
func (r *LineReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.closer != nil {
			err = r.closer.Close()
		}
	})
	return err
}

// LineWriter writes one document per line and flushes before returning.
type LineWriter struct {
	mu     sync.Mutex
	writer *bufio.Writer
	closed bool
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{writer: bufio.NewWriter(w)}
}

// WriteLine writes line followed by a single newline and flushes. It
// returns the number of bytes written including the newline.
func (w *LineWriter) WriteLine(line string) (int, error) {
	if strings.ContainsRune(line, '\n') {
		return 0, ErrEmbeddedNewline
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, domain.ErrTransportClosed
	}
	n, err := w.writer.WriteString(line)
	if err != nil {
		return n, err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return n, err
	}
	if err := w.writer.Flush(); err != nil {
		return n + 1, err
	}
	return n + 1, nil
}

// WriteJSON encodes v as a single line.
func (w *LineWriter) WriteJSON(v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode line: %w", err)
	}
	return w.WriteLine(string(payload))
}

// Close flushes pending output and rejects further writes. The underlying
// writer is left open.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.writer.Flush()
}
