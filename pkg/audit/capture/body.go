package capture

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
)

// bodyReader tees what the handler reads from the request body into a
// bounded snapshot.
type bodyReader struct {
	rc io.ReadCloser

	mu       sync.Mutex
	buf      bytes.Buffer
	max      int
	eof      bool
	closed   bool
	finished bool
	err      error
}

func newBodyReader(rc io.ReadCloser, max int) *bodyReader {
	return &bodyReader{rc: rc, max: max}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	return b.read(p, false)
}

// read tees into the snapshot. Only errors the handler sees discard it; a
// failure while finishing keeps what was read so far.
func (b *bodyReader) read(p []byte, finishing bool) (int, error) {
	n, err := b.rc.Read(p)

	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.keep(p[:n])
	}
	switch {
	case err == io.EOF:
		b.eof = true
	case err != nil && !finishing && b.err == nil:
		b.err = err
	}
	return n, err
}

// finishReader reads the rest of the body on behalf of finish.
type finishReader struct {
	b *bodyReader
}

func (f finishReader) Read(p []byte) (int, error) {
	return f.b.read(p, true)
}

// Close completes the snapshot before closing, so that a handler closing
// the body unread still leaves it in the record.
func (b *bodyReader) Close() error {
	b.finish()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.rc.Close()
}

func (b *bodyReader) keep(p []byte) {
	if b.max <= 0 {
		b.buf.Write(p)
		return
	}
	if remaining := b.max - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			p = p[:remaining]
		}
		b.buf.Write(p)
	}
}

// finish reads the part of the body the handler left unread, up to the
// snapshot limit.
func (b *bodyReader) finish() {
	b.mu.Lock()
	if b.eof || b.closed || b.finished || b.err != nil {
		b.mu.Unlock()
		return
	}
	b.finished = true
	remaining := b.max - b.buf.Len()
	b.mu.Unlock()

	var r io.Reader = finishReader{b}
	if b.max > 0 {
		if remaining <= 0 {
			return
		}
		r = io.LimitReader(r, int64(remaining))
	}
	_, _ = io.Copy(io.Discard, r)
}

// snapshot returns the captured body, or nil when it is empty or the handler
// failed to read it.
func (b *bodyReader) snapshot() *string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil || b.buf.Len() == 0 {
		return nil
	}
	s := b.buf.String()
	return &s
}

// responseWriter records the status code and a bounded copy of the response
// body while passing everything through to the client.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
	max         int
}

func newResponseWriter(w http.ResponseWriter, max int) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK, max: max}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.keep(p)
	return rw.ResponseWriter.Write(p)
}

func (rw *responseWriter) keep(p []byte) {
	if rw.max <= 0 {
		rw.body.Write(p)
		return
	}
	if remaining := rw.max - rw.body.Len(); remaining > 0 {
		if len(p) > remaining {
			p = p[:remaining]
		}
		rw.body.Write(p)
	}
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		if !rw.wroteHeader {
			rw.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Response returns what has been written so far.
func (rw *responseWriter) Response() Response {
	return Response{Status: rw.status, Body: rw.body.Bytes()}
}
