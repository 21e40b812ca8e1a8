package httpcall

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// Response is the outcome of a completed exchange.  When the request asked
// for a stream, Body is backed by the live connection and must be closed;
// otherwise the body has already been read into memory.
type Response struct {
	StatusCode int
	Header     http.Header
	URL        *url.URL // final URL after redirects

	stream   io.ReadCloser
	buffered []byte
}

// IsStream reports whether the body is a live stream.
func (r *Response) IsStream() bool { return r.stream != nil }

// Body returns the body as a reader.  For a streamed response the caller
// takes ownership of the stream and must close it.
func (r *Response) Body() io.ReadCloser {
	if r.stream != nil {
		return r.stream
	}
	return io.NopCloser(bytes.NewReader(r.buffered))
}

// Bytes returns the whole body, reading and closing the stream if needed.
func (r *Response) Bytes() ([]byte, error) {
	if r.stream == nil {
		return r.buffered, nil
	}
	defer r.stream.Close()
	return io.ReadAll(r.stream)
}

// String returns the body decoded as UTF-8 text.
func (r *Response) String() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

// Close releases the connection backing a streamed body.  It is safe to
// call more than once.
func (r *Response) Close() error {
	if r.stream == nil {
		return nil
	}
	return r.stream.Close()
}

// IsSuccessful reports a status in the 200..399 range.
func (r *Response) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 399
}

// streamBody releases the request context once the body is closed.
type streamBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
	err     error
}

func (s *streamBody) Close() error {
	s.once.Do(func() {
		s.err = s.ReadCloser.Close()
		s.release()
	})
	return s.err
}
