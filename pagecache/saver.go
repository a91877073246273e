package pagecache

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
)

// ResponseSaver is an http.ResponseWriter that records the response in HTTP/1.1 format.
// It optionally writes (tees) the response to an underlying http.ResponseWriter.
//
// Headers are kept apart from the underlying writer's headers until WriteHeader,
// so headers set on the underlying writer beforehand (e.g. Cache-Status) are not recorded.
type ResponseSaver struct {
	rw            http.ResponseWriter
	b             *bytes.Buffer
	header        http.Header
	status        int
	wroteHeaders  bool
	failed        bool
	onWriteHeader func(statusCode int, header http.Header)
}

func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{
		rw:     w,
		b:      &bytes.Buffer{},
		header: http.Header{},
	}
}

func (t *ResponseSaver) Header() http.Header {
	return t.header
}

func (t *ResponseSaver) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	t.wroteHeaders = true
	t.status = statusCode
	fmt.Fprintf(t.b, "HTTP/1.1 %d %s\r\n", statusCode, http.StatusText(statusCode))
	t.header.Write(t.b)
	t.b.WriteString("\r\n")
	if t.onWriteHeader != nil {
		t.onWriteHeader(statusCode, t.header)
	}
	if t.rw != nil {
		copyHeader(t.rw.Header(), t.header)
		t.rw.WriteHeader(statusCode)
	}
}

func (t *ResponseSaver) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	t.b.Write(b)
	if t.rw == nil {
		return len(b), nil
	}
	n, err := t.rw.Write(b)
	if err != nil {
		t.failed = true
	}
	return n, err
}

// OnWriteHeader registers f to be called with the final status and headers,
// before they are written to the underlying writer.
func (t *ResponseSaver) OnWriteHeader(f func(statusCode int, header http.Header)) {
	t.onWriteHeader = f
}

// finish writes the implicit 200 status if the handler wrote nothing,
// as net/http does when a handler returns.
func (t *ResponseSaver) finish() {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
}

// Failed reports whether writing to the underlying writer failed,
// in which case the recorded response may be incomplete.
func (t *ResponseSaver) Failed() bool {
	return t.failed
}

// Response returns the recorded response.
func (t *ResponseSaver) Response() []byte {
	return t.b.Bytes()
}

// StatusCode returns the status code of the response, or 0 if nothing was written.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}

// bytesToResponse converts a recorded response back to an http.Response.
func bytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
