package offline

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// hopHeaders are connection-level headers that never belong to a stored
// response.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Response is a fully buffered response snapshot. Values handed out by a
// Worker or a Cache must be treated as read-only; use Clone to get a copy
// that can be kept or modified.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{
		URL:    r.URL,
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   body,
	}
}

// ReadResponse buffers resp into a Response and closes its body.
func ReadResponse(url string, resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	StripHopHeaders(header)
	return &Response{URL: url, Status: resp.StatusCode, Header: header, Body: body}, nil
}

// Write sends r to w.
func (r *Response) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for key, values := range r.Header {
		dst[key] = append([]string(nil), values...)
	}
	StripHopHeaders(dst)
	dst.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("write body of %s: %w", r.URL, err)
	}
	return nil
}

// StripHopHeaders removes connection-level headers from h in place.
func StripHopHeaders(h http.Header) {
	for _, key := range hopHeaders {
		h.Del(key)
	}
}
