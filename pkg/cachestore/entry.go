package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry is a stored response.
type Entry struct {
	// Method and URL identify the request the response was stored for.
	Method string `json:"method"`
	URL    string `json:"url"`

	// StatusCode is the HTTP status code of the stored response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Data is the response body
	Data []byte `json:"data"`

	// CachedAt is when the response was stored
	CachedAt time.Time `json:"cached_at"`
}

// Key returns the request identity the entry is stored under.
func (e *Entry) Key() string {
	return Key(e.Method, e.URL)
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Headers = e.Headers.Clone()
	c.Data = append([]byte(nil), e.Data...)
	return &c
}

// Response builds a fresh *http.Response for req from the stored entry.
// Each call returns an independent body reader.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Data)),
		ContentLength: int64(len(e.Data)),
		Request:       req,
	}
}
