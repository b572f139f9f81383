package cachestore

import (
	"io"
	"net/http"
	"testing"
)

func TestEntry_Response(t *testing.T) {
	entry := &Entry{
		Method:     http.MethodGet,
		URL:        "https://fairway.example/styles.css",
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/css"}},
		Data:       []byte("body{}"),
	}

	req, _ := http.NewRequest(http.MethodGet, entry.URL, nil)

	// Two responses from the same entry must not share a body reader.
	for i := 0; i < 2; i++ {
		resp := entry.Response(req)
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if string(body) != "body{}" {
			t.Errorf("Body = %q, want %q", body, "body{}")
		}
		if resp.StatusCode != http.StatusOK || resp.Status != "200 OK" {
			t.Errorf("Status = %d %q", resp.StatusCode, resp.Status)
		}
		if resp.ContentLength != int64(len(entry.Data)) {
			t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(entry.Data))
		}
		if resp.Request != req {
			t.Error("Response.Request not set")
		}
		resp.Header.Set("X-Mutated", "1")
	}

	if entry.Headers.Get("X-Mutated") != "" {
		t.Error("Response headers must be a copy of the stored headers")
	}
}

func TestEntry_Clone(t *testing.T) {
	entry := &Entry{
		Headers: http.Header{"Etag": []string{`"a"`}},
		Data:    []byte("abc"),
	}

	clone := entry.Clone()
	clone.Data[0] = 'x'
	clone.Headers.Set("Etag", `"b"`)

	if string(entry.Data) != "abc" {
		t.Errorf("Clone shares data: %q", entry.Data)
	}
	if entry.Headers.Get("Etag") != `"a"` {
		t.Errorf("Clone shares headers: %q", entry.Headers.Get("Etag"))
	}

	var nilEntry *Entry
	if nilEntry.Clone() != nil {
		t.Error("Clone of nil entry should be nil")
	}
}
