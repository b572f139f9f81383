package cachestore

import (
	"net/http"
	"net/url"
	"strings"
)

// Key builds the request identity "<METHOD> <absolute URL>". The URL fragment
// never takes part in the identity; the query string does.
//
// Example:
//
//	GET https://fairway.example/app.js?v=3
func Key(method, rawURL string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if u, err := url.Parse(rawURL); err == nil {
		u.Fragment = ""
		u.RawFragment = ""
		rawURL = u.String()
	}
	return method + " " + rawURL
}

// RequestKey returns the identity of req.
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return Key(req.Method, u.String())
}
