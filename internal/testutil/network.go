package testutil

import (
	"errors"
	"net/http"
	"sync/atomic"
)

// ErrOffline is returned by Network while offline.
var ErrOffline = errors.New("network is offline")

// Network is an http.RoundTripper that can be switched offline and counts the
// round trips it was asked to make.
type Network struct {
	Base http.RoundTripper

	offline atomic.Bool
	calls   atomic.Int64
}

// NewNetwork wraps base (default http.DefaultTransport).
func NewNetwork(base http.RoundTripper) *Network {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Network{Base: base}
}

// SetOffline toggles simulated network failure.
func (n *Network) SetOffline(offline bool) {
	n.offline.Store(offline)
}

// Calls returns the number of round trips attempted.
func (n *Network) Calls() int {
	return int(n.calls.Load())
}

// RoundTrip implements http.RoundTripper.
func (n *Network) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	if n.offline.Load() {
		return nil, ErrOffline
	}
	return n.Base.RoundTrip(req)
}
