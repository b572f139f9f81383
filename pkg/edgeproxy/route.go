// Package edgeproxy forwards GET requests to the rate-limited weather and
// geocoding API and rewrites the cache policy of the response so a CDN can
// absorb repeated lookups.
package edgeproxy

import (
	"fmt"
	"time"
)

// Route describes one proxied endpoint and the cache policy applied to its
// responses.
type Route struct {
	// Name labels metrics and logs (e.g. "weather").
	Name string

	// Path is the path the proxy is mounted at.
	Path string

	// UpstreamPath is appended to the upstream origin.
	UpstreamPath string

	// FreshTTL is the browser max-age.
	FreshTTL time.Duration

	// SharedTTL is the shared-cache (CDN) s-maxage.
	SharedTTL time.Duration

	// StaleWhileRevalidate is how long a shared cache may serve a stale
	// response while it refetches in the background.
	StaleWhileRevalidate time.Duration
}

// Predefined routes. Coordinates for a place name change far less often than
// the forecast, so geocode results are kept much longer.
var (
	WeatherRoute = Route{
		Name:                 "weather",
		Path:                 "/weather",
		UpstreamPath:         "/weather",
		FreshTTL:             0,
		SharedTTL:            15 * time.Minute,
		StaleWhileRevalidate: time.Hour,
	}

	GeocodeRoute = Route{
		Name:                 "geocode",
		Path:                 "/geocode",
		UpstreamPath:         "/geocode",
		FreshTTL:             0,
		SharedTTL:            24 * time.Hour,
		StaleWhileRevalidate: 7 * 24 * time.Hour,
	}
)

// Routes returns the routes served by the edge proxy.
func Routes() []Route {
	return []Route{WeatherRoute, GeocodeRoute}
}

// CacheControl renders the route policy as a Cache-Control value.
func (r Route) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, s-maxage=%d, stale-while-revalidate=%d",
		seconds(r.FreshTTL), seconds(r.SharedTTL), seconds(r.StaleWhileRevalidate))
}

// Validate checks that the route can be mounted.
func (r Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route name is required")
	}
	if len(r.Path) == 0 || r.Path[0] != '/' {
		return fmt.Errorf("route %s: path %q must start with /", r.Name, r.Path)
	}
	if len(r.UpstreamPath) == 0 || r.UpstreamPath[0] != '/' {
		return fmt.Errorf("route %s: upstream path %q must start with /", r.Name, r.UpstreamPath)
	}
	if r.FreshTTL < 0 || r.SharedTTL < 0 || r.StaleWhileRevalidate < 0 {
		return fmt.Errorf("route %s: negative TTL", r.Name)
	}
	return nil
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
