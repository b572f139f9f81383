package edgeproxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fairway-edge/pkg/logging"
)

// DefaultUpstreamOrigin is used when no origin is configured.
const DefaultUpstreamOrigin = "https://api.fairwayforecast.app"

// Headers never copied from the upstream response. Cache-Control is replaced
// by the route policy.
var droppedHeaders = []string{
	"Set-Cookie",
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Trailer",
}

// Config holds the settings shared by all routes.
type Config struct {
	// Origin is the upstream base URL without trailing slash.
	Origin string

	// HTTPClient performs the upstream fetch. Its Timeout is the only
	// timeout applied (default: NewHTTPClient(0)).
	HTTPClient *http.Client

	// Quota records upstream rate limit headers. Optional.
	Quota *QuotaObserver
}

// NewHTTPClient returns a client for upstream fetches. Transparent gzip is
// disabled so that only the Accept header reaches the upstream.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return nil
		},
	}
}

// Proxy is the http.Handler for one route.
type Proxy struct {
	route  Route
	origin string
	client *http.Client
	quota  *QuotaObserver
	logger zerolog.Logger
}

// New creates a proxy for route.
func New(route Route, cfg Config) (*Proxy, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}

	origin := strings.TrimRight(cfg.Origin, "/")
	if origin == "" {
		origin = DefaultUpstreamOrigin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse upstream origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream origin %q must be http or https", origin)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(0)
	}

	return &Proxy{
		route:  route,
		origin: origin,
		client: client,
		quota:  cfg.Quota,
		logger: logging.NewLogger("edge-proxy").With().Str("route", route.Name).Logger(),
	}, nil
}

// NewWeather creates the proxy for WeatherRoute.
func NewWeather(cfg Config) (*Proxy, error) {
	return New(WeatherRoute, cfg)
}

// NewGeocode creates the proxy for GeocodeRoute.
func NewGeocode(cfg Config) (*Proxy, error) {
	return New(GeocodeRoute, cfg)
}

// UpstreamURL builds the upstream URL for an incoming raw query. The query
// is copied verbatim.
func (p *Proxy) UpstreamURL(rawQuery string) string {
	target := p.origin + p.route.UpstreamPath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		proxyErrorsTotal.WithLabelValues(p.route.Name, string(ErrorClassClientMethod)).Inc()
		p.logger.Debug().
			Str("method", r.Method).
			Str("error_class", string(ErrorClassClientMethod)).
			Msg("Rejected non-GET request")
		w.Header().Set("Allow", http.MethodGet)
		p.writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	resp, err := p.fetch(r)
	if err != nil {
		proxyErrorsTotal.WithLabelValues(p.route.Name, string(ErrorClassUpstreamUnavailable)).Inc()
		event := p.logger.Error()
		if r.Context().Err() != nil {
			// Client disconnected; the upstream fetch was cancelled with it.
			event = p.logger.Debug()
		}
		event.Err(err).
			Str("error_class", string(ErrorClassUpstreamUnavailable)).
			Msg("Upstream fetch failed")
		p.writeError(w, http.StatusBadGateway, msgUpstreamFailed)
		return
	}
	defer resp.Body.Close()

	if p.quota != nil {
		if err := p.quota.Observe(p.route.Name, resp.Header); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to read upstream quota headers")
		}
	}

	if class := classify(resp, nil); class != "" {
		proxyErrorsTotal.WithLabelValues(p.route.Name, string(class)).Inc()
		p.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream returned error status")
	}

	p.copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	proxyRequestsTotal.WithLabelValues(p.route.Name, strconv.Itoa(resp.StatusCode)).Inc()

	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to copy upstream body")
	}
}

// fetch performs the single upstream attempt, bound to the inbound context.
func (p *Proxy) fetch(r *http.Request) (*http.Response, error) {
	target := p.UpstreamURL(r.URL.RawQuery)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, &UpstreamError{Route: p.route.Name, ErrorClass: ErrorClassUpstreamUnavailable, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	p.logger.Debug().Str("upstream_url", target).Msg("Fetching upstream")

	start := time.Now()
	resp, err := p.client.Do(req)
	proxyUpstreamDuration.WithLabelValues(p.route.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &UpstreamError{Route: p.route.Name, ErrorClass: classify(nil, err), Err: err}
	}

	p.logger.Debug().
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Upstream responded")
	return resp, nil
}

func (p *Proxy) copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
	for _, key := range droppedHeaders {
		dst.Del(key)
	}
	dst.Set("Cache-Control", p.route.CacheControl())
	if len(dst.Values("Vary")) == 0 {
		dst.Set("Vary", "Accept-Encoding")
	}
}

func (p *Proxy) writeError(w http.ResponseWriter, status int, msg string) {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		body = []byte(`{"error":"` + msg + `"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	proxyRequestsTotal.WithLabelValues(p.route.Name, strconv.Itoa(status)).Inc()

	if _, err := w.Write(body); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to write error response")
	}
}
