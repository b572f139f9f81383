package edgeproxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/fairway-edge/internal/testutil"
)

const weatherBody = `{"temp":14.2,"wind":{"speed":5.1,"deg":230},"name":"London"}`

func newTestProxy(t *testing.T, route Route, origin string) *Proxy {
	t.Helper()
	p, err := New(route, Config{Origin: origin, Quota: NewQuotaObserver(0)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func serve(p http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

// unreachableOrigin returns an origin on a port nothing listens on.
func unreachableOrigin(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return "http://" + addr
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		route   Route
		origin  string
		wantErr bool
	}{
		{name: "weather", route: WeatherRoute, origin: "https://upstream.example"},
		{name: "default origin", route: GeocodeRoute, origin: ""},
		{name: "trailing slash", route: WeatherRoute, origin: "https://upstream.example/"},
		{name: "bad scheme", route: WeatherRoute, origin: "ftp://upstream.example", wantErr: true},
		{name: "invalid route", route: Route{Name: "x", Path: "nope", UpstreamPath: "/x"}, origin: "https://upstream.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.route, Config{Origin: tt.origin})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProxy_UpstreamURL(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		route    Route
		rawQuery string
		expected string
	}{
		{
			name:     "weather with query",
			origin:   "https://upstream.example",
			route:    WeatherRoute,
			rawQuery: "lat=51.5&lon=-0.12&units=metric",
			expected: "https://upstream.example/weather?lat=51.5&lon=-0.12&units=metric",
		},
		{
			name:     "empty query has no question mark",
			origin:   "https://upstream.example",
			route:    GeocodeRoute,
			expected: "https://upstream.example/geocode",
		},
		{
			name:     "query copied verbatim",
			origin:   "https://upstream.example/",
			route:    GeocodeRoute,
			rawQuery: "q=St%20Andrews&q=Carnoustie&limit=",
			expected: "https://upstream.example/geocode?q=St%20Andrews&q=Carnoustie&limit=",
		},
		{
			name:     "default origin",
			route:    WeatherRoute,
			rawQuery: "lat=1",
			expected: DefaultUpstreamOrigin + "/weather?lat=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProxy(t, tt.route, tt.origin)
			if got := p.UpstreamURL(tt.rawQuery); got != tt.expected {
				t.Errorf("UpstreamURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProxy_WeatherPassthrough(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/weather", testutil.NewWeatherResponse(weatherBody))

	p := newTestProxy(t, WeatherRoute, mock.URL())
	rec := serve(p, http.MethodGet, "/weather?lat=51.5&lon=-0.12&units=metric")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != weatherBody {
		t.Errorf("body = %q, want %q", rec.Body.String(), weatherBody)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=0, s-maxage=900, stale-while-revalidate=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Header().Values("Set-Cookie"); len(got) != 0 {
		t.Errorf("Set-Cookie forwarded: %v", got)
	}
	if got := rec.Header().Get("Vary"); got != "Accept-Encoding" {
		t.Errorf("Vary = %q, want Accept-Encoding", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, upstream header not copied", got)
	}

	if mock.LastRequestPath() != "/weather" {
		t.Errorf("upstream path = %q", mock.LastRequestPath())
	}
	if mock.LastRawQuery() != "lat=51.5&lon=-0.12&units=metric" {
		t.Errorf("upstream query = %q", mock.LastRawQuery())
	}
}

func TestProxy_OnlyAcceptHeaderForwarded(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/geocode", testutil.NewWeatherResponse(`[]`))

	p := newTestProxy(t, GeocodeRoute, mock.URL())

	req := httptest.NewRequest(http.MethodGet, "/geocode?q=Troon", nil)
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("Accept", "text/html")
	p.ServeHTTP(httptest.NewRecorder(), req)

	h := mock.LastRequestHeader()
	if h.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want application/json", h.Get("Accept"))
	}
	for _, key := range []string{"Cookie", "Authorization", "X-Forwarded-For", "Accept-Encoding"} {
		if v := h.Get(key); v != "" {
			t.Errorf("%s forwarded upstream: %q", key, v)
		}
	}
}

func TestProxy_CacheControlOverridesUpstream(t *testing.T) {
	tests := []struct {
		name     string
		route    Route
		response testutil.MockResponse
		status   int
		policy   string
	}{
		{
			name:     "weather success",
			route:    WeatherRoute,
			response: testutil.NewWeatherResponse(weatherBody),
			status:   http.StatusOK,
			policy:   "public, max-age=0, s-maxage=900, stale-while-revalidate=3600",
		},
		{
			name:     "geocode success",
			route:    GeocodeRoute,
			response: testutil.NewWeatherResponse(`[{"lat":56.34,"lon":-2.8}]`),
			status:   http.StatusOK,
			policy:   "public, max-age=0, s-maxage=86400, stale-while-revalidate=604800",
		},
		{
			name:     "upstream error keeps route policy",
			route:    WeatherRoute,
			response: testutil.NewUpstreamErrorResponse(http.StatusInternalServerError),
			status:   http.StatusInternalServerError,
			policy:   "public, max-age=0, s-maxage=900, stale-while-revalidate=3600",
		},
		{
			name:     "upstream rate limit passes through",
			route:    GeocodeRoute,
			response: testutil.NewRateLimitResponse(),
			status:   http.StatusTooManyRequests,
			policy:   "public, max-age=0, s-maxage=86400, stale-while-revalidate=604800",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockUpstream()
			defer mock.Close()
			mock.SetResponse(tt.route.UpstreamPath, tt.response)

			p := newTestProxy(t, tt.route, mock.URL())
			rec := serve(p, http.MethodGet, tt.route.Path+"?q=x")

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Cache-Control"); got != tt.policy {
				t.Errorf("Cache-Control = %q, want %q", got, tt.policy)
			}
			if values := rec.Header().Values("Cache-Control"); len(values) != 1 {
				t.Errorf("Cache-Control values = %v, want exactly one", values)
			}
			if rec.Header().Get("Set-Cookie") != "" {
				t.Error("Set-Cookie forwarded")
			}
			if rec.Body.String() != tt.response.Body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.response.Body)
			}
		})
	}
}

func TestProxy_KeepsUpstreamVary(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/weather", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       weatherBody,
		Headers:    map[string]string{"Vary": "Accept-Language"},
	})

	p := newTestProxy(t, WeatherRoute, mock.URL())
	rec := serve(p, http.MethodGet, "/weather")

	if got := rec.Header().Values("Vary"); len(got) != 1 || got[0] != "Accept-Language" {
		t.Errorf("Vary = %v, want [Accept-Language]", got)
	}
}

func TestProxy_MethodNotAllowed(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	methods := []string{
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodPatch,
		http.MethodHead,
		http.MethodOptions,
	}

	for _, route := range Routes() {
		p := newTestProxy(t, route, mock.URL())
		for _, method := range methods {
			t.Run(route.Name+"/"+method, func(t *testing.T) {
				rec := serve(p, method, route.Path+"?lat=1")

				if rec.Code != http.StatusMethodNotAllowed {
					t.Errorf("status = %d, want 405", rec.Code)
				}
				if got := rec.Header().Get("Allow"); got != "GET" {
					t.Errorf("Allow = %q, want GET", got)
				}
				if got := rec.Header().Get("Cache-Control"); got != "no-store" {
					t.Errorf("Cache-Control = %q, want no-store", got)
				}
				if method != http.MethodHead && rec.Body.String() != `{"error":"Method Not Allowed"}` {
					t.Errorf("body = %q", rec.Body.String())
				}
			})
		}
	}

	if n := mock.GetRequestCount(); n != 0 {
		t.Errorf("upstream called %d times for rejected methods", n)
	}
}

func TestProxy_UpstreamUnreachable(t *testing.T) {
	for _, route := range Routes() {
		t.Run(route.Name, func(t *testing.T) {
			p := newTestProxy(t, route, unreachableOrigin(t))
			rec := serve(p, http.MethodGet, route.Path+"?q=Prestwick")

			if rec.Code != http.StatusBadGateway {
				t.Errorf("status = %d, want 502", rec.Code)
			}
			if rec.Body.String() != `{"error":"Upstream fetch failed"}` {
				t.Errorf("body = %q", rec.Body.String())
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q", got)
			}
		})
	}
}

func TestProxy_UpstreamTimeout(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/weather", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       weatherBody,
		Delay:      2 * time.Second,
	})

	p, err := New(WeatherRoute, Config{
		Origin:     mock.URL(),
		HTTPClient: NewHTTPClient(50 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rec := serve(p, http.MethodGet, "/weather?lat=1")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 on timeout", rec.Code)
	}
}

func TestProxy_ClientDisconnectCancelsUpstream(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler("/weather", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})

	p := newTestProxy(t, WeatherRoute, mock.URL())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/weather?lat=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		p.ServeHTTP(rec, req)
		close(done)
	}()

	<-started
	cancel()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}
	<-done

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestProxy_ObservesQuota(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/weather", testutil.NewWeatherResponse(weatherBody))

	quota := NewQuotaObserver(0)
	p, err := NewWeather(Config{Origin: mock.URL(), Quota: quota})
	if err != nil {
		t.Fatalf("NewWeather failed: %v", err)
	}

	rec := serve(p, http.MethodGet, "/weather")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	state, ok := quota.State("weather")
	if !ok {
		t.Fatal("quota state not recorded")
	}
	if state.Remaining != 950 {
		t.Errorf("Remaining = %d, want 950", state.Remaining)
	}
	// Quota headers are upstream headers like any other.
	if rec.Header().Get(HeaderQuotaRemaining) != "950" {
		t.Error("rate limit header not passed through")
	}
}

func TestProxy_ExhaustedQuotaDoesNotGate(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/geocode", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[]`,
		Headers: map[string]string{
			HeaderQuotaRemaining: "0",
			HeaderQuotaReset:     "60",
		},
	})

	p, err := NewGeocode(Config{Origin: mock.URL(), Quota: NewQuotaObserver(10)})
	if err != nil {
		t.Fatalf("NewGeocode failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if rec := serve(p, http.MethodGet, "/geocode?q=Turnberry"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	if n := mock.GetPathCount("/geocode"); n != 3 {
		t.Errorf("upstream hits = %d, want 3", n)
	}
}

func TestProxy_FetchError(t *testing.T) {
	p := newTestProxy(t, WeatherRoute, unreachableOrigin(t))
	req := httptest.NewRequest(http.MethodGet, "/weather", nil)

	_, err := p.fetch(req)
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("fetch error = %v, want *UpstreamError", err)
	}
	if upstreamErr.ErrorClass != ErrorClassUpstreamUnavailable {
		t.Errorf("ErrorClass = %q", upstreamErr.ErrorClass)
	}
	if !strings.HasPrefix(err.Error(), "upstream weather upstream_unavailable: ") {
		t.Errorf("Error() = %q", err.Error())
	}
	if strings.Contains(err.Error(), "status") {
		t.Errorf("Error() = %q, a transport failure has no status", err.Error())
	}
}

func TestProxy_LargeBodyStreamed(t *testing.T) {
	body := strings.Repeat(`{"hour":1,"temp":12.5},`, 4096)

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/weather", testutil.MockResponse{StatusCode: http.StatusOK, Body: body})

	srv := httptest.NewServer(newTestProxy(t, WeatherRoute, mock.URL()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/weather?lat=55.9&lon=-3.2")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != body {
		t.Errorf("body length = %d, want %d", len(got), len(body))
	}
}
