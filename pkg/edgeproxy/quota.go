package edgeproxy

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fairway-edge/pkg/logging"
)

// Upstream rate limit headers.
const (
	HeaderQuotaRemaining = "X-RateLimit-Remaining"
	HeaderQuotaReset     = "X-RateLimit-Reset"
)

// DefaultQuotaWarning is the remaining budget below which a warning is logged.
const DefaultQuotaWarning = 50

// QuotaState is the upstream rate limit budget as last reported for a route.
type QuotaState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// TimeUntilReset returns the duration until the window resets, or 0 if it
// already has.
func (s QuotaState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// QuotaObserver records the upstream rate limit headers. It never blocks or
// delays a request; it only exports the budget and warns when it runs low.
type QuotaObserver struct {
	warnBelow int
	logger    zerolog.Logger

	mu     sync.RWMutex
	states map[string]QuotaState
}

// NewQuotaObserver creates an observer warning below warnBelow remaining
// requests (DefaultQuotaWarning if <= 0).
func NewQuotaObserver(warnBelow int) *QuotaObserver {
	if warnBelow <= 0 {
		warnBelow = DefaultQuotaWarning
	}
	return &QuotaObserver{
		warnBelow: warnBelow,
		logger:    logging.NewLogger("upstream-quota"),
		states:    make(map[string]QuotaState),
	}
}

// Observe parses the rate limit headers of an upstream response for route.
// Responses without X-RateLimit-Remaining are ignored.
func (q *QuotaObserver) Observe(route string, headers http.Header) error {
	remainStr := headers.Get(HeaderQuotaRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderQuotaRemaining, err)
	}

	resetStr := headers.Get(HeaderQuotaReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderQuotaReset)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderQuotaReset, err)
	}

	now := time.Now()
	state := QuotaState{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}

	q.mu.Lock()
	q.states[route] = state
	q.mu.Unlock()

	upstreamQuotaRemaining.WithLabelValues(route).Set(float64(remain))

	if remain < q.warnBelow {
		upstreamQuotaLowTotal.WithLabelValues(route).Inc()
		q.logger.Warn().
			Str("route", route).
			Int("quota_remaining", remain).
			Time("reset_at", state.ResetAt).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("Upstream quota running low")
		return nil
	}

	q.logger.Debug().
		Str("route", route).
		Int("quota_remaining", remain).
		Msg("Upstream quota updated")
	return nil
}

// State returns the last observed state for route.
func (q *QuotaObserver) State(route string) (QuotaState, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s, ok := q.states[route]
	return s, ok
}
