// Package timesync provides wall-clock sources for the TimeSync peripheral.
package timesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrBadResponse is returned when the time API answers with something that
// cannot be parsed as a time.
var ErrBadResponse = errors.New("bad time api response")

// Source returns the current wall-clock time.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// SystemSource reads the host clock.
type SystemSource struct {
	Clock func() time.Time
}

// Now returns the host time.
func (s SystemSource) Now(_ context.Context) (time.Time, error) {
	if s.Clock != nil {
		return s.Clock(), nil
	}
	return time.Now(), nil
}

// HTTPOptions configure an HTTPSource.
type HTTPOptions struct {
	URL        string
	Timeout    time.Duration
	MaxRetries uint64
	RetryDelay time.Duration
	// BreakerFailures opens the breaker after this many consecutive failed
	// refreshes.
	BreakerFailures uint32
	// BreakerOpen is how long the breaker stays open.
	BreakerOpen time.Duration
	Client      *http.Client
}

// HTTPSource queries a world-time API returning
// {"datetime": RFC3339, "unixtime": seconds}. Attempts are retried with
// exponential backoff; repeated failed refreshes trip a circuit breaker so
// an unreachable API is not hammered.
type HTTPSource struct {
	opts   HTTPOptions
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewHTTPSource creates a source for opts.URL.
func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 3
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = 10 * time.Minute
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	failures := opts.BreakerFailures
	return &HTTPSource{
		opts:   opts,
		client: client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "time-api",
			Timeout: opts.BreakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
		}),
	}
}

// BreakerState reports the circuit breaker state.
func (s *HTTPSource) BreakerState() gobreaker.State {
	return s.cb.State()
}

// Now fetches the time, retrying transient failures.
func (s *HTTPSource) Now(ctx context.Context) (time.Time, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.fetchWithRetry(ctx)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("time refresh: %w", err)
	}
	return res.(time.Time), nil
}

func (s *HTTPSource) fetchWithRetry(ctx context.Context) (time.Time, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryDelay
	bo.MaxInterval = 4 * s.opts.RetryDelay
	bo.MaxElapsedTime = 0

	var t time.Time
	err := backoff.Retry(func() error {
		var err error
		t, err = s.fetch(ctx)
		if errors.Is(err, ErrBadResponse) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.opts.MaxRetries), ctx))
	return t, err
}

type worldTime struct {
	Datetime string `json:"datetime"`
	Unixtime int64  `json:"unixtime"`
}

func (s *HTTPSource) fetch(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return time.Time{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("get %s: %w", s.opts.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("get %s: status %d", s.opts.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return time.Time{}, fmt.Errorf("read body: %w", err)
	}
	return ParseWorldTime(body)
}

// ParseWorldTime extracts the time from an API response body. The datetime
// field keeps the API's UTC offset; unixtime is the fallback.
func ParseWorldTime(body []byte) (time.Time, error) {
	var wt worldTime
	if err := json.Unmarshal(body, &wt); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if wt.Datetime != "" {
		t, err := time.Parse(time.RFC3339Nano, wt.Datetime)
		if err == nil {
			return t, nil
		}
		if wt.Unixtime == 0 {
			return time.Time{}, fmt.Errorf("%w: datetime %q", ErrBadResponse, wt.Datetime)
		}
	}
	if wt.Unixtime > 0 {
		return time.Unix(wt.Unixtime, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: no time fields", ErrBadResponse)
}
