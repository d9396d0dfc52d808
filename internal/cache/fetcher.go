package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/sony/gobreaker"
)

// ErrAssetTooLarge is returned when a response body exceeds the limit.
var ErrAssetTooLarge = errors.New("asset too large")

// errAbandoned marks fetches cut short by the caller's context.
var errAbandoned = errors.New("fetch abandoned")

// forwarded request headers; everything else is dropped on fetch
var fetchHeaders = []string{"Accept", "Accept-Language", "User-Agent"}

// BreakerSettings controls the per-host circuit breakers.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Fetcher performs GET requests for the cache. Each host has its own
// circuit breaker: after ConsecutiveFailures transport errors in a row
// fetches to that host fail fast until OpenTimeout elapses.
type Fetcher struct {
	http     *http.Client
	maxBytes int64
	breaker  BreakerSettings
	logger   logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewFetcher(hc *http.Client, maxBytes int64, bs BreakerSettings, l logging.Logger) *Fetcher {
	if hc == nil {
		hc = &http.Client{}
	}
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	return &Fetcher{
		http:     hc,
		maxBytes: maxBytes,
		breaker:  bs,
		logger:   l.With("module", "fetcher"),
		now:      time.Now,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

func (f *Fetcher) breakerFor(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}

	threshold := f.breaker.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "origin-" + host,
		MaxRequests: 1,
		Timeout:     f.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn(context.Background(), "circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// neither an oversized body nor a caller hanging up says anything
		// about the host
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAssetTooLarge) || errors.Is(err, errAbandoned)
		},
	})
	f.breakers[host] = cb
	return cb
}

// Fetch GETs rawURL and captures the response. Any HTTP response, whatever
// its status, is returned as a snapshot; only transport errors, open
// breakers and oversized bodies are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, header http.Header) (*Snapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	res, err := f.breakerFor(u.Host).Execute(func() (interface{}, error) {
		return f.do(ctx, rawURL, header)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("fetch %s: host %s unavailable: %w", rawURL, u.Host, err)
		}
		return nil, err
	}
	return res.(*Snapshot), nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string, header http.Header) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for _, name := range fetchHeaders {
		if v := header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, f.fetchError(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	var body []byte
	if f.maxBytes > 0 {
		body, err = io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err == nil && int64(len(body)) > f.maxBytes {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrAssetTooLarge)
		}
	} else {
		body, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, f.fetchError(ctx, rawURL, fmt.Errorf("read body: %w", err))
	}

	return NewSnapshot(rawURL, resp.StatusCode, resp.Header, body, f.now()), nil
}

func (f *Fetcher) fetchError(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("fetch %s: %w: %w", rawURL, errAbandoned, err)
	}
	return fmt.Errorf("fetch %s: %w", rawURL, err)
}
