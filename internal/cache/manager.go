package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/boda/internal/config"
	"github.com/dmitrijs2005/boda/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotIntercepted is returned by Handle for requests that go straight
	// to the network.
	ErrNotIntercepted = errors.New("request not intercepted")
	// ErrNotInstalled is returned by Activate before a successful Install.
	ErrNotInstalled = errors.New("cache not installed")
)

const installConcurrency = 4

var tracer = otel.Tracer("github.com/dmitrijs2005/boda/internal/cache")

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".avif": true, ".svg": true, ".ico": true,
}

// Manager owns the cache for the current version.
type Manager struct {
	storage Storage
	fetcher *Fetcher
	logger  logging.Logger
	now     func() time.Time

	origin       *url.URL
	name         string
	manifest     []string
	allowedHosts map[string]bool
	bypass       []string
	offlineKey   string
	imageKey     string

	mu        sync.RWMutex
	cache     Cache
	installed bool
	ready     atomic.Bool

	group singleflight.Group
	wg    sync.WaitGroup
	proxy *httputil.ReverseProxy
}

// NewManager builds a manager from cfg. Nothing is fetched until Install.
func NewManager(cfg *config.Config, storage Storage, fetcher *Fetcher, l logging.Logger) (*Manager, error) {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin url: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin url %q", cfg.OriginURL)
	}

	m := &Manager{
		storage:      storage,
		fetcher:      fetcher,
		logger:       l.With("module", "cache", "cache", cfg.CacheName()),
		now:          time.Now,
		origin:       origin,
		name:         cfg.CacheName(),
		allowedHosts: map[string]bool{origin.Host: true},
		bypass:       cfg.BypassPatterns,
	}
	for _, h := range cfg.AllowedHosts {
		m.allowedHosts[h] = true
	}
	for _, entry := range cfg.Manifest {
		key, err := m.resolve(entry)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry, err)
		}
		m.manifest = append(m.manifest, key)
	}
	if m.offlineKey, err = m.resolve(cfg.OfflinePage); err != nil {
		return nil, err
	}
	if m.imageKey, err = m.resolve(cfg.PlaceholderImage); err != nil {
		return nil, err
	}

	m.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target, _ := url.Parse(m.target(pr.In))
			pr.Out.URL = target
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			m.logger.Warn(r.Context(), "passthrough failed", "url", m.target(r), "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return m, nil
}

// resolve turns a manifest entry or path into a canonical absolute key.
func (m *Manager) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return m.origin.ResolveReference(u).String(), nil
}

// target is the absolute URL a request refers to. Absolute-form requests
// (forward proxy) keep their URL, everything else is relative to the origin.
func (m *Manager) target(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	return m.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery}).String()
}

func (m *Manager) CacheName() string { return m.name }

// Ready reports whether the cache is installed and activated.
func (m *Manager) Ready() bool { return m.ready.Load() }

// Wait blocks until background refreshes have finished.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) current() Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache
}

// Install opens the cache for the current version and stores every
// manifest entry. Entries that fail are reported together; those that
// succeeded stay cached.
func (m *Manager) Install(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cache.install")
	defer span.End()

	m.logger.Info(ctx, "installing")

	c, err := m.storage.Open(ctx, m.name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("open cache %s: %w", m.name, err)
	}

	var (
		mu     sync.Mutex
		errs   error
		stored int
	)
	g := new(errgroup.Group)
	g.SetLimit(installConcurrency)
	for _, key := range m.manifest {
		g.Go(func() error {
			err := m.precache(ctx, c, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				stored++
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.cache = c
	m.installed = errs == nil
	m.mu.Unlock()

	span.SetAttributes(attribute.Int("cache.stored", stored), attribute.Int("cache.manifest", len(m.manifest)))
	if errs != nil {
		span.RecordError(errs)
		m.logger.Error(ctx, "install failed", "stored", stored, "failed", len(multierr.Errors(errs)), "error", errs)
		return fmt.Errorf("install %s: %w", m.name, errs)
	}

	m.logger.Info(ctx, "precached app shell", "assets", stored)
	return nil
}

func (m *Manager) precache(ctx context.Context, c Cache, key string) error {
	snap, err := m.fetcher.Fetch(ctx, key, nil)
	if err != nil {
		return err
	}
	if !snap.OK() {
		return fmt.Errorf("fetch %s: status %d", key, snap.Status)
	}
	if err := c.Put(ctx, snap); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Activate deletes every cache except the current one and starts
// intercepting requests.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.RLock()
	installed := m.installed
	m.mu.RUnlock()
	if !installed {
		return ErrNotInstalled
	}

	names, err := m.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == m.name {
			continue
		}
		m.logger.Info(ctx, "deleting old cache", "old", name)
		if _, err := m.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
	}

	m.ready.Store(true)
	m.logger.Info(ctx, "activated")
	return nil
}

// Intercepts reports whether r is served through the cache.
func (m *Manager) Intercepts(r *http.Request) bool {
	if r.Method != http.MethodGet || !m.Ready() {
		return false
	}
	target := m.target(r)
	for _, p := range m.bypass {
		if strings.Contains(target, p) {
			return false
		}
	}
	return m.knownHost(target)
}

// knownHost reports whether target points at the origin or an allow-listed
// host. Nothing else is ever contacted on behalf of a client.
func (m *Manager) knownHost(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return m.allowedHosts[u.Host]
}

// Handle serves an intercepted request: the cached snapshot when present
// (refreshed in the background), else the network, else an offline
// fallback.
func (m *Manager) Handle(ctx context.Context, r *http.Request) (*Snapshot, error) {
	if !m.Intercepts(r) {
		return nil, ErrNotIntercepted
	}
	c := m.current()
	key := m.target(r)

	snap, err := c.Get(ctx, key)
	switch {
	case err == nil:
		m.revalidate(ctx, c, key, r.Header)
		return snap, nil
	case !errors.Is(err, ErrCacheMiss):
		m.logger.Warn(ctx, "cache read failed", "key", key, "error", err)
	}

	snap, err = m.fetcher.Fetch(ctx, key, r.Header)
	if err == nil {
		if m.cacheable(snap) {
			if err := c.Put(ctx, snap); err != nil {
				m.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
			}
		}
		return snap, nil
	}

	m.logger.Warn(ctx, "fetch failed", "key", key, "error", err)
	return m.fallback(ctx, c, r, key), nil
}

// cacheable is a 200 from the origin itself.
func (m *Manager) cacheable(s *Snapshot) bool {
	if s.Status != http.StatusOK {
		return false
	}
	u, err := url.Parse(s.Key)
	return err == nil && u.Host == m.origin.Host
}

func (m *Manager) fallback(ctx context.Context, c Cache, r *http.Request, key string) *Snapshot {
	var fallbackKey string
	switch {
	case strings.Contains(r.Header.Get("Accept"), "text/html"):
		fallbackKey = m.offlineKey
	case isImageRequest(r):
		fallbackKey = m.imageKey
	}

	if fallbackKey != "" {
		snap, err := c.Get(ctx, fallbackKey)
		if err == nil {
			return snap
		}
		m.logger.Warn(ctx, "offline fallback not cached", "fallback", fallbackKey, "error", err)
	}
	return offlineSnapshot(key, m.now())
}

func isImageRequest(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Dest") == "image" {
		return true
	}
	if strings.HasPrefix(r.Header.Get("Accept"), "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(r.URL.Path))]
}

// revalidate refetches key in the background and overwrites the cached
// copy on a 200. Concurrent refreshes of one key share a single fetch.
func (m *Manager) revalidate(ctx context.Context, c Cache, key string, header http.Header) {
	header = header.Clone()
	bg := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, err, _ := m.group.Do(key, func() (any, error) {
			snap, err := m.fetcher.Fetch(bg, key, header)
			if err != nil {
				return nil, err
			}
			if snap.Status != http.StatusOK {
				return nil, nil
			}
			return nil, c.Put(bg, snap)
		})
		if err != nil {
			m.logger.Debug(bg, "background refresh failed", "key", key, "error", err)
		}
	}()
}

// Refresh refetches every cached key and overwrites it on a 200.
func (m *Manager) Refresh(ctx context.Context) (updated, failed int, err error) {
	ctx, span := tracer.Start(ctx, "cache.refresh")
	defer span.End()

	c := m.current()
	if c == nil {
		return 0, 0, ErrNotInstalled
	}

	keys, err := c.Keys(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list cached keys: %w", err)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(installConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			ok := m.refreshKey(ctx, c, key)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				updated++
			} else {
				failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("cache.updated", updated), attribute.Int("cache.failed", failed))
	return updated, failed, nil
}

func (m *Manager) refreshKey(ctx context.Context, c Cache, key string) bool {
	snap, err := m.fetcher.Fetch(ctx, key, nil)
	if err != nil {
		m.logger.Debug(ctx, "refresh failed", "key", key, "error", err)
		return false
	}
	if snap.Status != http.StatusOK {
		return false
	}
	if err := c.Put(ctx, snap); err != nil {
		m.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
		return false
	}
	return true
}

// ServeHTTP serves intercepted requests from Handle and proxies the rest of
// the origin and allow-listed traffic to the network. Requests for any
// other host are refused.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := m.Handle(r.Context(), r)
	if err != nil {
		if target := m.target(r); !m.knownHost(target) {
			m.logger.Warn(r.Context(), "refusing request for foreign host", "method", r.Method, "url", target)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		m.proxy.ServeHTTP(w, r)
		return
	}
	if snap.NotModified(r) {
		w.Header().Set("ETag", snap.ETag())
		w.WriteHeader(http.StatusNotModified)
		return
	}
	snap.Write(w)
}
