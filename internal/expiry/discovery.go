package expiry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/metrics"
	"indian-stock-api/internal/types"
)

// ErrUnavailable is returned when every discovery attempt for a root failed
var ErrUnavailable = errors.New("expiry dates unavailable")

// Config controls discovery endpoints and retry cadence
type Config struct {
	NSEURL     string
	BSEURL     string
	CookieURL  string
	Attempts   int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns the production endpoints with 5 attempts 5s apart
func DefaultConfig() Config {
	return Config{
		NSEURL:     NSEOptionChainURL,
		BSEURL:     BSEExpiryURL,
		CookieURL:  NSECookieURL,
		Attempts:   5,
		RetryDelay: 5 * time.Second,
		Timeout:    api.DefaultTimeout,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.NSEURL == "" {
		c.NSEURL = def.NSEURL
	}
	if c.BSEURL == "" {
		c.BSEURL = def.BSEURL
	}
	if c.CookieURL == "" {
		c.CookieURL = def.CookieURL
	}
	if c.Attempts <= 0 {
		c.Attempts = def.Attempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
}

// Snapshot is the process-wide discovery state persisted in the global cache file
type Snapshot struct {
	Cookies     map[string]string   `json:"cookies"`
	ExpiryDates map[string][]string `json:"expiry_dates"`
}

// Sleeper waits between attempts; it must return early when ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Discoverer downloads expiry dates per root into a shared Table
type Discoverer struct {
	client   *api.Client
	fallback RawFetcher
	table    *Table
	cfg      Config
	now      func() time.Time
	sleep    Sleeper

	mu    sync.Mutex
	locks map[types.Root]*sync.Mutex
}

// Option configures a Discoverer
type Option func(*Discoverer)

// WithClock overrides the clock used for date filtering
func WithClock(now func() time.Time) Option {
	return func(d *Discoverer) {
		d.now = now
	}
}

// WithSleeper overrides the wait between attempts
func WithSleeper(sleep Sleeper) Option {
	return func(d *Discoverer) {
		d.sleep = sleep
	}
}

// WithFallback overrides the lower-level fetch path
func WithFallback(f RawFetcher) Option {
	return func(d *Discoverer) {
		d.fallback = f
	}
}

// NewDiscoverer creates a discoverer writing into table
func NewDiscoverer(client *api.Client, table *Table, cfg Config, opts ...Option) *Discoverer {
	cfg.applyDefaults()
	d := &Discoverer{
		client: client,
		table:  table,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepContext,
		locks:  make(map[types.Root]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.fallback == nil {
		d.fallback = NewCollectorFetcher(cfg.Timeout, client.Jar())
	}
	return d
}

// Table returns the table the discoverer writes into
func (d *Discoverer) Table() *Table {
	return d.table
}

func (d *Discoverer) lockFor(root types.Root) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[root]
	if !ok {
		l = &sync.Mutex{}
		d.locks[root] = l
	}
	return l
}

// Discover downloads, filters and stores the expiry dates of root. Each attempt
// tries the primary client then the fallback fetcher; attempts are separated by
// the configured delay. When every attempt fails the table entry stays absent,
// the root is marked unavailable and the error wraps ErrUnavailable.
func (d *Discoverer) Discover(ctx context.Context, root types.Root) ([]string, error) {
	l := d.lockFor(root)
	l.Lock()
	defer l.Unlock()

	return d.discover(ctx, root)
}

// discover runs the attempts of Discover; the caller holds the lock of root
func (d *Discoverer) discover(ctx context.Context, root types.Root) ([]string, error) {
	ctx, span := logger.StartSpan(ctx, "expiry.Discover")
	defer span.End()

	ep, err := d.endpointFor(root)
	if err != nil {
		return nil, err
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		attempts = attempt
		raw, source, err := d.attempt(ctx, root, ep)
		if err == nil {
			dates, ferr := FilterFutureDates(raw, d.now())
			if ferr == nil {
				d.table.Set(root, dates, Status{Attempts: attempt, Source: source, UpdatedAt: d.now()})
				metrics.DiscoveryAvailable.WithLabelValues(string(root)).Set(1)
				logger.Discovery(ctx, string(root), string(StateAvailable), attempt, "source", source, "dates", len(dates))
				return dates, nil
			}
			err = ferr
		}
		lastErr = err
		logger.Debug(ctx, "Expiry discovery attempt failed", "root", root, "attempt", attempt, "error", err)

		if attempt < d.cfg.Attempts {
			if serr := d.sleep(ctx, d.cfg.RetryDelay); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	d.table.markUnavailable(root, Status{Attempts: attempts, Err: lastErr, UpdatedAt: d.now()})
	metrics.DiscoveryAvailable.WithLabelValues(string(root)).Set(0)
	logger.Discovery(ctx, string(root), string(StateUnavailable), attempts, "error", lastErr)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, root, attempts, lastErr)
}

// attempt runs the primary call and, on failure, the fallback
func (d *Discoverer) attempt(ctx context.Context, root types.Root, ep endpoint) ([]string, string, error) {
	resp, err := d.client.Fetch(ctx, api.FetchRequest{
		Method:  http.MethodGet,
		URL:     ep.url,
		Params:  ep.params,
		Headers: ep.headers,
		Timeout: d.cfg.Timeout,
	})
	if err == nil {
		var dates []string
		dates, err = ep.extract(resp.Body)
		if err == nil {
			metrics.RecordDiscoveryAttempt(string(root), "primary", nil)
			return dates, ep.source, nil
		}
	}
	metrics.RecordDiscoveryAttempt(string(root), "primary", err)
	primaryErr := err

	body, err := d.fallback.FetchRaw(ctx, ep.fullURL(), ep.headers)
	if err == nil {
		var dates []string
		dates, err = ep.extract(body)
		if err == nil {
			metrics.RecordDiscoveryAttempt(string(root), "fallback", nil)
			return dates, ep.source + "-fallback", nil
		}
	}
	metrics.RecordDiscoveryAttempt(string(root), "fallback", err)
	return nil, "", fmt.Errorf("primary: %v; fallback: %w", primaryErr, err)
}

// Ensure returns the table dates of root, discovering them synchronously when
// absent. Concurrent callers on the same root share one discovery.
func (d *Discoverer) Ensure(ctx context.Context, root types.Root) ([]string, error) {
	if dates, ok := d.table.Get(root); ok {
		return dates, nil
	}

	l := d.lockFor(root)
	l.Lock()
	defer l.Unlock()

	if dates, ok := d.table.Get(root); ok {
		return dates, nil
	}
	return d.discover(ctx, root)
}

// DiscoverAll runs Discover for every root concurrently and waits for all of
// them. Individual failures are reported through the returned statuses.
func (d *Discoverer) DiscoverAll(ctx context.Context, roots []types.Root) map[types.Root]Status {
	if len(roots) == 0 {
		roots = types.Roots
	}

	runID := uuid.NewString()
	timer := logger.StartOperation(ctx, "expiry.DiscoverAll", "run_id", runID, "roots", len(roots))

	g, gctx := errgroup.WithContext(timer.GetContext())
	for _, root := range roots {
		root := root
		g.Go(func() error {
			// a failed root must not cancel its siblings
			if _, err := d.Discover(gctx, root); err != nil {
				logger.Warn(gctx, "Expiry discovery failed", "run_id", runID, "root", root, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[types.Root]Status, len(roots))
	unavailable := 0
	for _, root := range roots {
		st := d.table.Status(root)
		if st.State != StateAvailable {
			unavailable++
		}
		out[root] = st
	}
	timer.End("unavailable", unavailable)
	return out
}

// Snapshot captures the cookies and table for the global cache file
func (d *Discoverer) Snapshot() Snapshot {
	return Snapshot{
		Cookies:     d.Cookies(),
		ExpiryDates: d.table.Export(),
	}
}

// Restore loads a cached snapshot into the session jar and table
func (d *Discoverer) Restore(s Snapshot) {
	d.RestoreCookies(s.Cookies)
	d.table.Import(s.ExpiryDates, d.now())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
