package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/cache"
	"indian-stock-api/internal/expiry"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/types"
)

// DefaultSnapshotKey is the key of the process-wide cache file
const DefaultSnapshotKey = "cache.json"

// Config controls registry initialization
type Config struct {
	Discovery   expiry.Config
	Roots       []types.Root
	SnapshotKey string
}

// Deps are the collaborators of the registry. Client is created from the
// discovery timeout when nil.
type Deps struct {
	Store             cache.Store
	Client            *api.Client
	DiscovererOptions []expiry.Option
	Clock             func() time.Time
}

// Registry is the shared state of one process: the expiry table, the
// session cookies and the equity token tables of each broker.
type Registry struct {
	Expiries *expiry.Table
	Cookies  http.CookieJar

	discoverer *expiry.Discoverer
	snapshot   *cache.Daily[expiry.Snapshot]
	roots      []types.Root

	mu     sync.RWMutex
	tokens map[string]types.EquityTable
}

// New creates a registry. Nothing is fetched until Init.
func New(cfg Config, deps Deps) *Registry {
	if len(cfg.Roots) == 0 {
		cfg.Roots = types.Roots
	}
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = DefaultSnapshotKey
	}
	if deps.Store == nil {
		deps.Store = cache.NewFileStore("")
	}
	if deps.Client == nil {
		deps.Client = api.NewClient(api.WithTimeout(cfg.Discovery.Timeout))
	}

	table := expiry.NewTable()
	discOpts := deps.DiscovererOptions
	cacheOpts := []cache.Option{cache.WithInlinePayload(), cache.WithName("global")}
	if deps.Clock != nil {
		discOpts = append([]expiry.Option{expiry.WithClock(deps.Clock)}, discOpts...)
		cacheOpts = append(cacheOpts, cache.WithClock(deps.Clock))
	}

	return &Registry{
		Expiries:   table,
		Cookies:    deps.Client.Jar(),
		discoverer: expiry.NewDiscoverer(deps.Client, table, cfg.Discovery, discOpts...),
		snapshot:   cache.NewDaily[expiry.Snapshot](deps.Store, cfg.SnapshotKey, cacheOpts...),
		roots:      cfg.Roots,
		tokens:     make(map[string]types.EquityTable),
	}
}

// Discoverer returns the discoverer writing into Expiries
func (r *Registry) Discoverer() *expiry.Discoverer {
	return r.discoverer
}

// Init restores today's snapshot or warms the session and discovers every
// root, then persists the snapshot. Roots still missing after a restore are
// discovered again. The returned error joins the failures of unavailable
// roots; the registry is usable either way.
func (r *Registry) Init(ctx context.Context) error {
	timer := logger.StartOperation(ctx, "registry.Init", "roots", len(r.roots))
	ctx = timer.GetContext()

	pending := r.roots
	if snap, ok := r.snapshot.Load(ctx); ok {
		r.discoverer.Restore(snap)
		pending = r.missing()
		if len(pending) == 0 {
			timer.End("source", "cache")
			return nil
		}
		logger.Info(ctx, "Snapshot is missing roots", "roots", pending)
	} else if err := r.discoverer.WarmCookies(ctx); err != nil {
		logger.Warn(ctx, "Cookie warm-up failed", "error", err)
	}

	statuses := r.discoverer.DiscoverAll(ctx, pending)

	var errs []error
	for _, root := range pending {
		if st := statuses[root]; st.State != expiry.StateAvailable {
			errs = append(errs, fmt.Errorf("%s: %w", root, st.Err))
		}
	}

	if err := r.snapshot.Save(ctx, r.discoverer.Snapshot()); err != nil {
		timer.EndWithError(err)
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	err := errors.Join(errs...)
	if err != nil {
		timer.EndWithError(err, "unavailable", len(errs))
		return err
	}
	timer.End("source", "network")
	return nil
}

func (r *Registry) missing() []types.Root {
	var out []types.Root
	for _, root := range r.roots {
		if _, ok := r.Expiries.Get(root); !ok {
			out = append(out, root)
		}
	}
	return out
}

// Ensure returns the dates of root, discovering them when absent
func (r *Registry) Ensure(ctx context.Context, root types.Root) ([]string, error) {
	return r.discoverer.Ensure(ctx, root)
}

// Roots returns the tracked roots
func (r *Registry) Roots() []types.Root {
	return append([]types.Root(nil), r.roots...)
}

// EquityTokens returns the table stored for broker id
func (r *Registry) EquityTokens(id string) (types.EquityTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.tokens[id]
	return table, ok
}

// SetEquityTokens stores the table of broker id
func (r *Registry) SetEquityTokens(id string, table types.EquityTable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[id] = table
}

// Close persists the current snapshot
func (r *Registry) Close(ctx context.Context) error {
	if err := r.snapshot.Save(ctx, r.discoverer.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}
