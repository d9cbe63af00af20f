package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indian-stock-api/internal/cache"
	"indian-stock-api/internal/expiry"
	"indian-stock-api/internal/types"
)

var testNow = time.Date(2050, 6, 15, 10, 0, 0, 0, time.Local)

type failingFallback struct{}

func (failingFallback) FetchRaw(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return nil, errors.New("fallback disabled")
}

type upstream struct {
	srv        *httptest.Server
	hits       atomic.Int32
	cookieHits atomic.Int32
	failBSE    atomic.Bool
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/nse", func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		fmt.Fprint(w, `{"records":{"expiryDates":["26-Mar-2099","19-Mar-2099"]}}`)
	})
	mux.HandleFunc("/bse", func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		if u.failBSE.Load() {
			http.Error(w, "down", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"Table1":[{"ExpiryDate":"03 Apr 2099"}]}`)
	})
	mux.HandleFunc("/option-chain", func(w http.ResponseWriter, r *http.Request) {
		u.cookieHits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "abc", Path: "/"})
		fmt.Fprint(w, `<html><head><title>Option Chain</title></head></html>`)
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func mustURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func (u *upstream) registry(store cache.Store, roots ...types.Root) *Registry {
	return New(Config{
		Discovery: expiry.Config{
			NSEURL:     u.srv.URL + "/nse",
			BSEURL:     u.srv.URL + "/bse",
			CookieURL:  u.srv.URL + "/option-chain",
			Attempts:   2,
			RetryDelay: 0,
			Timeout:    time.Second,
		},
		Roots: roots,
	}, Deps{
		Store:             store,
		Clock:             func() time.Time { return testNow },
		DiscovererOptions: []expiry.Option{expiry.WithFallback(failingFallback{})},
	})
}

func TestInitDiscoversAndPersists(t *testing.T) {
	u := newUpstream(t)
	store := cache.NewFileStore(t.TempDir())
	r := u.registry(store, types.NIFTY, types.SENSEX)

	require.NoError(t, r.Init(context.Background()))

	dates, ok := r.Expiries.Get(types.NIFTY)
	require.True(t, ok)
	assert.Equal(t, []string{"2099-03-19", "2099-03-26"}, dates)

	dates, ok = r.Expiries.Get(types.SENSEX)
	require.True(t, ok)
	assert.Equal(t, []string{"2099-04-03"}, dates)
	assert.Equal(t, int32(1), u.cookieHits.Load())

	data, ok, err := store.Get(context.Background(), DefaultSnapshotKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(data), `"expiry_dates"`)
	assert.Contains(t, string(data), `"nsit":"abc"`)
}

func TestInitRestoresTodaysSnapshot(t *testing.T) {
	u := newUpstream(t)
	store := cache.NewFileStore(t.TempDir())

	require.NoError(t, u.registry(store, types.NIFTY).Init(context.Background()))
	hits := u.hits.Load()

	r := u.registry(store, types.NIFTY)
	require.NoError(t, r.Init(context.Background()))

	assert.Equal(t, hits, u.hits.Load(), "no network on cache hit")
	assert.Equal(t, int32(1), u.cookieHits.Load())
	assert.Equal(t, "cache", r.Expiries.Status(types.NIFTY).Source)

	// restored cookies are sent to the session origin
	var found bool
	for _, c := range r.Cookies.Cookies(mustURL(t, u.srv.URL)) {
		if c.Name == "nsit" && c.Value == "abc" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInitReportsUnavailableRoots(t *testing.T) {
	u := newUpstream(t)
	u.failBSE.Store(true)
	store := cache.NewFileStore(t.TempDir())
	r := u.registry(store, types.NIFTY, types.BANKEX)

	err := r.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, expiry.ErrUnavailable)
	assert.Contains(t, err.Error(), "BANKEX")

	_, ok := r.Expiries.Get(types.BANKEX)
	assert.False(t, ok)
	_, ok = r.Expiries.Get(types.NIFTY)
	assert.True(t, ok)
	assert.Equal(t, expiry.StateUnavailable, r.Expiries.Status(types.BANKEX).State)

	// the next run rediscovers only the missing root
	u.failBSE.Store(false)
	before := u.hits.Load()
	r2 := u.registry(store, types.NIFTY, types.BANKEX)
	require.NoError(t, r2.Init(context.Background()))
	assert.Equal(t, before+1, u.hits.Load())
	_, ok = r2.Expiries.Get(types.BANKEX)
	assert.True(t, ok)
}

func TestEquityTokens(t *testing.T) {
	r := New(Config{}, Deps{Store: cache.NewFileStore(t.TempDir())})

	_, ok := r.EquityTokens("angelone")
	assert.False(t, ok)

	table := types.EquityTable{types.NSE: {"APPLE": {Token: 10412, Symbol: "AAPL-EQ"}}}
	r.SetEquityTokens("angelone", table)

	got, ok := r.EquityTokens("angelone")
	require.True(t, ok)
	assert.Equal(t, table, got)
	assert.Equal(t, types.Roots, r.Roots())
}

func TestEnsureUsesTable(t *testing.T) {
	u := newUpstream(t)
	r := u.registry(cache.NewFileStore(t.TempDir()), types.NIFTY)

	dates, err := r.Ensure(context.Background(), types.NIFTY)
	require.NoError(t, err)
	assert.Len(t, dates, 2)

	_, err = r.Ensure(context.Background(), types.NIFTY)
	require.NoError(t, err)
	assert.Equal(t, int32(1), u.hits.Load())
	require.NoError(t, r.Close(context.Background()))
}
