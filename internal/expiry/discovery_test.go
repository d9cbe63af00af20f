package expiry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/brokererr"
	"indian-stock-api/internal/types"
)

var testNow = time.Date(2050, 6, 15, 10, 0, 0, 0, time.Local)

// stubFallback records calls and replays a canned body
type stubFallback struct {
	mu   sync.Mutex
	urls []string
	body []byte
	err  error
}

func (s *stubFallback) FetchRaw(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, rawURL)
	return s.body, s.err
}

func (s *stubFallback) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// upstream serves the NSE and BSE expiry endpoints plus the cookie page
type upstream struct {
	srv     *httptest.Server
	nseHits atomic.Int32
	bseHits atomic.Int32
	failNSE bool
	failBSE bool
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/nse", func(w http.ResponseWriter, r *http.Request) {
		u.nseHits.Add(1)
		if u.failNSE {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		assert.NotEmpty(t, r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"records":{"expiryDates":["26-Mar-2099","30-Jan-2020","19-Mar-2099"]}}`)
	})
	mux.HandleFunc("/bse", func(w http.ResponseWriter, r *http.Request) {
		u.bseHits.Add(1)
		if u.failBSE {
			http.Error(w, "down", http.StatusNotFound)
			return
		}
		assert.Equal(t, "IO", r.URL.Query().Get("ProductType"))
		scrip := r.URL.Query().Get("scrip_cd")
		fmt.Fprintf(w, `{"Table1":[{"ExpiryDate":"0%s Apr 2099"},{"ExpiryDate":"01 Jan 2020"}]}`, scrip[:1])
	})
	mux.HandleFunc("/option-chain", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "abc", Path: "/"})
		fmt.Fprint(w, `<html><head><title>Option Chain</title></head><body></body></html>`)
	})
	mux.HandleFunc("/denied", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Access Denied</title></head></html>`)
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) config() Config {
	return Config{
		NSEURL:     u.srv.URL + "/nse",
		BSEURL:     u.srv.URL + "/bse",
		CookieURL:  u.srv.URL + "/option-chain",
		Attempts:   5,
		RetryDelay: 5 * time.Second,
		Timeout:    time.Second,
	}
}

// recordingSleeper captures requested waits without sleeping
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestDiscoverer(u *upstream, fb RawFetcher, sl *recordingSleeper) *Discoverer {
	client := api.NewClient(api.WithBrokerID("expiry"))
	return NewDiscoverer(client, NewTable(), u.config(),
		WithClock(func() time.Time { return testNow }),
		WithSleeper(sl.sleep),
		WithFallback(fb),
	)
}

func TestDiscoverNSE(t *testing.T) {
	u := newUpstream(t)
	fb := &stubFallback{err: errors.New("unused")}
	d := newTestDiscoverer(u, fb, &recordingSleeper{})

	dates, err := d.Discover(context.Background(), types.NIFTY)
	require.NoError(t, err)
	assert.Equal(t, []string{"2099-03-19", "2099-03-26"}, dates)

	st := d.Table().Status(types.NIFTY)
	assert.Equal(t, StateAvailable, st.State)
	assert.Equal(t, "nse", st.Source)
	assert.Equal(t, 1, st.Attempts)
	assert.Zero(t, fb.calls())
}

func TestDiscoverBSE(t *testing.T) {
	u := newUpstream(t)
	d := newTestDiscoverer(u, &stubFallback{err: errors.New("unused")}, &recordingSleeper{})

	dates, err := d.Discover(context.Background(), types.BANKEX)
	require.NoError(t, err)
	assert.Equal(t, []string{"2099-04-01"}, dates)

	dates, err = d.Discover(context.Background(), types.SENSEX)
	require.NoError(t, err)
	assert.Equal(t, []string{"2099-04-01"}, dates)
	assert.Equal(t, int32(2), u.bseHits.Load())
}

func TestDiscoverUsesFallbackWhenPrimaryFails(t *testing.T) {
	u := newUpstream(t)
	u.failNSE = true
	fb := &stubFallback{body: []byte(`{"records":{"expiryDates":["02-Jan-2099"]}}`)}
	d := newTestDiscoverer(u, fb, &recordingSleeper{})

	dates, err := d.Discover(context.Background(), types.BANKNIFTY)
	require.NoError(t, err)
	assert.Equal(t, []string{"2099-01-02"}, dates)
	assert.Equal(t, "nse-fallback", d.Table().Status(types.BANKNIFTY).Source)

	require.Equal(t, 1, fb.calls())
	assert.True(t, strings.HasPrefix(fb.urls[0], u.srv.URL+"/nse?"))
	assert.Contains(t, fb.urls[0], "symbol=BANKNIFTY")
}

func TestDiscoverGivesUpAfterAllAttempts(t *testing.T) {
	u := newUpstream(t)
	u.failBSE = true
	fb := &stubFallback{err: errors.New("fallback down")}
	sl := &recordingSleeper{}
	d := newTestDiscoverer(u, fb, sl)

	_, err := d.Discover(context.Background(), types.SENSEX)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, int32(5), u.bseHits.Load())
	assert.Equal(t, 5, fb.calls())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, sl.waits)

	_, ok := d.Table().Get(types.SENSEX)
	assert.False(t, ok)
	st := d.Table().Status(types.SENSEX)
	assert.Equal(t, StateUnavailable, st.State)
	assert.Equal(t, 5, st.Attempts)
	assert.Error(t, st.Err)
}

func TestDiscoverStopsWhenContextCancelled(t *testing.T) {
	u := newUpstream(t)
	u.failNSE = true
	d := newTestDiscoverer(u, &stubFallback{err: errors.New("down")}, &recordingSleeper{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Discover(ctx, types.NIFTY)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, d.Table().Status(types.NIFTY).Attempts)
}

func TestDiscoverRetriesUnparseableDates(t *testing.T) {
	u := newUpstream(t)
	u.failNSE = true
	fb := &stubFallback{body: []byte(`{"records":{"expiryDates":["soon"]}}`)}
	d := newTestDiscoverer(u, fb, &recordingSleeper{})

	_, err := d.Discover(context.Background(), types.FINNIFTY)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, brokererr.Is(err, brokererr.KindInput))
}

func TestDiscoverUnknownRoot(t *testing.T) {
	u := newUpstream(t)
	d := newTestDiscoverer(u, &stubFallback{}, &recordingSleeper{})

	_, err := d.Discover(context.Background(), types.Root("GOLD"))
	assert.True(t, brokererr.Is(err, brokererr.KindInput))
}

func TestDiscoverAllReportsStatusPerRoot(t *testing.T) {
	u := newUpstream(t)
	u.failBSE = true
	d := newTestDiscoverer(u, &stubFallback{err: errors.New("down")}, &recordingSleeper{})

	statuses := d.DiscoverAll(context.Background(), nil)
	require.Len(t, statuses, len(types.Roots))

	for _, root := range []types.Root{types.BANKNIFTY, types.NIFTY, types.FINNIFTY, types.MIDCPNIFTY} {
		assert.Equal(t, StateAvailable, statuses[root].State, root)
	}
	for _, root := range []types.Root{types.SENSEX, types.BANKEX} {
		assert.Equal(t, StateUnavailable, statuses[root].State, root)
	}
	assert.ElementsMatch(t, []types.Root{types.SENSEX, types.BANKEX}, d.Table().Missing())
}

func TestEnsureSkipsNetworkWhenPresent(t *testing.T) {
	u := newUpstream(t)
	d := newTestDiscoverer(u, &stubFallback{}, &recordingSleeper{})
	d.Table().Set(types.MIDCPNIFTY, []string{"2099-01-01"}, Status{})

	dates, err := d.Ensure(context.Background(), types.MIDCPNIFTY)
	require.NoError(t, err)
	assert.Equal(t, []string{"2099-01-01"}, dates)
	assert.Zero(t, u.nseHits.Load())
}

func TestConcurrentEnsureDiscoversOnce(t *testing.T) {
	u := newUpstream(t)
	d := newTestDiscoverer(u, &stubFallback{}, &recordingSleeper{})

	var wg sync.WaitGroup
	results := make([][]string, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dates, err := d.Ensure(context.Background(), types.NIFTY)
			assert.NoError(t, err)
			results[i] = dates
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), u.nseHits.Load())
	for _, dates := range results {
		assert.Equal(t, []string{"2099-03-19", "2099-03-26"}, dates)
	}
}

func TestWarmCookiesAndSnapshot(t *testing.T) {
	u := newUpstream(t)
	d := newTestDiscoverer(u, &stubFallback{}, &recordingSleeper{})

	require.NoError(t, d.WarmCookies(context.Background()))
	assert.Equal(t, map[string]string{"nsit": "abc"}, d.Cookies())

	d.Table().Set(types.NIFTY, []string{"2099-01-01"}, Status{})
	snap := d.Snapshot()

	restored := newTestDiscoverer(u, &stubFallback{}, &recordingSleeper{})
	restored.Restore(snap)
	assert.Equal(t, snap.Cookies, restored.Cookies())
	dates, ok := restored.Table().Get(types.NIFTY)
	require.True(t, ok)
	assert.Equal(t, []string{"2099-01-01"}, dates)
}

func TestWarmCookiesDetectsBlockPage(t *testing.T) {
	u := newUpstream(t)
	cfg := u.config()
	cfg.CookieURL = u.srv.URL + "/denied"
	d := NewDiscoverer(api.NewClient(), NewTable(), cfg, WithFallback(&stubFallback{}))

	err := d.WarmCookies(context.Background())
	assert.True(t, brokererr.Is(err, brokererr.KindNetwork))
}

func TestCollectorFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"Table1":[]}`)
	}))
	defer srv.Close()

	f := NewCollectorFetcher(time.Second, nil)

	body, err := f.FetchRaw(context.Background(), srv.URL+"/ok?scrip_cd=1", map[string]string{"Accept": "application/json"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Table1":[]}`, string(body))

	_, err = f.FetchRaw(context.Background(), srv.URL+"/fail", nil)
	assert.Error(t, err)
}
