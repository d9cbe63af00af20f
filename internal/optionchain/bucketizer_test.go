package optionchain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indian-stock-api/internal/types"
)

// fakeExpiries serves a fixed table and counts Ensure calls per root
type fakeExpiries struct {
	dates map[types.Root][]string
	calls map[types.Root]int
}

func (f *fakeExpiries) Ensure(ctx context.Context, root types.Root) ([]string, error) {
	if f.calls == nil {
		f.calls = make(map[types.Root]int)
	}
	f.calls[root]++
	dates, ok := f.dates[root]
	if !ok {
		return nil, errors.New("expiry dates unavailable")
	}
	return dates, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func opt(root types.Root, expiry string, strike int, side types.OptionType, token int) types.OptionRow {
	return types.OptionRow{
		Token:    token,
		Symbol:   string(root) + expiry + string(side),
		Root:     root,
		Expiry:   day(expiry),
		Strike:   strike,
		Option:   side,
		TickSize: 0.05,
		LotSize:  25,
		Exchange: "NFO",
	}
}

var fixedNow = func() time.Time { return day("2099-01-01") }

func TestBucketizeAssignsNearestThreeExpiries(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{
		types.NIFTY: {"2099-01-08", "2099-01-15", "2099-01-22", "2099-01-29"},
	}}
	rows := []types.OptionRow{
		opt(types.NIFTY, "2099-01-29", 20000, types.CE, 5),
		opt(types.NIFTY, "2099-01-22", 20000, types.CE, 4),
		opt(types.NIFTY, "2099-01-15", 20000, types.PE, 3),
		opt(types.NIFTY, "2099-01-08", 20000, types.CE, 1),
		opt(types.NIFTY, "2099-01-08", 20100, types.PE, 2),
	}

	b := NewBucketizer(src, WithRoots(types.NIFTY), WithClock(fixedNow))
	chain, err := b.Bucketize(context.Background(), rows)
	require.NoError(t, err)

	row, ok := chain.Get(types.CURRENT, types.NIFTY, types.CE, 20000)
	require.True(t, ok)
	assert.Equal(t, 1, row.Token)
	assert.Equal(t, types.CURRENT, row.ExpiryName)

	row, ok = chain.Get(types.CURRENT, types.NIFTY, types.PE, 20100)
	require.True(t, ok)
	assert.Equal(t, 2, row.Token)

	row, ok = chain.Get(types.NEXT, types.NIFTY, types.PE, 20000)
	require.True(t, ok)
	assert.Equal(t, types.NEXT, row.ExpiryName)

	row, ok = chain.Get(types.FAR, types.NIFTY, types.CE, 20000)
	require.True(t, ok)
	assert.Equal(t, 4, row.Token)

	assert.Equal(t, 2, chain.Count(types.CURRENT, types.NIFTY))
	assert.Equal(t, 1, chain.Count(types.NEXT, types.NIFTY))
	assert.Equal(t, 1, chain.Count(types.FAR, types.NIFTY))
	assert.Equal(t, []string{"2099-01-08", "2099-01-15", "2099-01-22", "2099-01-29"}, chain.Expiry[types.NIFTY])
	assert.Equal(t, 25, chain.LotSize[types.NIFTY])
}

func TestBucketizeShapeIsTotal(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{}}
	for _, root := range types.Roots {
		src.dates[root] = []string{"2099-01-08"}
	}

	chain, err := NewBucketizer(src, WithClock(fixedNow)).Bucketize(context.Background(), nil)
	require.NoError(t, err)

	for _, key := range types.ExpiryBuckets {
		for _, root := range types.Roots {
			sides, ok := chain.Buckets[key][root]
			require.True(t, ok, "%s/%s", key, root)
			assert.Empty(t, sides)
		}
	}
	for _, root := range types.Roots {
		assert.Equal(t, []string{}, chain.Expiry[root])
		assert.Zero(t, chain.LotSize[root])
		assert.Equal(t, 1, src.calls[root])
	}
}

func TestBucketizeLastWriteWinsWithinGroup(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{types.BANKNIFTY: {"2099-01-08"}}}
	first := opt(types.BANKNIFTY, "2099-01-08", 45000, types.CE, 100)
	second := opt(types.BANKNIFTY, "2099-01-08", 45000, types.CE, 200)
	second.LotSize = 15

	chain, err := NewBucketizer(src, WithRoots(types.BANKNIFTY), WithClock(fixedNow)).
		Bucketize(context.Background(), []types.OptionRow{first, second})
	require.NoError(t, err)

	row, ok := chain.Get(types.CURRENT, types.BANKNIFTY, types.CE, 45000)
	require.True(t, ok)
	assert.Equal(t, 200, row.Token)
	assert.Equal(t, 25, chain.LotSize[types.BANKNIFTY], "lot size is the first observed")
}

func TestBucketizePadsWhenFewerThanThreeExpiries(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{types.SENSEX: {"2099-01-09"}}}
	rows := []types.OptionRow{opt(types.SENSEX, "2099-01-09", 80000, types.PE, 7)}

	chain, err := NewBucketizer(src, WithRoots(types.SENSEX), WithClock(fixedNow)).
		Bucketize(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, 1, chain.Count(types.CURRENT, types.SENSEX))
	assert.Empty(t, chain.Buckets[types.NEXT][types.SENSEX])
	assert.Empty(t, chain.Buckets[types.FAR][types.SENSEX])
}

func TestBucketizeUnavailableRootKeepsPlaceholders(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{types.NIFTY: {"2099-01-08"}}}
	rows := []types.OptionRow{
		opt(types.NIFTY, "2099-01-08", 20000, types.CE, 1),
		opt(types.BANKEX, "2099-01-08", 60000, types.CE, 2),
	}

	chain, err := NewBucketizer(src, WithRoots(types.NIFTY, types.BANKEX), WithClock(fixedNow)).
		Bucketize(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BANKEX")

	assert.Equal(t, 1, chain.Count(types.CURRENT, types.NIFTY))
	assert.Empty(t, chain.Buckets[types.CURRENT][types.BANKEX])
	assert.Equal(t, []string{}, chain.Expiry[types.BANKEX])
}

func TestBucketizeExpiryListDropsPastDates(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{types.FINNIFTY: {"2099-01-08"}}}
	rows := []types.OptionRow{
		opt(types.FINNIFTY, "2098-12-25", 21000, types.CE, 1),
		opt(types.FINNIFTY, "2099-01-08", 21000, types.CE, 2),
		opt(types.FINNIFTY, "2099-01-08", 21050, types.CE, 3),
	}

	chain, err := NewBucketizer(src, WithRoots(types.FINNIFTY), WithClock(fixedNow)).
		Bucketize(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"2099-01-08"}, chain.Expiry[types.FINNIFTY])
}

func TestBucketizeExpiryDayIsNotListed(t *testing.T) {
	// discovery has already dropped today's expiry once the session started
	src := &fakeExpiries{dates: map[types.Root][]string{types.NIFTY: {"2099-01-08"}}}
	today := opt(types.NIFTY, "2099-01-01", 20000, types.CE, 1)
	today.LotSize = 75
	rows := []types.OptionRow{
		today,
		opt(types.NIFTY, "2099-01-08", 20000, types.CE, 2),
	}
	morning := func() time.Time { return day("2099-01-01").Add(9 * time.Hour) }

	chain, err := NewBucketizer(src, WithRoots(types.NIFTY), WithClock(morning)).
		Bucketize(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"2099-01-08"}, chain.Expiry[types.NIFTY])
	assert.Equal(t, 25, chain.LotSize[types.NIFTY])
	row, ok := chain.Get(types.CURRENT, types.NIFTY, types.CE, 20000)
	require.True(t, ok)
	assert.Equal(t, 2, row.Token)
}

func TestChainJSONShape(t *testing.T) {
	src := &fakeExpiries{dates: map[types.Root][]string{types.NIFTY: {"2099-01-08"}, types.SENSEX: {"2099-01-09"}}}
	rows := []types.OptionRow{opt(types.NIFTY, "2099-01-08", 20000, types.CE, 1)}

	chain, err := NewBucketizer(src, WithRoots(types.NIFTY, types.SENSEX), WithClock(fixedNow)).
		Bucketize(context.Background(), rows)
	require.NoError(t, err)

	data, err := json.Marshal(chain)
	require.NoError(t, err)

	var doc map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc, 5)
	assert.JSONEq(t, `25`, string(doc["LotSize"]["NIFTY"]))
	assert.JSONEq(t, `null`, string(doc["LotSize"]["SENSEX"]))
	assert.JSONEq(t, `[]`, string(doc["Expiry"]["SENSEX"]))
	assert.Contains(t, string(doc["CURRENT"]["NIFTY"]), `"20000"`)
}
