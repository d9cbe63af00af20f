package optionchain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/types"
)

// ExpirySource yields the sorted future expiry dates of a root, discovering
// them on demand when they are not known yet
type ExpirySource interface {
	Ensure(ctx context.Context, root types.Root) ([]string, error)
}

// Bucketizer groups option rows into CURRENT/NEXT/FAR buckets per root
type Bucketizer struct {
	expiries ExpirySource
	roots    []types.Root
	now      func() time.Time
}

// Option configures a Bucketizer
type Option func(*Bucketizer)

// WithRoots restricts bucketization to the given roots
func WithRoots(roots ...types.Root) Option {
	return func(b *Bucketizer) {
		b.roots = roots
	}
}

// WithClock overrides the clock used to drop past expiries from the Expiry list
func WithClock(now func() time.Time) Option {
	return func(b *Bucketizer) {
		b.now = now
	}
}

// NewBucketizer creates a bucketizer reading expiry dates from src
func NewBucketizer(src ExpirySource, opts ...Option) *Bucketizer {
	b := &Bucketizer{
		expiries: src,
		roots:    types.Roots,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bucketize builds the option chain from rows. The returned chain is always
// complete in shape. Roots whose expiry dates could not be discovered keep
// empty buckets; their errors are joined into the returned error.
//
// CURRENT, NEXT and FAR take the first three discovered dates of a root.
// With fewer than three dates the remaining buckets stay empty.
func (b *Bucketizer) Bucketize(ctx context.Context, rows []types.OptionRow) (*Chain, error) {
	timer := logger.StartOperation(ctx, "optionchain.Bucketize", "rows", len(rows))
	ctx = timer.GetContext()

	sorted := append([]types.OptionRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Expiry.Before(sorted[j].Expiry)
	})

	byRoot := make(map[types.Root][]types.OptionRow, len(b.roots))
	for _, row := range sorted {
		byRoot[row.Root] = append(byRoot[row.Root], row)
	}

	chain := NewChain(b.roots)
	now := b.now()
	var errs []error

	for _, root := range b.roots {
		dates, err := b.expiries.Ensure(ctx, root)
		if err != nil {
			logger.Warn(ctx, "No expiry dates for root, buckets left empty", "root", root, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", root, err))
			continue
		}

		rootRows := byRoot[root]
		if len(rootRows) == 0 {
			continue
		}

		for i, key := range types.ExpiryBuckets {
			if i >= len(dates) {
				break
			}
			for _, row := range rootRows {
				if row.ExpiryDate() == dates[i] {
					chain.put(key, row)
				}
			}
		}

		future := futureRows(rootRows, now)
		chain.Expiry[root] = uniqueExpiries(future)
		if len(future) > 0 {
			chain.LotSize[root] = future[0].LotSize
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		timer.EndWithError(err, "unavailable_roots", len(errs))
		return chain, err
	}
	timer.End()
	return chain, nil
}

// futureRows keeps the rows whose expiry date, taken at midnight in the
// location of now, is not before now. Discovered dates follow the same rule,
// so an expiry that has started today is dropped from both.
func futureRows(rows []types.OptionRow, now time.Time) []types.OptionRow {
	out := make([]types.OptionRow, 0, len(rows))
	for _, row := range rows {
		y, m, d := row.Expiry.Date()
		if time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Before(now) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// uniqueExpiries lists the distinct expiries of rows sorted by expiry
func uniqueExpiries(rows []types.OptionRow) []string {
	out := []string{}
	for _, row := range rows {
		d := row.ExpiryDate()
		if len(out) > 0 && out[len(out)-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out
}
