// Package cache implements day-scoped caching: a document written today is
// valid until local midnight, whatever its age.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/metrics"
)

// legacyLayout reads timestamps written without a zone offset, as local time.
const legacyLayout = "2006-01-02T15:04:05.999999"

// Producer computes a payload on a cache miss
type Producer[T any] func(ctx context.Context) (T, error)

// Option configures a Daily cache
type Option func(*options)

type options struct {
	now    func() time.Time
	inline bool
	name   string
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithInlinePayload stores the payload's fields next to the timestamp instead
// of under a "data" key. The payload must encode as a JSON object.
func WithInlinePayload() Option {
	return func(o *options) {
		o.inline = true
	}
}

// WithName labels lookups in metrics and logs
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Daily caches one payload under one key for the current calendar day.
type Daily[T any] struct {
	store Store
	key   string
	opts  options
}

// NewDaily creates a day-scoped cache for key
func NewDaily[T any](store Store, key string, opts ...Option) *Daily[T] {
	o := options{now: time.Now, name: key}
	for _, opt := range opts {
		opt(&o)
	}
	return &Daily[T]{store: store, key: key, opts: o}
}

// Key returns the storage key
func (c *Daily[T]) Key() string {
	return c.key
}

// Load returns the payload if it was saved today. Missing, stale and corrupt
// documents all read as absent.
func (c *Daily[T]) Load(ctx context.Context) (T, bool) {
	var zero T

	data, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		logger.Debug(ctx, "Cache read failed, treating as absent", "cache", c.opts.name, "error", err)
	}
	if err != nil || !ok {
		metrics.RecordCacheLookup(c.opts.name, false)
		return zero, false
	}

	stamp, payload, err := c.decode(data)
	if err != nil {
		logger.Debug(ctx, "Cache document corrupt, treating as absent", "cache", c.opts.name, "error", err)
		metrics.RecordCacheLookup(c.opts.name, false)
		return zero, false
	}

	if !SameDay(stamp, c.opts.now()) {
		metrics.RecordCacheLookup(c.opts.name, false)
		return zero, false
	}

	metrics.RecordCacheLookup(c.opts.name, true)
	return payload, true
}

// Save persists payload stamped with the current time
func (c *Daily[T]) Save(ctx context.Context, payload T) error {
	now := c.opts.now()
	data, err := c.encode(now, payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache %s: %w", c.opts.name, err)
	}
	if err := c.store.Set(ctx, c.key, data, untilMidnight(now)); err != nil {
		return fmt.Errorf("failed to write cache %s: %w", c.opts.name, err)
	}
	return nil
}

// GetOrCompute returns today's payload, or runs produce and persists its result.
// A failed save is logged and the fresh payload still returned.
func (c *Daily[T]) GetOrCompute(ctx context.Context, produce Producer[T]) (T, error) {
	if payload, ok := c.Load(ctx); ok {
		return payload, nil
	}

	payload, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Save(ctx, payload); err != nil {
		logger.Warn(ctx, "Failed to persist cache", "cache", c.opts.name, "error", err)
	}
	return payload, nil
}

// Invalidate removes the stored document
func (c *Daily[T]) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}

func (c *Daily[T]) encode(now time.Time, payload T) ([]byte, error) {
	stamp := now.Format(time.RFC3339Nano)
	if !c.opts.inline {
		return json.Marshal(struct {
			Timestamp string `json:"timestamp"`
			Data      T      `json:"data"`
		}{stamp, payload})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("inline payload must be an object: %w", err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	doc["timestamp"], _ = json.Marshal(stamp)
	return json.Marshal(doc)
}

func (c *Daily[T]) decode(data []byte) (time.Time, T, error) {
	var payload T

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return time.Time{}, payload, err
	}

	var raw string
	if err := json.Unmarshal(doc["timestamp"], &raw); err != nil {
		return time.Time{}, payload, fmt.Errorf("missing timestamp: %w", err)
	}
	stamp, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, payload, err
	}

	body := data
	if !c.opts.inline {
		var ok bool
		if body, ok = doc["data"]; !ok {
			return time.Time{}, payload, errors.New("missing data")
		}
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return time.Time{}, payload, err
	}
	return stamp, payload, nil
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less local timestamps.
func ParseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyLayout, raw, time.Local)
}

// SameDay reports whether stamp falls on now's calendar date in now's location.
func SameDay(stamp, now time.Time) bool {
	y1, m1, d1 := stamp.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return midnight.Sub(now)
}
