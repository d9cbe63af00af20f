package optionchain

import (
	"encoding/json"

	"indian-stock-api/internal/types"
)

// Strikes maps strike price to the option at that strike
type Strikes map[int]types.OptionRow

// Sides groups strikes by option type
type Sides map[types.OptionType]Strikes

// Bucket holds the options of one expiry bucket per root
type Bucket map[types.Root]Sides

// Chain is the bucketized option chain. Every bucket and root is present
// even when no rows matched; a zero lot size means undefined.
type Chain struct {
	Buckets map[types.BucketKey]Bucket
	Expiry  map[types.Root][]string
	LotSize map[types.Root]int
}

// NewChain creates a chain with every bucket and root initialised empty
func NewChain(roots []types.Root) *Chain {
	c := &Chain{
		Buckets: make(map[types.BucketKey]Bucket, len(types.ExpiryBuckets)),
		Expiry:  make(map[types.Root][]string, len(roots)),
		LotSize: make(map[types.Root]int, len(roots)),
	}
	for _, key := range types.ExpiryBuckets {
		bucket := make(Bucket, len(roots))
		for _, root := range roots {
			bucket[root] = Sides{}
		}
		c.Buckets[key] = bucket
	}
	for _, root := range roots {
		c.Expiry[root] = []string{}
		c.LotSize[root] = 0
	}
	return c
}

// Get returns the option of root at strike in the given bucket
func (c *Chain) Get(key types.BucketKey, root types.Root, opt types.OptionType, strike int) (types.OptionRow, bool) {
	row, ok := c.Buckets[key][root][opt][strike]
	return row, ok
}

// Count returns the number of options of root in the bucket
func (c *Chain) Count(key types.BucketKey, root types.Root) int {
	n := 0
	for _, strikes := range c.Buckets[key][root] {
		n += len(strikes)
	}
	return n
}

func (c *Chain) put(key types.BucketKey, row types.OptionRow) {
	sides := c.Buckets[key][row.Root]
	if sides == nil {
		sides = Sides{}
		c.Buckets[key][row.Root] = sides
	}
	strikes := sides[row.Option]
	if strikes == nil {
		strikes = Strikes{}
		sides[row.Option] = strikes
	}
	row.ExpiryName = key
	strikes[row.Strike] = row
}

// MarshalJSON renders the five top-level keys; an undefined lot size is null
func (c *Chain) MarshalJSON() ([]byte, error) {
	out := make(map[types.BucketKey]interface{}, len(c.Buckets)+2)
	for key, bucket := range c.Buckets {
		out[key] = bucket
	}
	out[types.EXPIRY] = c.Expiry

	lots := make(map[types.Root]*int, len(c.LotSize))
	for root, lot := range c.LotSize {
		if lot == 0 {
			lots[root] = nil
			continue
		}
		v := lot
		lots[root] = &v
	}
	out[types.LOTSIZE] = lots
	return json.Marshal(out)
}
