package expiry

import (
	"sync"
	"time"

	"indian-stock-api/internal/types"
)

// State is the discovery outcome of one root
type State string

const (
	StatePending     State = "pending"
	StateAvailable   State = "available"
	StateUnavailable State = "unavailable"
)

// Status reports how the table entry of a root came to be
type Status struct {
	Root      types.Root `json:"root"`
	State     State      `json:"state"`
	Attempts  int        `json:"attempts"`
	Source    string     `json:"source,omitempty"`
	Err       error      `json:"-"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Table holds the future expiry dates of each root. Readers may observe a
// partially populated table while discovery runs; a missing root reads as absent.
type Table struct {
	mu     sync.RWMutex
	dates  map[types.Root][]string
	status map[types.Root]Status
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{
		dates:  make(map[types.Root][]string),
		status: make(map[types.Root]Status),
	}
}

// Get returns a copy of the dates of root
func (t *Table) Get(root types.Root) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dates, ok := t.dates[root]
	if !ok {
		return nil, false
	}
	return append([]string(nil), dates...), true
}

// Set stores the dates of root and marks it available
func (t *Table) Set(root types.Root, dates []string, st Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dates[root] = append([]string(nil), dates...)
	st.Root = root
	st.State = StateAvailable
	t.status[root] = st
}

// markUnavailable records a failed discovery without touching existing dates
func (t *Table) markUnavailable(root types.Root, st Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st.Root = root
	st.State = StateUnavailable
	t.status[root] = st
}

// Status returns the discovery status of root
func (t *Table) Status(root types.Root) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if st, ok := t.status[root]; ok {
		return st
	}
	return Status{Root: root, State: StatePending}
}

// Statuses returns the status of every tracked root
func (t *Table) Statuses() map[types.Root]Status {
	out := make(map[types.Root]Status, len(types.Roots))
	for _, root := range types.Roots {
		out[root] = t.Status(root)
	}
	return out
}

// Missing lists the tracked roots without an entry
func (t *Table) Missing() []types.Root {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var missing []types.Root
	for _, root := range types.Roots {
		if _, ok := t.dates[root]; !ok {
			missing = append(missing, root)
		}
	}
	return missing
}

// Export returns the table keyed by root name
func (t *Table) Export() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string][]string, len(t.dates))
	for root, dates := range t.dates {
		out[string(root)] = append([]string(nil), dates...)
	}
	return out
}

// Import loads entries for known roots, as restored from a cache
func (t *Table) Import(entries map[string][]string, at time.Time) {
	for name, dates := range entries {
		root, ok := types.ParseRoot(name)
		if !ok {
			continue
		}
		t.Set(root, dates, Status{Source: "cache", UpdatedAt: at})
	}
}
