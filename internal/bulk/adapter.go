package bulk

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PreparedContext carries everything an adapter needs between turns. The
// metadata map is persisted into the bulk state verbatim, so adapters must
// keep it JSON-serializable.
type PreparedContext struct {
	Query    string
	Metadata map[string]any
}

// Result is the outcome of one item in a batch.
type Result struct {
	ID  string
	Err error
}

// Adapter executes one kind of bulk operation. NextBatch with size 0 fills
// the adapter's buffer without returning items; that is the start-turn call.
// The offset is advisory; cursor-based adapters track position in metadata.
type Adapter interface {
	// Prepare derives the query and initial metadata from tool parameters.
	// It must not touch the network.
	Prepare(params map[string]any) (*PreparedContext, error)

	// TotalCount reports the estimated total, valid after the first NextBatch.
	TotalCount(pc *PreparedContext) int

	// NextBatch returns up to size item ids, fetching at most one page.
	NextBatch(ctx context.Context, pc *PreparedContext, size, offset int) ([]string, error)

	// ExecuteBatch performs the operation on the items in one call.
	ExecuteBatch(ctx context.Context, items []string, pc *PreparedContext) ([]Result, error)
}

// Registry maps "domain:action" to an adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func key(domain, action string) string { return domain + ":" + action }

func (r *Registry) Register(domain, action string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key(domain, action)] = a
}

func (r *Registry) Get(domain, action string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[key(domain, action)]
	if !ok {
		return nil, fmt.Errorf("no bulk adapter for %s:%s", domain, action)
	}
	return a, nil
}

// Operations lists the registered domain:action pairs, sorted.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
