package ingress

import "sync"

// UpdateGate decides whether an inbound update should be processed.
// Telegram redelivers updates on webhook timeouts, so the same update_id
// can arrive more than once.
type UpdateGate interface {
	// Admit reports whether the update is new. A rejected update must not
	// produce a turn.
	Admit(updateID int64) bool
}

// processGate is a per-process high-water-mark gate. Telegram update IDs
// are strictly increasing per bot, so anything at or below the highest
// seen ID is a redelivery. Single-replica deployments only; a shared
// store behind the same interface replaces it when that changes.
type processGate struct {
	mu   sync.Mutex
	last int64
	seen bool
}

// NewProcessGate returns an in-memory UpdateGate.
func NewProcessGate() UpdateGate {
	return &processGate{}
}

func (g *processGate) Admit(updateID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen && updateID <= g.last {
		return false
	}
	g.seen = true
	g.last = updateID
	return true
}
