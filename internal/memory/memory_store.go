package memory

import (
	"context"
	"sync"
	"time"

	"github.com/majordomo-labs/majordomo/pkg/models"
)

// MemoryStore is the in-process Store used by tests and local dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	turns     map[int64][]models.ConversationTurn
	summaries map[int64]string
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:     make(map[int64][]models.ConversationTurn),
		summaries: make(map[int64]string),
	}
}

func (m *MemoryStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[turn.UserID] = append(m.turns[turn.UserID], *turn)
	return nil
}

func (m *MemoryStore) RecentTurns(ctx context.Context, userID int64, limit int) ([]models.ConversationTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.turns[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.ConversationTurn, len(all))
	copy(out, all)
	return out, nil
}

func (m *MemoryStore) Summary(ctx context.Context, userID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summaries[userID], nil
}

func (m *MemoryStore) UpsertSummary(ctx context.Context, userID int64, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[userID] = summary
	return nil
}

func (m *MemoryStore) ActiveUsers(ctx context.Context, since time.Time) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []int64
	for id, turns := range m.turns {
		if len(turns) > 0 && !turns[len(turns)-1].CreatedAt.Before(since) {
			users = append(users, id)
		}
	}
	return users, nil
}

func (m *MemoryStore) Close() error { return nil }
