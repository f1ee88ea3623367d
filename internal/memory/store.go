// Package memory persists the append-only conversation log and the
// per-user long-term summary. Backends: Postgres (Supabase), a local
// SQLite file, or an in-process map for tests.
package memory

import (
	"context"
	"time"

	"github.com/majordomo-labs/majordomo/pkg/models"
)

// Store is the memory contract the orchestrator depends on.
type Store interface {
	// AppendTurn appends one conversation row.
	AppendTurn(ctx context.Context, turn *models.ConversationTurn) error

	// RecentTurns returns up to limit turns for the user, oldest first.
	RecentTurns(ctx context.Context, userID int64, limit int) ([]models.ConversationTurn, error)

	// Summary returns the user's long-term summary, or "" when none exists.
	Summary(ctx context.Context, userID int64) (string, error)

	// UpsertSummary replaces the user's long-term summary.
	UpsertSummary(ctx context.Context, userID int64, summary string) error

	// ActiveUsers returns the users with conversation rows at or after
	// since. Feeds the periodic summary recompute.
	ActiveUsers(ctx context.Context, since time.Time) ([]int64, error)

	// Close releases the backend.
	Close() error
}
