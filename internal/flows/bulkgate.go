package flows

import (
	"context"

	"github.com/majordomo-labs/majordomo/internal/bulk"
	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/pending"
)

// BulkGate is the single per-turn decision point for an active bulk
// operation: continue runs one batch, cancel clears, anything else reminds.
type BulkGate struct {
	controller *bulk.Controller
}

func NewBulkGate(controller *bulk.Controller) *BulkGate {
	return &BulkGate{controller: controller}
}

func (g *BulkGate) Flow() string { return pending.FlowBulkOperation }

func (g *BulkGate) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	if !g.controller.Active(userID) {
		return "", false, nil
	}

	switch intent.Route(text) {
	case intent.Continue:
		reply, err := g.controller.Continue(ctx, userID)
		if err != nil {
			return faults.UserMessage(err), true, err
		}
		return reply, true, nil
	case intent.Cancel:
		return g.controller.Cancel(ctx, userID), true, nil
	default:
		return "You have a bulk operation in progress. Say continue to run the next batch, or cancel to stop.", true, nil
	}
}
