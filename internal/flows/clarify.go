package flows

import (
	"context"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/confidence"
	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/tools"
)

// ClarifyHandler resumes a stashed low-confidence tool call: the user's
// answer is spliced into the argument map under the awaiting field, the
// call is re-scored and either asked about again (repeatable variant only)
// or executed.
type ClarifyHandler struct {
	store    *pending.Store
	registry *tools.Registry
}

func NewClarifyHandler(store *pending.Store, registry *tools.Registry) *ClarifyHandler {
	return &ClarifyHandler{store: store, registry: registry}
}

func (h *ClarifyHandler) Flow() string { return pending.FlowConfidenceClarify }

func (h *ClarifyHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	rec := h.store.Get(pending.FlowConfidenceClarify, userID)
	if rec == nil {
		return "", false, nil
	}

	if intent.IsCancel(text) {
		h.store.Clear(pending.FlowConfidenceClarify, userID)
		return "Okay, cancelled.", true, nil
	}

	toolName, _ := rec["tool"].(string)
	awaiting, _ := rec["awaiting"].(string)
	oneShot, _ := rec["one_shot"].(bool)
	args := argsFromRecord(rec, "args")
	args[awaiting] = strings.TrimSpace(text)
	h.store.Clear(pending.FlowConfidenceClarify, userID)

	// Repeatable variant may ask again while the call still scores below
	// the clarify threshold; the one-shot variant proceeds regardless.
	if !oneShot {
		a := confidence.Score(toolName, args, nil)
		if a.Score < confidence.ClarifyThreshold && a.Awaiting != "" {
			h.store.Set(pending.FlowConfidenceClarify, userID, pending.Record{
				"tool": toolName, "args": args, "awaiting": a.Awaiting,
				"question": a.Question, "one_shot": false,
			})
			return a.Question, true, nil
		}
	}

	out, err := replayTool(ctx, h.registry, toolName, args)
	if err != nil {
		return faults.UserMessage(err), true, err
	}
	if env, ok := parsePending(out); ok {
		reply, _ := PersistEnvelope(h.store, userID, toolName, env)
		return reply, true, nil
	}
	return replyFromResult(out), true, nil
}
