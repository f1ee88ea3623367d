package flows

import (
	"context"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/tools"
)

// ConfirmHandler drives a stashed confirmation: YES replays the tool with
// confirm=true, CANCEL clears, anything else repeats the prompt. The same
// handler backs the generic tool-confirm flow and the mail-send flow; they
// differ only in which pending file holds the record.
type ConfirmHandler struct {
	flow     string
	store    *pending.Store
	registry *tools.Registry
}

// NewToolConfirmHandler handles any tool's confirmation_required envelope.
func NewToolConfirmHandler(store *pending.Store, registry *tools.Registry) *ConfirmHandler {
	return &ConfirmHandler{flow: pending.FlowToolConfirm, store: store, registry: registry}
}

// NewMailSendHandler handles the outgoing-mail confirmation.
func NewMailSendHandler(store *pending.Store, registry *tools.Registry) *ConfirmHandler {
	return &ConfirmHandler{flow: pending.FlowGmailSend, store: store, registry: registry}
}

func (h *ConfirmHandler) Flow() string { return h.flow }

func (h *ConfirmHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	rec := h.store.Get(h.flow, userID)
	if rec == nil {
		return "", false, nil
	}

	switch {
	case intent.IsAffirmative(text):
		h.store.Clear(h.flow, userID)
		toolName, _ := rec["tool"].(string)
		args := argsFromRecord(rec, "args")
		args["confirm"] = true
		out, err := replayTool(ctx, h.registry, toolName, args)
		if err != nil {
			return faults.UserMessage(err), true, err
		}
		// A replayed tool can still need more input (rare, but possible when
		// upstream state changed between turns).
		if env, ok := parsePending(out); ok {
			reply, _ := PersistEnvelope(h.store, userID, toolName, env)
			return reply, true, nil
		}
		return replyFromResult(out), true, nil

	case intent.IsCancel(text):
		h.store.Clear(h.flow, userID)
		return "Okay, cancelled.", true, nil

	default:
		reminder := "Please reply YES to proceed, or CANCEL."
		if p, ok := rec["prompt"].(string); ok && p != "" {
			reminder = p
		}
		return reminder, true, nil
	}
}
