package flows

import (
	"context"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/tools"
)

// DispatchHandler resumes a task-board dispatch that stopped on an
// unresolved name. The user's answer fills the awaiting field and the
// dispatcher runs again; it may come back with the next missing name.
type DispatchHandler struct {
	store    *pending.Store
	registry *tools.Registry
}

func NewDispatchHandler(store *pending.Store, registry *tools.Registry) *DispatchHandler {
	return &DispatchHandler{store: store, registry: registry}
}

func (h *DispatchHandler) Flow() string { return pending.FlowTrelloDispatch }

func (h *DispatchHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	rec := h.store.Get(pending.FlowTrelloDispatch, userID)
	if rec == nil {
		return "", false, nil
	}

	if intent.IsCancel(text) {
		h.store.Clear(pending.FlowTrelloDispatch, userID)
		return "Okay, cancelled.", true, nil
	}

	awaiting, _ := rec["awaiting"].(string)
	args := argsFromRecord(rec, "args")
	args[awaiting] = strings.TrimSpace(text)
	h.store.Clear(pending.FlowTrelloDispatch, userID)

	out, err := replayTool(ctx, h.registry, "trello_dispatch", args)
	if err != nil {
		return faults.UserMessage(err), true, err
	}
	if env, ok := parsePending(out); ok {
		reply, _ := PersistEnvelope(h.store, userID, "trello_dispatch", env)
		return reply, true, nil
	}
	return replyFromResult(out), true, nil
}

// CommentHandler resumes a comment whose target card is resolved but whose
// text is still missing; the whole next message is the comment body.
type CommentHandler struct {
	store    *pending.Store
	registry *tools.Registry
}

func NewCommentHandler(store *pending.Store, registry *tools.Registry) *CommentHandler {
	return &CommentHandler{store: store, registry: registry}
}

func (h *CommentHandler) Flow() string { return pending.FlowTrelloComment }

func (h *CommentHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	rec := h.store.Get(pending.FlowTrelloComment, userID)
	if rec == nil {
		return "", false, nil
	}

	if intent.IsCancel(text) {
		h.store.Clear(pending.FlowTrelloComment, userID)
		return "Okay, cancelled.", true, nil
	}

	args := argsFromRecord(rec, "args")
	args["action"] = "comment"
	args["comment_text"] = strings.TrimSpace(text)
	h.store.Clear(pending.FlowTrelloComment, userID)

	out, err := replayTool(ctx, h.registry, "trello_dispatch", args)
	if err != nil {
		return faults.UserMessage(err), true, err
	}
	return replyFromResult(out), true, nil
}
