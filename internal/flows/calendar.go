package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/tools"
)

// parseSelection reads a 1-based pick from a disambiguation reply.
func parseSelection(text string, n int) (int, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return 0, false
	}
	raw := strings.TrimRight(fields[0], ".)")
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 1 || idx > n {
		return 0, false
	}
	return idx, true
}

// candidateList pulls the persisted disambiguation options out of the args.
func candidateList(args map[string]any) []map[string]any {
	raw, _ := args["candidates"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, c := range raw {
		if m, ok := c.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// CalendarCancelHandler walks the user through cancelling an event:
// optional disambiguation, optional scope choice for recurring events, and
// an explicit YES for deletes and whole-series cancels.
type CalendarCancelHandler struct {
	store    *pending.Store
	registry *tools.Registry
}

func NewCalendarCancelHandler(store *pending.Store, registry *tools.Registry) *CalendarCancelHandler {
	return &CalendarCancelHandler{store: store, registry: registry}
}

func (h *CalendarCancelHandler) Flow() string { return pending.FlowCalendarCancel }

func (h *CalendarCancelHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	rec := h.store.Get(pending.FlowCalendarCancel, userID)
	if rec == nil {
		return "", false, nil
	}

	if intent.IsCancel(text) {
		h.store.Clear(pending.FlowCalendarCancel, userID)
		return "Okay, I'll leave the event alone.", true, nil
	}

	awaiting, _ := rec["awaiting"].(string)
	args := argsFromRecord(rec, "args")

	switch awaiting {
	case "selection":
		candidates := candidateList(args)
		idx, ok := parseSelection(text, len(candidates))
		if !ok {
			return fmt.Sprintf("Please reply with a number between 1 and %d, or CANCEL.", len(candidates)), true, nil
		}
		picked := candidates[idx-1]
		delete(args, "candidates")
		args["event_id"], _ = picked["event_id"].(string)
		h.store.Clear(pending.FlowCalendarCancel, userID)

		recurring, _ := picked["recurring"].(bool)
		if recurring && strings.TrimSpace(toolString(args, "scope")) == "" {
			h.store.Set(pending.FlowCalendarCancel, userID, pending.Record{
				"args": args, "awaiting": "scope",
			})
			summary, _ := picked["summary"].(string)
			return fmt.Sprintf("'%s' is a recurring event. Just this occurrence, or the whole series?", summary), true, nil
		}
		return h.replay(ctx, userID, args)

	case "scope":
		lower := strings.ToLower(text)
		if strings.Contains(lower, "series") || strings.Contains(lower, "all") || strings.Contains(lower, "whole") {
			args["scope"] = "series"
		} else {
			args["scope"] = "single"
		}
		h.store.Clear(pending.FlowCalendarCancel, userID)
		return h.replay(ctx, userID, args)

	default:
		// A destructive cancel waiting for YES.
		if intent.IsAffirmative(text) {
			h.store.Clear(pending.FlowCalendarCancel, userID)
			args["confirm"] = true
			return h.replay(ctx, userID, args)
		}
		reminder := "Please reply YES to proceed, or CANCEL."
		if p, ok := rec["prompt"].(string); ok && p != "" {
			reminder = p
		}
		return reminder, true, nil
	}
}

func (h *CalendarCancelHandler) replay(ctx context.Context, userID int64, args map[string]any) (string, bool, error) {
	out, err := replayTool(ctx, h.registry, "calendar_cancel_event", args)
	if err != nil {
		return faults.UserMessage(err), true, err
	}
	if env, ok := parsePending(out); ok {
		reply, _ := PersistEnvelope(h.store, userID, "calendar_cancel_event", env)
		return reply, true, nil
	}
	return replyFromResult(out), true, nil
}

// CalendarNoteHandler resolves which event to annotate, then collects the
// note text if the first request didn't carry one.
type CalendarNoteHandler struct {
	store    *pending.Store
	registry *tools.Registry
}

func NewCalendarNoteHandler(store *pending.Store, registry *tools.Registry) *CalendarNoteHandler {
	return &CalendarNoteHandler{store: store, registry: registry}
}

func (h *CalendarNoteHandler) Flow() string { return pending.FlowCalendarNote }

func (h *CalendarNoteHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	rec := h.store.Get(pending.FlowCalendarNote, userID)
	if rec == nil {
		return "", false, nil
	}

	if intent.IsCancel(text) {
		h.store.Clear(pending.FlowCalendarNote, userID)
		return "Okay, no note added.", true, nil
	}

	awaiting, _ := rec["awaiting"].(string)
	args := argsFromRecord(rec, "args")

	switch awaiting {
	case "selection":
		candidates := candidateList(args)
		idx, ok := parseSelection(text, len(candidates))
		if !ok {
			return fmt.Sprintf("Please reply with a number between 1 and %d, or CANCEL.", len(candidates)), true, nil
		}
		picked := candidates[idx-1]
		delete(args, "candidates")
		args["event_id"], _ = picked["event_id"].(string)
		h.store.Clear(pending.FlowCalendarNote, userID)

		if strings.TrimSpace(toolString(args, "note")) == "" {
			h.store.Set(pending.FlowCalendarNote, userID, pending.Record{
				"args": args, "awaiting": "note",
			})
			summary, _ := picked["summary"].(string)
			return fmt.Sprintf("What note should I add to '%s'?", summary), true, nil
		}
		return h.replay(ctx, userID, args)

	default: // awaiting the note text
		args["note"] = strings.TrimSpace(text)
		h.store.Clear(pending.FlowCalendarNote, userID)
		return h.replay(ctx, userID, args)
	}
}

func (h *CalendarNoteHandler) replay(ctx context.Context, userID int64, args map[string]any) (string, bool, error) {
	out, err := replayTool(ctx, h.registry, "calendar_add_note", args)
	if err != nil {
		return faults.UserMessage(err), true, err
	}
	if env, ok := parsePending(out); ok {
		reply, _ := PersistEnvelope(h.store, userID, "calendar_add_note", env)
		return reply, true, nil
	}
	return replyFromResult(out), true, nil
}

func toolString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
