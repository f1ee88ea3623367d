package flows

import (
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// PersistEnvelope routes a pending-style tool envelope to the flow that
// owns its continuation and persists the record. It returns the prompt to
// send and whether the envelope was claimed. Completed and error envelopes
// are not claimed.
func PersistEnvelope(store *pending.Store, userID int64, toolName string, env *models.Envelope) (string, bool) {
	switch env.Status {
	case models.StatusConfirmationRequired:
		rec := pending.Record{"tool": toolName, "args": env.Data, "prompt": prompt(env)}
		switch {
		case toolName == "calendar_add_note" && env.Awaiting == "selection":
			store.Set(pending.FlowCalendarNote, userID, pending.Record{
				"args": env.Data, "awaiting": "selection",
			})
		case toolName == "calendar_cancel_event" && env.Awaiting == "selection":
			store.Set(pending.FlowCalendarCancel, userID, pending.Record{
				"args": env.Data, "awaiting": "selection",
			})
		case toolName == "calendar_cancel_event":
			store.Set(pending.FlowCalendarCancel, userID, rec)
		case toolName == "gmail_send_email":
			store.Set(pending.FlowGmailSend, userID, rec)
		default:
			store.Set(pending.FlowToolConfirm, userID, rec)
		}
		return prompt(env), true

	case models.StatusCommentRequired:
		rec := pending.Record{"args": env.Data, "awaiting": env.Awaiting}
		if toolName == "calendar_add_note" {
			store.Set(pending.FlowCalendarNote, userID, rec)
		} else {
			store.Set(pending.FlowTrelloComment, userID, rec)
		}
		return prompt(env), true

	case models.StatusDispatchRequired:
		store.Set(pending.FlowTrelloDispatch, userID, pending.Record{
			"args": env.Data, "awaiting": env.Awaiting, "question": env.Question,
		})
		return prompt(env), true
	}
	return "", false
}

func prompt(env *models.Envelope) string {
	if env.Question != "" {
		return env.Question
	}
	return env.Message
}

// parsePending parses a tool result and reports whether it is an envelope
// that needs another user turn.
func parsePending(out string) (*models.Envelope, bool) {
	env, ok := models.ParseEnvelope(out)
	if !ok {
		return nil, false
	}
	switch env.Status {
	case models.StatusConfirmationRequired, models.StatusCommentRequired, models.StatusDispatchRequired:
		return env, true
	}
	return nil, false
}

// replyFromResult turns a tool result into user-facing text.
func replyFromResult(out string) string {
	if env, ok := models.ParseEnvelope(out); ok {
		if msg := prompt(env); msg != "" {
			return msg
		}
	}
	return out
}
