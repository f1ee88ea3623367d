package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
)

// Spam-clean sub-actions.
const (
	spamMoveToTrash = "move_to_trash"
	spamPurgeTrash  = "purge_trash"
)

// perMessageRetries bounds retries when a batch label change fails and the
// handler falls back to per-message modifications.
const perMessageRetries = 3

// SpamCleanHandler empties the spam folder (move to trash) or purges the
// trash (permanent delete). Unlike the other mail flows it drains fully
// within the execute turn, since both folders are bounded.
type SpamCleanHandler struct {
	store  *pending.Store
	client *gmail.Client
	log    *observability.Logger
}

func NewSpamCleanHandler(store *pending.Store, client *gmail.Client, log *observability.Logger) *SpamCleanHandler {
	return &SpamCleanHandler{store: store, client: client, log: log}
}

func (h *SpamCleanHandler) Flow() string { return pending.FlowGmailSpamClean }

// parseSpamCleanRequest recognizes "clean/empty/clear spam" and
// "empty/purge trash".
func parseSpamCleanRequest(text string) (action, query string, ok bool) {
	lower := strings.ToLower(text)
	verb := strings.Contains(lower, "clean") || strings.Contains(lower, "empty") ||
		strings.Contains(lower, "clear") || strings.Contains(lower, "purge")
	if !verb {
		return "", "", false
	}
	switch {
	case strings.Contains(lower, "spam"):
		return spamMoveToTrash, "in:spam", true
	case strings.Contains(lower, "trash"):
		return spamPurgeTrash, "in:trash", true
	default:
		return "", "", false
	}
}

func (h *SpamCleanHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	if rec := h.store.Get(pending.FlowGmailSpamClean, userID); rec != nil {
		return h.continueFlow(ctx, userID, rec, text)
	}

	action, query, ok := parseSpamCleanRequest(text)
	if !ok {
		return "", false, nil
	}
	return h.dryRun(ctx, userID, action, query)
}

// dryRun fetches exactly one page to size the job.
func (h *SpamCleanHandler) dryRun(ctx context.Context, userID int64, action, query string) (string, bool, error) {
	page, err := h.client.ListMessageIDsPage(ctx, query, scanPage, "")
	if err != nil {
		h.log.Warn(ctx, "spam clean scan failed", "error", err)
		return "I couldn't check that folder just now. Please try again.", true, err
	}
	estimate := page.ResultSizeEstimate
	if estimate < len(page.MessageIDs) {
		estimate = len(page.MessageIDs)
	}
	if estimate == 0 {
		if action == spamMoveToTrash {
			return "Your spam folder is already empty.", true, nil
		}
		return "Your trash is already empty.", true, nil
	}

	h.store.Set(pending.FlowGmailSpamClean, userID, pending.Record{
		"action":   action,
		"query":    query,
		"estimate": estimate,
	})

	if action == spamMoveToTrash {
		return fmt.Sprintf("About %d messages in spam. Reply YES to move them all to Trash, or CANCEL.", estimate), true, nil
	}
	return fmt.Sprintf("About %d messages in trash. Reply YES to permanently delete them, or CANCEL.", estimate), true, nil
}

func (h *SpamCleanHandler) continueFlow(ctx context.Context, userID int64, rec pending.Record, text string) (string, bool, error) {
	switch {
	case intent.IsCancel(text):
		h.store.Clear(pending.FlowGmailSpamClean, userID)
		return "Okay, cancelled.", true, nil
	case intent.IsAffirmative(text) || intent.Route(text) == intent.Continue:
		return h.execute(ctx, userID, rec)
	default:
		return "Reply YES to proceed, or CANCEL.", true, nil
	}
}

// execute drains the folder one page at a time. Processed messages fall out
// of the query, so each iteration re-fetches the first page.
func (h *SpamCleanHandler) execute(ctx context.Context, userID int64, rec pending.Record) (string, bool, error) {
	action, _ := rec["action"].(string)
	query, _ := rec["query"].(string)
	h.store.Clear(pending.FlowGmailSpamClean, userID)

	processed := 0
	skipped := map[string]bool{}
	for {
		page, err := h.client.ListMessageIDsPage(ctx, query, scanPage, "")
		if err != nil {
			return phaseError(processed, err), true, err
		}

		ids := make([]string, 0, len(page.MessageIDs))
		for _, id := range page.MessageIDs {
			if !skipped[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			break
		}

		if action == spamPurgeTrash {
			if err := h.client.BatchDeleteMessages(ctx, ids); err != nil {
				return phaseError(processed, err), true, err
			}
			processed += len(ids)
			continue
		}

		err = h.client.BatchModifyLabels(ctx, ids, []string{gmail.LabelTrash}, []string{gmail.LabelSpam})
		if err == nil {
			processed += len(ids)
			continue
		}

		// Batch failed: fall back to per-message moves with bounded retries.
		// A 403 on retry means the message is locked; skip it.
		done, skippedNow, perr := h.perMessageMove(ctx, ids)
		processed += done
		for _, id := range skippedNow {
			skipped[id] = true
		}
		if perr != nil {
			return phaseError(processed, perr), true, perr
		}
	}

	if action == spamPurgeTrash {
		return fmt.Sprintf("Permanently deleted %d emails from Trash.", processed), true, nil
	}
	if len(skipped) > 0 {
		return fmt.Sprintf("Moved %d spam emails to Trash; %d locked messages were skipped.", processed, len(skipped)), true, nil
	}
	return fmt.Sprintf("Moved %d spam emails to Trash.", processed), true, nil
}

func (h *SpamCleanHandler) perMessageMove(ctx context.Context, ids []string) (processed int, skipped []string, err error) {
	for _, id := range ids {
		var lastErr error
		for attempt := 0; attempt < perMessageRetries; attempt++ {
			lastErr = h.client.BatchModifyLabels(ctx, []string{id}, []string{gmail.LabelTrash}, []string{gmail.LabelSpam})
			if lastErr == nil {
				processed++
				break
			}
			if attempt > 0 && faults.Is(lastErr, faults.KindAuth) {
				// Locked message; leave it behind.
				skipped = append(skipped, id)
				lastErr = nil
				break
			}
		}
		if lastErr != nil {
			if faults.Is(lastErr, faults.KindAuth) {
				skipped = append(skipped, id)
				continue
			}
			return processed, skipped, lastErr
		}
	}
	return processed, skipped, nil
}
