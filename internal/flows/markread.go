package flows

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// MarkReadHandler implements bulk mark-as-read for one sender: same
// dry-run/confirm scheme as mail delete, with a larger per-turn budget
// since label changes are cheap and reversible.
type MarkReadHandler struct {
	store  *pending.Store
	client *gmail.Client
	log    *observability.Logger
}

func NewMarkReadHandler(store *pending.Store, client *gmail.Client, log *observability.Logger) *MarkReadHandler {
	return &MarkReadHandler{store: store, client: client, log: log}
}

func (h *MarkReadHandler) Flow() string { return pending.FlowGmailMarkRead }

// parseMarkReadRequest requires the literal tokens mark, read, all and
// from, plus a sender address.
func parseMarkReadRequest(text string) (addr, query string, ok bool) {
	lower := strings.ToLower(text)
	for _, tok := range []string{"mark", "read", "all", "from"} {
		if !strings.Contains(lower, tok) {
			return "", "", false
		}
	}
	addr = emailRe.FindString(text)
	if addr == "" {
		return "", "", false
	}
	return addr, fmt.Sprintf("from:%s is:unread", addr), true
}

func (h *MarkReadHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	if rec := h.store.Get(pending.FlowGmailMarkRead, userID); rec != nil {
		return h.continueFlow(ctx, userID, rec, text)
	}

	addr, query, ok := parseMarkReadRequest(text)
	if !ok {
		return "", false, nil
	}
	return h.dryRun(ctx, userID, addr, query)
}

func (h *MarkReadHandler) dryRun(ctx context.Context, userID int64, addr, query string) (string, bool, error) {
	ids, token, err := scanIDs(ctx, h.client, query)
	if err != nil {
		h.log.Warn(ctx, "mark-read scan failed", "error", err)
		return "I couldn't search your mail just now. Please try again.", true, err
	}
	if len(ids) == 0 {
		return fmt.Sprintf("No unread emails from %s.", addr), true, nil
	}
	capped := token != ""

	h.store.Set(pending.FlowGmailMarkRead, userID, pending.Record{
		"phase":      "confirm",
		"address":    addr,
		"query":      query,
		"buffer":     ids,
		"page_token": token,
		"found":      len(ids),
		"capped":     capped,
		"processed":  0,
	})

	count := fmt.Sprintf("%d", len(ids))
	if capped {
		count = "at-least " + count
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I found %s unread emails (query: %s). Say YES to mark them all as read, or CANCEL.\n", count, query)
	b.WriteString(sampleLines(ctx, h.client, ids))
	return strings.TrimRight(b.String(), "\n"), true, nil
}

func (h *MarkReadHandler) continueFlow(ctx context.Context, userID int64, rec pending.Record, text string) (string, bool, error) {
	switch {
	case intent.IsCancel(text):
		h.store.Clear(pending.FlowGmailMarkRead, userID)
		return "Okay, cancelled.", true, nil
	case intent.IsAffirmative(text) || intent.Route(text) == intent.Continue:
		return h.executeTurn(ctx, userID, rec)
	default:
		return "Reply YES to proceed, CONTINUE for the next batch, or CANCEL.", true, nil
	}
}

func (h *MarkReadHandler) executeTurn(ctx context.Context, userID int64, rec pending.Record) (string, bool, error) {
	query, _ := rec["query"].(string)
	buffer := recordStrings(rec["buffer"])
	token, _ := rec["page_token"].(string)
	processed := recordInt(rec["processed"])

	budget := markReadPerTurn
	for budget > 0 {
		if len(buffer) == 0 {
			if token == "" {
				break
			}
			page, err := h.client.ListMessageIDsPage(ctx, query, scanPage, token)
			if err != nil {
				h.store.Clear(pending.FlowGmailMarkRead, userID)
				return phaseError(processed, err), true, err
			}
			buffer = page.MessageIDs
			token = page.NextPageToken
			if len(buffer) == 0 {
				continue
			}
		}

		n := min3(scanPage, budget, len(buffer))
		if err := h.client.BatchModifyLabels(ctx, buffer[:n], nil, []string{gmail.LabelUnread}); err != nil {
			h.store.Clear(pending.FlowGmailMarkRead, userID)
			return phaseError(processed, err), true, err
		}
		buffer = buffer[n:]
		processed += n
		budget -= n
	}

	if len(buffer) > 0 || token != "" {
		rec["phase"] = "execute"
		rec["buffer"] = buffer
		rec["page_token"] = token
		rec["processed"] = processed
		h.store.Set(pending.FlowGmailMarkRead, userID, rec)
		return fmt.Sprintf("Processed %d of about %d. Reply CONTINUE to process more, or CANCEL.",
			processed, recordInt(rec["found"])), true, nil
	}

	h.store.Clear(pending.FlowGmailMarkRead, userID)
	addr, _ := rec["address"].(string)
	return fmt.Sprintf("Done. Marked all unread messages from %s as read.", addr), true, nil
}
