package flows

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/intent"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
)

// Scan and batch limits shared by the mail flows.
const (
	maxScan     = 5000
	scanPage    = 500
	sampleCount = 5

	deletePerTurn   = 1000
	markReadPerTurn = 2000
)

var (
	olderThanRe = regexp.MustCompile(`(?i)older\s+than\s+(\d+)\s+days?`)
	fromRe      = regexp.MustCompile(`(?i)from:?\s*([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)
	subjectRe   = regexp.MustCompile(`(?i)subject:?\s*"([^"]+)"|subject:(\S+)`)
	labelRe     = regexp.MustCompile(`(?i)label:?\s*"([^"]+)"|label:(\S+)`)
)

// MailDeleteHandler implements the bulk mail delete flow: a dry-run scan
// with samples, an explicit confirmation, then bounded execute turns.
type MailDeleteHandler struct {
	store  *pending.Store
	client *gmail.Client
	log    *observability.Logger
}

func NewMailDeleteHandler(store *pending.Store, client *gmail.Client, log *observability.Logger) *MailDeleteHandler {
	return &MailDeleteHandler{store: store, client: client, log: log}
}

func (h *MailDeleteHandler) Flow() string { return pending.FlowGmailDelete }

// deleteRequest is the parsed fresh request.
type deleteRequest struct {
	query     string
	days      int
	permanent bool
}

// parseDeleteRequest recognizes "delete … older than N days" with optional
// sender, subject, label and a permanent flag.
func parseDeleteRequest(text string) (*deleteRequest, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "delete") {
		return nil, false
	}
	m := olderThanRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days <= 0 {
		return nil, false
	}

	parts := []string{fmt.Sprintf("older_than:%dd", days)}
	if fm := fromRe.FindStringSubmatch(text); fm != nil {
		parts = append(parts, "from:"+fm[1])
	}
	if sm := subjectRe.FindStringSubmatch(text); sm != nil {
		subject := sm[1]
		if subject == "" {
			subject = sm[2]
		}
		parts = append(parts, fmt.Sprintf("subject:%q", subject))
	}
	if lm := labelRe.FindStringSubmatch(text); lm != nil {
		label := lm[1]
		if label == "" {
			label = lm[2]
		}
		parts = append(parts, fmt.Sprintf("label:%q", label))
	}

	return &deleteRequest{
		query:     strings.Join(parts, " "),
		days:      days,
		permanent: strings.Contains(lower, "permanent"),
	}, true
}

func (h *MailDeleteHandler) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	if rec := h.store.Get(pending.FlowGmailDelete, userID); rec != nil {
		return h.continueFlow(ctx, userID, rec, text)
	}

	req, ok := parseDeleteRequest(text)
	if !ok {
		return "", false, nil
	}
	return h.dryRun(ctx, userID, req)
}

func (h *MailDeleteHandler) dryRun(ctx context.Context, userID int64, req *deleteRequest) (string, bool, error) {
	ids, token, err := scanIDs(ctx, h.client, req.query)
	if err != nil {
		h.log.Warn(ctx, "mail delete scan failed", "error", err)
		return "I couldn't search your mail just now. Please try again.", true, err
	}
	if len(ids) == 0 {
		return "No emails match that.", true, nil
	}
	capped := token != ""

	h.store.Set(pending.FlowGmailDelete, userID, pending.Record{
		"phase":      "confirm",
		"query":      req.query,
		"permanent":  req.permanent,
		"buffer":     ids,
		"page_token": token,
		"found":      len(ids),
		"capped":     capped,
		"processed":  0,
	})

	verb := "move them to Trash"
	if req.permanent {
		verb = "permanently delete them"
	}
	count := fmt.Sprintf("%d", len(ids))
	if capped {
		count = "at-least " + count
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I found %s emails older than %d days (query: %s). Say YES to %s, or CANCEL.\n",
		count, req.days, req.query, verb)
	b.WriteString(sampleLines(ctx, h.client, ids))
	return strings.TrimRight(b.String(), "\n"), true, nil
}

func (h *MailDeleteHandler) continueFlow(ctx context.Context, userID int64, rec pending.Record, text string) (string, bool, error) {
	switch {
	case intent.IsCancel(text):
		h.store.Clear(pending.FlowGmailDelete, userID)
		return "Okay, cancelled. Nothing was deleted.", true, nil
	case intent.IsAffirmative(text) || intent.Route(text) == intent.Continue:
		return h.executeTurn(ctx, userID, rec)
	default:
		return "Reply YES to proceed, CONTINUE for the next batch, or CANCEL.", true, nil
	}
}

func (h *MailDeleteHandler) executeTurn(ctx context.Context, userID int64, rec pending.Record) (string, bool, error) {
	query, _ := rec["query"].(string)
	permanent, _ := rec["permanent"].(bool)
	buffer := recordStrings(rec["buffer"])
	token, _ := rec["page_token"].(string)
	processed := recordInt(rec["processed"])

	budget := deletePerTurn
	for budget > 0 {
		if len(buffer) == 0 {
			if token == "" {
				break
			}
			page, err := h.client.ListMessageIDsPage(ctx, query, scanPage, token)
			if err != nil {
				h.store.Clear(pending.FlowGmailDelete, userID)
				return phaseError(processed, err), true, err
			}
			buffer = page.MessageIDs
			token = page.NextPageToken
			if len(buffer) == 0 {
				continue
			}
		}

		n := min3(scanPage, budget, len(buffer))
		batch := buffer[:n]
		var err error
		if permanent {
			err = h.client.BatchDeleteMessages(ctx, batch)
		} else {
			err = h.client.BatchModifyLabels(ctx, batch, []string{gmail.LabelTrash}, []string{gmail.LabelInbox})
		}
		if err != nil {
			h.store.Clear(pending.FlowGmailDelete, userID)
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
		h.store.Set(pending.FlowGmailDelete, userID, rec)
		return fmt.Sprintf("Processed %d of about %d. Reply CONTINUE to process more, or CANCEL.",
			processed, recordInt(rec["found"])), true, nil
	}

	h.store.Clear(pending.FlowGmailDelete, userID)
	if permanent {
		return fmt.Sprintf("Done. Permanently deleted %d emails.", processed), true, nil
	}
	return fmt.Sprintf("Done. Moved %d emails to Trash.", processed), true, nil
}

// scanIDs pages through matching ids up to maxScan. A non-empty returned
// token means more matches exist beyond the scan cap.
func scanIDs(ctx context.Context, client *gmail.Client, query string) ([]string, string, error) {
	var ids []string
	token := ""
	for len(ids) < maxScan {
		page, err := client.ListMessageIDsPage(ctx, query, scanPage, token)
		if err != nil {
			return nil, "", err
		}
		ids = append(ids, page.MessageIDs...)
		token = page.NextPageToken
		if token == "" {
			break
		}
	}
	return ids, token, nil
}

// sampleLines renders up to sampleCount "From — Subject" preview lines.
// Header fetch failures just shorten the preview.
func sampleLines(ctx context.Context, client *gmail.Client, ids []string) string {
	n := sampleCount
	if n > len(ids) {
		n = len(ids)
	}
	var b strings.Builder
	for _, id := range ids[:n] {
		headers, err := client.GetMessageHeaders(ctx, id)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s — %s\n", headers["From"], headers["Subject"])
	}
	return b.String()
}

func phaseError(processed int, err error) string {
	return fmt.Sprintf("Error during EXECUTE\nProcessed: %d\nDetails: %v", processed, err)
}

func recordStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func recordInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
