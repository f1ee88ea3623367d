package bulk

import (
	"context"
	"fmt"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
)

// pageTokenDone marks an exhausted listing; an empty token means the first
// page has not been fetched yet.
const pageTokenDone = "none"

// listPageSize is the id-page size for the interactive pipeline. The total
// is capped at MaxTotalItems, so one page usually covers the whole job.
const listPageSize = 100

// Mail actions the adapter supports.
const (
	ActionTrash    = "trash"
	ActionMarkRead = "markread"
	ActionArchive  = "archive"
	ActionDelete   = "delete"
	ActionLabel    = "label"
)

// GmailAdapter runs bulk label changes and deletions against Gmail. The id
// buffer and page cursor live in the prepared context's metadata so they
// survive in the persisted bulk state.
type GmailAdapter struct {
	client *gmail.Client
	action string
}

// NewGmailAdapter creates an adapter for one of the mail actions.
func NewGmailAdapter(client *gmail.Client, action string) (*GmailAdapter, error) {
	switch action {
	case ActionTrash, ActionMarkRead, ActionArchive, ActionDelete, ActionLabel:
		return &GmailAdapter{client: client, action: action}, nil
	default:
		return nil, fmt.Errorf("unsupported mail bulk action %q", action)
	}
}

func (a *GmailAdapter) Prepare(params map[string]any) (*PreparedContext, error) {
	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, faults.New(faults.KindValidation, "a search query is required")
	}
	pc := &PreparedContext{
		Query: query,
		Metadata: map[string]any{
			"page_token": "",
			"buffer":     []any{},
		},
	}
	if a.action == ActionLabel {
		name, _ := params["label"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, faults.New(faults.KindValidation, "a label name is required")
		}
		pc.Metadata["label_name"] = name
	}
	return pc, nil
}

func (a *GmailAdapter) TotalCount(pc *PreparedContext) int {
	switch v := pc.Metadata["total_estimated_count"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (a *GmailAdapter) NextBatch(ctx context.Context, pc *PreparedContext, size, offset int) ([]string, error) {
	// The label is resolved once, during the start turn's fill call; the id
	// rides in the metadata for every later batch.
	if a.action == ActionLabel {
		if _, ok := pc.Metadata["label_id"].(string); !ok {
			name, _ := pc.Metadata["label_name"].(string)
			label, err := a.client.ResolveLabelID(ctx, name)
			if err != nil {
				return nil, err
			}
			pc.Metadata["label_id"] = label.ID
		}
	}

	buffer := stringSlice(pc.Metadata["buffer"])
	token, _ := pc.Metadata["page_token"].(string)

	// At most one list call per turn: only when the buffer cannot cover the
	// batch and more pages exist. size==0 is the start turn's fill-only call.
	if (size == 0 || len(buffer) < size) && token != pageTokenDone {
		page, err := a.client.ListMessageIDsPage(ctx, pc.Query, listPageSize, token)
		if err != nil {
			return nil, err
		}
		buffer = append(buffer, page.MessageIDs...)
		if page.NextPageToken == "" {
			pc.Metadata["page_token"] = pageTokenDone
		} else {
			pc.Metadata["page_token"] = page.NextPageToken
		}
		if _, ok := pc.Metadata["total_estimated_count"]; !ok {
			pc.Metadata["total_estimated_count"] = page.ResultSizeEstimate
		}
	}

	n := size
	if n > len(buffer) {
		n = len(buffer)
	}
	batch := buffer[:n]
	pc.Metadata["buffer"] = toAnySlice(buffer[n:])
	return batch, nil
}

func (a *GmailAdapter) ExecuteBatch(ctx context.Context, items []string, pc *PreparedContext) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var err error
	switch a.action {
	case ActionTrash:
		err = a.client.BatchModifyLabels(ctx, items, []string{gmail.LabelTrash}, []string{gmail.LabelInbox})
	case ActionMarkRead:
		err = a.client.BatchModifyLabels(ctx, items, nil, []string{gmail.LabelUnread})
	case ActionArchive:
		err = a.client.BatchModifyLabels(ctx, items, nil, []string{gmail.LabelInbox})
	case ActionDelete:
		err = a.client.BatchDeleteMessages(ctx, items)
	case ActionLabel:
		labelID, _ := pc.Metadata["label_id"].(string)
		if labelID == "" {
			return nil, faults.New(faults.KindInternal, "label not resolved before execution")
		}
		err = a.client.BatchModifyLabels(ctx, items, []string{labelID}, nil)
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(items))
	for i, id := range items {
		results[i] = Result{ID: id}
	}
	return results, nil
}

func stringSlice(v any) []string {
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

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
