package tools

import (
	"context"

	"github.com/majordomo-labs/majordomo/internal/bulk"
	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// BulkMailTool starts a batched mail operation. The user then drives it
// with continue/cancel outside the LLM loop. The acting user id travels in
// the context.
type BulkMailTool struct {
	controller *bulk.Controller
}

func NewBulkMailTool(controller *bulk.Controller) *BulkMailTool {
	return &BulkMailTool{controller: controller}
}

func (t *BulkMailTool) Name() string { return "gmail_bulk_operation" }

func (t *BulkMailTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "gmail_bulk_operation",
		Description: "Start a batched operation over emails matching a Gmail query: trash, markread, archive, delete or label. Works through matches in small confirmed batches.",
		Parameters: map[string]any{
			"action":     map[string]any{"type": "string", "enum": []string{"trash", "markread", "archive", "delete", "label"}},
			"query":      map[string]any{"type": "string", "description": "Gmail search query, e.g. from:news@example.com is:unread."},
			"label":      map[string]any{"type": "string", "description": "Label name to apply; required for the label action."},
			"batch_size": map[string]any{"type": "integer", "description": "Items per batch, 5-20."},
		},
		Required: []string{"action", "query"},
	}
}

func (t *BulkMailTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	userID := observability.UserID(ctx)
	if userID == 0 {
		return envelope(models.StatusError, "no user in scope for a bulk operation"), nil
	}

	batchSize := bulk.MinBatchSize
	if v, ok := args["batch_size"].(float64); ok {
		batchSize = int(v)
	}

	params := map[string]any{"query": StringArg(args, "query")}
	if label := StringArg(args, "label"); label != "" {
		params["label"] = label
	}
	msg, err := t.controller.Start(ctx, userID, "mail", StringArg(args, "action"), params, batchSize)
	if err != nil {
		if faults.Is(err, faults.KindValidation) {
			return envelope(models.StatusError, faults.UserMessage(err)), nil
		}
		return "", err
	}
	return completed(msg, nil), nil
}
