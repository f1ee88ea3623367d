package tools

import (
	"context"
	"fmt"

	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

var sendParams = map[string]any{
	"to":      map[string]any{"type": "string", "description": "Recipient address."},
	"subject": map[string]any{"type": "string"},
	"body":    map[string]any{"type": "string"},
	"confirm": map[string]any{"type": "boolean", "description": "Set after the user confirmed the send."},
}

// SendEmailTool sends mail. The first call returns a confirmation envelope
// echoing the draft; the send only happens on the confirmed replay.
type SendEmailTool struct {
	client *gmail.Client
}

func NewSendEmailTool(client *gmail.Client) *SendEmailTool {
	return &SendEmailTool{client: client}
}

func (t *SendEmailTool) Name() string { return "gmail_send_email" }

func (t *SendEmailTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "gmail_send_email",
		Description: "Send an email from the user's Gmail account. Always shows the draft for confirmation first.",
		Parameters:  sendParams,
		Required:    []string{"to", "subject", "body"},
	}
}

func (t *SendEmailTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	to := StringArg(args, "to")
	subject := StringArg(args, "subject")
	body := StringArg(args, "body")

	if !BoolArg(args, "confirm") {
		preview := fmt.Sprintf("About to send this email:\n\nTo: %s\nSubject: %s\n\n%s\n\nSend it? Reply YES to send, or CANCEL.", to, subject, body)
		return models.MarshalEnvelope(&models.Envelope{
			Status:  models.StatusConfirmationRequired,
			Message: preview,
			Data:    map[string]any{"to": to, "subject": subject, "body": body},
		}), nil
	}

	id, err := t.client.SendMessage(ctx, to, subject, body)
	if err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Email sent to %s.", to), map[string]any{"message_id": id}), nil
}

// CreateDraftTool saves a draft without sending. No confirmation needed.
type CreateDraftTool struct {
	client *gmail.Client
}

func NewCreateDraftTool(client *gmail.Client) *CreateDraftTool {
	return &CreateDraftTool{client: client}
}

func (t *CreateDraftTool) Name() string { return "gmail_create_draft" }

func (t *CreateDraftTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "gmail_create_draft",
		Description: "Save an email as a Gmail draft without sending it.",
		Parameters: map[string]any{
			"to":      sendParams["to"],
			"subject": sendParams["subject"],
			"body":    sendParams["body"],
		},
		Required: []string{"to", "subject", "body"},
	}
}

func (t *CreateDraftTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	to := StringArg(args, "to")
	id, err := t.client.CreateDraft(ctx, to, StringArg(args, "subject"), StringArg(args, "body"))
	if err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Draft to %s saved.", to), map[string]any{"draft_id": id}), nil
}
