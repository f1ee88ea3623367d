package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// AnthropicProvider implements Provider over the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider for the given model.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Call(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params.Messages = messages

	tools, err := toAnthropicTools(req.Tools)
	if err != nil {
		return nil, err
	}
	params.Tools = tools

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, faults.Wrap(faults.KindTransient, "anthropic call", err)
	}

	var (
		text  string
		calls []models.ToolCall
	)
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, models.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(b.Input),
			})
		}
	}
	if len(calls) > 0 {
		return &Response{Type: ResponseToolCalls, ToolCalls: calls}, nil
	}
	return &Response{Type: ResponseMessage, Text: text}, nil
}

func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Role == "tool" {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Arguments, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call arguments: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func toAnthropicTools(defs []ToolDef) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, def := range defs {
		data, err := json.Marshal(schemaFor(def))
		if err != nil {
			return nil, fmt.Errorf("encode tool schema %s: %w", def.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", def.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", def.Name)
		}
		toolParam.OfTool.Description = anthropic.String(def.Description)
		result = append(result, toolParam)
	}
	return result, nil
}
