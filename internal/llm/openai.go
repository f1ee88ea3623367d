package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// OpenAIProvider implements Provider over the chat-completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for the given model.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Call(ctx context.Context, req *Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		params, err := json.Marshal(schemaFor(def))
		if err != nil {
			return nil, fmt.Errorf("encode tool schema %s: %w", def.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindTransient, "openai call", err)
	}
	if len(resp.Choices) == 0 {
		return nil, faults.New(faults.KindInternal, "openai returned no choices")
	}

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) > 0 {
		calls := make([]models.ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			calls = append(calls, models.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		return &Response{Type: ResponseToolCalls, ToolCalls: calls}, nil
	}
	return &Response{Type: ResponseMessage, Text: choice.Content}, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Content: m.Content}
	switch m.Role {
	case "assistant":
		out.Role = openai.ChatMessageRoleAssistant
		for _, tc := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
	case "tool":
		out.Role = openai.ChatMessageRoleTool
		out.ToolCallID = m.ToolCallID
	default:
		out.Role = openai.ChatMessageRoleUser
	}
	return out
}
