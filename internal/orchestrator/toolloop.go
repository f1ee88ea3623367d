package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/majordomo-labs/majordomo/internal/confidence"
	"github.com/majordomo-labs/majordomo/internal/flows"
	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

const (
	// maxLoopSteps bounds the tool loop; each step is exactly one LLM call
	// and at most one tool invocation.
	maxLoopSteps = 10

	// maxToolContentChars caps a tool result fed back to the model.
	maxToolContentChars = 8000

	truncationMarker = "…[truncated]"

	stuckReply   = "I got stuck trying to finish that. Could you rephrase and try again?"
	apologyReply = "Sorry, something went wrong on my end. Please try again."
)

// runToolLoop drives the bounded LLM tool loop until the model produces
// plain text, a tool needs another user turn, or the step cap is hit.
func (o *Orchestrator) runToolLoop(ctx context.Context, userID int64, system string, messages []llm.Message) string {
	defs := o.registry.Definitions()

	for step := 1; step <= maxLoopSteps; step++ {
		callCtx, span := observability.StartSpan(ctx, "llm.call",
			attribute.String("llm.provider", o.provider.Name()),
			attribute.Int("loop.step", step))
		resp, err := o.provider.Call(callCtx, &llm.Request{
			System:   system,
			Messages: messages,
			Tools:    defs,
		})
		observability.EndSpan(span, err)
		if err != nil {
			o.metrics.LLMRequests.WithLabelValues(o.provider.Name(), "error").Inc()
			o.log.Error(ctx, "llm call failed", "error", err)
			return apologyReply
		}
		o.metrics.LLMRequests.WithLabelValues(o.provider.Name(), "success").Inc()

		if resp.Type == llm.ResponseMessage {
			o.metrics.LLMLoopIterations.Observe(float64(step))
			return resp.Text
		}
		if len(resp.ToolCalls) == 0 {
			o.log.Warn(ctx, "tool response without tool calls")
			return apologyReply
		}

		call := resp.ToolCalls[0]
		reply, done := o.runToolStep(ctx, userID, call, &messages)
		if done {
			o.metrics.LLMLoopIterations.Observe(float64(step))
			return reply
		}
	}

	o.metrics.LLMLoopIterations.Observe(float64(maxLoopSteps))
	o.log.Warn(ctx, "tool loop exhausted", "steps", maxLoopSteps)
	return stuckReply
}

// runToolStep executes one rewritten tool call. done=true means the loop
// terminates with reply; otherwise the transcript grew and the loop
// continues.
func (o *Orchestrator) runToolStep(ctx context.Context, userID int64, call models.ToolCall, messages *[]llm.Message) (string, bool) {
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			o.log.Warn(ctx, "unparseable tool arguments", "tool", call.Name, "error", err)
			o.appendToolExchange(messages, call, fmt.Sprintf("invalid arguments: %v", err))
			return "", false
		}
	}

	name, args := rewriteCall(call.Name, args)

	// A call the scorer can't trust never executes this turn: stash it and
	// ask the one clarification instead. 70-89 asks exactly once.
	if a := confidence.Score(name, args, nil); a.Awaiting != "" && a.Score <= confidence.OneShotThreshold {
		o.store.Set(pending.FlowConfidenceClarify, userID, pending.Record{
			"tool":     name,
			"args":     args,
			"awaiting": a.Awaiting,
			"question": a.Question,
			"one_shot": a.Score >= confidence.ClarifyThreshold,
		})
		return a.Question, true
	}

	raw, err := json.Marshal(args)
	if err != nil {
		o.log.Error(ctx, "unencodable tool arguments", "tool", name, "error", err)
		return apologyReply, true
	}
	execCtx, span := observability.StartSpan(ctx, "tool.execute",
		attribute.String("tool.name", name))
	out, err := o.registry.Execute(execCtx, name, raw)
	observability.EndSpan(span, err)
	if err != nil {
		o.metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		o.log.Error(ctx, "tool execution failed", "tool", name, "error", err)
		o.appendToolExchange(messages, call, fmt.Sprintf("tool failed: %v", err))
		return "", false
	}
	o.metrics.ToolExecutions.WithLabelValues(name, "success").Inc()

	// Pending envelopes consume the turn: persist and prompt the user.
	if env, ok := models.ParseEnvelope(out); ok {
		if reply, claimed := flows.PersistEnvelope(o.store, userID, name, env); claimed {
			return reply, true
		}
		// A found card with a link needs no further model round.
		if name == "trello_find_card" && env.Status == models.StatusCompleted {
			if url, _ := env.Data["url"].(string); url != "" {
				return env.Message, true
			}
		}
	}

	o.appendToolExchange(messages, call, out)
	return "", false
}

// appendToolExchange records the assistant tool request and its (truncated)
// result in the transcript.
func (o *Orchestrator) appendToolExchange(messages *[]llm.Message, call models.ToolCall, result string) {
	if len(result) > maxToolContentChars {
		result = result[:maxToolContentChars] + truncationMarker
	}
	*messages = append(*messages,
		llm.Message{Role: "assistant", ToolCalls: []models.ToolCall{call}},
		llm.Message{Role: "tool", Content: result, ToolCallID: call.ID},
	)
}
