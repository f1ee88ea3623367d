package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/majordomo-labs/majordomo/internal/flows"
	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/memory"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/tools"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

const testUser int64 = 7

// scriptedProvider returns queued responses in order.
type scriptedProvider struct {
	responses []*llm.Response
	requests  []*llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return &llm.Response{Type: llm.ResponseMessage, Text: "out of script"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Type: llm.ResponseMessage, Text: text}
}

func toolResponse(id, name string, args map[string]any) *llm.Response {
	raw, _ := json.Marshal(args)
	return &llm.Response{Type: llm.ResponseToolCalls, ToolCalls: []models.ToolCall{
		{ID: id, Name: name, Arguments: raw},
	}}
}

type stubTool struct {
	name     string
	result   string
	lastArgs map[string]any
	calls    int
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Definition() llm.ToolDef { return llm.ToolDef{Name: s.name} }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	s.calls++
	s.lastArgs = args
	return s.result, nil
}

type harness struct {
	orch     *Orchestrator
	provider *scriptedProvider
	registry *tools.Registry
	store    *pending.Store
	mem      *memory.MemoryStore
}

func newHarness(t *testing.T, responses ...*llm.Response) *harness {
	t.Helper()
	store, err := pending.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	provider := &scriptedProvider{responses: responses}
	registry := tools.NewRegistry()
	mem := memory.NewMemoryStore()
	log := observability.NewNopLogger()
	metrics := observability.NewTestMetrics()
	chain := flows.NewChain(log, metrics,
		flows.NewToolConfirmHandler(store, registry),
		flows.NewClarifyHandler(store, registry),
		flows.NewDispatchHandler(store, registry),
		flows.NewCommentHandler(store, registry),
		flows.NewMailSendHandler(store, registry),
		flows.NewCalendarNoteHandler(store, registry),
		flows.NewCalendarCancelHandler(store, registry),
	)
	return &harness{
		orch:     New(chain, provider, registry, store, mem, nil, log, metrics),
		provider: provider,
		registry: registry,
		store:    store,
		mem:      mem,
	}
}

func turn(text string) *models.TurnInput {
	return &models.TurnInput{UserID: testUser, ChatID: testUser, Type: models.OriginText, Message: text, Timestamp: time.Now()}
}

func TestPlainTextTurn(t *testing.T) {
	h := newHarness(t, textResponse("Hello! How can I help?"))
	reply := h.orch.HandleTurn(context.Background(), turn("hi"))
	if reply != "Hello! How can I help?" {
		t.Fatalf("reply: %q", reply)
	}

	h.orch.Flush()
	turns, err := h.mem.RecentTurns(context.Background(), testUser, 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Fatalf("memory writes: %+v", turns)
	}
}

func TestToolLoopExecutesAndIterates(t *testing.T) {
	h := newHarness(t,
		toolResponse("c1", "calendar_list_events", map[string]any{}),
		textResponse("You have one meeting today."),
	)
	tool := &stubTool{name: "calendar_list_events", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "1 event",
	})}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("what's on today?"))
	if reply != "You have one meeting today." {
		t.Fatalf("reply: %q", reply)
	}
	if tool.calls != 1 {
		t.Fatalf("tool calls: %d", tool.calls)
	}

	// Second LLM request must carry the assistant tool call and its result.
	second := h.provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" {
		t.Fatalf("transcript tail: %+v", last)
	}
}

func TestLowConfidenceCallNeverExecutes(t *testing.T) {
	h := newHarness(t,
		toolResponse("c1", "gmail_send_email", map[string]any{}),
	)
	tool := &stubTool{name: "gmail_send_email", result: "sent"}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("send an email"))
	if tool.calls != 0 {
		t.Fatal("low-confidence call must not execute on the same turn")
	}
	if reply == "" {
		t.Fatal("expected a clarification question")
	}
	rec := h.store.Get(pending.FlowConfidenceClarify, testUser)
	if rec == nil {
		t.Fatal("clarify record must persist")
	}
	if oneShot, _ := rec["one_shot"].(bool); oneShot {
		t.Fatal("empty-args send must be the repeatable variant")
	}
}

func TestMidBandCallAsksOnce(t *testing.T) {
	h := newHarness(t,
		toolResponse("c1", "trello_get_card_status", map[string]any{"card_name": "X"}),
	)
	tool := &stubTool{name: "trello_get_card_status", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "'X' is in 'Doing'.",
	})}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("where is card X?"))
	if tool.calls != 0 {
		t.Fatal("mid-band call must ask before executing")
	}
	rec := h.store.Get(pending.FlowConfidenceClarify, testUser)
	if rec == nil {
		t.Fatalf("clarify record must persist; reply=%q", reply)
	}
	if oneShot, _ := rec["one_shot"].(bool); !oneShot {
		t.Fatal("mid-band clarify must be one-shot")
	}

	// Next turn routes through the clarify handler and executes.
	reply = h.orch.HandleTurn(context.Background(), turn("Missions"))
	if reply != "'X' is in 'Doing'." {
		t.Fatalf("continuation reply: %q", reply)
	}
	if tool.calls != 1 {
		t.Fatalf("tool calls after clarify: %d", tool.calls)
	}
	if tool.lastArgs["board_name"] != "Missions" {
		t.Fatalf("answer not spliced: %v", tool.lastArgs)
	}
}

func TestConfirmationEnvelopePersistsAndPrompts(t *testing.T) {
	h := newHarness(t,
		toolResponse("c1", "trello_dispatch", map[string]any{
			"action": "delete", "card_id": "abcdefabcdefabcdefabcdef", "card_name": "Old plan",
		}),
	)
	tool := &stubTool{name: "trello_dispatch", result: models.MarshalEnvelope(&models.Envelope{
		Status:  models.StatusConfirmationRequired,
		Message: "Permanently delete card 'Old plan'? This can't be undone. Say YES to delete, or CANCEL.",
		Data:    map[string]any{"action": "delete", "card_id": "abcdefabcdefabcdefabcdef"},
	})}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("delete the old plan card"))
	if !strings.Contains(reply, "Say YES to delete") {
		t.Fatalf("reply: %q", reply)
	}
	if h.store.Get(pending.FlowToolConfirm, testUser) == nil {
		t.Fatal("tool-confirm record must persist")
	}

	// YES replays with confirm=true through the chain.
	tool.result = models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Task 'Old plan' deleted.",
	})
	reply = h.orch.HandleTurn(context.Background(), turn("YES"))
	if reply != "Task 'Old plan' deleted." {
		t.Fatalf("confirmed reply: %q", reply)
	}
	if tool.lastArgs["confirm"] != true {
		t.Fatalf("confirm flag: %v", tool.lastArgs)
	}
}

func TestFindCardURLShortCircuits(t *testing.T) {
	h := newHarness(t,
		toolResponse("c1", "trello_find_card", map[string]any{"card_name": "Roadmap", "board_name": "Work"}),
		textResponse("should never be asked"),
	)
	tool := &stubTool{name: "trello_find_card", result: models.MarshalEnvelope(&models.Envelope{
		Status:  models.StatusCompleted,
		Message: "Found 'Roadmap': https://trello.com/c/abc123",
		Data:    map[string]any{"url": "https://trello.com/c/abc123"},
	})}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("find the roadmap card on Work"))
	if reply != "Found 'Roadmap': https://trello.com/c/abc123" {
		t.Fatalf("reply: %q", reply)
	}
	if len(h.provider.requests) != 1 {
		t.Fatalf("link result must not go back to the model; %d requests", len(h.provider.requests))
	}
}

func TestLoopCapReturnsStuckMessage(t *testing.T) {
	responses := make([]*llm.Response, 0, maxLoopSteps+1)
	for i := 0; i <= maxLoopSteps; i++ {
		responses = append(responses, toolResponse("c", "calendar_list_events", map[string]any{}))
	}
	h := newHarness(t, responses...)
	tool := &stubTool{name: "calendar_list_events", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "nothing",
	})}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("loop forever"))
	if reply != stuckReply {
		t.Fatalf("reply: %q", reply)
	}
	if tool.calls != maxLoopSteps {
		t.Fatalf("tool calls: %d, want %d", tool.calls, maxLoopSteps)
	}
}

func TestToolResultTruncation(t *testing.T) {
	big := strings.Repeat("x", maxToolContentChars+100)
	h := newHarness(t,
		toolResponse("c1", "calendar_list_events", map[string]any{}),
		textResponse("done"),
	)
	h.registry.Register(&stubTool{name: "calendar_list_events", result: big})

	h.orch.HandleTurn(context.Background(), turn("list everything"))
	second := h.provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.Content) > maxToolContentChars+len(truncationMarker) {
		t.Fatalf("content not truncated: %d chars", len(last.Content))
	}
	if !strings.HasSuffix(last.Content, truncationMarker) {
		t.Fatal("missing truncation marker")
	}
}

func TestContextCarriesSummaryAndHistory(t *testing.T) {
	h := newHarness(t, textResponse("ok"))
	ctx := context.Background()
	h.mem.UpsertSummary(ctx, testUser, "Prefers morning meetings.")
	h.mem.AppendTurn(ctx, &models.ConversationTurn{UserID: testUser, Role: models.RoleUser, Content: "earlier question", CreatedAt: time.Now()})
	h.mem.AppendTurn(ctx, &models.ConversationTurn{UserID: testUser, Role: models.RoleAssistant, Content: "earlier answer", CreatedAt: time.Now()})

	h.orch.HandleTurn(ctx, turn("new question"))
	req := h.provider.requests[0]
	if !strings.Contains(req.System, "Prefers morning meetings.") {
		t.Fatal("summary missing from system prompt")
	}
	if len(req.Messages) != 3 || req.Messages[0].Content != "earlier question" {
		t.Fatalf("history: %+v", req.Messages)
	}
	if req.Messages[2].Content != "new question" {
		t.Fatalf("current message last: %+v", req.Messages[2])
	}
}

func TestRewriteLowLevelTrelloTools(t *testing.T) {
	name, args := rewriteCall("trello_move_card", map[string]any{
		"name": "Design", "list": "Done", "board": "Work",
	})
	if name != "trello_dispatch" {
		t.Fatalf("name: %q", name)
	}
	if args["action"] != "move" || args["card_name"] != "Design" || args["to_list_name"] != "Done" || args["board_name"] != "Work" {
		t.Fatalf("args: %v", args)
	}

	name, args = rewriteCall("trello_update_card", map[string]any{
		"card_name": "Design", "note": "looks good",
	})
	if name != "trello_dispatch" || args["action"] != "comment" || args["comment_text"] != "looks good" {
		t.Fatalf("comment reroute: %q %v", name, args)
	}

	// Explicit fields win over aliases; unrelated tools pass through.
	_, args = rewriteCall("trello_move_card", map[string]any{
		"name": "A", "card_name": "B",
	})
	if args["card_name"] != "B" {
		t.Fatalf("alias must not overwrite explicit field: %v", args)
	}
	name, _ = rewriteCall("gmail_send_email", map[string]any{"to": "a@b.co"})
	if name != "gmail_send_email" {
		t.Fatalf("passthrough: %q", name)
	}
}

func TestDispatchEnvelopeRoundTrip(t *testing.T) {
	h := newHarness(t,
		toolResponse("c1", "trello_dispatch", map[string]any{
			"action": "move", "card_name": "Design", "board_name": "Work",
		}),
	)
	tool := &stubTool{name: "trello_dispatch", result: models.MarshalEnvelope(&models.Envelope{
		Status:   models.StatusDispatchRequired,
		Awaiting: "to_list_name",
		Question: "Which Trello list should I move it to?",
		Data:     map[string]any{"action": "move", "card_name": "Design", "board_name": "Work"},
	})}
	h.registry.Register(tool)

	reply := h.orch.HandleTurn(context.Background(), turn("move Design on Work"))
	if reply != "Which Trello list should I move it to?" {
		t.Fatalf("reply: %q", reply)
	}

	tool.result = models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Task 'Design' moved to 'Done'.",
	})
	reply = h.orch.HandleTurn(context.Background(), turn("Done"))
	if reply != "Task 'Design' moved to 'Done'." {
		t.Fatalf("continuation: %q", reply)
	}
	if tool.lastArgs["to_list_name"] != "Done" {
		t.Fatalf("spliced args: %v", tool.lastArgs)
	}
	if h.store.Get(pending.FlowTrelloDispatch, testUser) != nil {
		t.Fatal("dispatch record must clear")
	}
}
