package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
	"github.com/majordomo-labs/majordomo/internal/services/trello"
	"github.com/majordomo-labs/majordomo/internal/tools"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

const testUser int64 = 42

func newStore(t *testing.T) *pending.Store {
	t.Helper()
	s, err := pending.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

// stubTool records its last arguments and returns a fixed result.
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

func TestParseDeleteRequest(t *testing.T) {
	req, ok := parseDeleteRequest("Delete all emails older than 30 days")
	if !ok {
		t.Fatal("should parse")
	}
	if req.query != "older_than:30d" || req.permanent {
		t.Fatalf("unexpected request: %+v", req)
	}

	req, ok = parseDeleteRequest("permanently delete emails from boss@example.com older than 7 days")
	if !ok {
		t.Fatal("should parse")
	}
	if req.query != "older_than:7d from:boss@example.com" || !req.permanent {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, ok := parseDeleteRequest("delete that card"); ok {
		t.Fatal("no older-than clause must not parse")
	}
	if _, ok := parseDeleteRequest("emails older than 30 days"); ok {
		t.Fatal("missing delete verb must not parse")
	}
}

func TestParseMarkReadRequest(t *testing.T) {
	addr, query, ok := parseMarkReadRequest("Mark all messages from alice@example.com as read")
	if !ok || addr != "alice@example.com" || query != "from:alice@example.com is:unread" {
		t.Fatalf("got %q %q %v", addr, query, ok)
	}
	if _, _, ok := parseMarkReadRequest("mark this as read"); ok {
		t.Fatal("missing tokens must not parse")
	}
}

func TestParseSpamCleanRequest(t *testing.T) {
	action, query, ok := parseSpamCleanRequest("empty spam folder")
	if !ok || action != spamMoveToTrash || query != "in:spam" {
		t.Fatalf("got %q %q %v", action, query, ok)
	}
	action, query, ok = parseSpamCleanRequest("please empty the trash")
	if !ok || action != spamPurgeTrash || query != "in:trash" {
		t.Fatalf("got %q %q %v", action, query, ok)
	}
	if _, _, ok := parseSpamCleanRequest("clean up my calendar"); ok {
		t.Fatal("must not parse")
	}
}

// mailServer fakes the Gmail list/batch endpoints with token-keyed pages.
type mailServer struct {
	pages     map[string][]string
	nextToken map[string]string
	modifies  int
	deletes   int
	// spamIDs mutates as batches land, emulating the drain.
	drain []string
}

func (m *mailServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/messages") && r.Method == http.MethodGet:
			var ids []string
			var next string
			if m.drain != nil {
				n := len(m.drain)
				if n > scanPage {
					n = scanPage
				}
				ids = m.drain[:n]
			} else {
				token := r.URL.Query().Get("pageToken")
				ids = m.pages[token]
				next = m.nextToken[token]
			}
			msgs := make([]map[string]string, len(ids))
			for i, id := range ids {
				msgs[i] = map[string]string{"id": id}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"messages":           msgs,
				"nextPageToken":      next,
				"resultSizeEstimate": len(ids),
			})
		case strings.HasSuffix(r.URL.Path, "/messages/batchModify"):
			m.modifies++
			var body struct {
				IDs []string `json:"ids"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if m.drain != nil {
				m.drain = m.drain[len(body.IDs):]
			}
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/messages/batchDelete"):
			m.deletes++
			w.WriteHeader(http.StatusNoContent)
		case strings.Contains(r.URL.Path, "/messages/"):
			json.NewEncoder(w).Encode(map[string]any{
				"payload": map[string]any{"headers": []map[string]string{
					{"name": "From", "value": "someone@example.com"},
					{"name": "Subject", "value": "hello"},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func idRange(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func TestMailDeleteTwoPhase(t *testing.T) {
	ms := &mailServer{
		pages: map[string][]string{
			"":   idRange("a", 500),
			"p2": idRange("b", 500),
			"p3": idRange("c", 4),
		},
		nextToken: map[string]string{"": "p2", "p2": "p3", "p3": ""},
	}
	srv := ms.start(t)
	defer srv.Close()

	store := newStore(t)
	h := NewMailDeleteHandler(store, gmail.NewClientWithBaseURL(srv.Client(), srv.URL), observability.NewNopLogger())

	reply, handled, err := h.Handle(context.Background(), testUser, "Delete all emails older than 30 days")
	if err != nil || !handled {
		t.Fatalf("dry run: %v handled=%v", err, handled)
	}
	if !strings.Contains(reply, "I found 1004 emails older than 30 days (query: older_than:30d). Say YES to move them to Trash, or CANCEL.") {
		t.Fatalf("preview: %q", reply)
	}

	reply, _, err = h.Handle(context.Background(), testUser, "yes")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(reply, "Processed 1000 of about 1004") {
		t.Fatalf("progress: %q", reply)
	}
	if ms.modifies != 2 {
		t.Fatalf("want 2 batch-modify calls in the first turn, got %d", ms.modifies)
	}

	reply, _, err = h.Handle(context.Background(), testUser, "CONTINUE")
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if reply != "Done. Moved 1004 emails to Trash." {
		t.Fatalf("completion: %q", reply)
	}
	if store.Get(pending.FlowGmailDelete, testUser) != nil {
		t.Fatal("record must clear on completion")
	}
}

func TestMailDeleteCancelClears(t *testing.T) {
	ms := &mailServer{
		pages:     map[string][]string{"": idRange("a", 3)},
		nextToken: map[string]string{"": ""},
	}
	srv := ms.start(t)
	defer srv.Close()

	store := newStore(t)
	h := NewMailDeleteHandler(store, gmail.NewClientWithBaseURL(srv.Client(), srv.URL), observability.NewNopLogger())

	if _, _, err := h.Handle(context.Background(), testUser, "delete emails older than 5 days"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	reply, _, _ := h.Handle(context.Background(), testUser, "CANCEL")
	if !strings.Contains(reply, "cancelled") && !strings.Contains(reply, "Cancelled") {
		t.Fatalf("cancel reply: %q", reply)
	}
	if store.Get(pending.FlowGmailDelete, testUser) != nil {
		t.Fatal("cancel must clear the record")
	}
	if ms.modifies != 0 {
		t.Fatal("cancel must not modify anything")
	}
}

func TestMarkReadConfirmThenExecute(t *testing.T) {
	ms := &mailServer{
		pages:     map[string][]string{"": {"m1", "m2"}},
		nextToken: map[string]string{"": ""},
	}
	srv := ms.start(t)
	defer srv.Close()

	store := newStore(t)
	h := NewMarkReadHandler(store, gmail.NewClientWithBaseURL(srv.Client(), srv.URL), observability.NewNopLogger())

	reply, handled, err := h.Handle(context.Background(), testUser, "Mark all messages from alice@example.com as read")
	if err != nil || !handled {
		t.Fatalf("dry run: %v handled=%v", err, handled)
	}
	if !strings.Contains(reply, "from:alice@example.com is:unread") {
		t.Fatalf("prompt must cite the query: %q", reply)
	}

	reply, _, err = h.Handle(context.Background(), testUser, "yes")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if reply != "Done. Marked all unread messages from alice@example.com as read." {
		t.Fatalf("completion: %q", reply)
	}
	if store.Get(pending.FlowGmailMarkRead, testUser) != nil {
		t.Fatal("record must clear")
	}
}

func TestSpamCleanDrains(t *testing.T) {
	ms := &mailServer{drain: []string{"s1", "s2", "s3"}}
	srv := ms.start(t)
	defer srv.Close()

	store := newStore(t)
	h := NewSpamCleanHandler(store, gmail.NewClientWithBaseURL(srv.Client(), srv.URL), observability.NewNopLogger())

	if _, handled, err := h.Handle(context.Background(), testUser, "empty spam folder"); err != nil || !handled {
		t.Fatalf("dry run: %v handled=%v", err, handled)
	}
	reply, _, err := h.Handle(context.Background(), testUser, "yes")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if reply != "Moved 3 spam emails to Trash." {
		t.Fatalf("completion: %q", reply)
	}
	if store.Get(pending.FlowGmailSpamClean, testUser) != nil {
		t.Fatal("record must clear")
	}
}

func TestSpamCleanAlreadyEmpty(t *testing.T) {
	ms := &mailServer{drain: []string{}}
	srv := ms.start(t)
	defer srv.Close()

	store := newStore(t)
	h := NewSpamCleanHandler(store, gmail.NewClientWithBaseURL(srv.Client(), srv.URL), observability.NewNopLogger())

	reply, handled, err := h.Handle(context.Background(), testUser, "empty spam folder")
	if err != nil || !handled {
		t.Fatalf("dry run: %v handled=%v", err, handled)
	}
	if !strings.Contains(reply, "already empty") {
		t.Fatalf("reply: %q", reply)
	}
	if store.Get(pending.FlowGmailSpamClean, testUser) != nil {
		t.Fatal("no record must persist for an empty folder")
	}
}

func TestToolConfirmYesReplaysWithConfirm(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "gmail_send_email", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Email sent to ada@example.com.",
	})}
	reg.Register(stub)

	store.Set(pending.FlowGmailSend, testUser, pending.Record{
		"tool":   "gmail_send_email",
		"args":   map[string]any{"to": "ada@example.com", "subject": "Hi", "body": "Hello"},
		"prompt": "Send it? Reply YES to send, or CANCEL.",
	})

	h := NewMailSendHandler(store, reg)
	reply, handled, err := h.Handle(context.Background(), testUser, "YES")
	if err != nil || !handled {
		t.Fatalf("handle: %v handled=%v", err, handled)
	}
	if reply != "Email sent to ada@example.com." {
		t.Fatalf("reply: %q", reply)
	}
	if stub.lastArgs["confirm"] != true {
		t.Fatalf("confirm flag not set: %v", stub.lastArgs)
	}
	if store.Get(pending.FlowGmailSend, testUser) != nil {
		t.Fatal("record must clear after replay")
	}
}

func TestToolConfirmCancelClears(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "trello_dispatch", result: "ok"}
	reg.Register(stub)

	store.Set(pending.FlowToolConfirm, testUser, pending.Record{
		"tool": "trello_dispatch", "args": map[string]any{"action": "delete"}, "prompt": "Sure?",
	})
	h := NewToolConfirmHandler(store, reg)
	reply, _, _ := h.Handle(context.Background(), testUser, "cancel")
	if reply != "Okay, cancelled." {
		t.Fatalf("reply: %q", reply)
	}
	if stub.calls != 0 {
		t.Fatal("cancel must not invoke the tool")
	}
	if store.Get(pending.FlowToolConfirm, testUser) != nil {
		t.Fatal("record must clear")
	}
}

func TestClarifyOneShotProceedsWithoutRescore(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "trello_get_card_status", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "'X' is in 'Doing'.",
	})}
	reg.Register(stub)

	store.Set(pending.FlowConfidenceClarify, testUser, pending.Record{
		"tool":     "trello_get_card_status",
		"args":     map[string]any{"card_name": "X"},
		"awaiting": "board_name",
		"question": "Which Trello board is this on?",
		"one_shot": true,
	})

	h := NewClarifyHandler(store, reg)
	reply, handled, err := h.Handle(context.Background(), testUser, "Missions")
	if err != nil || !handled {
		t.Fatalf("handle: %v handled=%v", err, handled)
	}
	if reply != "'X' is in 'Doing'." {
		t.Fatalf("reply: %q", reply)
	}
	if stub.lastArgs["board_name"] != "Missions" {
		t.Fatalf("answer not spliced: %v", stub.lastArgs)
	}
	if store.Get(pending.FlowConfidenceClarify, testUser) != nil {
		t.Fatal("one-shot must not re-persist")
	}
}

func TestClarifyRepeatableRescoresThenExecutes(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "gmail_send_email", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "ok",
	})}
	reg.Register(stub)

	// The repeatable variant re-scores after splicing; the recipient lifts
	// the call above the clarify threshold so it runs this turn.
	store.Set(pending.FlowConfidenceClarify, testUser, pending.Record{
		"tool":     "gmail_send_email",
		"args":     map[string]any{},
		"awaiting": "to",
		"question": "Who should I send it to?",
		"one_shot": false,
	})

	h := NewClarifyHandler(store, reg)
	reply, _, err := h.Handle(context.Background(), testUser, "ada@example.com")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("tool calls: %d", stub.calls)
	}
	if stub.lastArgs["to"] != "ada@example.com" {
		t.Fatalf("answer not spliced: %v", stub.lastArgs)
	}
	if reply != "ok" || store.Get(pending.FlowConfidenceClarify, testUser) != nil {
		t.Fatalf("expected execution and a cleared record, got %q", reply)
	}
}

func TestClarifyCancelClears(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "gmail_send_email", result: "ok"}
	reg.Register(stub)

	store.Set(pending.FlowConfidenceClarify, testUser, pending.Record{
		"tool": "gmail_send_email", "args": map[string]any{}, "awaiting": "to",
	})
	h := NewClarifyHandler(store, reg)
	reply, _, _ := h.Handle(context.Background(), testUser, "cancel")
	if reply != "Okay, cancelled." {
		t.Fatalf("reply: %q", reply)
	}
	if stub.calls != 0 || store.Get(pending.FlowConfidenceClarify, testUser) != nil {
		t.Fatal("cancel must clear without executing")
	}
}

func dispatchTestRegistry(t *testing.T) (*tools.Registry, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/members/me/boards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]trello.Board{{ID: "b1", Name: "Work"}})
	})
	mux.HandleFunc("/boards/b1/lists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]trello.List{{ID: "l2", Name: "Done", BoardID: "b1"}})
	})
	mux.HandleFunc("/boards/b1/cards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]trello.Card{{ID: "c1", Name: "Design", ListID: "l1", BoardID: "b1"}})
	})
	mux.HandleFunc("/cards/c1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(trello.Card{ID: "c1", Name: "Design", BoardID: "b1", ListID: r.URL.Query().Get("idList")})
	})
	srv := httptest.NewServer(mux)

	reg := tools.NewRegistry()
	reg.Register(tools.NewDispatchTool(trello.NewClientWithBaseURL(srv.Client(), srv.URL, "k", "t")))
	return reg, srv
}

func TestDispatchContinuationSplicesAnswer(t *testing.T) {
	reg, srv := dispatchTestRegistry(t)
	defer srv.Close()
	store := newStore(t)

	store.Set(pending.FlowTrelloDispatch, testUser, pending.Record{
		"args":     map[string]any{"action": "move", "card_name": "Design", "board_name": "Work"},
		"awaiting": "to_list_name",
		"question": "Which Trello list should I move it to?",
	})

	h := NewDispatchHandler(store, reg)
	reply, handled, err := h.Handle(context.Background(), testUser, "Done")
	if err != nil || !handled {
		t.Fatalf("handle: %v handled=%v", err, handled)
	}
	if reply != "Task 'Design' moved to 'Done'." {
		t.Fatalf("reply: %q", reply)
	}
	if store.Get(pending.FlowTrelloDispatch, testUser) != nil {
		t.Fatal("record must clear after a successful replay")
	}
}

func TestCommentContinuationUsesWholeMessage(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "trello_dispatch", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Comment added to 'Design'.",
	})}
	reg.Register(stub)

	store.Set(pending.FlowTrelloComment, testUser, pending.Record{
		"args": map[string]any{"card_id": "c1", "card_name": "Design"},
	})
	h := NewCommentHandler(store, reg)
	reply, _, err := h.Handle(context.Background(), testUser, "shipped the first draft today")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != "Comment added to 'Design'." {
		t.Fatalf("reply: %q", reply)
	}
	if stub.lastArgs["comment_text"] != "shipped the first draft today" || stub.lastArgs["action"] != "comment" {
		t.Fatalf("args: %v", stub.lastArgs)
	}
}

func TestCalendarCancelSelectionExecutes(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "calendar_cancel_event", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Cancelled 'Sync' scheduled for Fri Mar 14 10:00. Attendees have been notified.",
	})}
	reg.Register(stub)

	store.Set(pending.FlowCalendarCancel, testUser, pending.Record{
		"args": map[string]any{
			"event_title": "sync",
			"candidates": []any{
				map[string]any{"event_id": "e1", "summary": "Sync", "recurring": false},
				map[string]any{"event_id": "e2", "summary": "Sync", "recurring": false},
			},
		},
		"awaiting": "selection",
	})

	h := NewCalendarCancelHandler(store, reg)
	reply, handled, err := h.Handle(context.Background(), testUser, "2")
	if err != nil || !handled {
		t.Fatalf("handle: %v handled=%v", err, handled)
	}
	if !strings.HasPrefix(reply, "Cancelled 'Sync'") {
		t.Fatalf("reply: %q", reply)
	}
	if stub.lastArgs["event_id"] != "e2" {
		t.Fatalf("selected wrong event: %v", stub.lastArgs)
	}
	if _, ok := stub.lastArgs["candidates"]; ok {
		t.Fatal("candidates must not leak into the replay")
	}
	if store.Get(pending.FlowCalendarCancel, testUser) != nil {
		t.Fatal("record must clear")
	}
}

func TestCalendarCancelRecurringAsksScope(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "calendar_cancel_event", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Cancelled 'Standup'. Attendees have been notified.",
	})}
	reg.Register(stub)

	store.Set(pending.FlowCalendarCancel, testUser, pending.Record{
		"args": map[string]any{
			"event_title": "standup",
			"candidates": []any{
				map[string]any{"event_id": "e1", "summary": "Standup", "recurring": true},
			},
		},
		"awaiting": "selection",
	})

	h := NewCalendarCancelHandler(store, reg)
	reply, _, err := h.Handle(context.Background(), testUser, "1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(reply, "occurrence") || !strings.Contains(reply, "series") {
		t.Fatalf("scope question: %q", reply)
	}
	if stub.calls != 0 {
		t.Fatal("must not execute before scope is chosen")
	}

	reply, _, err = h.Handle(context.Background(), testUser, "just this one")
	if err != nil {
		t.Fatalf("scope turn: %v", err)
	}
	if stub.lastArgs["scope"] != "single" {
		t.Fatalf("scope: %v", stub.lastArgs)
	}
	if !strings.HasPrefix(reply, "Cancelled") {
		t.Fatalf("reply: %q", reply)
	}
}

func TestCalendarNoteCollectsText(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	stub := &stubTool{name: "calendar_add_note", result: models.MarshalEnvelope(&models.Envelope{
		Status: models.StatusCompleted, Message: "Note added to 'Sync'.",
	})}
	reg.Register(stub)

	store.Set(pending.FlowCalendarNote, testUser, pending.Record{
		"args":     map[string]any{"event_id": "e1", "event_title": "Sync"},
		"awaiting": "note",
	})

	h := NewCalendarNoteHandler(store, reg)
	reply, _, err := h.Handle(context.Background(), testUser, "bring the Q3 numbers")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != "Note added to 'Sync'." {
		t.Fatalf("reply: %q", reply)
	}
	if stub.lastArgs["note"] != "bring the Q3 numbers" {
		t.Fatalf("note: %v", stub.lastArgs)
	}
}

func TestChainPrecedenceFirstClaimWins(t *testing.T) {
	store := newStore(t)
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "gmail_send_email", result: "sent"})

	// Both a tool-confirm and a send-confirm record exist; the chain must
	// route to the earlier handler.
	store.Set(pending.FlowToolConfirm, testUser, pending.Record{
		"tool": "gmail_send_email", "args": map[string]any{}, "prompt": "generic?",
	})
	store.Set(pending.FlowGmailSend, testUser, pending.Record{
		"tool": "gmail_send_email", "args": map[string]any{}, "prompt": "send?",
	})

	chain := NewChain(observability.NewNopLogger(), observability.NewTestMetrics(),
		NewToolConfirmHandler(store, reg),
		NewMailSendHandler(store, reg),
	)
	reply, handled, _ := chain.Handle(context.Background(), testUser, "what?")
	if !handled || reply != "generic?" {
		t.Fatalf("chain routed wrong: handled=%v reply=%q", handled, reply)
	}
}

func TestParseSelection(t *testing.T) {
	if idx, ok := parseSelection("2", 3); !ok || idx != 2 {
		t.Fatalf("got %d %v", idx, ok)
	}
	if idx, ok := parseSelection("1.", 3); !ok || idx != 1 {
		t.Fatalf("got %d %v", idx, ok)
	}
	if _, ok := parseSelection("7", 3); ok {
		t.Fatal("out of range must fail")
	}
	if _, ok := parseSelection("the second one", 3); ok {
		t.Fatal("words must fail")
	}
}
