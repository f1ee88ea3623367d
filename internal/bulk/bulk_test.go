package bulk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/services/gmail"
)

func TestClampBatchSize(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 5}, {4, 5}, {5, 5}, {12, 12}, {20, 20}, {500, 20},
	}
	for _, c := range cases {
		if got := ClampBatchSize(c.in); got != c.want {
			t.Errorf("ClampBatchSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestStateRecordRoundtrip(t *testing.T) {
	s := &State{
		OpID: "op-1", Domain: "mail", Action: ActionTrash, Query: "from:x",
		BatchSize: 10, TotalEstimated: 30, Processed: 10,
		Remaining: Placeholders(20),
		Metadata:  map[string]any{"page_token": "none", "buffer": []any{"a", "b"}},
	}
	rec, err := s.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	back, err := StateFromRecord(rec)
	if err != nil {
		t.Fatalf("StateFromRecord: %v", err)
	}
	if back.OpID != "op-1" || back.Processed != 10 || len(back.Remaining) != 20 {
		t.Fatalf("roundtrip mismatch: %+v", back)
	}
	if got := stringSlice(back.Metadata["buffer"]); len(got) != 2 || got[0] != "a" {
		t.Fatalf("buffer mismatch: %v", got)
	}
}

// gmailFixture serves a two-page listing, a label list and records batch
// calls.
type gmailFixture struct {
	pages        map[string][]string // pageToken -> ids
	nextToken    map[string]string
	estimate     int
	modified     [][]string
	added        [][]string // addLabelIds per batchModify call
	labelLookups int
	failWith     int // non-zero: status for batchModify
}

func (f *gmailFixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/labels") && r.Method == http.MethodGet:
			f.labelLookups++
			json.NewEncoder(w).Encode(map[string]any{"labels": []map[string]string{
				{"id": "Label_7", "name": "Receipts"},
			}})
		case strings.HasSuffix(r.URL.Path, "/messages") && r.Method == http.MethodGet:
			token := r.URL.Query().Get("pageToken")
			ids := f.pages[token]
			msgs := make([]map[string]string, len(ids))
			for i, id := range ids {
				msgs[i] = map[string]string{"id": id}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"messages":           msgs,
				"nextPageToken":      f.nextToken[token],
				"resultSizeEstimate": f.estimate,
			})
		case strings.HasSuffix(r.URL.Path, "/messages/batchModify"):
			if f.failWith != 0 {
				w.WriteHeader(f.failWith)
				return
			}
			var body struct {
				IDs         []string `json:"ids"`
				AddLabelIDs []string `json:"addLabelIds"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.modified = append(f.modified, body.IDs)
			f.added = append(f.added, body.AddLabelIDs)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + string(rune('a'+i))
	}
	return out
}

func newTestController(t *testing.T, srv *httptest.Server) (*Controller, *pending.Store) {
	t.Helper()
	store, err := pending.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := gmail.NewClientWithBaseURL(srv.Client(), srv.URL)
	reg := NewRegistry()
	adapter, err := NewGmailAdapter(client, ActionTrash)
	if err != nil {
		t.Fatalf("NewGmailAdapter: %v", err)
	}
	reg.Register("mail", ActionTrash, adapter)
	return NewController(store, reg, observability.NewNopLogger(), observability.NewTestMetrics()), store
}

func TestStartFetchesOnePageAndProcessesNothing(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 10)},
		nextToken: map[string]string{"": ""},
		estimate:  10,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, store := newTestController(t, srv)

	msg, err := c.Start(context.Background(), 7, "mail", ActionTrash, map[string]any{"query": "from:x"}, 8)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(msg, "continue") {
		t.Fatalf("start prompt missing continue: %q", msg)
	}
	if len(fx.modified) != 0 {
		t.Fatal("start must not execute batches")
	}

	rec := store.Get(pending.FlowBulkOperation, 7)
	if rec == nil {
		t.Fatal("state not persisted")
	}
	state, err := StateFromRecord(rec)
	if err != nil {
		t.Fatalf("StateFromRecord: %v", err)
	}
	if state.BatchSize != 8 || state.TotalEstimated != 10 || len(state.Remaining) != 10 {
		t.Fatalf("state mismatch: %+v", state)
	}
	if got := stringSlice(state.Metadata["buffer"]); len(got) != 10 {
		t.Fatalf("buffer should hold the first page, got %d ids", len(got))
	}
}

func TestStartUnknownOperationListsSupported(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 3)},
		nextToken: map[string]string{"": ""},
		estimate:  3,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, _ := newTestController(t, srv)

	_, err := c.Start(context.Background(), 7, "mail", "shred", map[string]any{"query": "from:x"}, 10)
	if !faults.Is(err, faults.KindValidation) {
		t.Fatalf("want validation fault, got %v", err)
	}
	if !strings.Contains(err.Error(), "mail:trash") {
		t.Fatalf("error should name the supported operations: %v", err)
	}
}

func TestStartRejectsOversizedEstimate(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 10)},
		nextToken: map[string]string{"": "p2"},
		estimate:  5000,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, store := newTestController(t, srv)

	_, err := c.Start(context.Background(), 7, "mail", ActionTrash, map[string]any{"query": "in:inbox"}, 10)
	if !faults.Is(err, faults.KindValidation) {
		t.Fatalf("want validation fault, got %v", err)
	}
	if store.Get(pending.FlowBulkOperation, 7) != nil {
		t.Fatal("no state should persist on rejection")
	}
}

func TestContinueRunsExactlyOneBatch(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 12)},
		nextToken: map[string]string{"": ""},
		estimate:  12,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, store := newTestController(t, srv)

	if _, err := c.Start(context.Background(), 7, "mail", ActionTrash, map[string]any{"query": "from:x"}, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg, err := c.Continue(context.Background(), 7)
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if len(fx.modified) != 1 || len(fx.modified[0]) != 10 {
		t.Fatalf("want one batch of 10, got %v", fx.modified)
	}
	if !strings.Contains(msg, "Processed 10 of about 12") {
		t.Fatalf("progress message: %q", msg)
	}

	msg, err = c.Continue(context.Background(), 7)
	if err != nil {
		t.Fatalf("Continue 2: %v", err)
	}
	if !strings.HasPrefix(msg, "Done.") {
		t.Fatalf("want completion, got %q", msg)
	}
	if store.Get(pending.FlowBulkOperation, 7) != nil {
		t.Fatal("state should clear on completion")
	}
}

func TestLabelActionResolvesOnceAndTagsEachBatch(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 12)},
		nextToken: map[string]string{"": ""},
		estimate:  12,
	}
	srv := fx.server(t)
	defer srv.Close()

	store, err := pending.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := gmail.NewClientWithBaseURL(srv.Client(), srv.URL)
	reg := NewRegistry()
	adapter, err := NewGmailAdapter(client, ActionLabel)
	if err != nil {
		t.Fatalf("NewGmailAdapter: %v", err)
	}
	reg.Register("mail", ActionLabel, adapter)
	c := NewController(store, reg, observability.NewNopLogger(), observability.NewTestMetrics())

	params := map[string]any{"query": "from:store@example.com", "label": "receipts"}
	if _, err := c.Start(context.Background(), 7, "mail", ActionLabel, params, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fx.labelLookups != 1 {
		t.Fatalf("label lookups after start = %d, want 1", fx.labelLookups)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Continue(context.Background(), 7); err != nil {
			t.Fatalf("Continue %d: %v", i+1, err)
		}
	}
	if fx.labelLookups != 1 {
		t.Fatalf("label lookups after batches = %d, resolution must happen once", fx.labelLookups)
	}
	if len(fx.added) != 2 {
		t.Fatalf("batchModify calls = %d, want 2", len(fx.added))
	}
	for _, add := range fx.added {
		if len(add) != 1 || add[0] != "Label_7" {
			t.Fatalf("addLabelIds = %v, want the resolved Label_7", add)
		}
	}
}

func TestLabelActionRequiresLabelName(t *testing.T) {
	adapter, err := NewGmailAdapter(nil, ActionLabel)
	if err != nil {
		t.Fatalf("NewGmailAdapter: %v", err)
	}
	_, err = adapter.Prepare(map[string]any{"query": "from:store@example.com"})
	if !faults.Is(err, faults.KindValidation) {
		t.Fatalf("want validation fault, got %v", err)
	}
}

func TestContinueAuthErrorClearsState(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 10)},
		nextToken: map[string]string{"": ""},
		estimate:  10,
		failWith:  http.StatusForbidden,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, store := newTestController(t, srv)

	if _, err := c.Start(context.Background(), 7, "mail", ActionTrash, map[string]any{"query": "from:x"}, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := c.Continue(context.Background(), 7)
	if !faults.Is(err, faults.KindAuth) {
		t.Fatalf("want auth fault, got %v", err)
	}
	if store.Get(pending.FlowBulkOperation, 7) != nil {
		t.Fatal("auth failure must clear state")
	}
}

func TestContinueTransientErrorKeepsState(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 10)},
		nextToken: map[string]string{"": ""},
		estimate:  10,
		failWith:  http.StatusInternalServerError,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, store := newTestController(t, srv)

	if _, err := c.Start(context.Background(), 7, "mail", ActionTrash, map[string]any{"query": "from:x"}, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := c.Continue(context.Background(), 7)
	if err == nil {
		t.Fatal("want error")
	}
	if store.Get(pending.FlowBulkOperation, 7) == nil {
		t.Fatal("transient failure must keep state for retry")
	}
}

func TestCancelSummarizesProgress(t *testing.T) {
	fx := &gmailFixture{
		pages:     map[string][]string{"": ids("m", 12)},
		nextToken: map[string]string{"": ""},
		estimate:  12,
	}
	srv := fx.server(t)
	defer srv.Close()
	c, store := newTestController(t, srv)

	if _, err := c.Start(context.Background(), 7, "mail", ActionTrash, map[string]any{"query": "from:x"}, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Continue(context.Background(), 7); err != nil {
		t.Fatalf("Continue: %v", err)
	}

	msg := c.Cancel(context.Background(), 7)
	if !strings.Contains(msg, "Processed 10") {
		t.Fatalf("cancel summary: %q", msg)
	}
	if store.Get(pending.FlowBulkOperation, 7) != nil {
		t.Fatal("cancel must clear state")
	}
}
