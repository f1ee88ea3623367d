package ingress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/ratelimit"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

const testUser int64 = 99

type fakeBot struct {
	file          *tgmodels.File
	fileErr       error
	typingActions atomic.Int64
}

func (f *fakeBot) RegisterHandler(bot.HandlerType, string, bot.MatchType, bot.HandlerFunc, ...bot.Middleware) string {
	return ""
}
func (f *fakeBot) Start(context.Context)        {}
func (f *fakeBot) StartWebhook(context.Context) {}
func (f *fakeBot) WebhookHandler() http.HandlerFunc {
	return func(http.ResponseWriter, *http.Request) {}
}

func (f *fakeBot) SetWebhook(context.Context, *bot.SetWebhookParams) (bool, error) {
	return true, nil
}

func (f *fakeBot) GetFile(ctx context.Context, params *bot.GetFileParams) (*tgmodels.File, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.file, nil
}

func (f *fakeBot) SendChatAction(context.Context, *bot.SendChatActionParams) (bool, error) {
	f.typingActions.Add(1)
	return true, nil
}

type fakeHandler struct {
	inputs []*models.TurnInput
	reply  string
}

func (f *fakeHandler) HandleTurn(ctx context.Context, input *models.TurnInput) string {
	f.inputs = append(f.inputs, input)
	return f.reply
}

type fakeSender struct {
	replies []string
}

func (f *fakeSender) Deliver(ctx context.Context, chatID int64, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
	got  string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	f.got = string(data)
	return f.text, nil
}

type fixture struct {
	adapter *Adapter
	bot     *fakeBot
	handler *fakeHandler
	sender  *fakeSender
	metrics *observability.Metrics
}

func newFixture(t *testing.T, transcriber Transcriber, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	store, err := pending.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	fb := &fakeBot{}
	fh := &fakeHandler{reply: "done"}
	fs := &fakeSender{}
	metrics := observability.NewTestMetrics()
	a := NewAdapter(Config{Token: "test-token"}, fb, fh, fs, transcriber, limiter, store, nil, metrics)
	a.startedAt = time.Unix(0, 0)
	return &fixture{adapter: a, bot: fb, handler: fh, sender: fs, metrics: metrics}
}

func textUpdate(id int64, text string) *tgmodels.Update {
	return &tgmodels.Update{
		ID: id,
		Message: &tgmodels.Message{
			ID:   int(id),
			Date: int(time.Now().Unix()),
			Text: text,
			From: &tgmodels.User{ID: testUser},
			Chat: tgmodels.Chat{ID: testUser},
		},
	}
}

func TestTextTurnFlowsThroughHandler(t *testing.T) {
	fx := newFixture(t, nil, nil)

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(1, "  what's on my calendar?  "))

	if len(fx.handler.inputs) != 1 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	in := fx.handler.inputs[0]
	if in.Message != "what's on my calendar?" || in.Type != models.OriginText {
		t.Fatalf("input: %+v", in)
	}
	if in.UserID != testUser || in.ChatID != testUser {
		t.Fatalf("identity: %+v", in)
	}
	if in.CorrelationID == "" {
		t.Fatal("missing correlation id")
	}
	if len(fx.sender.replies) != 1 || fx.sender.replies[0] != "done" {
		t.Fatalf("replies: %v", fx.sender.replies)
	}
}

func TestDuplicateUpdateDropped(t *testing.T) {
	fx := newFixture(t, nil, nil)

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(5, "hello"))
	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(5, "hello"))

	if len(fx.handler.inputs) != 1 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	dropped := testutil.ToFloat64(fx.metrics.IngressDropped.WithLabelValues("duplicate"))
	if dropped != 1 {
		t.Fatalf("duplicate drops: %v", dropped)
	}
}

func TestStaleUpdateDropped(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.adapter.startedAt = time.Now().Add(time.Hour)

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(1, "old backlog"))

	if len(fx.handler.inputs) != 0 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	if len(fx.sender.replies) != 0 {
		t.Fatalf("replies: %v", fx.sender.replies)
	}
	dropped := testutil.ToFloat64(fx.metrics.IngressDropped.WithLabelValues("stale"))
	if dropped != 1 {
		t.Fatalf("stale drops: %v", dropped)
	}
}

func TestStartCommandGreetsWithoutTurn(t *testing.T) {
	fx := newFixture(t, nil, nil)

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(1, "/start"))

	if len(fx.handler.inputs) != 0 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	if len(fx.sender.replies) != 1 || fx.sender.replies[0] != greetingReply {
		t.Fatalf("replies: %v", fx.sender.replies)
	}
}

func TestResetClearsPendingFlows(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.adapter.pending.Set(pending.FlowGmailDelete, testUser, pending.Record{"stage": "confirm"})

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(1, "/reset@MajordomoBot"))

	if rec := fx.adapter.pending.Get(pending.FlowGmailDelete, testUser); rec != nil {
		t.Fatalf("record survived reset: %v", rec)
	}
	if len(fx.sender.replies) != 1 || fx.sender.replies[0] != resetReply {
		t.Fatalf("replies: %v", fx.sender.replies)
	}
}

func TestRateLimitSendsCooldown(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{MessagesPerWindow: 1, Window: time.Minute, Enabled: true})
	fx := newFixture(t, nil, limiter)

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(1, "first"))
	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(2, "second"))

	if len(fx.handler.inputs) != 1 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	if len(fx.sender.replies) != 2 || fx.sender.replies[1] != cooldownReply {
		t.Fatalf("replies: %v", fx.sender.replies)
	}
	dropped := testutil.ToFloat64(fx.metrics.IngressDropped.WithLabelValues("ratelimited"))
	if dropped != 1 {
		t.Fatalf("ratelimited drops: %v", dropped)
	}
}

func TestVoiceNoteTranscribedWithPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/voice/file_7.oga") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ogg-bytes"))
	}))
	defer srv.Close()

	tr := &fakeTranscriber{text: "delete all emails older than 30 days"}
	fx := newFixture(t, tr, nil)
	fx.bot.file = &tgmodels.File{FileID: "voice-1", FilePath: "voice/file_7.oga"}
	fx.adapter.fileURL = func(filePath string) string { return srv.URL + "/" + filePath }

	update := textUpdate(1, "")
	update.Message.Voice = &tgmodels.Voice{FileID: "voice-1", Duration: 4, MimeType: "audio/ogg"}
	fx.adapter.handleUpdate(context.Background(), nil, update)

	if len(fx.handler.inputs) != 1 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	in := fx.handler.inputs[0]
	if in.Message != models.VoicePrefix+"delete all emails older than 30 days" {
		t.Fatalf("message: %q", in.Message)
	}
	if in.Type != models.OriginVoice || in.FileID != "voice-1" {
		t.Fatalf("input: %+v", in)
	}
	if tr.got != "ogg-bytes" {
		t.Fatalf("downloaded audio: %q", tr.got)
	}
}

func TestVoiceTranscriptionFailureApologizes(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{err: errors.New("whisper down")}, nil)
	fx.bot.file = &tgmodels.File{FileID: "voice-1", FilePath: "voice/file_7.oga"}
	fx.adapter.fileURL = func(string) string { return "http://127.0.0.1:0/unreachable" }

	update := textUpdate(1, "")
	update.Message.Voice = &tgmodels.Voice{FileID: "voice-1"}
	fx.adapter.handleUpdate(context.Background(), nil, update)

	if len(fx.handler.inputs) != 0 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	if len(fx.sender.replies) != 1 || fx.sender.replies[0] != voiceFailReply {
		t.Fatalf("replies: %v", fx.sender.replies)
	}
}

func TestCaptionBecomesTurnText(t *testing.T) {
	fx := newFixture(t, nil, nil)

	update := textUpdate(1, "")
	update.Message.Caption = "file this receipt"
	fx.adapter.handleUpdate(context.Background(), nil, update)

	if len(fx.handler.inputs) != 1 {
		t.Fatalf("handler calls: %d", len(fx.handler.inputs))
	}
	in := fx.handler.inputs[0]
	if in.Message != "file this receipt" || in.Type != models.OriginCaption {
		t.Fatalf("input: %+v", in)
	}
}

func TestEmptyUpdateIsIgnored(t *testing.T) {
	fx := newFixture(t, nil, nil)

	fx.adapter.handleUpdate(context.Background(), nil, textUpdate(1, "   "))
	fx.adapter.handleUpdate(context.Background(), nil, &tgmodels.Update{ID: 2})

	if len(fx.handler.inputs) != 0 || len(fx.sender.replies) != 0 {
		t.Fatalf("inputs=%d replies=%v", len(fx.handler.inputs), fx.sender.replies)
	}
}

func TestProcessGateHighWaterMark(t *testing.T) {
	g := NewProcessGate()
	if !g.Admit(10) {
		t.Fatal("first update rejected")
	}
	if g.Admit(10) {
		t.Fatal("redelivery admitted")
	}
	if g.Admit(9) {
		t.Fatal("older update admitted")
	}
	if !g.Admit(11) {
		t.Fatal("newer update rejected")
	}
}
