// Package ingress owns the Telegram side of a turn: it receives updates,
// drops duplicates and stale backlog, applies the per-user message budget,
// normalizes text and voice notes into turn input, and serializes turns so
// each user has at most one in flight.
package ingress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/ratelimit"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// Replies the adapter sends without going through the orchestrator.
const (
	greetingReply  = "Hello! I'm Majordomo, your assistant for email, calendar and Trello. Tell me what you need."
	resetReply     = "Okay, I've cleared everything we had in progress. What's next?"
	cooldownReply  = "You're sending messages faster than I can handle. Give me a minute, then try again."
	voiceFailReply = "Sorry, I couldn't make out that voice note. Could you type it instead?"
)

// typingInterval refreshes the chat action; Telegram expires it after ~5s.
const typingInterval = 4 * time.Second

// BotClient is the subset of bot.Bot the adapter needs, split out so tests
// can inject a fake.
type BotClient interface {
	RegisterHandler(handlerType bot.HandlerType, pattern string, matchType bot.MatchType, handler bot.HandlerFunc, middleware ...bot.Middleware) string
	Start(ctx context.Context)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	StartWebhook(ctx context.Context)
	WebhookHandler() http.HandlerFunc
	GetFile(ctx context.Context, params *bot.GetFileParams) (*tgmodels.File, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

var _ BotClient = (*bot.Bot)(nil)

// TurnHandler runs one normalized turn and returns the reply text.
type TurnHandler interface {
	HandleTurn(ctx context.Context, input *models.TurnInput) string
}

// Deliverer sends a reply back to the chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// Transcriber turns a downloaded voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Config carries the adapter settings.
type Config struct {
	// Token authenticates file downloads.
	Token string
	// WebhookURL enables webhook mode; empty means long polling.
	WebhookURL string
	// ListenAddr is the webhook server address, e.g. ":8443".
	ListenAddr string
}

// Adapter bridges Telegram updates to the orchestrator.
type Adapter struct {
	config      Config
	bot         BotClient
	handler     TurnHandler
	sender      Deliverer
	transcriber Transcriber
	limiter     *ratelimit.Limiter
	pending     *pending.Store
	gate        UpdateGate
	logger      *observability.Logger
	metrics     *observability.Metrics

	// fileURL builds the download URL for a file path returned by getFile.
	// Replaced in tests.
	fileURL    func(filePath string) string
	httpClient *http.Client
	startedAt  time.Time
	now        func() time.Time

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

// NewAdapter creates the ingress adapter. transcriber may be nil; voice
// notes are then answered with the typed-input fallback.
func NewAdapter(cfg Config, botClient BotClient, handler TurnHandler, sender Deliverer, transcriber Transcriber, limiter *ratelimit.Limiter, store *pending.Store, logger *observability.Logger, metrics *observability.Metrics) *Adapter {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	a := &Adapter{
		config:      cfg,
		bot:         botClient,
		handler:     handler,
		sender:      sender,
		transcriber: transcriber,
		limiter:     limiter,
		pending:     store,
		gate:        NewProcessGate(),
		logger:      logger,
		metrics:     metrics,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
		users:       make(map[int64]*sync.Mutex),
	}
	// Truncated so a message sent in the same second as startup is not
	// mistaken for backlog.
	a.startedAt = a.now().Truncate(time.Second)
	a.fileURL = func(filePath string) string {
		return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", cfg.Token, filePath)
	}
	return a
}

// Run registers the update handler and blocks until ctx is cancelled.
// Webhook mode is used when a webhook URL is configured, long polling
// otherwise.
func (a *Adapter) Run(ctx context.Context) error {
	a.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, a.handleUpdate)

	if a.config.WebhookURL == "" {
		a.logger.Info(ctx, "telegram ingress started", "mode", "long_poll")
		a.bot.Start(ctx)
		return nil
	}

	if _, err := a.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: a.config.WebhookURL}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	a.logger.Info(ctx, "telegram ingress started", "mode", "webhook", "url", a.config.WebhookURL)

	srv := &http.Server{Addr: a.config.ListenAddr, Handler: a.bot.WebhookHandler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go a.bot.StartWebhook(ctx)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook server: %w", err)
	}
	return nil
}

// handleUpdate is the registered bot handler. It never returns an error;
// every failure path answers the user or drops the update with a metric.
func (a *Adapter) handleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID
	ctx = observability.WithUserID(ctx, userID)

	if !a.gate.Admit(update.ID) {
		a.metrics.IngressDropped.WithLabelValues("duplicate").Inc()
		return
	}

	// Webhook retries can deliver a backlog from before this process
	// started; acting on it would replay old requests.
	if time.Unix(int64(msg.Date), 0).Before(a.startedAt) {
		a.metrics.IngressDropped.WithLabelValues("stale").Inc()
		return
	}

	if reply, ok := a.handleCommand(userID, msg.Text); ok {
		a.deliver(ctx, chatID, reply)
		return
	}

	if a.limiter != nil && !a.limiter.Allow(userID) {
		a.metrics.IngressDropped.WithLabelValues("ratelimited").Inc()
		a.deliver(ctx, chatID, cooldownReply)
		return
	}

	input, errReply := a.normalize(ctx, msg)
	if errReply != "" {
		a.deliver(ctx, chatID, errReply)
		return
	}
	if input == nil {
		return
	}

	// One turn per user at a time; a second message waits for the first.
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	stopTyping := a.keepTyping(ctx, chatID)
	reply := a.handler.HandleTurn(ctx, input)
	stopTyping()

	a.deliver(ctx, chatID, reply)
}

// handleCommand answers /start and /reset without a turn.
func (a *Adapter) handleCommand(userID int64, text string) (string, bool) {
	cmd := strings.ToLower(strings.TrimSpace(text))
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		return greetingReply, true
	case "/reset":
		if a.pending != nil {
			a.pending.ClearAll(userID)
		}
		return resetReply, true
	default:
		return "", false
	}
}

// normalize builds the turn input for a message. The second return value
// is a user-facing error reply; both empty means the update carries
// nothing to process.
func (a *Adapter) normalize(ctx context.Context, msg *tgmodels.Message) (*models.TurnInput, string) {
	input := &models.TurnInput{
		UserID:        msg.From.ID,
		ChatID:        msg.Chat.ID,
		Timestamp:     time.Unix(int64(msg.Date), 0),
		CorrelationID: uuid.NewString(),
	}

	switch {
	case msg.Voice != nil:
		text, err := a.transcribeVoice(ctx, msg.Voice)
		if err != nil {
			a.logger.Warn(ctx, "voice transcription failed", "error", err)
			return nil, voiceFailReply
		}
		if text == "" {
			return nil, voiceFailReply
		}
		input.Type = models.OriginVoice
		input.FileID = msg.Voice.FileID
		input.Message = models.VoicePrefix + text
	case strings.TrimSpace(msg.Text) != "":
		input.Type = models.OriginText
		input.Message = strings.TrimSpace(msg.Text)
	case strings.TrimSpace(msg.Caption) != "":
		input.Type = models.OriginCaption
		input.Message = strings.TrimSpace(msg.Caption)
	default:
		return nil, ""
	}
	return input, ""
}

// transcribeVoice downloads the voice note and runs it through Whisper.
func (a *Adapter) transcribeVoice(ctx context.Context, voice *tgmodels.Voice) (string, error) {
	if a.transcriber == nil {
		return "", fmt.Errorf("voice input disabled")
	}
	file, err := a.bot.GetFile(ctx, &bot.GetFileParams{FileID: voice.FileID})
	if err != nil {
		return "", fmt.Errorf("get file %s: %w", voice.FileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.fileURL(file.FilePath), nil)
	if err != nil {
		return "", err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice note: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download voice note: status %d", resp.StatusCode)
	}

	name := path.Base(file.FilePath)
	if name == "" || name == "." {
		name = "voice.ogg"
	}
	return a.transcriber.Transcribe(ctx, resp.Body, name)
}

// keepTyping shows the typing indicator until the returned stop func runs.
func (a *Adapter) keepTyping(ctx context.Context, chatID int64) func() {
	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			a.bot.SendChatAction(typingCtx, &bot.SendChatActionParams{
				ChatID: chatID,
				Action: tgmodels.ChatActionTyping,
			})
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}

func (a *Adapter) deliver(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := a.sender.Deliver(ctx, chatID, text); err != nil {
		a.logger.Error(ctx, "reply delivery failed", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) userLock(userID int64) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		a.users[userID] = lock
	}
	return lock
}
