// Package egress delivers orchestrator replies back to Telegram. It owns
// the voice-tag protocol: replies the model suffixed with
// [VOICE_RESPONSE_REQUESTED] are synthesized and sent as a voice note, and
// the tag itself never reaches the user.
package egress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/majordomo-labs/majordomo/internal/observability"
)

// BotClient is the subset of bot.Bot the sender needs. Wrapping it lets
// tests inject a fake without a live Telegram connection.
type BotClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*models.Message, error)
}

// Synthesizer renders reply text to an audio file and returns its path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// voiceTag matches the model's voice-request marker at the end of a reply.
// Separator-lenient: underscores or spaces, optional inner whitespace.
var voiceTag = regexp.MustCompile(`(?i)\[\s*voice[ _]?response[ _]?requested\s*\]\s*$`)

// urlPattern pulls links out of a spoken reply so they can be re-sent as
// tappable text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>)\]]+`)

// Sender delivers one reply per call, choosing text or voice transport.
type Sender struct {
	bot    BotClient
	synth  Synthesizer
	logger *observability.Logger
}

// NewSender creates a sender. synth may be nil when voice replies are
// disabled; tagged replies then fall back to text.
func NewSender(botClient BotClient, synth Synthesizer, logger *observability.Logger) *Sender {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Sender{bot: botClient, synth: synth, logger: logger}
}

// Deliver sends reply text to the chat. A trailing voice tag switches the
// transport to a voice note; synthesis failures degrade to plain text so
// the user always gets an answer.
func (s *Sender) Deliver(ctx context.Context, chatID int64, text string) error {
	loc := voiceTag.FindStringIndex(text)
	if loc == nil {
		return s.sendText(ctx, chatID, strings.TrimSpace(text))
	}

	spoken := strings.TrimSpace(text[:loc[0]])
	if spoken == "" {
		// Tag with no content; nothing to say aloud.
		return nil
	}
	if s.synth == nil {
		return s.sendText(ctx, chatID, spoken)
	}

	if err := s.sendVoice(ctx, chatID, spoken); err != nil {
		s.logger.Warn(ctx, "voice delivery failed, falling back to text",
			"chat_id", chatID, "error", err)
		return s.sendText(ctx, chatID, spoken)
	}

	// Links are unusable inside an audio blob; repeat them as text.
	if urls := urlPattern.FindAllString(spoken, -1); len(urls) > 0 {
		return s.sendText(ctx, chatID, strings.Join(urls, "\n"))
	}
	return nil
}

func (s *Sender) sendText(ctx context.Context, chatID int64, text string) error {
	if text == "" {
		return nil
	}
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return nil
}

func (s *Sender) sendVoice(ctx context.Context, chatID int64, spoken string) error {
	path, err := s.synth.Synthesize(ctx, spoken)
	if err != nil {
		return fmt.Errorf("synthesize reply: %w", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	_, err = s.bot.SendVoice(ctx, &bot.SendVoiceParams{
		ChatID: chatID,
		Voice: &models.InputFileUpload{
			Filename: filepath.Base(path),
			Data:     f,
		},
	})
	if err != nil {
		return fmt.Errorf("send voice to chat %d: %w", chatID, err)
	}
	return nil
}
