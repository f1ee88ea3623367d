package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/majordomo-labs/majordomo/pkg/models"
)

// GenerateFunc produces a summary from a prompt. Wired to the LLM provider
// at startup so this package stays free of provider imports.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

const summaryPrompt = `Summarize the important durable facts from this conversation for long-term memory.
Keep stable preferences, names, projects and commitments. Drop small talk and one-off requests.
Write at most 10 short lines.

Conversation:
%s`

// Summarizer recomputes a user's long-term summary from recent turns.
type Summarizer struct {
	store    Store
	generate GenerateFunc
	window   int
}

// NewSummarizer creates a summarizer over the given store. window is how
// many recent turns feed each recompute.
func NewSummarizer(store Store, generate GenerateFunc, window int) *Summarizer {
	if window <= 0 {
		window = 30
	}
	return &Summarizer{store: store, generate: generate, window: window}
}

// Refresh recomputes and upserts the summary for one user. A user with no
// turns is left untouched.
func (s *Summarizer) Refresh(ctx context.Context, userID int64) error {
	turns, err := s.store.RecentTurns(ctx, userID, s.window)
	if err != nil {
		return fmt.Errorf("load turns: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	var transcript strings.Builder
	for _, t := range turns {
		if t.Role != models.RoleUser && t.Role != models.RoleAssistant {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Content)
	}
	if transcript.Len() == 0 {
		return nil
	}

	summary, err := s.generate(ctx, fmt.Sprintf(summaryPrompt, transcript.String()))
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	return s.store.UpsertSummary(ctx, userID, summary)
}
