// Package voice handles the audio round trip: inbound voice notes are
// transcribed with Whisper, outbound replies tagged for voice are
// synthesized to an audio file the egress can upload.
package voice

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber turns a voice note into text.
type Transcriber struct {
	client *openai.Client
	model  string
}

// NewTranscriber creates a Whisper transcriber. model defaults to whisper-1.
func NewTranscriber(client *openai.Client, model string) *Transcriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{client: client, model: model}
}

// Transcribe reads the audio stream and returns the recognized text,
// trimmed. filename carries the extension Whisper uses to sniff the codec.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   audio,
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filename, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
