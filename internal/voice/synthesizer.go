package voice

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// maxSpeechChars caps synthesis input; longer replies are cut at the cap
// rather than failing the turn.
const maxSpeechChars = 4096

// Synthesizer renders reply text to an opus audio file.
type Synthesizer struct {
	client    *openai.Client
	voice     openai.SpeechVoice
	outputDir string
}

// NewSynthesizer creates a synthesizer writing files under outputDir.
func NewSynthesizer(client *openai.Client, voice, outputDir string) *Synthesizer {
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	return &Synthesizer{client: client, voice: openai.SpeechVoice(voice), outputDir: outputDir}
}

// Synthesize renders text to a new .ogg file and returns its path. The
// caller owns the file and should remove it after upload.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if len(text) > maxSpeechChars {
		text = text[:maxSpeechChars]
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize speech: %w", err)
	}
	defer resp.Close()

	path := filepath.Join(s.outputDir, uuid.NewString()+".ogg")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return path, nil
}
