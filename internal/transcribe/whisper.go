package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

type WhisperClient struct {
	client     openai.Client
	deployment string
	logger     *zap.Logger
}

func NewWhisperClient(e Endpoint, logger *zap.Logger) (*WhisperClient, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperClient{client: newOpenAIClient(e), deployment: e.Deployment, logger: logger}, nil
}

// Transcribe sends the whole file in one request. Unlike segment transcribers
// it returns endpoint failures as an ErrNetwork error instead of a result.
func (w *WhisperClient) Transcribe(ctx context.Context, audioPath, prompt string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:        f,
		Model:       openai.AudioModel(w.deployment),
		Prompt:      openai.String(prompt),
		Temperature: openai.Float(0),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			w.logger.Warn("transcription request failed", zap.Int("status", apiErr.StatusCode), zap.String("body", apiErr.RawJSON()))
			return "", fmt.Errorf("%w: status %d", ErrNetwork, apiErr.StatusCode)
		}
		w.logger.Warn("transcription request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return resp.Text, nil
}
