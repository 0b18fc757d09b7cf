package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/chunkscribe/internal/output"
	"github.com/fmueller/chunkscribe/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultWhisperAPIVersion = "2024-10-21"

type whisperOptions struct {
	deployment string
	prompt     string
}

func newWhisperCmd(app *appState) *cobra.Command {
	opts := whisperOptions{prompt: transcribe.DefaultWhisperPrompt}

	cmd := &cobra.Command{
		Use:   "whisper <audio-file>",
		Short: "Transcribe a whole file in one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			whisperFn := app.whisperFn
			if whisperFn == nil {
				whisperFn = app.transcribeWhisper
			}

			audioPath := filepath.Clean(args[0])
			started := time.Now()
			text, err := whisperFn(cmd.Context(), audioPath, opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			if isBlankTranscript(text) {
				app.log().Warn(noSpeechHint())
			}

			return app.writeRun("whisper", audioPath, text, output.Metadata{
				Model:     app.deploymentOr(opts.deployment, app.cfg.OpenAI.WhisperDeployment),
				ElapsedMS: time.Since(started).Milliseconds(),
			})
		},
	}

	cmd.Flags().StringVar(&opts.deployment, "deployment", opts.deployment, "Transcription deployment (default from AZURE_OPENAI_WHISPER_DEPLOYMENT)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", opts.prompt, "Prompt that guides the transcription")
	return cmd
}

func (a *appState) transcribeWhisper(ctx context.Context, audioPath string, opts whisperOptions) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}
	if err := a.cfg.RequireOpenAI(); err != nil {
		return "", err
	}

	deployment := a.deploymentOr(opts.deployment, a.cfg.OpenAI.WhisperDeployment)
	client, err := transcribe.NewWhisperClient(transcribe.Endpoint{
		URL:        a.cfg.OpenAI.Endpoint,
		APIVersion: a.apiVersionOr(defaultWhisperAPIVersion),
		APIKey:     a.cfg.OpenAI.APIKey,
		Deployment: deployment,
		HTTPClient: a.httpClient(),
	}, a.log())
	if err != nil {
		return "", err
	}

	a.log().Info("transcribing...", zap.String("audio", audioPath), zap.String("deployment", deployment))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	text, err := client.Transcribe(ctx, audioPath, opts.prompt)
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))
	return text, nil
}

func (a *appState) deploymentOr(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

func (a *appState) apiVersionOr(fallback string) string {
	if a.cfg.OpenAI.APIVersion != "" {
		return a.cfg.OpenAI.APIVersion
	}
	return fallback
}
