package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmueller/chunkscribe/internal/output"
	"github.com/fmueller/chunkscribe/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultChatAPIVersion = "2025-01-01-preview"

type chunkedOptions struct {
	chunkLength  float64
	format       string
	concurrency  int
	maxTokens    int64
	keepChunks   bool
	deployment   string
	systemPrompt string
	prompt       string
	ffmpegPath   string
}

type chunkedDetails struct {
	ChunkLengthSeconds float64                  `json:"chunk_length_seconds"`
	Format             string                   `json:"format"`
	SampleRate         int                      `json:"sample_rate"`
	Channels           int                      `json:"channels"`
	DurationMS         int64                    `json:"duration_ms"`
	Completed          int                      `json:"completed"`
	Incomplete         int                      `json:"incomplete"`
	Failed             int                      `json:"failed"`
	Segments           []transcribe.SegmentInfo `json:"segments"`
}

func newChunkedCmd(app *appState) *cobra.Command {
	opts := chunkedOptions{
		concurrency:  1,
		maxTokens:    transcribe.DefaultMaxTokens,
		systemPrompt: transcribe.DefaultSystemPrompt,
		prompt:       transcribe.DefaultUserPrompt,
		ffmpegPath:   "ffmpeg",
	}

	cmd := &cobra.Command{
		Use:   "chunked <audio-file>",
		Short: "Split audio into fixed-length chunks and transcribe each one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chunkedFn := app.chunkedFn
			if chunkedFn == nil {
				chunkedFn = app.transcribeChunked
			}

			if opts.chunkLength < 0 {
				return fmt.Errorf("--chunk-length must be positive, got %v", opts.chunkLength)
			}
			if opts.concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", opts.concurrency)
			}

			audioPath := filepath.Clean(args[0])
			outcome, err := chunkedFn(cmd.Context(), audioPath, opts)
			if err != nil {
				return err
			}

			text := outcome.Transcript.String()
			fmt.Fprint(cmd.OutOrStdout(), text)

			completed, incomplete, failed := outcome.Transcript.Counts()
			app.log().Info("chunked transcription finished",
				zap.Int("completed", completed),
				zap.Int("skipped", incomplete+failed),
				zap.Duration("elapsed", outcome.Elapsed),
			)
			if nothingTranscribed(outcome.Transcript) {
				app.log().Warn(noSpeechHint())
			}

			return app.writeRun("chunked", audioPath, text, output.Metadata{
				Model:     app.deploymentOr(opts.deployment, app.cfg.OpenAI.AudioDeployment),
				ElapsedMS: outcome.Elapsed.Milliseconds(),
				Details: chunkedDetails{
					ChunkLengthSeconds: app.chunkLength(opts),
					Format:             outcome.Format,
					SampleRate:         outcome.SampleRate,
					Channels:           outcome.Channels,
					DurationMS:         outcome.DurationMS,
					Completed:          completed,
					Incomplete:         incomplete,
					Failed:             failed,
					Segments:           outcome.Segments,
				},
			})
		},
	}

	cmd.Flags().Float64Var(&opts.chunkLength, "chunk-length", opts.chunkLength, "Chunk length in seconds (default from CHUNK_LENGTH_SECONDS)")
	cmd.Flags().StringVar(&opts.format, "format", opts.format, "Chunk export format: wav|mp3 (default from the input extension)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", opts.concurrency, "Chunks transcribed at once; 1 keeps requests strictly sequential")
	cmd.Flags().Int64Var(&opts.maxTokens, "max-tokens", opts.maxTokens, "Completion token limit per chunk")
	cmd.Flags().BoolVar(&opts.keepChunks, "keep-chunks", opts.keepChunks, "Write each exported chunk next to the transcript for inspection")
	cmd.Flags().StringVar(&opts.deployment, "deployment", opts.deployment, "Audio-capable chat deployment (default from AZURE_OPENAI_AUDIO_DEPLOYMENT)")
	cmd.Flags().StringVar(&opts.systemPrompt, "system-prompt", opts.systemPrompt, "System instruction sent with every chunk")
	cmd.Flags().StringVar(&opts.prompt, "prompt", opts.prompt, "User instruction sent with every chunk")
	cmd.Flags().StringVar(&opts.ffmpegPath, "ffmpeg", opts.ffmpegPath, "ffmpeg binary used for mp3 export")
	return cmd
}

func (a *appState) chunkLength(opts chunkedOptions) float64 {
	if opts.chunkLength > 0 {
		return opts.chunkLength
	}
	return a.cfg.ChunkLengthSeconds
}

func (a *appState) transcribeChunked(ctx context.Context, audioPath string, opts chunkedOptions) (transcribe.Outcome, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return transcribe.Outcome{}, fmt.Errorf("audio file not found: %w", err)
	}
	if err := a.cfg.RequireOpenAI(); err != nil {
		return transcribe.Outcome{}, err
	}

	client, err := transcribe.NewChatClient(transcribe.Endpoint{
		URL:        a.cfg.OpenAI.Endpoint,
		APIVersion: a.apiVersionOr(defaultChatAPIVersion),
		APIKey:     a.cfg.OpenAI.APIKey,
		Deployment: a.deploymentOr(opts.deployment, a.cfg.OpenAI.AudioDeployment),
		HTTPClient: a.httpClient(),
	}, opts.maxTokens, a.log())
	if err != nil {
		return transcribe.Outcome{}, err
	}

	var sidecarDir string
	if opts.keepChunks {
		sidecarDir = filepath.Join(a.outputDir, "chunks_"+filepath.Base(audioPath))
		if err := os.MkdirAll(sidecarDir, 0o755); err != nil {
			return transcribe.Outcome{}, fmt.Errorf("create chunk directory: %w", err)
		}
	}

	progress := newSegmentProgress(a.progressEnabled(), "Transcribing chunks")
	defer progress.Finish()

	pipeline := &transcribe.Pipeline{
		Client:             client,
		ChunkLengthSeconds: a.chunkLength(opts),
		Format:             opts.format,
		Concurrency:        opts.concurrency,
		SystemPrompt:       opts.systemPrompt,
		UserPrompt:         opts.prompt,
		SidecarDir:         sidecarDir,
		FFmpegPath:         opts.ffmpegPath,
		Logger:             a.log(),
		OnSplit:            progress.Start,
		OnSegment:          func(int, transcribe.Result) { progress.Advance() },
	}
	return pipeline.Run(ctx, audioPath)
}
