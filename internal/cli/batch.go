package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/chunkscribe/internal/batch"
	"github.com/fmueller/chunkscribe/internal/download"
	"github.com/fmueller/chunkscribe/internal/output"
	"github.com/fmueller/chunkscribe/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type batchOptions struct {
	locale         string
	modelURL       string
	diarize        bool
	maxSpeakers    int
	wordTimestamps bool
	pollInterval   time.Duration
	timeout        time.Duration
	sasExpiry      time.Duration
}

type batchDetails struct {
	JobID     string   `json:"job_id"`
	Status    string   `json:"status"`
	Locale    string   `json:"locale"`
	Artifacts []string `json:"artifacts"`
}

func newBatchCmd(app *appState) *cobra.Command {
	opts := batchOptions{
		wordTimestamps: true,
		pollInterval:   batch.DefaultPollInterval,
		sasExpiry:      batch.DefaultSASExpiry,
	}

	cmd := &cobra.Command{
		Use:   "batch <audio-file>",
		Short: "Upload audio and run an asynchronous batch transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchFn := app.batchFn
			if batchFn == nil {
				batchFn = app.transcribeBatch
			}

			if opts.maxSpeakers < 0 {
				return fmt.Errorf("--max-speakers must not be negative, got %d", opts.maxSpeakers)
			}

			audioPath := filepath.Clean(args[0])
			started := time.Now()
			res, err := batchFn(cmd.Context(), audioPath, opts)
			if err != nil {
				return err
			}

			paths := make([]string, 0, len(res.Artifacts))
			for _, a := range res.Artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), a.Text)
				paths = append(paths, a.TextPath)
			}
			if len(res.Artifacts) == 0 {
				app.log().Warn("job succeeded without transcription files", zap.String("job", res.JobID))
			}

			meta := output.Metadata{
				Model:     opts.modelURL,
				ElapsedMS: time.Since(started).Milliseconds(),
				Details: batchDetails{
					JobID:     res.JobID,
					Status:    string(res.Status),
					Locale:    app.localeOr(opts.locale),
					Artifacts: paths,
				},
			}
			return app.writeMetadata("batch", audioPath, meta)
		},
	}

	cmd.Flags().StringVar(&opts.locale, "locale", opts.locale, "Spoken language locale (default from SPEECH_LOCALE)")
	cmd.Flags().StringVar(&opts.modelURL, "model-url", opts.modelURL, "Base model self link (default from SPEECH_MODEL_URL; see the models command)")
	cmd.Flags().BoolVar(&opts.diarize, "diarize", opts.diarize, "Separate speakers in the transcript")
	cmd.Flags().IntVar(&opts.maxSpeakers, "max-speakers", opts.maxSpeakers, "Upper bound on speakers when diarizing")
	cmd.Flags().BoolVar(&opts.wordTimestamps, "word-timestamps", opts.wordTimestamps, "Request word-level timestamps")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", opts.pollInterval, "Delay between job status checks")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", opts.timeout, "Give up waiting for the job after this long; 0 waits indefinitely")
	cmd.Flags().DurationVar(&opts.sasExpiry, "sas-expiry", opts.sasExpiry, "Lifetime of the signed read URL handed to the job")
	return cmd
}

func (a *appState) localeOr(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Speech.Locale
}

func (a *appState) transcribeBatch(ctx context.Context, audioPath string, opts batchOptions) (batch.Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return batch.Result{}, fmt.Errorf("audio file not found: %w", err)
	}
	if err := a.cfg.RequireSpeech(); err != nil {
		return batch.Result{}, err
	}
	if err := a.cfg.RequireStorage(); err != nil {
		return batch.Result{}, err
	}

	store, err := storage.NewBlobStore(storage.Options{
		SASURL:      a.cfg.Storage.SASURL,
		Container:   a.cfg.Storage.Container,
		AccountName: a.cfg.Storage.AccountName,
		AccountKey:  a.cfg.Storage.AccountKey,
		HTTPClient:  a.httpClient(),
		Logger:      a.log(),
	})
	if err != nil {
		return batch.Result{}, err
	}

	modelURL := opts.modelURL
	if modelURL == "" {
		modelURL = a.cfg.Speech.ModelURL
	}

	stopSpinner := startSpinner(a.progressEnabled(), "Waiting for transcription job")
	defer stopSpinner()

	orchestrator := &batch.Orchestrator{
		API:      a.speechClient(),
		Store:    store,
		Download: download.Func(a.httpClient(), a.noProgress, a.log()),
		Locale:   a.localeOr(opts.locale),
		ModelURL: modelURL,
		Diarization: batch.Diarization{
			Enabled:     opts.diarize,
			MaxSpeakers: opts.maxSpeakers,
		},
		WordTimestamps: opts.wordTimestamps,
		SASExpiry:      opts.sasExpiry,
		PollInterval:   opts.pollInterval,
		Timeout:        opts.timeout,
		OutputDir:      a.outputDir,
		NameFor: func(index int, ext string) string {
			return output.IndexedFileName("batch", index, audioPath, ext)
		},
		Logger: a.log(),
		OnPoll: func(s batch.Status) {
			if s.Terminal() {
				stopSpinner()
			}
		},
	}
	return orchestrator.Run(ctx, audioPath)
}

func (a *appState) speechClient() *batch.Client {
	return &batch.Client{
		Endpoint:   a.cfg.Speech.Endpoint,
		APIVersion: a.cfg.Speech.APIVersion,
		Key:        a.cfg.Speech.Key,
		HTTPClient: a.httpClient(),
		Logger:     a.log(),
	}
}
