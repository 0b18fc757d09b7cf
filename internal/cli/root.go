package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fmueller/chunkscribe/internal/batch"
	"github.com/fmueller/chunkscribe/internal/config"
	"github.com/fmueller/chunkscribe/internal/logging"
	"github.com/fmueller/chunkscribe/internal/output"
	"github.com/fmueller/chunkscribe/internal/transcribe"
	"github.com/fmueller/chunkscribe/internal/version"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	envFiles   []string
	outputDir  string

	cfg    config.Config
	runID  string
	logger *zap.Logger
	now    func() time.Time
	client *http.Client

	whisperFn func(ctx context.Context, audioPath string, opts whisperOptions) (string, error)
	chunkedFn func(ctx context.Context, audioPath string, opts chunkedOptions) (transcribe.Outcome, error)
	batchFn   func(ctx context.Context, audioPath string, opts batchOptions) (batch.Result, error)
	modelsFn  func(ctx context.Context) (json.RawMessage, error)
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		now: time.Now,
	}
	app.whisperFn = app.transcribeWhisper
	app.chunkedFn = app.transcribeChunked
	app.batchFn = app.transcribeBatch
	app.modelsFn = app.fetchBaseModels

	cmd := &cobra.Command{
		Use:           "chunkscribe",
		Short:         "Transcribe audio files with cloud speech services",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.setup()
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlags(cmd, app)

	cmd.AddCommand(newWhisperCmd(app))
	cmd.AddCommand(newChunkedCmd(app))
	cmd.AddCommand(newBatchCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindConfigFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringArrayVar(&app.envFiles, "env-file", nil, "Additional env file to read (repeatable); .env is read when present")
	cmd.PersistentFlags().StringVar(&app.outputDir, "output-dir", app.outputDir, "Directory for transcripts and metadata (default from OUTPUT_DIR)")
}

func (a *appState) setup() error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.outputDir == "" {
		a.outputDir = cfg.OutputDir
	}

	a.runID = uuid.NewString()
	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs, RunID: a.runID})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	a.logger.Debug("configuration loaded", zap.Strings("env_files", cfg.EnvFiles), zap.String("output_dir", a.outputDir))
	return nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) httpClient() *http.Client {
	if a.client == nil {
		return &http.Client{Timeout: 10 * time.Minute}
	}
	return a.client
}

func (a *appState) writer() output.Writer {
	return output.Writer{Dir: a.outputDir, Logger: a.log()}
}

func (a *appState) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

func (a *appState) writeRun(tag, audioPath, text string, meta output.Metadata) error {
	if _, err := a.writer().WriteText(tag, audioPath, text); err != nil {
		return err
	}
	return a.writeMetadata(tag, audioPath, meta)
}

func (a *appState) writeMetadata(tag, audioPath string, meta output.Metadata) error {
	meta.RunID = a.runID
	meta.Pipeline = tag
	meta.Source = audioPath
	meta.CreatedAt = a.clock().UTC()

	_, err := a.writer().WriteMetadata(tag, audioPath, meta)
	return err
}
