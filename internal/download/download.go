package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type Options struct {
	URL         string
	Destination string
	NoProgress  bool
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// DownloadFile fetches URL into Destination. The body lands in a .part file
// first and is renamed into place only once complete. There are no retries.
func DownloadFile(ctx context.Context, opts Options) error {
	if opts.URL == "" {
		return errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return errors.New("destination path is required")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	started := time.Now()
	written, err := downloadOnce(ctx, opts)
	if err != nil {
		opts.Logger.Warn("download failed", zap.String("destination", opts.Destination), zap.Error(err))
		return err
	}
	opts.Logger.Debug("download finished",
		zap.String("destination", opts.Destination),
		zap.Int64("bytes", written),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func Func(client *http.Client, noProgress bool, logger *zap.Logger) func(ctx context.Context, url, destination string) error {
	return func(ctx context.Context, url, destination string) error {
		return DownloadFile(ctx, Options{
			URL:         url,
			Destination: destination,
			NoProgress:  noProgress,
			HTTPClient:  client,
			Logger:      logger,
		})
	}
}

func downloadOnce(ctx context.Context, opts Options) (int64, error) {
	tempPath := opts.Destination + ".part"
	_ = os.Remove(tempPath)

	outFile, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		_ = outFile.Close()
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "chunkscribe/1")

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var writer io.Writer = outFile

	var bar *progressbar.ProgressBar
	if shouldRenderProgress(opts.NoProgress, resp.ContentLength) {
		bar = progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		writer = io.MultiWriter(outFile, bar)
	}

	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		return written, fmt.Errorf("download body: %w", err)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if err := outFile.Sync(); err != nil {
		return written, fmt.Errorf("sync temp file: %w", err)
	}

	if err := outFile.Close(); err != nil {
		return written, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, opts.Destination); err != nil {
		return written, fmt.Errorf("move temp file into destination: %w", err)
	}

	success = true
	return written, nil
}

func shouldRenderProgress(noProgress bool, contentLength int64) bool {
	if noProgress {
		return false
	}
	if contentLength <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
