package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultSASExpiry    = 5 * time.Minute
	uploadPath          = "uploads"
)

var ErrJobFailed = errors.New("transcription job failed")

type JobAPI interface {
	Submit(ctx context.Context, req SubmitRequest) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	ListFiles(ctx context.Context, id string) ([]File, error)
}

// Store keeps uploaded audio and hands out time-limited read URLs for it.
type Store interface {
	Upload(ctx context.Context, dir, name string, data []byte) error
	ReadURL(dir, name string, expiry time.Duration) (string, error)
}

type DownloadFunc func(ctx context.Context, url, destination string) error

type Orchestrator struct {
	API      JobAPI
	Store    Store
	Download DownloadFunc

	Locale         string
	ModelURL       string
	Diarization    Diarization
	WordTimestamps bool
	SASExpiry      time.Duration
	PollInterval   time.Duration
	// Timeout bounds the whole poll wait; zero waits until ctx is done.
	Timeout   time.Duration
	OutputDir string
	// NameFor builds output file names from an artifact index and extension.
	NameFor func(index int, ext string) string
	Logger  *zap.Logger
	OnPoll  func(Status)
}

type Artifact struct {
	Index    int
	JSONPath string
	TextPath string
	Text     string
}

type Result struct {
	JobID     string
	Status    Status
	Artifacts []Artifact
}

func (o *Orchestrator) Run(ctx context.Context, audioPath string) (Result, error) {
	if o.API == nil || o.Store == nil || o.Download == nil {
		return Result{}, errors.New("batch orchestrator is not fully configured")
	}
	logger := o.logger()

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("read audio: %w", err)
	}

	name := filepath.Base(audioPath)
	if err := o.Store.Upload(ctx, uploadPath, name, data); err != nil {
		return Result{}, fmt.Errorf("upload audio: %w", err)
	}
	logger.Info("audio uploaded", zap.String("blob", uploadPath+"/"+name), zap.Int("bytes", len(data)))

	expiry := o.SASExpiry
	if expiry <= 0 {
		expiry = DefaultSASExpiry
	}
	contentURL, err := o.Store.ReadURL(uploadPath, name, expiry)
	if err != nil {
		return Result{}, fmt.Errorf("sign read url: %w", err)
	}
	logger.Debug("read url generated", zap.Duration("expiry", expiry))

	job, err := o.API.Submit(ctx, SubmitRequest{
		ContentURLs:    []string{contentURL},
		Locale:         o.Locale,
		ModelURL:       o.ModelURL,
		DisplayName:    "Transcription of " + name,
		Diarization:    o.Diarization,
		WordTimestamps: o.WordTimestamps,
	})
	if err != nil {
		return Result{}, err
	}
	id := job.ID()
	logger.Info("transcription job submitted", zap.String("job", id))

	final, err := o.Wait(ctx, id)
	res := Result{JobID: id, Status: final.Status}
	if err != nil {
		return res, err
	}

	res.Artifacts, err = o.collect(ctx, id)
	return res, err
}

// Wait polls the job on a fixed interval until it reaches a terminal status,
// ctx is done or the timeout passes. A failed job returns ErrJobFailed with
// the remote error payload.
func (o *Orchestrator) Wait(ctx context.Context, id string) (Job, error) {
	logger := o.logger()
	interval := o.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	states := newTracker()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := o.API.Get(ctx, id)
		switch {
		case err != nil && ctx.Err() != nil:
			return Job{Status: states.Current()}, fmt.Errorf("wait for job %s: %w", id, ctx.Err())
		case err != nil:
			logger.Warn("job status unavailable; polling again", zap.String("job", id), zap.Error(err))
		default:
			if err := states.Observe(ctx, job.Status); err != nil {
				return job, err
			}
			if o.OnPoll != nil {
				o.OnPoll(job.Status)
			}

			switch job.Status {
			case StatusSucceeded:
				logger.Info("transcription job succeeded", zap.String("job", id))
				return job, nil
			case StatusFailed:
				detail := string(job.Properties.Error)
				logger.Error("transcription job failed", zap.String("job", id), zap.String("error", detail))
				return job, fmt.Errorf("%w: %s", ErrJobFailed, detail)
			default:
				logger.Info("job not completed yet", zap.String("job", id), zap.String("status", string(job.Status)), zap.Duration("retry_in", interval))
			}
		}

		select {
		case <-ctx.Done():
			return Job{Status: states.Current()}, fmt.Errorf("wait for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) collect(ctx context.Context, id string) ([]Artifact, error) {
	logger := o.logger()

	files, err := o.API.ListFiles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list job files: %w", err)
	}

	var artifacts []Artifact
	for i, f := range files {
		if f.Kind != FileKindTranscription {
			logger.Debug("skipping job file", zap.String("name", f.Name), zap.String("kind", f.Kind))
			continue
		}

		jsonPath := filepath.Join(o.OutputDir, o.nameFor(i, "json"))
		if err := o.Download(ctx, f.Links.ContentURL, jsonPath); err != nil {
			return artifacts, fmt.Errorf("download %s: %w", f.Name, err)
		}

		text, err := ExtractDisplayText(jsonPath)
		if err != nil {
			return artifacts, err
		}

		textPath := filepath.Join(o.OutputDir, o.nameFor(i, "txt"))
		if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
			return artifacts, fmt.Errorf("write transcript: %w", err)
		}
		logger.Info("transcription text saved", zap.String("path", textPath))

		artifacts = append(artifacts, Artifact{Index: i, JSONPath: jsonPath, TextPath: textPath, Text: text})
	}
	return artifacts, nil
}

// ExtractDisplayText returns the first combined recognized phrase of a
// downloaded transcription result.
func ExtractDisplayText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcription result: %w", err)
	}

	var doc struct {
		CombinedRecognizedPhrases []struct {
			Display string `json:"display"`
		} `json:"combinedRecognizedPhrases"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("decode transcription result: %w", err)
	}
	if len(doc.CombinedRecognizedPhrases) == 0 {
		return "", nil
	}
	return doc.CombinedRecognizedPhrases[0].Display, nil
}

func (o *Orchestrator) nameFor(index int, ext string) string {
	if o.NameFor != nil {
		return o.NameFor(index, ext)
	}
	return fmt.Sprintf("batch_transcript_%d.%s", index, ext)
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
