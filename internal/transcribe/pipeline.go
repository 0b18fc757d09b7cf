package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/chunkscribe/internal/audio"
	"go.uber.org/zap"
)

type SegmentInfo struct {
	Index      int     `json:"index"`
	StartMS    int64   `json:"start_ms"`
	DurationMS int64   `json:"duration_ms"`
	RMSdBFS    float64 `json:"rms_dbfs"`
	PeakdBFS   float64 `json:"peak_dbfs"`
	Silent     bool    `json:"silent"`
	Status     string  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
}

type Outcome struct {
	Transcript Transcript
	Segments   []SegmentInfo
	SampleRate int
	Channels   int
	DurationMS int64
	Format     string
	Elapsed    time.Duration
}

// SilenceThresholdDBFS is the RMS level under which a segment is flagged as
// silent in metadata. Silent segments are still sent.
const SilenceThresholdDBFS = -50.0

// Pipeline splits a file into fixed segments, transcribes each one on its own
// and assembles the results in segment order.
type Pipeline struct {
	Client             SegmentTranscriber
	ChunkLengthSeconds float64
	// Format is the container each segment is exported to; empty selects it
	// from the source file extension.
	Format       string
	Concurrency  int
	SystemPrompt string
	UserPrompt   string
	SidecarDir   string
	FFmpegPath   string
	Logger       *zap.Logger
	// OnSplit receives the segment count before any segment is sent.
	OnSplit func(count int)
	// OnSegment is called after each segment finishes, in completion order.
	OnSegment func(index int, r Result)
}

func (p *Pipeline) Run(ctx context.Context, audioPath string) (Outcome, error) {
	if p.Client == nil {
		return Outcome{}, errors.New("segment transcriber is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	format := ResolveFormat(p.Format, audioPath)
	if !audio.SupportedFormat(format) {
		return Outcome{}, fmt.Errorf("%w: %q", audio.ErrUnsupportedFormat, format)
	}

	systemPrompt := p.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	userPrompt := p.UserPrompt
	if userPrompt == "" {
		userPrompt = DefaultUserPrompt
	}

	started := time.Now()
	stream, err := audio.Decode(audioPath)
	if err != nil {
		return Outcome{}, err
	}

	segments, err := audio.Split(stream, p.ChunkLengthSeconds)
	if err != nil {
		return Outcome{}, err
	}
	logger.Info("audio split into chunks",
		zap.String("audio", audioPath),
		zap.Int64("duration_ms", stream.DurationMS()),
		zap.Int("sample_rate", stream.SampleRate()),
		zap.Int("channels", stream.Channels()),
		zap.Int("chunks", len(segments)),
		zap.String("format", format),
	)
	if p.OnSplit != nil {
		p.OnSplit(len(segments))
	}

	infos := make([]SegmentInfo, len(segments))
	results := RunOrdered(ctx, len(segments), p.Concurrency, func(ctx context.Context, i int) Result {
		seg := segments[i]
		levels := audio.Measure(seg)
		infos[i] = SegmentInfo{
			Index:      seg.Index,
			StartMS:    seg.StartMS,
			DurationMS: seg.DurationMS,
			RMSdBFS:    finiteOr(levels.RMSdBFS, -999),
			PeakdBFS:   finiteOr(levels.PeakdBFS, -999),
			Silent:     levels.Silent(SilenceThresholdDBFS),
		}
		if infos[i].Silent {
			logger.Warn("chunk looks silent", zap.Int("chunk", seg.Index+1), zap.Float64("rms_dbfs", infos[i].RMSdBFS))
		}

		r := p.transcribeSegment(ctx, logger, seg, format, systemPrompt, userPrompt)
		if p.OnSegment != nil {
			p.OnSegment(i, r)
		}
		return r
	})

	for i, r := range results {
		infos[i].Status = r.Kind.String()
		infos[i].Reason = r.Reason
	}

	return Outcome{
		Transcript: Assemble(results),
		Segments:   infos,
		SampleRate: stream.SampleRate(),
		Channels:   stream.Channels(),
		DurationMS: stream.DurationMS(),
		Format:     format,
		Elapsed:    time.Since(started),
	}, nil
}

func (p *Pipeline) transcribeSegment(ctx context.Context, logger *zap.Logger, seg audio.Segment, format, systemPrompt, userPrompt string) Result {
	opts := audio.EncodeOptions{FFmpegPath: p.FFmpegPath}
	if p.SidecarDir != "" {
		opts.SidecarPath = filepath.Join(p.SidecarDir, fmt.Sprintf("chunk_%03d.%s", seg.Index, format))
	}

	logger.Debug("processing chunk", zap.Int("chunk", seg.Index+1), zap.Int64("start_ms", seg.StartMS), zap.Int64("duration_ms", seg.DurationMS))

	payload, err := audio.Encode(ctx, seg, format, opts)
	if err != nil {
		logger.Warn("chunk encoding failed", zap.Int("chunk", seg.Index+1), zap.Error(err))
		return Failed(err.Error())
	}

	started := time.Now()
	r := p.Client.Transcribe(ctx, payload, systemPrompt, userPrompt)
	fields := []zap.Field{zap.Int("chunk", seg.Index+1), zap.String("status", r.Kind.String()), zap.Duration("elapsed", time.Since(started))}
	if r.Kind == KindCompleted {
		logger.Debug("chunk transcribed", fields...)
	} else {
		logger.Warn("chunk skipped", append(fields, zap.String("reason", r.Reason))...)
	}
	return r
}

// ResolveFormat picks the export container, falling back to the source
// extension and then to wav.
func ResolveFormat(format, audioPath string) string {
	if f := strings.ToLower(strings.TrimSpace(format)); f != "" {
		return f
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(audioPath), "."))
	if audio.SupportedFormat(ext) {
		return ext
	}
	return "wav"
}

func finiteOr(v, fallback float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}
	return v
}
