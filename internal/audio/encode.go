package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gopxl/beep/wav"
)

// Payload is an exported segment ready to be embedded in a JSON request.
type Payload struct {
	Format string
	Data   string
}

func (p Payload) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

type EncodeOptions struct {
	// SidecarPath, when set, also receives the exported bytes for inspection.
	SidecarPath string
	FFmpegPath  string
}

func SupportedFormat(format string) bool {
	switch strings.ToLower(format) {
	case "wav", "mp3":
		return true
	default:
		return false
	}
}

func Encode(ctx context.Context, seg Segment, format string, opts EncodeOptions) (Payload, error) {
	data, err := Export(ctx, seg, format, opts.FFmpegPath)
	if err != nil {
		return Payload{}, err
	}

	if opts.SidecarPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.SidecarPath), 0o755); err != nil {
			return Payload{}, fmt.Errorf("create sidecar directory: %w", err)
		}
		if err := os.WriteFile(opts.SidecarPath, data, 0o644); err != nil {
			return Payload{}, fmt.Errorf("write sidecar %s: %w", opts.SidecarPath, err)
		}
	}

	return Payload{
		Format: strings.ToLower(format),
		Data:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Export serializes the segment into the target container at its original
// sample rate and channel count.
func Export(ctx context.Context, seg Segment, format, ffmpegPath string) ([]byte, error) {
	if seg.stream == nil {
		return nil, fmt.Errorf("%w: segment has no source stream", ErrEncode)
	}

	switch strings.ToLower(format) {
	case "wav":
		return exportWAV(seg)
	case "mp3":
		pcm, err := exportWAV(seg)
		if err != nil {
			return nil, err
		}
		return transcodeFFmpeg(ctx, ffmpegPath, pcm, "mp3", seg.SampleRate, seg.Channels)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportWAV(seg Segment) ([]byte, error) {
	out := &memFile{}
	if err := wav.Encode(out, seg.Frames(), seg.format()); err != nil {
		return nil, fmt.Errorf("%w: wav: %v", ErrEncode, err)
	}
	return out.Bytes(), nil
}

func transcodeFFmpeg(ctx context.Context, ffmpegPath string, wavData []byte, format string, sampleRate, channels int) ([]byte, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "wav", "-i", "pipe:0",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-f", format,
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(wavData)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s output requires ffmpeg: %v", ErrEncode, format, err)
		}
		return nil, fmt.Errorf("%w: ffmpeg %s: %v: %s", ErrEncode, format, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// memFile is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch the RIFF sizes once all frames are written.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte {
	return m.buf
}
