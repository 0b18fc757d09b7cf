package audio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

var (
	ErrDecode            = errors.New("decode audio")
	ErrEncode            = errors.New("encode audio")
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrEncode)
)

// Stream is a fully decoded audio file held in memory. It is not modified
// after Decode returns.
type Stream struct {
	buf    *beep.Buffer
	format beep.Format
}

func Decode(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDecode, path, err)
	}
	defer f.Close()

	return DecodeReader(f)
}

func DecodeReader(r io.Reader) (*Stream, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(12)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read header: %v", ErrDecode, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch sniff(magic) {
	case "wav":
		streamer, format, err = wav.Decode(br)
	case "mp3":
		streamer, format, err = mp3.Decode(io.NopCloser(br))
	default:
		return nil, fmt.Errorf("%w: unrecognized container", ErrDecode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer streamer.Close()

	if format.Precision < 1 || format.Precision > 3 {
		format.Precision = 2
	}

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}

	return &Stream{buf: buf, format: format}, nil
}

func sniff(magic []byte) string {
	switch {
	case len(magic) >= 12 && bytes.Equal(magic[:4], []byte("RIFF")) && bytes.Equal(magic[8:12], []byte("WAVE")):
		return "wav"
	case len(magic) >= 3 && bytes.Equal(magic[:3], []byte("ID3")):
		return "mp3"
	case len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return ""
	}
}

func (s *Stream) SampleRate() int {
	return int(s.format.SampleRate)
}

func (s *Stream) Channels() int {
	return s.format.NumChannels
}

func (s *Stream) Frames() int {
	return s.buf.Len()
}

func (s *Stream) DurationMS() int64 {
	return int64(s.buf.Len()) * 1000 / int64(s.format.SampleRate)
}

func (s *Stream) frameAt(ms int64) int {
	n := int(ms * int64(s.format.SampleRate) / 1000)
	if n > s.buf.Len() {
		return s.buf.Len()
	}
	return n
}
