package audio

import (
	"errors"
	"math"

	"github.com/gopxl/beep"
)

// Segment is a contiguous slice of a Stream. Index orders segments in the
// final transcript.
type Segment struct {
	Index      int
	StartMS    int64
	DurationMS int64
	SampleRate int
	Channels   int

	stream *Stream
	from   int
	to     int
}

func (s Segment) Frames() beep.StreamSeeker {
	return s.stream.buf.Streamer(s.from, s.to)
}

func (s Segment) FrameCount() int {
	return s.to - s.from
}

func (s Segment) format() beep.Format {
	return s.stream.format
}

// Split cuts the stream into fixed windows of chunkLengthSeconds. Windows
// never overlap and the last one holds whatever remains, so boundaries may
// fall in the middle of a word.
func Split(stream *Stream, chunkLengthSeconds float64) ([]Segment, error) {
	if stream == nil {
		return nil, errors.New("audio stream is required")
	}
	chunkMS := int64(math.Round(chunkLengthSeconds * 1000))
	if chunkMS <= 0 {
		return nil, errors.New("chunk length must be at least 1 ms")
	}

	total := stream.DurationMS()
	if total <= chunkMS {
		return []Segment{stream.segment(0, 0, total)}, nil
	}

	segments := make([]Segment, 0, (total+chunkMS-1)/chunkMS)
	for start := int64(0); start < total; start += chunkMS {
		length := min(chunkMS, total-start)
		segments = append(segments, stream.segment(len(segments), start, length))
	}
	return segments, nil
}

func (s *Stream) segment(index int, startMS, durationMS int64) Segment {
	to := s.frameAt(startMS + durationMS)
	if startMS+durationMS >= s.DurationMS() {
		to = s.buf.Len()
	}
	return Segment{
		Index:      index,
		StartMS:    startMS,
		DurationMS: durationMS,
		SampleRate: s.SampleRate(),
		Channels:   s.Channels(),
		stream:     s,
		from:       s.frameAt(startMS),
		to:         to,
	}
}
