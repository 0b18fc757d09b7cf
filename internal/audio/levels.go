package audio

import "math"

type Levels struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// Silent reports whether both RMS and peak (with 6 dB headroom) stay under
// the threshold.
func (l Levels) Silent(thresholdDBFS float64) bool {
	if l.Samples == 0 {
		return true
	}
	if math.IsInf(l.RMSdBFS, -1) && math.IsInf(l.PeakdBFS, -1) {
		return true
	}
	return l.RMSdBFS <= thresholdDBFS && l.PeakdBFS <= thresholdDBFS+6
}

func Measure(seg Segment) Levels {
	if seg.stream == nil {
		return Levels{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}

	channels := min(max(seg.Channels, 1), 2)
	frames := seg.Frames()
	block := make([][2]float64, 512)

	var (
		peak       float64
		sumSquares float64
		samples    int64
	)
	for {
		n, ok := frames.Stream(block)
		if !ok {
			break
		}
		for _, frame := range block[:n] {
			for c := 0; c < channels; c++ {
				abs := math.Abs(frame[c])
				if abs > peak {
					peak = abs
				}
				sumSquares += frame[c] * frame[c]
				samples++
			}
		}
	}

	if samples == 0 {
		return Levels{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}

	return Levels{
		RMSdBFS:  amplitudeToDBFS(math.Sqrt(sumSquares / float64(samples))),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  samples,
	}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
