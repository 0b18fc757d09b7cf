package transcribe

import (
	"fmt"
	"strings"
)

type Section struct {
	Number int
	Result Result
}

// Transcript holds one section per segment, numbered from 1. Sections are
// independent blocks: words split across a boundary are not stitched.
type Transcript struct {
	Sections []Section
}

func Assemble(results []Result) Transcript {
	sections := make([]Section, len(results))
	for i, r := range results {
		sections[i] = Section{Number: i + 1, Result: r}
	}
	return Transcript{Sections: sections}
}

func (s Section) Line() string {
	return fmt.Sprintf("Audio chunk %d: %s", s.Number, s.body())
}

func (s Section) body() string {
	switch s.Result.Kind {
	case KindCompleted:
		return s.Result.Text
	case KindIncomplete:
		return "Skipped," + s.Result.Reason
	default:
		return "Skipped, " + s.Result.Detail
	}
}

func (t Transcript) Lines() []string {
	lines := make([]string, len(t.Sections))
	for i, s := range t.Sections {
		lines[i] = s.Line()
	}
	return lines
}

func (t Transcript) String() string {
	var b strings.Builder
	for _, s := range t.Sections {
		b.WriteString(s.Line())
		b.WriteString("\n")
	}
	return b.String()
}

func (t Transcript) Counts() (completed, incomplete, failed int) {
	for _, s := range t.Sections {
		switch s.Result.Kind {
		case KindCompleted:
			completed++
		case KindIncomplete:
			incomplete++
		default:
			failed++
		}
	}
	return completed, incomplete, failed
}
