package transcribe

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNetwork marks failures reaching an endpoint at the transport or HTTP
// status level. Segment transcribers fold it into a Failed result.
var ErrNetwork = errors.New("network error")

type Kind int

const (
	KindCompleted Kind = iota
	KindIncomplete
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindIncomplete:
		return "incomplete"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of transcribing one segment. Exactly one of Text,
// Reason or Detail is meaningful, selected by Kind.
type Result struct {
	Kind   Kind
	Text   string
	Reason string
	Detail string
}

func Completed(text string) Result {
	return Result{Kind: KindCompleted, Text: text}
}

// Incomplete records an endpoint that stopped early, e.g. "length" or
// "content_filter".
func Incomplete(reason string) Result {
	return Result{Kind: KindIncomplete, Reason: reason}
}

// Failed records an unusable response. The detail is folded onto one line so
// each segment keeps a single transcript line.
func Failed(detail string) Result {
	return Result{Kind: KindFailed, Detail: singleLine(detail)}
}

func singleLine(s string) string {
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(s)); err == nil {
		return b.String()
	}
	return strings.Join(strings.Fields(s), " ")
}
