package cli

import (
	"strings"

	"github.com/fmueller/chunkscribe/internal/transcribe"
)

func isBlankTranscript(transcript string) bool {
	return strings.TrimSpace(transcript) == ""
}

func nothingTranscribed(t transcribe.Transcript) bool {
	completed, _, _ := t.Counts()
	return completed == 0
}

func noSpeechHint() string {
	return "No speech recognized. Check that the file contains audible speech and that the deployment accepts audio input."
}
