package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

type Metadata struct {
	RunID     string    `json:"run_id"`
	Pipeline  string    `json:"pipeline"`
	Source    string    `json:"source"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Details   any       `json:"details,omitempty"`
}

type Writer struct {
	Dir    string
	Logger *zap.Logger
}

// FileName returns {tag}_transcript_{base}.{ext}, where base keeps the source
// file's own extension.
func FileName(tag, source, ext string) string {
	return fmt.Sprintf("%s_transcript_%s.%s", tag, filepath.Base(source), ext)
}

func MetadataFileName(tag, source string) string {
	return fmt.Sprintf("%s_metadata_%s.json", tag, filepath.Base(source))
}

func IndexedFileName(tag string, index int, source, ext string) string {
	return fmt.Sprintf("%s_transcript_%d_%s.%s", tag, index, filepath.Base(source), ext)
}

func (w Writer) WriteText(tag, source, text string) (string, error) {
	return w.write(FileName(tag, source, "txt"), []byte(text))
}

func (w Writer) WriteMetadata(tag, source string, meta Metadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return w.write(MetadataFileName(tag, source), append(data, '\n'))
}

func (w Writer) WriteRaw(name string, data []byte) (string, error) {
	return w.write(name, data)
}

func (w Writer) write(name string, data []byte) (string, error) {
	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}

	target := filepath.Join(dir, name)
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize %s: %w", target, err)
	}

	w.log().Info("output written", zap.String("path", target), zap.Int("bytes", len(data)))
	return target, nil
}

func (w Writer) log() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
