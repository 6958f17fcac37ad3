package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clinicalintel/intake/internal/diarize"
)

// DefaultMaxFileMB bounds transcript files read from disk.
const DefaultMaxFileMB = 10

// FileReader loads transcripts from disk.
type FileReader struct {
	maxSize int64
}

// NewFileReader returns a reader that refuses files larger than maxSizeMB.
func NewFileReader(maxSizeMB int) *FileReader {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxFileMB
	}
	return &FileReader{maxSize: int64(maxSizeMB) * 1024 * 1024}
}

// Read returns the transcript text of path.
// Supported formats: .txt, .md, .html/.htm, and .json holding an array of
// transcription segments, which are diarized and assembled.
func (r *FileReader) Read(ctx context.Context, path string) (string, error) {
	_, span := tracer.Start(ctx, "ingest.read_file")
	defer span.End()

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > r.maxSize {
		return "", fmt.Errorf("file size %d exceeds limit %d bytes", info.Size(), r.maxSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file %s: %w", path, err)
	}
	return Decode(strings.ToLower(filepath.Ext(path)), content)
}

// Decode converts raw file content with the given extension into transcript
// text.
func Decode(ext string, content []byte) (string, error) {
	switch ext {
	case ".txt", ".md", "":
		return string(content), nil
	case ".html", ".htm":
		return StripMarkup(string(content)), nil
	case ".json":
		var segs []diarize.Segment
		if err := json.Unmarshal(content, &segs); err != nil {
			return "", fmt.Errorf("decoding segments: %w", err)
		}
		return diarize.Assemble(diarize.AssignSpeakers(segs)), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
}
