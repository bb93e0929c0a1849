package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// ExportPath returns the markdown file name for a transcript of topic saved at t,
// e.g. "2026-03-01-usage-based-pricing.md" inside dir.
func ExportPath(dir, topic string, t time.Time) string {
	name := slug.Make(topic)
	if name == "" {
		name = "roundtable"
	}
	if len(name) > 60 {
		name = strings.TrimRight(name[:60], "-")
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.md", t.Format("2006-01-02"), name))
}

// Export writes the transcript markdown of snap into dir and returns the file path.
func Export(dir string, snap dialogue.Snapshot, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	topic := snap.Topic
	if topic == "" {
		topic = snap.Session
	}
	path := ExportPath(dir, topic, now)
	if err := os.WriteFile(path, []byte(TranscriptMarkdown(snap)), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}
