package nfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const header = "AATM NAS Edition NFO"

// Document holds what goes into a sidecar file.
type Document struct {
	SourcePath  string
	Announce    string
	Source      string
	GeneratedAt time.Time
	// MediaInfo is the raw inspection report; empty means no report.
	MediaInfo json.RawMessage
}

// Render produces the sidecar text.
func Render(doc Document) (string, error) {
	generated := doc.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	report := "{}"
	if len(bytes.TrimSpace(doc.MediaInfo)) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, doc.MediaInfo, "", "  "); err != nil {
			return "", fmt.Errorf("format media info: %w", err)
		}
		report = buf.String()
	}

	lines := []string{
		header,
		"Source file: " + doc.SourcePath,
		"Tracker announce: " + orNA(doc.Announce),
		"Torrent source: " + orNA(doc.Source),
		"Generated at: " + generated.UTC().Format(time.RFC3339),
		"",
		report,
	}
	return strings.Join(lines, "\n"), nil
}

// Write renders doc and stores it at path, replacing any previous file.
func Write(path string, doc Document) error {
	text, err := Render(doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nfo-*")
	if err != nil {
		return fmt.Errorf("create temp nfo: %w", err)
	}
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write nfo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close nfo: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod nfo: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename nfo: %w", err)
	}
	return nil
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "N/A"
	}
	return v
}
