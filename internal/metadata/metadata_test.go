package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDescribeWithoutTags(t *testing.T) {
	root := t.TempDir()
	content := []byte("not really an mp3")
	path := filepath.Join(root, "A - One.mp3")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	details, err := Describe(path)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	if details.File != "A - One.mp3" {
		t.Fatalf("expected base name, got %q", details.File)
	}
	if details.FilesizeBytes != int64(len(content)) {
		t.Fatalf("expected filesize %d, got %d", len(content), details.FilesizeBytes)
	}
	if details.TagTitle != nil || details.Album != nil {
		t.Fatalf("expected no tag metadata for untagged file")
	}
	if details.DurationSeconds != nil {
		t.Fatalf("expected duration to be nil on decode error")
	}
	if details.BitrateKbps != nil {
		t.Fatalf("expected bitrate to remain nil on decode error")
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	expectedTime := stat.ModTime().UTC().Round(time.Second)
	if !details.ModifiedAt.Equal(expectedTime) {
		t.Fatalf("expected modified time %s, got %s", expectedTime, details.ModifiedAt)
	}
}

func TestDescribeNonexistentFile(t *testing.T) {
	if _, err := Describe(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestOptionalString(t *testing.T) {
	if optionalString("   ") != nil {
		t.Fatalf("expected nil for whitespace input")
	}

	value := optionalString(" value ")
	if value == nil || *value != "value" {
		t.Fatalf("expected pointer to trimmed value")
	}
}

func TestFrameSecondsRejectsGarbage(t *testing.T) {
	seconds, err := frameSeconds(strings.NewReader("garbage"))
	if err == nil {
		t.Fatalf("expected decode error for invalid mp3 data")
	}
	if seconds != 0 {
		t.Fatalf("expected zero duration on error, got %f", seconds)
	}
}

func TestFrameSecondsEmptyInput(t *testing.T) {
	seconds, err := frameSeconds(strings.NewReader(""))
	if err != nil {
		t.Fatalf("frameSeconds: %v", err)
	}
	if seconds != 0 {
		t.Fatalf("expected zero duration, got %f", seconds)
	}
}
