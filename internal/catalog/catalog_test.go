package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"home-radio/internal/models"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		file   string
		artist string
		title  string
	}{
		{"A - One.mp3", "A", "One"},
		{"Daft Punk - One More Time - Radio Edit.mp3", "Daft Punk", "One More Time - Radio Edit"},
		{"untitled.mp3", models.UnknownArtist, "untitled"},
		{"no-spaces-dash.mp3", models.UnknownArtist, "no-spaces-dash"},
		{" - .mp3", "", ""},
	}

	for _, tc := range cases {
		got := ParseName(tc.file)
		if got.File != tc.file {
			t.Fatalf("%q: expected file reference to be kept, got %q", tc.file, got.File)
		}
		if got.Artist != tc.artist || got.Title != tc.title {
			t.Fatalf("%q: expected %q/%q, got %q/%q", tc.file, tc.artist, tc.title, got.Artist, got.Title)
		}
	}
}

func TestListTracksFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"B - Two.mp3", "A - One.mp3", "notes.txt", "partial.mp3.part", "LOUD.MP3"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "folder.mp3"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tracks, err := ListTracks(root)
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}

	want := []string{"A - One.mp3", "B - Two.mp3", "LOUD.MP3"}
	if len(tracks) != len(want) {
		t.Fatalf("expected %d tracks, got %+v", len(want), tracks)
	}
	for i, name := range want {
		if tracks[i].File != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, tracks[i].File)
		}
	}
}

func TestListTracksRereadsDirectory(t *testing.T) {
	root := t.TempDir()
	dir := New(root)

	tracks, err := dir.ListTracks()
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected empty catalog, got %+v", tracks)
	}

	if err := os.WriteFile(filepath.Join(root, "A - One.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tracks, err = dir.ListTracks()
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "One" {
		t.Fatalf("expected new file to be listed, got %+v", tracks)
	}
	if got := dir.Path("../A - One.mp3"); got != filepath.Join(root, "A - One.mp3") {
		t.Fatalf("expected Path to stay inside the root, got %s", got)
	}
}

func TestListTracksMissingDirectory(t *testing.T) {
	if _, err := ListTracks(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestFind(t *testing.T) {
	tracks := []models.Track{{File: "a.mp3"}, {File: "b.mp3"}}
	if Find(tracks, "b.mp3") != 1 {
		t.Fatalf("expected b.mp3 at position 1")
	}
	if Find(tracks, "c.mp3") != -1 {
		t.Fatalf("expected -1 for missing file")
	}
}
