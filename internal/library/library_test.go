package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"home-radio/internal/catalog"
	"home-radio/internal/models"
)

func TestLibraryWatchesAndRefreshes(t *testing.T) {
	root := t.TempDir()
	initial := filepath.Join(root, "A - One.mp3")
	if err := os.WriteFile(initial, []byte("one"), 0o644); err != nil {
		t.Fatalf("write initial file: %v", err)
	}

	lib, err := New(root, 10*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := lib.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	if lib.Len() != 1 {
		t.Fatalf("expected initial scan to index 1 file, got %d", lib.Len())
	}
	d, ok := lib.lookup("A - One.mp3")
	if !ok || d.FilesizeBytes != 3 {
		t.Fatalf("unexpected details %+v (found %v)", d, ok)
	}

	second := filepath.Join(root, "B - Two.mp3")
	if err := os.WriteFile(second, []byte("two!"), 0o644); err != nil {
		t.Fatalf("write second file: %v", err)
	}
	waitFor(t, func() bool { return lib.Len() == 2 }, "detect second file")

	renamed := filepath.Join(root, "A - Renamed.mp3")
	if err := os.Rename(initial, renamed); err != nil {
		t.Fatalf("rename file: %v", err)
	}
	waitFor(t, func() bool {
		_, ok := lib.lookup("A - Renamed.mp3")
		return ok
	}, "detect rename")

	if err := os.Remove(second); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	waitFor(t, func() bool { return lib.Len() == 1 }, "reflect removal")
}

func TestLibraryIgnoresNonAudioFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("text"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "song.MP3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write mp3: %v", err)
	}

	lib, err := New(root, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })

	if _, ok := lib.lookup("song.MP3"); !ok || lib.Len() != 1 {
		t.Fatalf("expected only song.MP3 indexed, got %d entries", lib.Len())
	}

	// Adding another non-audio file should not change the count.
	if err := os.WriteFile(filepath.Join(root, "readme.md"), []byte("doc"), 0o644); err != nil {
		t.Fatalf("write md: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if lib.Len() != 1 {
		t.Fatalf("expected still 1 track, got %d", lib.Len())
	}
}

func TestLibraryEmptyDirectory(t *testing.T) {
	root := t.TempDir()

	lib, err := New(root, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })

	if lib.Len() != 0 {
		t.Fatalf("expected 0 tracks for empty dir, got %d", lib.Len())
	}

	if err := os.WriteFile(filepath.Join(root, "new.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	waitFor(t, func() bool { return lib.Len() == 1 }, "detect new file")
}

func TestLibraryMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent"), time.Millisecond, nil); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
}

func TestListingFollowsTrackOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"B - Two.mp3", "A - One.mp3"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	lib, err := New(root, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })

	tracks, err := catalog.ListTracks(root)
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	// A track the index has not seen yet still gets listed.
	tracks = append(tracks, catalog.ParseName("Untitled.mp3"))

	listing := lib.Listing(tracks)
	if len(listing) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(listing))
	}
	for i, entry := range listing {
		if entry.Index != i+1 || entry.File != tracks[i].File {
			t.Fatalf("entry %d out of order: %+v", i, entry)
		}
	}
	if listing[1].Artist != "B" || listing[1].Title != "Two" {
		t.Fatalf("unexpected entry %+v", listing[1])
	}
	if listing[2].DurationSeconds != nil || listing[2].Album != nil {
		t.Fatalf("expected no details for an unindexed track")
	}

	if len(lib.Listing(nil)) != 0 {
		t.Fatalf("expected empty listing")
	}
}

func TestListingCarriesTagMetadata(t *testing.T) {
	root := t.TempDir()
	data := append(make([]byte, 64), id3v1("Tagged Title", "Night Album")...)
	if err := os.WriteFile(filepath.Join(root, "A - One.mp3"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lib, err := New(root, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })

	listing := lib.Listing([]models.Track{catalog.ParseName("A - One.mp3")})
	if len(listing) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(listing))
	}
	entry := listing[0]
	if entry.TagTitle == nil || *entry.TagTitle != "Tagged Title" {
		t.Fatalf("expected tag title, got %+v", entry.TagTitle)
	}
	if entry.Album == nil || *entry.Album != "Night Album" {
		t.Fatalf("expected album, got %+v", entry.Album)
	}
	if entry.Title != "One" {
		t.Fatalf("expected the name-derived title to stay, got %q", entry.Title)
	}
}

// id3v1 builds a 128-byte ID3v1 trailer.
func id3v1(title, album string) []byte {
	field := func(v string, n int) []byte {
		b := make([]byte, n)
		copy(b, v)
		return b
	}
	var tag []byte
	tag = append(tag, "TAG"...)
	tag = append(tag, field(title, 30)...)
	tag = append(tag, field("", 30)...)
	tag = append(tag, field(album, 30)...)
	tag = append(tag, field("2024", 4)...)
	tag = append(tag, field("", 30)...)
	tag = append(tag, 0)
	return tag
}

func waitFor(t *testing.T, predicate func() bool, label string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", label)
}
