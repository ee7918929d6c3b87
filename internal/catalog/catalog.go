package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"home-radio/internal/models"
)

// Extension is the only file suffix the catalog recognises as audio.
const Extension = ".mp3"

const separator = " - "

// Dir is a directory of audio files read fresh on every call.
type Dir struct {
	Root string
}

// New returns a catalog rooted at the provided directory.
func New(root string) *Dir {
	return &Dir{Root: filepath.Clean(root)}
}

// ListTracks reads the directory and returns its audio files as tracks.
func (d *Dir) ListTracks() ([]models.Track, error) {
	return ListTracks(d.Root)
}

// Path returns the on-disk location of a track reference.
func (d *Dir) Path(file string) string {
	return filepath.Join(d.Root, filepath.Base(file))
}

// ListTracks returns the audio files directly inside dir, sorted by file name.
// Non-audio entries and sub-directories are ignored.
func ListTracks(dir string) ([]models.Track, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsAudio(entry.Name()) {
			continue
		}
		tracks = append(tracks, ParseName(entry.Name()))
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].File < tracks[j].File
	})
	return tracks, nil
}

// IsAudio reports whether name carries the audio extension.
func IsAudio(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// ParseName derives artist and title from "<Artist> - <Title>.<ext>".
// Without the separator the artist is UnknownArtist and the title is the whole base name.
func ParseName(file string) models.Track {
	base := filepath.Base(file)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	track := models.Track{File: base, Artist: models.UnknownArtist, Title: stem}
	if artist, title, ok := strings.Cut(stem, separator); ok {
		track.Artist = artist
		track.Title = title
	}
	return track
}

// Find returns the position of file within tracks, or -1.
func Find(tracks []models.Track, file string) int {
	for i, t := range tracks {
		if t.File == file {
			return i
		}
	}
	return -1
}
