package metadata

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"home-radio/internal/models"
)

// Describe reads the tag and frame information of the audio file at path.
// Unreadable tags or frames leave the corresponding fields nil.
func Describe(path string) (models.TrackDetails, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.TrackDetails{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.TrackDetails{}, err
	}

	details := models.TrackDetails{
		File:          filepath.Base(path),
		FilesizeBytes: info.Size(),
		ModifiedAt:    info.ModTime().UTC().Round(time.Second),
	}
	if meta, err := tag.ReadFrom(f); err == nil {
		details.TagTitle = optionalString(meta.Title())
		details.Album = optionalString(meta.Album())
	}

	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return details, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return details, nil
	}
	seconds, err := frameSeconds(f)
	if err != nil || seconds <= 0 {
		return details, nil
	}
	details.DurationSeconds = &seconds
	if kbps := int(math.Round(float64(info.Size()) * 8 / seconds / 1000)); kbps > 0 {
		details.BitrateKbps = &kbps
	}
	return details, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// frameSeconds sums the playing time of every MPEG frame in r.
func frameSeconds(r io.Reader) (float64, error) {
	decoder := mp3.NewDecoder(r)
	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				return total.Seconds(), nil
			}
			return 0, err
		}
		total += frame.Duration()
	}
}
