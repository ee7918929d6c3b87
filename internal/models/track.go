package models

import "time"

// UnknownArtist is reported when a file name carries no "Artist - Title" separator.
const UnknownArtist = "Unknown Artist"

// Track is one audio file in the library plus the artist and title derived from its name.
type Track struct {
	File   string `json:"file"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// TrackDetails holds metadata read from the file contents rather than its name.
type TrackDetails struct {
	File            string    `json:"file"`
	TagTitle        *string   `json:"tag_title,omitempty"`
	Album           *string   `json:"album,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	BitrateKbps     *int      `json:"bitrate_kbps,omitempty"`
	FilesizeBytes   int64     `json:"filesize_bytes"`
	ModifiedAt      time.Time `json:"modified_at"`
}

// TrackListing is a catalog entry as exposed by the listing endpoint.
type TrackListing struct {
	Index           int      `json:"index"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	File            string   `json:"file"`
	TagTitle        *string  `json:"tag_title,omitempty"`
	Album           *string  `json:"album,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	BitrateKbps     *int     `json:"bitrate_kbps,omitempty"`
}
