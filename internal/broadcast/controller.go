package broadcast

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"home-radio/internal/logging"
	"home-radio/internal/models"
)

var (
	// ErrOutOfRange is wrapped by every RangeError.
	ErrOutOfRange = errors.New("selection out of range")
	// ErrInvalidChoice is returned for choices that are neither a number nor "random".
	ErrInvalidChoice = errors.New("invalid choice")
)

// RangeError reports a track index outside [1, Max].
type RangeError struct {
	Index int
	Max   int
}

func (e *RangeError) Error() string {
	if e.Max == 0 {
		return fmt.Sprintf("track %d out of range: no tracks available", e.Index)
	}
	return fmt.Sprintf("track %d out of range [1, %d]", e.Index, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// Catalog lists the tracks currently available.
type Catalog interface {
	ListTracks() ([]models.Track, error)
}

// DrawFunc returns a uniformly distributed integer in [0, n).
type DrawFunc func(n int) int

// Pick draws one track from tracks. It returns false for an empty slice.
func Pick(tracks []models.Track, draw DrawFunc) (models.Track, bool) {
	if len(tracks) == 0 {
		return models.Track{}, false
	}
	if draw == nil {
		draw = rand.IntN
	}
	return tracks[draw(len(tracks))], true
}

// Controller applies operator choices to the broadcast state.
type Controller struct {
	catalog Catalog
	state   *State
	draw    DrawFunc
	logger  *zap.Logger
}

// NewController wires a controller to a catalog and the shared state.
// A nil draw uses math/rand.
func NewController(catalog Catalog, state *State, draw DrawFunc, logger *zap.Logger) *Controller {
	if draw == nil {
		draw = rand.IntN
	}
	return &Controller{
		catalog: catalog,
		state:   state,
		draw:    draw,
		logger:  logging.OrNop(logger),
	}
}

// SelectTrack puts the index-th track (1-based, in catalog order) on air.
// An invalid index leaves the state untouched.
func (c *Controller) SelectTrack(index int) (models.Track, Snapshot, error) {
	tracks, err := c.catalog.ListTracks()
	if err != nil {
		return models.Track{}, Snapshot{}, fmt.Errorf("list tracks: %w", err)
	}
	if index < 1 || index > len(tracks) {
		return models.Track{}, Snapshot{}, &RangeError{Index: index, Max: len(tracks)}
	}

	track := tracks[index-1]
	snap := c.state.SetFixed(track.File)
	c.logger.Info("track selected",
		zap.Int("index", index),
		zap.String("file", track.File),
		zap.Uint64("epoch", snap.Epoch))
	return track, snap, nil
}

// SelectRandom switches to random mode and draws the first shared track.
func (c *Controller) SelectRandom() (Snapshot, error) {
	tracks, err := c.catalog.ListTracks()
	if err != nil {
		return Snapshot{}, fmt.Errorf("list tracks: %w", err)
	}

	first, _ := Pick(tracks, c.draw)
	snap := c.state.SetRandom(first.File)
	c.logger.Info("random mode selected",
		zap.String("first", first.File),
		zap.Int("catalog_size", len(tracks)),
		zap.Uint64("epoch", snap.Epoch))
	return snap, nil
}

// Select parses an operator choice: a 1-based index, or "random" / "r".
func (c *Controller) Select(choice string) (Snapshot, error) {
	choice = strings.TrimSpace(choice)
	switch strings.ToLower(choice) {
	case "random", "r":
		return c.SelectRandom()
	}

	index, err := strconv.Atoi(choice)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}
	_, snap, err := c.SelectTrack(index)
	return snap, err
}

// State returns the shared record the controller mutates.
func (c *Controller) State() *State {
	return c.state
}
