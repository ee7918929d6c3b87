package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"home-radio/internal/broadcast"
	"home-radio/internal/catalog"
	"home-radio/internal/logging"
	"home-radio/internal/models"
)

var (
	// ErrNoTracks ends a session whose catalog is empty.
	ErrNoTracks = errors.New("no tracks available")
	// ErrNothingSelected ends a session while the station has no selection.
	ErrNothingSelected = errors.New("nothing selected")
	// ErrClosed is returned by Next after the session has been closed.
	ErrClosed = errors.New("session closed")
)

// handoffWindow is how late a session may notice the end of the on-air track
// and still start the next one where the previous ended. Later than that the
// next track starts at the moment it is drawn.
const handoffWindow = 2 * time.Second

// retryDelay throttles re-resolution when no track in the catalog yields any
// bytes (for example a library of empty files).
const retryDelay = time.Second

// Mode selects how a session positions itself inside a track.
type Mode int

const (
	// Sync follows the shared on-air position.
	Sync Mode = iota
	// OnDemand starts every track at its first byte.
	OnDemand
)

func (m Mode) String() string {
	if m == OnDemand {
		return "ondemand"
	}
	return "sync"
}

// ParseMode accepts "sync"/"broadcast" and "ondemand"/"on-demand".
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sync", "broadcast", "synchronized":
		return Sync, nil
	case "ondemand", "on-demand", "plain":
		return OnDemand, nil
	default:
		return Sync, fmt.Errorf("unknown stream mode %q", value)
	}
}

// Phase is a session's position in its state machine.
type Phase int

const (
	PhaseResolving Phase = iota
	PhaseStreaming
	PhaseExhausted
	PhaseSelectionChanged
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseStreaming:
		return "streaming"
	case PhaseExhausted:
		return "exhausted"
	case PhaseSelectionChanged:
		return "selection_changed"
	default:
		return "closed"
	}
}

// Catalog lists tracks and maps a track reference to its file.
type Catalog interface {
	ListTracks() ([]models.Track, error)
	Path(file string) string
}

// Options tune a session.
type Options struct {
	Mode      Mode
	Bitrate   int // assumed bits per second
	ChunkSize int

	// Pacing holds emission back to the assumed bitrate, allowing the
	// listener to run PacingBurst ahead of real time.
	Pacing      bool
	PacingBurst time.Duration

	Draw broadcast.DrawFunc

	// OnTrack is called whenever the session opens a track.
	OnTrack func(mode Mode, track models.Track)
}

// Session produces one listener's unending sequence of audio chunks.
// It is not safe for concurrent use; each listener owns its session.
type Session struct {
	ID string

	catalog Catalog
	state   *broadcast.State
	clock   broadcast.Clock
	opts    Options
	logger  *zap.Logger

	phase Phase
	view  broadcast.Snapshot

	file     *os.File
	path     string
	track    models.Track
	size     int64
	pos      int64
	airStart time.Time

	// generation of the fixed selection already played through in on-demand mode
	fixedPlayed uint64

	buf []byte
}

// NewSession creates a session in the resolving phase.
func NewSession(cat Catalog, state *broadcast.State, opts Options, logger *zap.Logger) *Session {
	if opts.Bitrate <= 0 {
		opts.Bitrate = 128000
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 * 1024
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		catalog: cat,
		state:   state,
		clock:   state.Clock(),
		opts:    opts,
		logger:  logging.OrNop(logger).With(zap.String("session", id), zap.Stringer("mode", opts.Mode)),
		phase:   PhaseResolving,
		buf:     make([]byte, opts.ChunkSize),
	}
}

// Phase returns the current state machine phase.
func (s *Session) Phase() Phase { return s.phase }

// Track returns the track currently open, if any.
func (s *Session) Track() models.Track { return s.track }

// Position returns the byte offset of the next chunk within the open track.
func (s *Session) Position() int64 { return s.pos }

// Next returns the next chunk of audio. The slice is only valid until the
// following call. The stream never ends on its own: Next returns an error only
// when ctx is done, the session was closed, or there is nothing to play
// (ErrNoTracks, ErrNothingSelected), after which the session is closed.
func (s *Session) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}

		switch s.phase {
		case PhaseClosed:
			return nil, ErrClosed

		case PhaseResolving:
			err := s.resolve()
			if errors.Is(err, errRetry) {
				if err := s.sleep(ctx, retryDelay); err != nil {
					s.Close()
					return nil, err
				}
				continue
			}
			if err != nil {
				s.logger.Debug("session ending", zap.Error(err))
				s.Close()
				return nil, err
			}

		case PhaseStreaming:
			// Chunk boundary: a new selection or a vanished file is acted on
			// before any further bytes of the old track go out.
			s.checkpoint()
			if s.phase != PhaseStreaming {
				continue
			}
			if err := s.pace(ctx); err != nil {
				s.Close()
				return nil, err
			}
			if s.phase != PhaseStreaming {
				continue
			}
			chunk := s.read()
			if len(chunk) == 0 {
				continue
			}
			return chunk, nil

		case PhaseExhausted:
			s.closeFile()
			if err := s.finishTrack(ctx); err != nil {
				s.Close()
				return nil, err
			}
			s.transition(PhaseResolving)

		case PhaseSelectionChanged:
			s.closeFile()
			s.transition(PhaseResolving)
		}
	}
}

// Close releases the open file. It is safe to call more than once.
func (s *Session) Close() {
	s.closeFile()
	s.phase = PhaseClosed
}

var errRetry = errors.New("retry resolve")

// resolve picks the track to play and opens it at the start offset.
func (s *Session) resolve() error {
	// Each pass either opens a track or changes what the next pass sees
	// (an Advance, or a random draw), so a few passes always suffice unless
	// every candidate is unplayable.
	for attempt := 0; attempt < 8; attempt++ {
		snap := s.state.Snapshot()
		if snap.Mode == broadcast.ModeNone {
			return ErrNothingSelected
		}
		tracks, err := s.catalog.ListTracks()
		if err != nil {
			return fmt.Errorf("list tracks: %w", err)
		}
		if len(tracks) == 0 {
			return ErrNoTracks
		}

		var opened bool
		if s.opts.Mode == Sync {
			opened = s.resolveSync(snap, tracks)
		} else {
			opened = s.resolveOnDemand(snap, tracks)
		}
		if opened {
			return nil
		}
	}
	return errRetry
}

func (s *Session) resolveSync(snap broadcast.Snapshot, tracks []models.Track) bool {
	now := s.clock.Now()

	target := snap.OnAir.Track
	if target == "" || catalog.Find(tracks, target) < 0 {
		// Undrawn random selection, or the on-air file vanished.
		if target != "" {
			s.logger.Info("on-air track vanished, drawing replacement", zap.String("file", target))
		}
		next, _ := broadcast.Pick(tracks, s.opts.Draw)
		s.state.Advance(snap.Epoch, next.File, now)
		return false
	}

	if !s.open(target) {
		next, _ := broadcast.Pick(tracks, s.opts.Draw)
		s.state.Advance(snap.Epoch, next.File, now)
		return false
	}

	offset := broadcast.EstimateOffset(snap.OnAir.Since, now, s.opts.Bitrate)
	if offset >= s.size {
		end := snap.OnAir.Since.Add(broadcast.Airtime(s.size, s.opts.Bitrate))
		s.closeFile()
		s.advanceFrom(snap, tracks, end, now)
		return false
	}

	if err := s.seek(offset); err != nil {
		s.logger.Warn("seek failed", zap.String("file", target), zap.Error(err))
		s.closeFile()
		return false
	}
	s.view = snap
	s.airStart = snap.OnAir.Since
	s.started()
	return true
}

func (s *Session) resolveOnDemand(snap broadcast.Snapshot, tracks []models.Track) bool {
	var target string
	if snap.Mode == broadcast.ModeFixed && s.fixedPlayed != snap.Generation {
		if catalog.Find(tracks, snap.Track) >= 0 {
			target = snap.Track
		} else {
			s.logger.Info("selected track vanished, falling back to random", zap.String("file", snap.Track))
		}
	}
	if target == "" {
		next, _ := broadcast.Pick(tracks, s.opts.Draw)
		target = next.File
	}

	if !s.open(target) {
		return false
	}
	if s.size == 0 {
		s.closeFile()
		s.markPlayed(snap)
		return false
	}
	s.view = snap
	s.airStart = s.clock.Now()
	s.started()
	return true
}

// advanceFrom moves the shared on-air record past a finished track. The next
// track starts where the previous one ended when that moment is recent.
func (s *Session) advanceFrom(snap broadcast.Snapshot, tracks []models.Track, end, now time.Time) {
	since := end
	if now.Sub(end) > handoffWindow || end.After(now) {
		since = now
	}
	next, _ := broadcast.Pick(tracks, s.opts.Draw)
	if after, ok := s.state.Advance(snap.Epoch, next.File, since); ok {
		s.logger.Debug("advanced on-air track",
			zap.String("previous", snap.OnAir.Track),
			zap.String("next", next.File),
			zap.Uint64("epoch", after.Epoch))
	}
}

// finishTrack runs when the open track has no more bytes.
func (s *Session) finishTrack(ctx context.Context) error {
	if s.opts.Mode == OnDemand {
		s.markPlayed(s.view)
		return nil
	}

	// The listener may be ahead of the broadcast clock. Hold until the
	// track's air time is over, unless the selection moves first.
	end := s.airStart.Add(broadcast.Airtime(s.size, s.opts.Bitrate))
	if wait := end.Sub(s.clock.Now()); wait > 0 {
		changed := s.state.Changed()
		if s.state.Snapshot().Epoch != s.view.Epoch {
			return nil
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			return nil
		case <-timer.C:
		}
	}

	tracks, err := s.catalog.ListTracks()
	if err != nil || len(tracks) == 0 {
		// resolve reports the empty catalog.
		return nil
	}
	s.advanceFrom(s.view, tracks, end, s.clock.Now())
	return nil
}

func (s *Session) markPlayed(snap broadcast.Snapshot) {
	if snap.Mode == broadcast.ModeFixed {
		s.fixedPlayed = snap.Generation
	}
}

// read fills the buffer from the open file and records exhaustion.
func (s *Session) read() []byte {
	n, err := s.file.Read(s.buf)
	s.pos += int64(n)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("read failed", zap.String("file", s.track.File), zap.Error(err))
		}
		s.transition(PhaseExhausted)
	} else if s.pos >= s.size {
		s.transition(PhaseExhausted)
	}
	return s.buf[:n]
}

// checkpoint runs at every chunk boundary and decides whether the session must
// re-resolve before the next one.
func (s *Session) checkpoint() {
	current := s.state.Snapshot()
	changed := current.Epoch != s.view.Epoch
	if s.opts.Mode == OnDemand {
		changed = current.Generation != s.view.Generation
	}
	if changed {
		s.transition(PhaseSelectionChanged)
		return
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		s.logger.Info("track removed while streaming", zap.String("file", s.track.File))
		s.closeFile()
		s.transition(PhaseResolving)
	}
}

// pace holds the session until the next chunk is due, when pacing is enabled.
func (s *Session) pace(ctx context.Context) error {
	if !s.opts.Pacing {
		return nil
	}
	due := s.airStart.Add(broadcast.Airtime(s.pos, s.opts.Bitrate)).Add(-s.opts.PacingBurst)
	wait := due.Sub(s.clock.Now())
	if wait <= 0 {
		return nil
	}

	changed := s.state.Changed()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
		s.checkpoint()
	case <-timer.C:
	}
	return nil
}

func (s *Session) open(file string) bool {
	path := s.catalog.Path(file)
	f, err := os.Open(path)
	if err != nil {
		s.logger.Info("open failed, re-resolving", zap.String("file", file), zap.Error(err))
		return false
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		s.logger.Info("stat failed, re-resolving", zap.String("file", file), zap.Error(err))
		return false
	}

	s.file = f
	s.path = path
	s.track = catalog.ParseName(file)
	s.size = info.Size()
	s.pos = 0
	return true
}

func (s *Session) seek(offset int64) error {
	if offset <= 0 {
		return nil
	}
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	s.pos = offset
	return nil
}

func (s *Session) started() {
	s.transition(PhaseStreaming)
	s.logger.Debug("track opened",
		zap.String("file", s.track.File),
		zap.Int64("offset", s.pos),
		zap.Int64("size", s.size))
	if s.opts.OnTrack != nil {
		s.opts.OnTrack(s.opts.Mode, s.track)
	}
}

func (s *Session) transition(next Phase) {
	if s.phase == PhaseClosed {
		return
	}
	s.phase = next
}

func (s *Session) closeFile() {
	if s.file == nil {
		return
	}
	if err := s.file.Close(); err != nil {
		s.logger.Debug("close failed", zap.String("file", s.track.File), zap.Error(err))
	}
	s.file = nil
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
