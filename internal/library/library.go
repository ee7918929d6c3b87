package library

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"home-radio/internal/catalog"
	"home-radio/internal/logging"
	"home-radio/internal/metadata"
	"home-radio/internal/models"
)

// Library watches the audio directory and keeps per-file metadata that is too
// slow to read on every request (tags, decoded duration).
//
// It is an index, not the catalog: track order and existence always come from
// a fresh directory read, and a missing entry here only means fewer details.
type Library struct {
	root    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu      sync.RWMutex
	details map[string]models.TrackDetails

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New scans root and starts watching it for changes.
func New(root string, debounce time.Duration, logger *zap.Logger) (*Library, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	lib := &Library{
		root:         filepath.Clean(root),
		watcher:      watcher,
		logger:       logging.OrNop(logger).Named("library"),
		details:      make(map[string]models.TrackDetails),
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	if err := watcher.Add(lib.root); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := lib.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	lib.wg.Add(1)
	go lib.run()

	return lib, nil
}

// Close stops the watcher and cleans up resources.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)

		l.refreshMu.Lock()
		if l.refreshTimer != nil {
			l.refreshTimer.Stop()
			l.refreshTimer = nil
		}
		l.refreshMu.Unlock()

		l.closeErr = l.watcher.Close()
		l.wg.Wait()
	})
	return l.closeErr
}

func (l *Library) lookup(file string) (models.TrackDetails, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.details[filepath.Base(file)]
	return d, ok
}

// Len reports how many files are indexed.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.details)
}

// Listing numbers tracks from 1 in the given order and attaches whatever
// details are indexed for each.
func (l *Library) Listing(tracks []models.Track) []models.TrackListing {
	l.mu.RLock()
	defer l.mu.RUnlock()

	listing := make([]models.TrackListing, 0, len(tracks))
	for i, t := range tracks {
		entry := models.TrackListing{
			Index:  i + 1,
			Title:  t.Title,
			Artist: t.Artist,
			File:   t.File,
		}
		if d, ok := l.details[t.File]; ok {
			entry.TagTitle = d.TagTitle
			entry.Album = d.Album
			entry.DurationSeconds = d.DurationSeconds
			entry.BitrateKbps = d.BitrateKbps
		}
		listing = append(listing, entry)
	}
	return listing
}

func (l *Library) run() {
	defer l.wg.Done()

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("watcher error", zap.Error(err))
		case <-l.done:
			return
		}
	}
}

func (l *Library) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if catalog.IsAudio(event.Name) || event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		l.scheduleRefresh()
	}
}

func (l *Library) refresh() error {
	tracks, err := catalog.ListTracks(l.root)
	if err != nil {
		return err
	}

	l.mu.RLock()
	previous := l.details
	l.mu.RUnlock()

	details := make(map[string]models.TrackDetails, len(tracks))
	for _, t := range tracks {
		path := filepath.Join(l.root, t.File)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if old, ok := previous[t.File]; ok && unchanged(old, info) {
			details[t.File] = old
			continue
		}

		d, err := metadata.Describe(path)
		if err != nil {
			l.logger.Debug("metadata error", zap.String("file", t.File), zap.Error(err))
			continue
		}
		details[t.File] = d
	}

	l.mu.Lock()
	l.details = details
	l.mu.Unlock()

	l.logger.Info("library refreshed", zap.Int("tracks", len(details)))
	return nil
}

func unchanged(d models.TrackDetails, info os.FileInfo) bool {
	return d.FilesizeBytes == info.Size() && d.ModifiedAt.Equal(info.ModTime().UTC().Round(time.Second))
}

func (l *Library) scheduleRefresh() {
	select {
	case <-l.done:
		return
	default:
	}

	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	if l.refreshTimer != nil {
		l.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(l.refreshDelay, func() {
		if err := l.refresh(); err != nil {
			l.logger.Warn("refresh error", zap.Error(err))
		}

		l.refreshMu.Lock()
		if l.refreshTimer == timer {
			l.refreshTimer = nil
		}
		l.refreshMu.Unlock()
	})

	l.refreshTimer = timer
}
