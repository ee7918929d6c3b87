package auth

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"home-radio/internal/logging"
)

// TokenStore holds the operator tokens allowed to change the station's
// selection and import tracks. Tokens live one per line in a file that is
// re-read whenever it changes; lines starting with '#' are comments. A token
// may be followed by whitespace and an operator name, which is used in logs.
type TokenStore struct {
	file         string
	logger       *zap.Logger
	watcher      *fsnotify.Watcher
	refreshDelay time.Duration

	mu     sync.RWMutex
	tokens map[string]string

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewTokenStore loads filePath and watches it for edits. A missing file is
// not an error; it simply authorizes nobody until it appears.
func NewTokenStore(filePath string, debounce time.Duration, logger *zap.Logger) (*TokenStore, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &TokenStore{
		file:         filepath.Clean(filePath),
		logger:       logging.OrNop(logger).Named("auth"),
		watcher:      watcher,
		refreshDelay: debounce,
		tokens:       make(map[string]string),
		done:         make(chan struct{}),
	}

	if err := s.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	dir := filepath.Dir(s.file)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(s.file); err != nil {
		s.logger.Debug("token file not watched directly", zap.String("file", s.file), zap.Error(err))
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Close stops the file watcher and releases resources.
func (s *TokenStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// IsValidToken reports whether token may operate the station.
func (s *TokenStore) IsValidToken(token string) bool {
	_, ok := s.Operator(token)
	return ok
}

// Operator returns the name recorded for token. Unnamed tokens report
// "operator".
func (s *TokenStore) Operator(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for known, name := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return name, true
		}
	}
	return "", false
}

// Len reports how many tokens are loaded.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

func (s *TokenStore) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("token watcher error", zap.Error(err))
		case <-s.done:
			return
		}
	}
}

func (s *TokenStore) handleEvent(event fsnotify.Event) {
	cleanName := filepath.Clean(event.Name)
	if cleanName != s.file {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.scheduleRefresh()
	}
}

func (s *TokenStore) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.refresh(); err != nil {
			s.logger.Warn("token refresh error", zap.Error(err))
		}

		s.refreshMu.Lock()
		if s.refreshTimer == timer {
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()
	})
	s.refreshTimer = timer
}

func (s *TokenStore) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.tokens = make(map[string]string)
			s.mu.Unlock()
			s.logger.Warn("token file missing, operator actions disabled", zap.String("file", s.file))
			return nil
		}
		return err
	}

	tokens := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		name := "operator"
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}
		tokens[fields[0]] = name
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.logger.Info("operator tokens loaded", zap.Int("count", len(tokens)))
	return nil
}
