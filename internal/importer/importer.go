package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"home-radio/internal/catalog"
	"home-radio/internal/logging"
)

var (
	ErrBadURL    = errors.New("invalid import url")
	ErrBadStatus = errors.New("unexpected upstream status")
	ErrNotAudio  = errors.New("upstream content is not audio")
	ErrTransport = errors.New("download failed")
	ErrTooLarge  = errors.New("download exceeds size limit")
	ErrBadName   = errors.New("invalid track file name")
)

// StatusError carries the status code of a failed upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d %s", ErrBadStatus, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error { return ErrBadStatus }

// Options tune an Importer. Zero values pick defaults.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	Client   *http.Client
}

// Result describes a completed import.
type Result struct {
	ID    string `json:"id"`
	File  string `json:"file"`
	Bytes int64  `json:"bytes"`
}

// Importer downloads remote audio files into the library directory.
type Importer struct {
	dir      string
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// New returns an importer writing into dir.
func New(dir string, opts Options, logger *zap.Logger) *Importer {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 200 << 20
	}
	return &Importer{
		dir:      filepath.Clean(dir),
		client:   client,
		maxBytes: maxBytes,
		logger:   logging.OrNop(logger).Named("importer"),
	}
}

// Import fetches rawURL and stores it in the library under the file name
// taken from the URL path. The file becomes visible to the catalog only once
// it is complete; on any failure the library is left as it was.
func (im *Importer) Import(ctx context.Context, rawURL string) (Result, error) {
	id := uuid.NewString()
	logger := im.logger.With(zap.String("import", id), zap.String("url", rawURL))

	u, name, named, err := parseSource(rawURL)
	if err != nil {
		logger.Info("import rejected", zap.Error(err))
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	req.Header.Set("Accept", "audio/mpeg, audio/*;q=0.9, */*;q=0.1")

	resp, err := im.client.Do(req)
	if err != nil {
		logger.Warn("import transport error", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("import upstream status", zap.Int("status", resp.StatusCode))
		return Result{}, &StatusError{Code: resp.StatusCode}
	}
	if !isAudio(resp.Header.Get("Content-Type"), named) {
		logger.Warn("import content type", zap.String("content_type", resp.Header.Get("Content-Type")))
		return Result{}, fmt.Errorf("%w: %q", ErrNotAudio, resp.Header.Get("Content-Type"))
	}

	n, err := im.store(id, name, resp.Body)
	if err != nil {
		logger.Warn("import failed", zap.Error(err))
		return Result{}, err
	}

	logger.Info("track imported", zap.String("file", name), zap.Int64("bytes", n))
	return Result{ID: id, File: name, Bytes: n}, nil
}

// Upload stores an audio file sent by a client under its own base name.
// Only names ending in .mp3 are accepted.
func (im *Importer) Upload(filename string, body io.Reader) (Result, error) {
	id := uuid.NewString()
	logger := im.logger.With(zap.String("upload", id), zap.String("filename", filename))

	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") || !catalog.IsAudio(name) {
		logger.Info("upload rejected")
		return Result{}, fmt.Errorf("%w: %q", ErrBadName, filename)
	}

	n, err := im.store(id, name, body)
	if err != nil {
		logger.Warn("upload failed", zap.Error(err))
		return Result{}, err
	}

	logger.Info("track uploaded", zap.String("file", name), zap.Int64("bytes", n))
	return Result{ID: id, File: name, Bytes: n}, nil
}

// store writes body to a hidden temporary file and renames it into place.
func (im *Importer) store(id, name string, body io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(im.dir, "."+id+"-*.part")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(body, im.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if n > im.maxBytes {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, im.maxBytes)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty body", ErrNotAudio)
	}

	if err := os.Rename(tmpName, filepath.Join(im.dir, name)); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

// parseSource validates rawURL and derives the library file name from it.
// named reports whether the URL already carried the .mp3 extension.
func parseSource(rawURL string) (u *url.URL, name string, named bool, err error) {
	u, err = url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", false, fmt.Errorf("%w: scheme must be http or https", ErrBadURL)
	}
	if u.Host == "" {
		return nil, "", false, fmt.Errorf("%w: missing host", ErrBadURL)
	}

	name = path.Base(u.Path)
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return nil, "", false, fmt.Errorf("%w: no file name in path", ErrBadURL)
	}
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	named = catalog.IsAudio(name)
	if !named {
		name += catalog.Extension
	}
	return u, name, named, nil
}

// isAudio accepts audio/* responses. Generic binary responses count only when
// the URL itself names an .mp3 file.
func isAudio(contentType string, named bool) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "audio/") {
		return true
	}
	return named && mediaType == "application/octet-stream"
}
