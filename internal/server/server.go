package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"home-radio/internal/broadcast"
	"home-radio/internal/importer"
	"home-radio/internal/logging"
	"home-radio/internal/metrics"
	"home-radio/internal/models"
	"home-radio/internal/stream"
)

// Catalog is the track source shared by the listing and the stream sessions.
type Catalog interface {
	ListTracks() ([]models.Track, error)
	Path(file string) string
}

// Index enriches catalog entries with file metadata.
type Index interface {
	Listing(tracks []models.Track) []models.TrackListing
}

// TokenValidator determines whether a supplied operator token is authorized.
type TokenValidator interface {
	IsValidToken(token string) bool
}

// Importer adds tracks to the library from a URL or an uploaded body.
type Importer interface {
	Import(ctx context.Context, rawURL string) (importer.Result, error)
	Upload(filename string, body io.Reader) (importer.Result, error)
}

// Station is what listeners are told about the broadcast and how their
// sessions are tuned.
type Station struct {
	Name        string
	Genre       string
	Description string

	DefaultMode stream.Mode
	Session     stream.Options
}

// Options wires the handler to the rest of the process. Catalog and
// Controller are required; everything else may be nil.
type Options struct {
	Catalog    Catalog
	Index      Index
	Controller *broadcast.Controller
	Validator  TokenValidator
	Importer   Importer
	Metrics    *metrics.Metrics
	Station    Station
	Logger     *zap.Logger
}

type serverHandler struct {
	catalog    Catalog
	index      Index
	controller *broadcast.Controller
	state      *broadcast.State
	validator  TokenValidator
	importer   Importer
	metrics    *metrics.Metrics
	station    Station
	logger     *zap.Logger
}

// New creates the HTTP handler for the station.
func New(opts Options) http.Handler {
	logger := logging.OrNop(opts.Logger).Named("http")

	if opts.Station.Name == "" {
		opts.Station.Name = "Home Radio"
	}

	h := &serverHandler{
		catalog:    opts.Catalog,
		index:      opts.Index,
		controller: opts.Controller,
		state:      opts.Controller.State(),
		validator:  opts.Validator,
		importer:   opts.Importer,
		metrics:    opts.Metrics,
		station:    opts.Station,
		logger:     logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", h.handleMenu).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/tracks", h.handleTracks).Methods(http.MethodGet)
	r.HandleFunc("/now", h.handleNow).Methods(http.MethodGet)
	r.HandleFunc("/ws/now", h.handleNowSocket).Methods(http.MethodGet)
	r.HandleFunc("/select/{choice}", h.withToken(h.handleSelect)).Methods(http.MethodPost)
	r.HandleFunc("/play/{choice}", h.withToken(h.handlePlay)).Methods(http.MethodGet)
	r.HandleFunc("/stream", h.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/stream.mp3", h.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/import", h.withToken(h.handleImport)).Methods(http.MethodPost)
	r.HandleFunc("/upload", h.withToken(h.handleUpload)).Methods(http.MethodPost)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	return logRequests(r, logger, opts.Metrics)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *serverHandler) withToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireToken(w, r) {
			return
		}
		next(w, r)
	}
}

func (h *serverHandler) requireToken(w http.ResponseWriter, r *http.Request) bool {
	if h.validator == nil {
		return true
	}

	token := extractToken(r)
	if token == "" || !h.validator.IsValidToken(token) {
		writeError(w, http.StatusUnauthorized, "operator token required")
		return false
	}
	if named, ok := h.validator.(operatorNamer); ok {
		if name, ok := named.Operator(token); ok {
			h.logger.Info("operator action", zap.String("operator", name), zap.String("path", r.URL.Path))
		}
	}
	return true
}

// operatorNamer is implemented by validators that know who owns a token.
type operatorNamer interface {
	Operator(token string) (string, bool)
}

type errorPayload struct {
	Error          string `json:"error"`
	Min            *int   `json:"min,omitempty"`
	Max            *int   `json:"max,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

// writeSelectError maps controller errors to responses.
func (h *serverHandler) writeSelectError(w http.ResponseWriter, err error) {
	var rangeErr *broadcast.RangeError
	switch {
	case errors.As(err, &rangeErr):
		lo, hi := 1, rangeErr.Max
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: rangeErr.Error(), Min: &lo, Max: &hi})
	case errors.Is(err, broadcast.ErrInvalidChoice):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("selection failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "selection failed")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status    int
	size      int
	streaming bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
		w.streaming = true
	}
	return conn, rw, err
}

func logRequests(next http.Handler, logger *zap.Logger, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		m.ObserveRequest(r.Method, sw.status, duration, sw.streaming)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Int("bytes", sw.size),
			zap.Duration("duration", duration))
	})
}

// markStreaming flags a long-lived response so it is kept out of latency metrics.
func markStreaming(w http.ResponseWriter) {
	if sw, ok := w.(*statusWriter); ok {
		sw.streaming = true
	}
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	if header := strings.TrimSpace(r.Header.Get("X-Radio-Token")); header != "" {
		return header
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	return ""
}
