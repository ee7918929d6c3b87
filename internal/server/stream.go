package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"home-radio/internal/models"
	"home-radio/internal/stream"
)

func (h *serverHandler) requestMode(w http.ResponseWriter, r *http.Request) (stream.Mode, bool) {
	value := r.URL.Query().Get("mode")
	if value == "" {
		return h.station.DefaultMode, true
	}
	mode, err := stream.ParseMode(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return mode, true
}

func (h *serverHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.requestMode(w, r)
	if !ok {
		return
	}
	h.serveStream(w, r, mode)
}

// serveStream runs one listener's session until the client goes away or the
// station has nothing to play.
func (h *serverHandler) serveStream(w http.ResponseWriter, r *http.Request, mode stream.Mode) {
	opts := h.station.Session
	opts.Mode = mode
	onTrack := opts.OnTrack
	opts.OnTrack = func(m stream.Mode, t models.Track) {
		h.metrics.TrackStarted(m.String())
		if onTrack != nil {
			onTrack(m, t)
		}
	}

	sess := stream.NewSession(h.catalog, h.state, opts, h.logger)
	defer sess.Close()
	logger := h.logger.With(zap.String("session", sess.ID), zap.Stringer("mode", mode))

	ctx := r.Context()
	chunk, err := sess.Next(ctx)
	if err != nil {
		h.endSession(w, logger, err, false)
		return
	}

	markStreaming(w)
	done := h.metrics.ListenerConnected(mode.String())
	defer done()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "audio/mpeg")
	header.Set("Cache-Control", "no-cache, no-store")
	header.Set("icy-name", h.station.Name)
	if h.station.Genre != "" {
		header.Set("icy-genre", h.station.Genre)
	}
	if h.station.Description != "" {
		header.Set("icy-description", h.station.Description)
	}
	header.Set("X-Stream-Session", sess.ID)
	w.WriteHeader(http.StatusOK)
	logger.Debug("listener connected", zap.String("remote", r.RemoteAddr))

	for {
		n, err := w.Write(chunk)
		h.metrics.BytesSent(mode.String(), n)
		if err != nil {
			logger.Debug("listener disconnected", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Debug("listener disconnected", zap.Error(err))
			return
		}

		chunk, err = sess.Next(ctx)
		if err != nil {
			h.endSession(w, logger, err, true)
			return
		}
	}
}

// endSession reports why a session stopped. The no-tracks sentinel is sent
// as a short text payload, after the audio when the stream had started.
func (h *serverHandler) endSession(w http.ResponseWriter, logger *zap.Logger, err error, started bool) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("listener disconnected")
	case errors.Is(err, stream.ErrNoTracks), errors.Is(err, stream.ErrNothingSelected):
		logger.Info("stream ended", zap.Error(err))
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write([]byte(err.Error() + "\n"))
	default:
		logger.Error("stream failed", zap.Error(err))
		if !started {
			writeError(w, http.StatusInternalServerError, "stream unavailable")
		}
	}
}
