package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"home-radio/internal/broadcast"
	"home-radio/internal/catalog"
	"home-radio/internal/models"
)

var menuTemplate = template.Must(template.New("menu").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Station}}</title></head>
<body>
<h1>{{.Station}}</h1>
<p><a href="/stream">Listen</a> &middot; <a href="/stream?mode=ondemand">Listen from the start</a></p>
{{if .Tracks}}<ol>
{{range .Tracks}}<li><a href="/play/{{.Index}}{{with $.Token}}?token={{.}}{{end}}">{{.Index}}) {{.Title}} - {{.Artist}}</a></li>
{{end}}</ol>
<p><a href="/play/random{{with .Token}}?token={{.}}{{end}}">r) Random</a></p>
{{else}}<p>No tracks available.</p>
{{end}}</body>
</html>
`))

func (h *serverHandler) listing(w http.ResponseWriter) ([]models.TrackListing, bool) {
	tracks, err := h.catalog.ListTracks()
	if err != nil {
		h.logger.Error("list tracks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return nil, false
	}
	if h.index != nil {
		return h.index.Listing(tracks), true
	}

	listing := make([]models.TrackListing, 0, len(tracks))
	for i, t := range tracks {
		listing = append(listing, models.TrackListing{Index: i + 1, Title: t.Title, Artist: t.Artist, File: t.File})
	}
	return listing, true
}

func (h *serverHandler) handleMenu(w http.ResponseWriter, r *http.Request) {
	listing, ok := h.listing(w)
	if !ok {
		return
	}

	// A token given to the menu is carried into the play links.
	var token string
	if q := r.URL.Query().Get("token"); q != "" && h.validator != nil && h.validator.IsValidToken(q) {
		token = q
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := menuTemplate.Execute(w, struct {
		Station string
		Token   string
		Tracks  []models.TrackListing
	}{h.station.Name, token, listing})
	if err != nil {
		h.logger.Warn("render menu", zap.Error(err))
	}
}

func (h *serverHandler) handleTracks(w http.ResponseWriter, r *http.Request) {
	listing, ok := h.listing(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *serverHandler) selectChoice(w http.ResponseWriter, r *http.Request) (broadcast.Snapshot, bool) {
	snap, err := h.controller.Select(mux.Vars(r)["choice"])
	if err != nil {
		h.writeSelectError(w, err)
		return broadcast.Snapshot{}, false
	}
	h.metrics.Selection(snap.Mode.String())
	return snap, true
}

func (h *serverHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.selectChoice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nowView(snap, h.state.Clock().Now()))
}

// handlePlay selects and then streams, so a bare player can be pointed at
// /play/3 the way the menu links do.
func (h *serverHandler) handlePlay(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.requestMode(w, r)
	if !ok {
		return
	}
	if _, ok := h.selectChoice(w, r); !ok {
		return
	}
	h.serveStream(w, r, mode)
}

// nowPayload is the public view of the broadcast record.
type nowPayload struct {
	Mode           broadcast.Mode `json:"mode"`
	Selected       *models.Track  `json:"selected,omitempty"`
	SelectedAt     *time.Time     `json:"selected_at,omitempty"`
	OnAir          *models.Track  `json:"on_air,omitempty"`
	OnAirSince     *time.Time     `json:"on_air_since,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Generation     uint64         `json:"generation"`
	Epoch          uint64         `json:"epoch"`
}

func nowView(snap broadcast.Snapshot, now time.Time) nowPayload {
	p := nowPayload{
		Mode:       snap.Mode,
		Generation: snap.Generation,
		Epoch:      snap.Epoch,
	}
	if snap.Track != "" {
		t := catalog.ParseName(snap.Track)
		p.Selected = &t
	}
	if !snap.SelectedAt.IsZero() {
		at := snap.SelectedAt.UTC().Round(0)
		p.SelectedAt = &at
	}
	if snap.OnAir.Track != "" {
		t := catalog.ParseName(snap.OnAir.Track)
		since := snap.OnAir.Since.UTC().Round(0)
		p.OnAir = &t
		p.OnAirSince = &since
		if elapsed := now.Sub(snap.OnAir.Since); elapsed > 0 {
			p.ElapsedSeconds = elapsed.Seconds()
		}
	}
	return p
}

func (h *serverHandler) handleNow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nowView(h.state.Snapshot(), h.state.Clock().Now()))
}
