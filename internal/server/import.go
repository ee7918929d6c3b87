package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"home-radio/internal/importer"
)

type importRequest struct {
	URL string `json:"url"`
}

func (h *serverHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusNotFound, "import disabled")
		return
	}

	rawURL, err := importURL(w, r)
	if err != nil || rawURL == "" {
		writeError(w, http.StatusBadRequest, "expected a url")
		return
	}

	res, err := h.importer.Import(r.Context(), rawURL)
	if err != nil {
		h.writeImportError(w, err)
		return
	}
	h.metrics.Import("ok")
	writeJSON(w, http.StatusCreated, res)
}

// handleUpload stores the multipart file field "audio" in the library.
func (h *serverHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusNotFound, "upload disabled")
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed multipart upload")
			return
		}
		if part.FormName() != "audio" || part.FileName() == "" {
			part.Close()
			continue
		}

		res, err := h.importer.Upload(part.FileName(), part)
		part.Close()
		if err != nil {
			h.writeImportError(w, err)
			return
		}
		h.metrics.Import("ok")
		writeJSON(w, http.StatusCreated, res)
		return
	}
	writeError(w, http.StatusBadRequest, "no audio file uploaded")
}

// importURL accepts {"url": ...} bodies and url= form fields.
func importURL(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req importRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			return "", err
		}
		return strings.TrimSpace(req.URL), nil
	}
	return strings.TrimSpace(r.FormValue("url")), nil
}

func (h *serverHandler) writeImportError(w http.ResponseWriter, err error) {
	var statusErr *importer.StatusError
	switch {
	case errors.Is(err, importer.ErrBadURL):
		h.metrics.Import("bad_url")
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, importer.ErrBadName):
		h.metrics.Import("bad_name")
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &statusErr):
		h.metrics.Import("bad_status")
		writeJSON(w, http.StatusBadGateway, errorPayload{Error: err.Error(), UpstreamStatus: statusErr.Code})
	case errors.Is(err, importer.ErrNotAudio):
		h.metrics.Import("not_audio")
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, importer.ErrTooLarge):
		h.metrics.Import("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, importer.ErrTransport):
		h.metrics.Import("transport")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.metrics.Import("error")
		h.logger.Error("import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
	}
}
