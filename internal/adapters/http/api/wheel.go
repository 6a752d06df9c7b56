package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/jamwheel/internal/domain/wheel"
)

// WheelHandler handles wheel configuration requests.
type WheelHandler struct {
	deps         WheelDependencies
	maxBodyBytes int64
}

// NewWheelHandler creates a new wheel handler.
func NewWheelHandler(deps WheelDependencies, maxBodyBytes int64) *WheelHandler {
	return &WheelHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleGet handles GET /jams/{jamID}/wheels/{kind}.
func (h *WheelHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	doc, err := h.deps.LoadWheel(r.Context(), jamID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandlePut handles PUT /jams/{jamID}/wheels/{kind}. The body is a wheel
// document; only its wheelConfig is applied, theme and lastWinner come from
// spins.
func (h *WheelHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var doc wheel.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}
	saved, err := h.deps.SaveWheel(r.Context(), jamID, kind, doc.WheelConfig)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// HandleImport handles POST /jams/{jamID}/wheels/{kind}/import with a .json
// or .wheel file.
func (h *WheelHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limitUpload(w, r, h.maxBodyBytes)
	body, name, closeFn, err := uploadBody(r, h.maxBodyBytes, "upload.json")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer closeFn()

	doc, err := h.deps.ImportWheelFile(r.Context(), jamID, kind, name, body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleExport handles GET /jams/{jamID}/wheels/{kind}/export as a download.
func (h *WheelHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	name, data, err := h.deps.ExportWheelFile(r.Context(), jamID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename=`+strconv.Quote(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
