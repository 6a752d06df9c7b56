package api

import "net/http"

// SpinHandler handles server-side spin requests.
type SpinHandler struct {
	deps SpinDependencies
}

// NewSpinHandler creates a new spin handler.
func NewSpinHandler(deps SpinDependencies) *SpinHandler {
	return &SpinHandler{deps: deps}
}

// HandleSpin handles POST /jams/{jamID}/wheels/{kind}/spin.
func (h *SpinHandler) HandleSpin(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.deps.Spin(r.Context(), jamID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// HandleState handles GET /jams/{jamID}/wheels/{kind}/spin.
func (h *SpinHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := h.deps.SpinState(r.Context(), jamID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleReset handles DELETE /jams/{jamID}/wheels/{kind}/spin.
func (h *SpinHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	jamID, kind, err := wheelPath(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.deps.ResetSpin(r.Context(), jamID, kind); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
