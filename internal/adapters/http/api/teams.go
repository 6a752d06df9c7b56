package api

import (
	"errors"
	"net/http"

	"github.com/okian/jamwheel/internal/domain/teams"
)

// Import modes for POST /jams/{jamID}/teams/import.
const (
	ModePreview = "preview"
	ModeStore   = "store"
)

// TeamsHandler handles CSV team import and raffle requests.
type TeamsHandler struct {
	deps         TeamDependencies
	maxBodyBytes int64
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(deps TeamDependencies, maxBodyBytes int64) *TeamsHandler {
	return &TeamsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleImport handles POST /jams/{jamID}/teams/import?mode=preview|store.
// Preview parses only; store also saves the teams for the jam.
func (h *TeamsHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = ModePreview
	}
	if mode != ModePreview && mode != ModeStore {
		writeDomainError(w, ErrInvalidMode)
		return
	}

	limitUpload(w, r, h.maxBodyBytes)
	body, name, closeFn, err := uploadBody(r, h.maxBodyBytes, "teams.csv")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer closeFn()

	if mode == ModePreview {
		res, err := h.deps.PreviewTeams(r.Context(), name, body)
		if err != nil {
			writeParseError(w, res, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	imp, err := h.deps.ImportTeams(r.Context(), r.PathValue("jamID"), name, body)
	if err != nil {
		writeParseError(w, imp.Parse, err)
		return
	}
	writeJSON(w, http.StatusCreated, imp)
}

// writeParseError attaches skipped rows when no team survived.
func writeParseError(w http.ResponseWriter, res teams.Result, err error) {
	if errors.Is(err, teams.ErrNoValidTeams) {
		status, code := classify(err)
		writeJSON(w, status, errorResponse{Code: code, Message: err.Error(), Details: res.Skipped})
		return
	}
	writeDomainError(w, err)
}

// HandleList handles GET /jams/{jamID}/teams.
func (h *TeamsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.ListTeams(r.Context(), r.PathValue("jamID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRaffle handles POST /jams/{jamID}/raffle. It rebuilds the jam's
// raffle wheel from its teams and returns the saved document.
func (h *TeamsHandler) HandleRaffle(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.RaffleWheel(r.Context(), r.PathValue("jamID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
