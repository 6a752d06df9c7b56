// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/okian/jamwheel/internal/adapters/repository"
	service "github.com/okian/jamwheel/internal/app"
	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
	"github.com/okian/jamwheel/pkg/logger"
)

const defaultMaxBodyBytes int64 = 5 << 20

// multipartOverhead is added to upload body caps for multipart framing; the
// file itself is held to the upload limit by the service.
const multipartOverhead int64 = 64 << 10

// WheelDependencies covers wheel configuration storage.
type WheelDependencies interface {
	LoadWheel(ctx context.Context, jamID string, kind wheel.Kind) (wheel.Document, error)
	SaveWheel(ctx context.Context, jamID string, kind wheel.Kind, cfg wheel.Configuration) (wheel.Document, error)
	ImportWheelFile(ctx context.Context, jamID string, kind wheel.Kind, name string, r io.Reader) (wheel.Document, error)
	ExportWheelFile(ctx context.Context, jamID string, kind wheel.Kind) (string, []byte, error)
}

// SpinDependencies covers the server-side spinners.
type SpinDependencies interface {
	Spin(ctx context.Context, jamID string, kind wheel.Kind) (service.SpinResult, error)
	SpinState(ctx context.Context, jamID string, kind wheel.Kind) (service.SpinView, error)
	ResetSpin(ctx context.Context, jamID string, kind wheel.Kind) error
}

// TeamDependencies covers CSV team import and the raffle wheel.
type TeamDependencies interface {
	PreviewTeams(ctx context.Context, name string, r io.Reader) (teams.Result, error)
	ImportTeams(ctx context.Context, jamID, name string, r io.Reader) (service.TeamImport, error)
	ListTeams(ctx context.Context, jamID string) ([]repository.Team, error)
	RaffleWheel(ctx context.Context, jamID string) (wheel.Document, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	WheelDependencies
	SpinDependencies
	TeamDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	wheelHandler  *WheelHandler
	spinHandler   *SpinHandler
	teamsHandler  *TeamsHandler
	logger        logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxBodyBytes int64
	logger       logger.Logger
}

// WithMaxBodyBytes caps request bodies and uploads.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithLogger sets the access and error logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("http")
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		wheelHandler:  NewWheelHandler(deps, cfg.maxBodyBytes),
		spinHandler:   NewSpinHandler(deps),
		teamsHandler:  NewTeamsHandler(deps, cfg.maxBodyBytes),
		logger:        cfg.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("GET /jams/{jamID}/wheels/{kind}", "wheel_get", s.wheelHandler.HandleGet)
	route("PUT /jams/{jamID}/wheels/{kind}", "wheel_put", s.wheelHandler.HandlePut)
	route("POST /jams/{jamID}/wheels/{kind}/import", "wheel_import", s.wheelHandler.HandleImport)
	route("GET /jams/{jamID}/wheels/{kind}/export", "wheel_export", s.wheelHandler.HandleExport)

	route("POST /jams/{jamID}/wheels/{kind}/spin", "spin_start", s.spinHandler.HandleSpin)
	route("GET /jams/{jamID}/wheels/{kind}/spin", "spin_state", s.spinHandler.HandleState)
	route("DELETE /jams/{jamID}/wheels/{kind}/spin", "spin_reset", s.spinHandler.HandleReset)

	route("POST /jams/{jamID}/teams/import", "teams_import", s.teamsHandler.HandleImport)
	route("GET /jams/{jamID}/teams", "teams_list", s.teamsHandler.HandleList)
	route("POST /jams/{jamID}/raffle", "raffle", s.teamsHandler.HandleRaffle)
}

// Handler wraps mux with request ids and access logging.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	return RequestIDMiddleware(AccessLogMiddleware(s.logger, mux))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain errors onto status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, wheel.ErrSpinInProgress):
		return http.StatusConflict, "spin_in_progress"
	case errors.Is(err, wheel.ErrNoEnabledEntries):
		return http.StatusUnprocessableEntity, "no_enabled_entries"
	case errors.Is(err, wheel.ErrInvalidWheelFile):
		return http.StatusBadRequest, "invalid_wheel_file"
	case errors.Is(err, wheel.ErrUnknownKind):
		return http.StatusNotFound, "unknown_wheel"
	case errors.Is(err, teams.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, teams.ErrEmptyFile):
		return http.StatusUnprocessableEntity, "empty_file"
	case errors.Is(err, teams.ErrNoValidTeams):
		return http.StatusUnprocessableEntity, "no_valid_teams"
	case errors.Is(err, teams.ErrInvalidEncoding):
		return http.StatusBadRequest, "invalid_encoding"
	case errors.Is(err, teams.ErrNotCSV):
		return http.StatusBadRequest, "invalid_file_type"
	case errors.Is(err, service.ErrNoTeams):
		return http.StatusUnprocessableEntity, "no_teams"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrInvalidJamID), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrMissingFile), errors.Is(err, ErrInvalidMode):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// wheelPath reads the jam id and wheel kind from the route.
func wheelPath(r *http.Request) (string, wheel.Kind, error) {
	kind, err := wheel.ParseKind(r.PathValue("kind"))
	if err != nil {
		return "", "", err
	}
	return r.PathValue("jamID"), kind, nil
}

// limitUpload caps an upload request at the file limit plus multipart
// framing.
func limitUpload(w http.ResponseWriter, r *http.Request, maxFileBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes+multipartOverhead)
}

// uploadBody returns the uploaded file and its name. Multipart requests use
// the "file" field; any other body is read raw and named by ?filename=.
func uploadBody(r *http.Request, maxBytes int64, defaultName string) (io.Reader, string, func(), error) {
	noop := func() {}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		name := r.URL.Query().Get("filename")
		if name == "" {
			name = defaultName
		}
		return r.Body, name, noop, nil
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", noop, teams.ErrFileTooLarge
		}
		return nil, "", noop, errors.Join(ErrBadRequest, err)
	}
	var (
		file multipart.File
		hdr  *multipart.FileHeader
		err  error
	)
	if file, hdr, err = r.FormFile("file"); err != nil {
		return nil, "", noop, ErrMissingFile
	}
	return file, hdr.Filename, func() { _ = file.Close() }, nil
}
