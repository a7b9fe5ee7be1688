package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
)

// maxJSONBodySize bounds registration bodies.
const maxJSONBodySize = 64 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Coordinator is the subset of *ceremony.Coordinator the handler calls.
type Coordinator interface {
	Register(ctx context.Context, address interfaces.Address) (int, error)
	BeginTurn(ctx context.Context, position int) (interfaces.Participant, error)
	SubmitContribution(ctx context.Context, position int, artifact []byte) (interfaces.Participant, error)
	Transcript(ctx context.Context, position int) ([]byte, error)
	CurrentState() *ceremony.Snapshot
}

// Handler translates participant HTTP requests into coordinator operations.
type Handler struct {
	coord           Coordinator
	log             *slog.Logger
	maxArtifactSize int64
}

// NewHandler creates a handler for coord. maxArtifactSize bounds contribution uploads;
// zero means api.MaxArtifactSize.
func NewHandler(coord Coordinator, maxArtifactSize int64, log *slog.Logger) *Handler {
	if maxArtifactSize <= 0 {
		maxArtifactSize = api.MaxArtifactSize
	}
	return &Handler{
		coord:           coord,
		log:             log,
		maxArtifactSize: maxArtifactSize,
	}
}

// HandleState returns the latest ceremony snapshot.
//
// URL format: GET /api/state
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	snap := h.coord.CurrentState()
	w.Header().Set(api.SequenceHeader, strconv.FormatUint(snap.Sequence, 10))
	h.writeJSON(w, http.StatusOK, api.NewStateResponse(snap, time.Now()))
}

// HandleRegister adds a participant to the roster.
//
// URL format: POST /api/participants
// Request body: {"address": "0x..."}
// Response: 201 {"position": n}. An address already on the roster yields 409 with
// code already_registered and its position.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, &RequestError{
			StatusCode: http.StatusBadRequest,
			Err:        fmt.Errorf("%w: invalid registration body: %v", api.ErrBadRequest, err),
		})
		return
	}

	position, err := h.coord.Register(r.Context(), req.Address)
	if errors.Is(err, ceremony.ErrAlreadyRegistered) {
		code, status := api.ErrorCode(err)
		h.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code, Position: &position})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, api.RegisterResponse{Position: position})
}

// HandleBeginTurn starts the turn of the participant at the position in the URL.
//
// URL format: POST /api/participants/{position}/begin
func (h *Handler) HandleBeginTurn(w http.ResponseWriter, r *http.Request) {
	position, err := parsePosition(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	p, err := h.coord.BeginTurn(r.Context(), position)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.participantResponse(p))
}

// HandleSubmitContribution uploads the artifact of the RUNNING participant. Both accepted
// and rejected contributions return 200; the participant state tells them apart.
//
// URL format: PUT /api/participants/{position}/contribution
// Request body: the artifact, at most maxArtifactSize bytes
func (h *Handler) HandleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	position, err := parsePosition(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	artifact, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxArtifactSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, &RequestError{
				StatusCode: http.StatusRequestEntityTooLarge,
				Err:        fmt.Errorf("%w: artifact exceeds %d bytes", api.ErrBadRequest, tooLarge.Limit),
			})
			return
		}
		h.writeError(w, &RequestError{
			StatusCode: http.StatusBadRequest,
			Err:        fmt.Errorf("%w: failed to read artifact: %v", api.ErrBadRequest, err),
		})
		return
	}

	p, err := h.coord.SubmitContribution(r.Context(), position, artifact)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.participantResponse(p))
}

// HandleTranscript serves the artifact submitted at the position in the URL.
//
// URL format: GET /api/participants/{position}/transcript
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	position, err := parsePosition(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := h.coord.Transcript(r.Context(), position)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Debug("Failed to write transcript", "position", position, "err", err)
	}
}

func (h *Handler) participantResponse(p interfaces.Participant) api.ParticipantResponse {
	view, _ := h.coord.CurrentState().Participant(p.Position)
	return api.ParticipantResponse{Participant: p, Demo: view.Demo}
}

func parsePosition(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "position")
	position, err := strconv.Atoi(raw)
	if err != nil || position < 0 {
		return 0, &RequestError{
			StatusCode: http.StatusBadRequest,
			Err:        fmt.Errorf("%w: invalid position %q", api.ErrBadRequest, raw),
		}
	}
	return position, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code, status := api.ErrorCode(err)
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "status", status, "code", code, "err", err)
	} else {
		h.log.Debug("Request rejected", "status", status, "code", code, "err", err)
	}

	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
