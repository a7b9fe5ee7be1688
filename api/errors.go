package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeCeremonyFull           = "ceremony_full"
	CodeCeremonyAlreadyRunning = "ceremony_already_running"
	CodeCeremonyNotRunning     = "ceremony_not_running"
	CodeOutOfTurn              = "out_of_turn"
	CodeNotYourTurn            = "not_your_turn"
	CodeAlreadyRegistered      = "already_registered"
	CodeInvalidParticipant     = "invalid_participant"
	CodeCoordinatorStopped     = "coordinator_stopped"
	CodePersistenceUnavailable = "persistence_unavailable"
	CodeNotFound               = "not_found"
	CodeBadRequest             = "bad_request"
	CodeInternal               = "internal"
)

// ErrBadRequest marks malformed requests.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// Position is set with CodeAlreadyRegistered.
	Position *int `json:"position,omitempty"`
}

type errorMapping struct {
	err    error
	code   string
	status int
}

var errorMappings = []errorMapping{
	{ceremony.ErrCeremonyFull, CodeCeremonyFull, http.StatusConflict},
	{ceremony.ErrCeremonyAlreadyRunning, CodeCeremonyAlreadyRunning, http.StatusConflict},
	{ceremony.ErrCeremonyNotRunning, CodeCeremonyNotRunning, http.StatusConflict},
	{ceremony.ErrOutOfTurn, CodeOutOfTurn, http.StatusConflict},
	{ceremony.ErrNotYourTurn, CodeNotYourTurn, http.StatusConflict},
	{ceremony.ErrAlreadyRegistered, CodeAlreadyRegistered, http.StatusConflict},
	{ceremony.ErrInvalidParticipant, CodeInvalidParticipant, http.StatusBadRequest},
	{ceremony.ErrCoordinatorStopped, CodeCoordinatorStopped, http.StatusServiceUnavailable},
	{ceremony.ErrPersistenceUnavailable, CodePersistenceUnavailable, http.StatusServiceUnavailable},
	{interfaces.ErrContentNotFound, CodeNotFound, http.StatusNotFound},
	{ErrBadRequest, CodeBadRequest, http.StatusBadRequest},
}

// ErrorCode classifies err for the wire.
func ErrorCode(err error) (code string, status int) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.code, m.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// ErrorFromResponse rebuilds the error behind an ErrorResponse, wrapping the matching
// sentinel so callers can use errors.Is.
func ErrorFromResponse(status int, resp ErrorResponse) error {
	for _, m := range errorMappings {
		if m.code != resp.Code {
			continue
		}
		if resp.Error == "" || resp.Error == m.err.Error() {
			return m.err
		}
		return fmt.Errorf("%w (%s)", m.err, resp.Error)
	}
	return fmt.Errorf("server returned %d: %s", status, resp.Error)
}
