package ceremony

import "errors"

// Protocol violations. They never change ceremony state and are safe to retry once the
// condition is corrected.
var (
	ErrCeremonyFull           = errors.New("ceremony is full")
	ErrCeremonyAlreadyRunning = errors.New("ceremony already running")
	ErrCeremonyNotRunning     = errors.New("ceremony is not running")
	ErrOutOfTurn              = errors.New("out of turn")
	ErrNotYourTurn            = errors.New("not your turn")
	ErrAlreadyRegistered      = errors.New("participant already registered")
	ErrInvalidParticipant     = errors.New("invalid participant identity")
	ErrCoordinatorStopped     = errors.New("coordinator stopped")
)

// ErrPersistenceUnavailable is returned when the transcript store could not confirm a write
// after bounded retries. Nothing was committed and the call may be retried.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")

// ErrCorruptState is fatal: the persisted ceremony violates its invariants and the
// coordinator refuses to serve it.
var ErrCorruptState = errors.New("corrupt ceremony state")

// IsProtocolError reports whether err is a caller error from the protocol taxonomy.
func IsProtocolError(err error) bool {
	for _, target := range []error{
		ErrCeremonyFull,
		ErrCeremonyAlreadyRunning,
		ErrCeremonyNotRunning,
		ErrOutOfTurn,
		ErrNotYourTurn,
		ErrAlreadyRegistered,
		ErrInvalidParticipant,
		ErrCoordinatorStopped,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
