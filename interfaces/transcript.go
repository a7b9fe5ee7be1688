package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrStoreClosed is returned by a transcript store after Close.
	ErrStoreClosed = errors.New("transcript store closed")

	// ErrPositionConflict is returned when a participant record does not fit the persisted roster.
	ErrPositionConflict = errors.New("participant position conflicts with persisted roster")
)

// TranscriptStore is the durable record of a ceremony. Every call is atomic: after it
// returns nil the change survives a restart, after it returns an error nothing changed.
type TranscriptStore interface {
	// LoadState returns the persisted ceremony, or nil if none exists yet.
	LoadState(ctx context.Context) (*CeremonyState, error)

	// Initialize persists a fresh ceremony record with an empty roster.
	Initialize(ctx context.Context, state *CeremonyState) error

	// AppendParticipant adds a participant at the next roster position.
	AppendParticipant(ctx context.Context, participant Participant) error

	// WriteTransition persists a phase change and optionally one participant record.
	WriteTransition(ctx context.Context, transition Transition) error

	// ValidateAndStore verifies a contribution against the previously accepted one and
	// persists it. An invalid contribution is reported through Validation, not as an error.
	ValidateAndStore(ctx context.Context, position int, address Address, artifact []byte) (Validation, error)

	// FetchArtifact returns the artifact submitted by the participant at position.
	FetchArtifact(ctx context.Context, position int) ([]byte, error)

	// Close flushes pending state and releases the store.
	Close(ctx context.Context) error
}

// ArtifactVerifier decides whether a contribution correctly extends the transcript.
type ArtifactVerifier interface {
	// Verify checks artifact submitted by address at position against previous, the content id
	// of the last accepted contribution (zero for the first). A nil error with a non-empty
	// reason means the artifact is invalid.
	Verify(position int, address Address, previous ContentID, artifact []byte) (reason string, err error)
}
