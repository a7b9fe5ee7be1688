package interfaces

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a ceremony participant by its Ethereum account.
type Address = common.Address

// Phase is the ceremony-wide lifecycle stage. Phases only move forward.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseRunning  Phase = "RUNNING"
	PhaseComplete Phase = "COMPLETE"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseRunning, PhaseComplete:
		return true
	}
	return false
}

// Rank orders phases so that regressions can be detected.
func (p Phase) Rank() int {
	switch p {
	case PhaseWaiting:
		return 0
	case PhaseRunning:
		return 1
	case PhaseComplete:
		return 2
	default:
		return -1
	}
}

// ParticipantState is the per-participant protocol state.
type ParticipantState string

const (
	StateWaiting  ParticipantState = "WAITING"
	StateRunning  ParticipantState = "RUNNING"
	StateComplete ParticipantState = "COMPLETE"
	StateInvalid  ParticipantState = "INVALID"
)

// Valid reports whether s is a known participant state.
func (s ParticipantState) Valid() bool {
	switch s {
	case StateWaiting, StateRunning, StateComplete, StateInvalid:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s ParticipantState) Terminal() bool {
	return s == StateComplete || s == StateInvalid
}

// Participant is one roster slot. Position is assigned on registration and never changes.
type Participant struct {
	Position     int              `json:"position"`
	Address      Address          `json:"address"`
	State        ParticipantState `json:"state"`
	RegisteredAt time.Time        `json:"registeredAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`

	// ContributionRef is the transcript slot of this participant, set when its turn begins.
	ContributionRef string `json:"contributionRef,omitempty"`

	// ArtifactID is the content id of the submitted artifact, accepted or rejected.
	ArtifactID *ContentID `json:"artifactId,omitempty"`

	// Reason explains an INVALID outcome.
	Reason string `json:"reason,omitempty"`
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	c := p
	if p.StartedAt != nil {
		t := *p.StartedAt
		c.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	if p.ArtifactID != nil {
		id := *p.ArtifactID
		c.ArtifactID = &id
	}
	return c
}

// TranscriptSlot returns the ContributionRef assigned to the participant at position.
func TranscriptSlot(position int) string {
	return fmt.Sprintf("transcripts/%04d", position)
}

// CeremonyState is the persisted ceremony record.
type CeremonyState struct {
	ID             string        `json:"id"`
	Capacity       int           `json:"capacity"`
	ScheduledStart time.Time     `json:"scheduledStart"`
	Phase          Phase         `json:"phase"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	Participants   []Participant `json:"participants"`
}

// Clone returns a deep copy of the state.
func (s *CeremonyState) Clone() *CeremonyState {
	if s == nil {
		return nil
	}
	c := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = p.Clone()
	}
	return &c
}

// Transition is the atomic unit of ceremony progress written to the transcript store.
// Phase and its timestamps always describe the ceremony after the transition; Participant,
// when set, is the full updated record for its position.
type Transition struct {
	Phase       Phase        `json:"phase"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
}

// Validation is the transcript store's verdict on a submitted contribution.
type Validation struct {
	Valid      bool      `json:"valid"`
	ArtifactID ContentID `json:"artifactId"`
	Reason     string    `json:"reason,omitempty"`
}
