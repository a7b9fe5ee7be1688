package api

import (
	"context"
	"time"

	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
)

const (
	// MaxArtifactSize bounds a submitted contribution body.
	MaxArtifactSize = 16 << 20

	// SequenceHeader carries the snapshot sequence a response was rendered from.
	SequenceHeader = "X-Ceremony-Sequence"
)

// CeremonyProvider is the participant-facing ceremony API.
type CeremonyProvider interface {
	State(ctx context.Context) (*StateResponse, error)

	// Register returns the assigned position. For an address already on the roster it
	// returns the existing position together with ceremony.ErrAlreadyRegistered.
	Register(ctx context.Context, address interfaces.Address) (int, error)

	BeginTurn(ctx context.Context, position int) (*ParticipantResponse, error)
	SubmitContribution(ctx context.Context, position int, artifact []byte) (*ParticipantResponse, error)
	Transcript(ctx context.Context, position int) ([]byte, error)
}

// RegisterRequest is the body of POST /api/participants.
type RegisterRequest struct {
	Address interfaces.Address `json:"address"`
}

// RegisterResponse is returned for a successful registration.
type RegisterResponse struct {
	Position int `json:"position"`
}

// ParticipantResponse is one roster entry.
type ParticipantResponse struct {
	interfaces.Participant

	// Demo marks positions shown with the demo "you" role.
	Demo bool `json:"demo,omitempty"`
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	ID             string           `json:"id"`
	Phase          interfaces.Phase `json:"phase"`
	Capacity       int              `json:"capacity"`
	ScheduledStart time.Time        `json:"scheduledStart"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`

	// CurrentTurn is the RUNNING position and NextTurn the position allowed to begin, -1 for none.
	CurrentTurn int `json:"currentTurn"`
	NextTurn    int `json:"nextTurn"`

	Participants []ParticipantResponse               `json:"participants"`
	Counts       map[interfaces.ParticipantState]int `json:"counts"`
	Sequence     uint64                              `json:"sequence"`
	ServerTime   time.Time                           `json:"serverTime"`
}

// TranscriptHead returns the artifact id the contribution at position must extend.
func (s *StateResponse) TranscriptHead(position int) interfaces.ContentID {
	var head interfaces.ContentID
	for _, p := range s.Participants {
		if p.Position >= position {
			break
		}
		if p.State == interfaces.StateComplete && p.ArtifactID != nil {
			head = *p.ArtifactID
		}
	}
	return head
}

// NewStateResponse renders a coordinator snapshot.
func NewStateResponse(snap *ceremony.Snapshot, now time.Time) *StateResponse {
	resp := &StateResponse{
		ID:             snap.ID,
		Phase:          snap.Phase,
		Capacity:       snap.Capacity,
		ScheduledStart: snap.ScheduledStart,
		StartedAt:      snap.StartedAt,
		CompletedAt:    snap.CompletedAt,
		CurrentTurn:    snap.CurrentTurn,
		NextTurn:       snap.NextTurn,
		Participants:   make([]ParticipantResponse, 0, len(snap.Participants)),
		Counts:         snap.Counts,
		Sequence:       snap.Sequence,
		ServerTime:     now.UTC(),
	}
	for _, p := range snap.Participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{Participant: p.Participant, Demo: p.Demo})
	}
	return resp
}
