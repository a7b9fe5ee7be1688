package ceremony

import (
	"time"

	"github.com/ruteri/setup-mpc-server/interfaces"
)

// ParticipantView is a roster entry as seen by the network layer.
type ParticipantView struct {
	interfaces.Participant

	// Demo marks positions configured for the demo "you" role.
	Demo bool
}

// Snapshot is an immutable view of the ceremony published after every committed change.
type Snapshot struct {
	ID             string
	Phase          interfaces.Phase
	Capacity       int
	ScheduledStart time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time

	// CurrentTurn is the position of the RUNNING participant, or -1.
	CurrentTurn int
	// NextTurn is the position allowed to begin next, or -1.
	NextTurn int

	Participants []ParticipantView
	Counts       map[interfaces.ParticipantState]int

	Started bool
	Stopped bool

	// Sequence increases with every published snapshot.
	Sequence uint64
}

func buildSnapshot(state *interfaces.CeremonyState, cfg Config, demo map[int]bool, started, stopped bool, seq uint64) *Snapshot {
	snap := &Snapshot{
		Phase:          interfaces.PhaseWaiting,
		Capacity:       cfg.Capacity,
		ScheduledStart: cfg.ScheduledStart,
		CurrentTurn:    -1,
		NextTurn:       -1,
		Participants:   []ParticipantView{},
		Counts: map[interfaces.ParticipantState]int{
			interfaces.StateWaiting:  0,
			interfaces.StateRunning:  0,
			interfaces.StateComplete: 0,
			interfaces.StateInvalid:  0,
		},
		Started:  started,
		Stopped:  stopped,
		Sequence: seq,
	}
	if state == nil {
		return snap
	}

	clone := state.Clone()
	snap.ID = clone.ID
	snap.Phase = clone.Phase
	snap.Capacity = clone.Capacity
	snap.ScheduledStart = clone.ScheduledStart
	snap.StartedAt = clone.StartedAt
	snap.CompletedAt = clone.CompletedAt

	for _, p := range clone.Participants {
		snap.Participants = append(snap.Participants, ParticipantView{Participant: p, Demo: demo[p.Position]})
		snap.Counts[p.State]++
		if p.State == interfaces.StateRunning {
			snap.CurrentTurn = p.Position
		}
	}
	if clone.Phase == interfaces.PhaseRunning && snap.CurrentTurn < 0 {
		snap.NextTurn = nextWaiting(clone)
	}
	return snap
}

// Participant returns the roster entry at position.
func (s *Snapshot) Participant(position int) (ParticipantView, bool) {
	if position < 0 || position >= len(s.Participants) {
		return ParticipantView{}, false
	}
	return s.Participants[position], true
}

// TranscriptHead returns the artifact id of the last accepted contribution before position,
// which is what the participant at position must extend. It is zero for the first contribution.
func (s *Snapshot) TranscriptHead(position int) interfaces.ContentID {
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
