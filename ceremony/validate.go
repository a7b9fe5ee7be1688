package ceremony

import (
	"fmt"

	"github.com/ruteri/setup-mpc-server/interfaces"
)

// validateState checks a rehydrated ceremony against the roster invariants. Any violation
// is reported as ErrCorruptState.
func validateState(state *interfaces.CeremonyState) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCorruptState, fmt.Sprintf(format, args...))
	}

	if state.ID == "" {
		return corrupt("missing ceremony id")
	}
	if state.Capacity <= 0 {
		return corrupt("capacity %d", state.Capacity)
	}
	if !state.Phase.Valid() {
		return corrupt("unknown phase %q", state.Phase)
	}
	if len(state.Participants) > state.Capacity {
		return corrupt("%d participants exceed capacity %d", len(state.Participants), state.Capacity)
	}
	if state.Phase != interfaces.PhaseWaiting && state.StartedAt == nil {
		return corrupt("phase %s without start time", state.Phase)
	}

	seen := make(map[interfaces.Address]int, len(state.Participants))
	running := 0
	sawWaiting := false
	for i, p := range state.Participants {
		if p.Position != i {
			return corrupt("participant at index %d has position %d", i, p.Position)
		}
		if !p.State.Valid() {
			return corrupt("participant %d has unknown state %q", i, p.State)
		}
		if prev, ok := seen[p.Address]; ok {
			return corrupt("address %s registered at positions %d and %d", p.Address.Hex(), prev, i)
		}
		seen[p.Address] = i

		switch state.Phase {
		case interfaces.PhaseWaiting:
			if p.State != interfaces.StateWaiting {
				return corrupt("participant %d is %s before the ceremony started", i, p.State)
			}
		case interfaces.PhaseComplete:
			if !p.State.Terminal() {
				return corrupt("participant %d is %s in a complete ceremony", i, p.State)
			}
		}

		if p.State == interfaces.StateWaiting {
			sawWaiting = true
			continue
		}
		if sawWaiting {
			return corrupt("participant %d is %s after a waiting participant", i, p.State)
		}
		if p.StartedAt == nil {
			return corrupt("participant %d is %s without start time", i, p.State)
		}
		if p.State == interfaces.StateRunning {
			running++
		}
	}
	if running > 1 {
		return corrupt("%d participants running", running)
	}
	return nil
}
