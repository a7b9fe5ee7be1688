package ceremony

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ruteri/setup-mpc-server/interfaces"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory TranscriptStore. Artifacts starting with "bad" are rejected.
type memStore struct {
	mu        sync.Mutex
	state     *interfaces.CeremonyState
	artifacts map[int][]byte
	verdicts  map[string]interfaces.Validation

	// failNext makes the next n mutating calls fail.
	failNext int

	transitions int
	validations int
	closed      bool
}

func newMemStore() *memStore {
	return &memStore{
		artifacts: map[int][]byte{},
		verdicts:  map[string]interfaces.Validation{},
	}
}

func (m *memStore) fail(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *memStore) snapshot() *interfaces.CeremonyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

func (m *memStore) counts() (transitions, validations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions, m.validations
}

func (m *memStore) injected() bool {
	if m.failNext > 0 {
		m.failNext--
		return true
	}
	return false
}

func (m *memStore) LoadState(ctx context.Context) (*interfaces.CeremonyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, interfaces.ErrStoreClosed
	}
	return m.state.Clone(), nil
}

func (m *memStore) Initialize(ctx context.Context, state *interfaces.CeremonyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injected() {
		return errInjected
	}
	m.state = state.Clone()
	return nil
}

func (m *memStore) AppendParticipant(ctx context.Context, p interfaces.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injected() {
		return errInjected
	}
	if p.Position != len(m.state.Participants) {
		return fmt.Errorf("%w: position %d", interfaces.ErrPositionConflict, p.Position)
	}
	m.state.Participants = append(m.state.Participants, p.Clone())
	return nil
}

func (m *memStore) WriteTransition(ctx context.Context, t interfaces.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injected() {
		return errInjected
	}
	m.transitions++
	m.state.Phase = t.Phase
	if t.StartedAt != nil {
		m.state.StartedAt = t.StartedAt
	}
	if t.CompletedAt != nil {
		m.state.CompletedAt = t.CompletedAt
	}
	if t.Participant != nil {
		m.state.Participants[t.Participant.Position] = t.Participant.Clone()
	}
	return nil
}

func (m *memStore) ValidateAndStore(ctx context.Context, position int, address interfaces.Address, artifact []byte) (interfaces.Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injected() {
		return interfaces.Validation{}, errInjected
	}

	id := interfaces.ComputeID(artifact)
	key := fmt.Sprintf("%d/%s", position, id)
	if v, ok := m.verdicts[key]; ok {
		return v, nil
	}

	m.validations++
	v := interfaces.Validation{Valid: true, ArtifactID: id}
	if bytes.HasPrefix(artifact, []byte("bad")) {
		v.Valid = false
		v.Reason = "rejected by test verifier"
	}
	m.verdicts[key] = v
	m.artifacts[position] = append([]byte(nil), artifact...)
	return v, nil
}

func (m *memStore) FetchArtifact(ctx context.Context, position int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[position]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return a, nil
}

func (m *memStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
