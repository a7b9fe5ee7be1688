package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/setup-mpc-server/interfaces"
)

const (
	manifestFile    = "ceremony.json"
	manifestVersion = 1
)

// ErrCorruptManifest is returned when the persisted manifest cannot be decoded.
var ErrCorruptManifest = errors.New("corrupt ceremony manifest")

type verdict struct {
	ArtifactID interfaces.ContentID `json:"artifactId"`
	Valid      bool                 `json:"valid"`
	Reason     string               `json:"reason,omitempty"`
}

type manifest struct {
	Version  int                       `json:"version"`
	State    *interfaces.CeremonyState `json:"state,omitempty"`
	Verdicts map[int][]verdict         `json:"verdicts,omitempty"`
}

func (m *manifest) clone() *manifest {
	c := &manifest{
		Version:  m.Version,
		State:    m.State.Clone(),
		Verdicts: make(map[int][]verdict, len(m.Verdicts)),
	}
	for pos, vs := range m.Verdicts {
		c.Verdicts[pos] = append([]verdict(nil), vs...)
	}
	return c
}

// Store is a disk-backed interfaces.TranscriptStore. The roster and phase live in a
// JSON manifest that is rewritten atomically on every change; artifacts go to a
// content-addressed storage backend.
type Store struct {
	mu        sync.Mutex
	dir       string
	artifacts interfaces.StorageBackend
	verifier  interfaces.ArtifactVerifier
	log       *slog.Logger

	m      *manifest
	closed bool
}

// Open loads or creates the store rooted at dir. If artifacts is nil, artifacts are
// kept in a file backend under dir/artifacts. If verifier is nil, contributions are
// checked with a SignedContributionVerifier.
func Open(dir string, artifacts interfaces.StorageBackend, verifier interfaces.ArtifactVerifier, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	if artifacts == nil {
		fb, err := newDefaultArtifacts(dir, log)
		if err != nil {
			return nil, err
		}
		artifacts = fb
	}
	if verifier == nil {
		verifier = NewSignedContributionVerifier()
	}

	s := &Store{
		dir:       dir,
		artifacts: artifacts,
		verifier:  verifier,
		log:       log,
		m:         &manifest{Version: manifestVersion, Verdicts: map[int][]verdict{}},
	}

	data, err := os.ReadFile(s.manifestPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("No ceremony manifest found, starting fresh", "dir", dir)
	case err != nil:
		return nil, fmt.Errorf("failed to read ceremony manifest: %w", err)
	default:
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
		if m.Version != manifestVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptManifest, m.Version)
		}
		if m.Verdicts == nil {
			m.Verdicts = map[int][]verdict{}
		}
		s.m = &m
		log.Info("Loaded ceremony manifest", "dir", dir, "hasState", m.State != nil)
	}

	return s, nil
}

// LoadState returns a copy of the persisted ceremony, or nil if none exists.
func (s *Store) LoadState(ctx context.Context) (*interfaces.CeremonyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, interfaces.ErrStoreClosed
	}
	return s.m.State.Clone(), nil
}

// Initialize persists a fresh ceremony. Re-initializing with the same ceremony id is a no-op.
func (s *Store) Initialize(ctx context.Context, state *interfaces.CeremonyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return interfaces.ErrStoreClosed
	}
	if s.m.State != nil {
		if s.m.State.ID == state.ID {
			return nil
		}
		return fmt.Errorf("ceremony %s already initialized", s.m.State.ID)
	}

	next := s.m.clone()
	next.State = state.Clone()
	if next.State.Participants == nil {
		next.State.Participants = []interfaces.Participant{}
	}
	return s.commit(next)
}

// AppendParticipant adds a participant at the next roster position. Appending a record
// identical in position and address to an existing one is a no-op.
func (s *Store) AppendParticipant(ctx context.Context, participant interfaces.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	roster := s.m.State.Participants
	if participant.Position < len(roster) {
		if existing := roster[participant.Position]; existing.Address == participant.Address {
			return nil
		}
		return fmt.Errorf("%w: position %d is taken", interfaces.ErrPositionConflict, participant.Position)
	}
	if participant.Position != len(roster) {
		return fmt.Errorf("%w: position %d, next free position is %d", interfaces.ErrPositionConflict, participant.Position, len(roster))
	}

	next := s.m.clone()
	next.State.Participants = append(next.State.Participants, participant.Clone())
	return s.commit(next)
}

// WriteTransition persists the ceremony phase and optionally one participant record.
func (s *Store) WriteTransition(ctx context.Context, transition interfaces.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if !transition.Phase.Valid() {
		return fmt.Errorf("invalid phase %q", transition.Phase)
	}
	if transition.Phase.Rank() < s.m.State.Phase.Rank() {
		return fmt.Errorf("phase regression from %s to %s", s.m.State.Phase, transition.Phase)
	}

	next := s.m.clone()
	next.State.Phase = transition.Phase
	if transition.StartedAt != nil {
		t := *transition.StartedAt
		next.State.StartedAt = &t
	}
	if transition.CompletedAt != nil {
		t := *transition.CompletedAt
		next.State.CompletedAt = &t
	}

	if p := transition.Participant; p != nil {
		if p.Position < 0 || p.Position >= len(next.State.Participants) {
			return fmt.Errorf("%w: no participant at position %d", interfaces.ErrPositionConflict, p.Position)
		}
		if next.State.Participants[p.Position].Address != p.Address {
			return fmt.Errorf("%w: address mismatch at position %d", interfaces.ErrPositionConflict, p.Position)
		}
		next.State.Participants[p.Position] = p.Clone()
	}

	return s.commit(next)
}

// ValidateAndStore verifies the artifact against the last accepted contribution, stores it
// in the artifact backend and records the verdict. A retried submission of the same artifact
// for the same position returns the recorded verdict without verifying or storing it again.
func (s *Store) ValidateAndStore(ctx context.Context, position int, address interfaces.Address, artifact []byte) (interfaces.Validation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return interfaces.Validation{}, err
	}

	roster := s.m.State.Participants
	if position < 0 || position >= len(roster) || roster[position].Address != address {
		return interfaces.Validation{}, fmt.Errorf("%w: %s is not registered at position %d", interfaces.ErrPositionConflict, address.Hex(), position)
	}

	id := interfaces.ComputeID(artifact)
	for _, v := range s.m.Verdicts[position] {
		if v.ArtifactID == id {
			s.log.Debug("Returning recorded verdict", "position", position, "artifactId", id.String())
			return interfaces.Validation{Valid: v.Valid, ArtifactID: v.ArtifactID, Reason: v.Reason}, nil
		}
	}

	previous := s.chainHead(position)
	reason, err := s.verifier.Verify(position, address, previous, artifact)
	if err != nil {
		return interfaces.Validation{}, fmt.Errorf("failed to verify contribution: %w", err)
	}
	valid := reason == ""

	contentType := interfaces.TranscriptType
	if !valid {
		contentType = interfaces.RejectedType
	}
	if _, err := s.artifacts.Store(ctx, artifact, contentType); err != nil {
		return interfaces.Validation{}, fmt.Errorf("failed to store artifact: %w", err)
	}

	next := s.m.clone()
	next.Verdicts[position] = append(next.Verdicts[position], verdict{ArtifactID: id, Valid: valid, Reason: reason})
	if err := s.commit(next); err != nil {
		return interfaces.Validation{}, err
	}

	s.log.Info("Contribution verified",
		"position", position,
		"address", address.Hex(),
		"artifactId", id.String(),
		"valid", valid,
		"reason", reason)

	return interfaces.Validation{Valid: valid, ArtifactID: id, Reason: reason}, nil
}

// FetchArtifact returns the artifact recorded for the participant at position.
func (s *Store) FetchArtifact(ctx context.Context, position int) ([]byte, error) {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	roster := s.m.State.Participants
	if position < 0 || position >= len(roster) || roster[position].ArtifactID == nil {
		s.mu.Unlock()
		return nil, interfaces.ErrContentNotFound
	}
	p := roster[position]
	s.mu.Unlock()

	contentType := interfaces.TranscriptType
	if p.State == interfaces.StateInvalid {
		contentType = interfaces.RejectedType
	}
	return s.artifacts.Fetch(ctx, *p.ArtifactID, contentType)
}

// Close syncs the store directory and rejects further calls.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return syncDir(s.dir)
}

// Location returns the artifact backend location, for logging.
func (s *Store) Location() string {
	return s.artifacts.LocationURI()
}

func (s *Store) ready() error {
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	if s.m.State == nil {
		return errors.New("ceremony not initialized")
	}
	return nil
}

// chainHead returns the artifact id of the last accepted contribution before position.
func (s *Store) chainHead(position int) interfaces.ContentID {
	var head interfaces.ContentID
	for _, p := range s.m.State.Participants[:position] {
		if p.State == interfaces.StateComplete && p.ArtifactID != nil {
			head = *p.ArtifactID
		}
	}
	return head
}

// commit writes next to disk and makes it current. On error the current manifest is kept.
func (s *Store) commit(next *manifest) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ceremony manifest: %w", err)
	}
	if err := writeFileAtomic(s.manifestPath(), data); err != nil {
		return fmt.Errorf("failed to persist ceremony manifest: %w", err)
	}
	s.m = next
	return nil
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.dir, manifestFile)
}
