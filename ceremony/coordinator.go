package ceremony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"go.uber.org/atomic"
)

// timerWriteTimeout bounds transcript store calls made from timer callbacks.
const timerWriteTimeout = 30 * time.Second

// Coordinator owns the state of a single ceremony and sequences every change to it.
//
// All mutations are serialized by mu and written through to the transcript store before
// they become visible; the in-memory roster is only a cache of the store. Readers use
// CurrentState, which returns the last published snapshot without taking mu.
type Coordinator struct {
	cfg   Config
	store interfaces.TranscriptStore
	log   *slog.Logger
	obs   Observer
	now   func() time.Time
	demo  map[int]bool

	mu         sync.Mutex
	state      *interfaces.CeremonyState
	started    bool
	stopped    bool
	startTimer *time.Timer
	turnTimer  *time.Timer
	seq        uint64

	snapshot atomic.Pointer[Snapshot]

	completeOnce sync.Once
	completed    chan struct{}
}

// New creates a coordinator for the ceremony described by cfg. The transcript store is
// not read until Start or the first participant operation.
func New(cfg Config, store interfaces.TranscriptStore, log *slog.Logger, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ceremony config: %w", err)
	}
	if store == nil {
		return nil, errors.New("transcript store is required")
	}

	c := &Coordinator{
		cfg:       cfg,
		store:     store,
		log:       log,
		obs:       nopObserver{},
		now:       time.Now,
		demo:      make(map[int]bool, len(cfg.DemoRoleIndices)),
		completed: make(chan struct{}),
	}
	for _, idx := range cfg.DemoRoleIndices {
		c.demo[idx] = true
	}
	for _, opt := range opts {
		opt(c)
	}

	c.snapshot.Store(buildSnapshot(nil, c.cfg, c.demo, false, false, 0))
	return c, nil
}

// Start loads the ceremony from the transcript store, resuming any prior progress, and arms
// the timer that moves the ceremony to RUNNING at its scheduled start. If that instant has
// already passed the transition happens before Start returns. Calling Start again is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrCoordinatorStopped
	}
	if c.started {
		c.log.Info("Coordinator already started")
		return nil
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	c.started = true

	switch c.state.Phase {
	case interfaces.PhaseWaiting:
		delay := c.state.ScheduledStart.Sub(c.now())
		if delay <= 0 {
			c.log.Info("Scheduled start already passed, starting ceremony now",
				"scheduledStart", c.state.ScheduledStart)
			if err := c.beginCeremony(ctx); err != nil {
				// The timer keeps trying in the background
				c.log.Error("Failed to start ceremony, will retry", "err", err)
				c.armStartTimer(c.cfg.Retry.MaxInterval)
			}
		} else {
			c.log.Info("Ceremony scheduled", "scheduledStart", c.state.ScheduledStart, "in", delay)
			c.armStartTimer(delay)
		}
	case interfaces.PhaseRunning:
		if running := currentRunning(c.state); running >= 0 {
			c.armTurnTimer(c.state.Participants[running])
		}
		c.log.Info("Resuming running ceremony", "currentTurn", currentRunning(c.state), "nextTurn", nextWaiting(c.state))
	case interfaces.PhaseComplete:
		c.log.Info("Ceremony already complete")
	}

	c.publish()
	return nil
}

// Stop waits for the mutation in progress, if any, to commit, disarms all timers and makes
// every later participant operation fail with ErrCoordinatorStopped. Every committed change
// has already been written to the transcript store, so there is nothing left to flush.
// Stop is safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	if c.startTimer != nil {
		c.startTimer.Stop()
		c.startTimer = nil
	}
	c.disarmTurnTimer()

	c.publish()
	c.log.Info("Coordinator stopped")
}

// Register adds a participant to the roster and returns its position. Registration is only
// possible while the ceremony is WAITING and below capacity. If the address is already on the
// roster its position is returned together with ErrAlreadyRegistered.
func (c *Coordinator) Register(ctx context.Context, address interfaces.Address) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutable(ctx); err != nil {
		return -1, err
	}
	if address == (interfaces.Address{}) {
		return -1, ErrInvalidParticipant
	}
	if c.state.Phase != interfaces.PhaseWaiting {
		return -1, ErrCeremonyAlreadyRunning
	}
	for _, p := range c.state.Participants {
		if p.Address == address {
			return p.Position, ErrAlreadyRegistered
		}
	}
	if len(c.state.Participants) >= c.state.Capacity {
		return -1, ErrCeremonyFull
	}

	participant := interfaces.Participant{
		Position:     len(c.state.Participants),
		Address:      address,
		State:        interfaces.StateWaiting,
		RegisteredAt: c.now().UTC(),
	}
	err := c.persist(ctx, "append participant", func(ctx context.Context) error {
		return c.store.AppendParticipant(ctx, participant)
	})
	if err != nil {
		return -1, err
	}

	c.state.Participants = append(c.state.Participants, participant)
	c.log.Info("Participant registered",
		"position", participant.Position,
		"address", address.Hex(),
		"demo", c.demo[participant.Position])
	c.publish()
	return participant.Position, nil
}

// BeginTurn moves the participant at position to RUNNING. Only the lowest WAITING position
// may begin, and only while no other participant is RUNNING.
func (c *Coordinator) BeginTurn(ctx context.Context, position int) (interfaces.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutable(ctx); err != nil {
		return interfaces.Participant{}, err
	}
	if c.state.Phase != interfaces.PhaseRunning {
		return interfaces.Participant{}, ErrCeremonyNotRunning
	}
	if currentRunning(c.state) >= 0 {
		return interfaces.Participant{}, ErrOutOfTurn
	}
	if next := nextWaiting(c.state); next < 0 || position != next {
		return interfaces.Participant{}, ErrOutOfTurn
	}

	started := c.now().UTC()
	updated := c.state.Participants[position].Clone()
	updated.State = interfaces.StateRunning
	updated.StartedAt = &started
	updated.ContributionRef = interfaces.TranscriptSlot(position)

	if err := c.commitParticipant(ctx, "begin turn", updated, c.state.Phase, nil); err != nil {
		return interfaces.Participant{}, err
	}

	c.armTurnTimer(updated)
	c.log.Info("Participant turn started", "position", position, "address", updated.Address.Hex())
	c.publish()
	return updated.Clone(), nil
}

// SubmitContribution hands the artifact of the RUNNING participant at position to the
// transcript store. A valid contribution completes the participant, an invalid one marks it
// INVALID; either way the turn passes on and the ceremony completes after the last
// participant. Retrying with the same artifact after ErrPersistenceUnavailable commits
// exactly one transition.
func (c *Coordinator) SubmitContribution(ctx context.Context, position int, artifact []byte) (interfaces.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutable(ctx); err != nil {
		return interfaces.Participant{}, err
	}
	if position < 0 || position >= len(c.state.Participants) ||
		c.state.Participants[position].State != interfaces.StateRunning {
		return interfaces.Participant{}, ErrNotYourTurn
	}

	participant := c.state.Participants[position]

	var validation interfaces.Validation
	err := c.persist(ctx, "validate contribution", func(ctx context.Context) error {
		v, err := c.store.ValidateAndStore(ctx, position, participant.Address, artifact)
		validation = v
		return err
	})
	if err != nil {
		return interfaces.Participant{}, err
	}

	updated, err := c.finishTurn(ctx, participant, validation)
	if err != nil {
		return interfaces.Participant{}, err
	}
	return updated, nil
}

// CurrentState returns the latest published snapshot. It never blocks.
func (c *Coordinator) CurrentState() *Snapshot {
	return c.snapshot.Load()
}

// Wait blocks until the ceremony is COMPLETE or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.completed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the ceremony is COMPLETE.
func (c *Coordinator) Done() <-chan struct{} {
	return c.completed
}

// mutable checks the coordinator accepts mutations and loads the store on first use.
// Callers hold mu.
func (c *Coordinator) mutable(ctx context.Context) error {
	if c.stopped {
		return ErrCoordinatorStopped
	}
	return c.ensureLoaded(ctx)
}

// ensureLoaded hydrates the in-memory state from the transcript store, creating the
// ceremony record if the store is empty. Callers hold mu.
func (c *Coordinator) ensureLoaded(ctx context.Context) error {
	if c.state != nil {
		return nil
	}

	var loaded *interfaces.CeremonyState
	err := c.persist(ctx, "load state", func(ctx context.Context) error {
		st, err := c.store.LoadState(ctx)
		loaded = st
		return err
	})
	if err != nil {
		return err
	}

	if loaded == nil {
		fresh := &interfaces.CeremonyState{
			ID:             uuid.NewString(),
			Capacity:       c.cfg.Capacity,
			ScheduledStart: c.cfg.ScheduledStart.UTC(),
			Phase:          interfaces.PhaseWaiting,
			Participants:   []interfaces.Participant{},
		}
		err := c.persist(ctx, "initialize", func(ctx context.Context) error {
			return c.store.Initialize(ctx, fresh)
		})
		if err != nil {
			return err
		}
		c.state = fresh
		c.log.Info("Created ceremony",
			"id", fresh.ID,
			"capacity", fresh.Capacity,
			"scheduledStart", fresh.ScheduledStart)
	} else {
		if err := validateState(loaded); err != nil {
			c.log.Error("Refusing to serve corrupt ceremony", "err", err)
			return err
		}
		if loaded.Capacity != c.cfg.Capacity || !loaded.ScheduledStart.Equal(c.cfg.ScheduledStart) {
			c.log.Warn("Persisted ceremony overrides configured shape",
				"capacity", loaded.Capacity,
				"configuredCapacity", c.cfg.Capacity,
				"scheduledStart", loaded.ScheduledStart,
				"configuredScheduledStart", c.cfg.ScheduledStart)
		}
		if loaded.Participants == nil {
			loaded.Participants = []interfaces.Participant{}
		}
		c.state = loaded
		c.log.Info("Rehydrated ceremony",
			"id", loaded.ID,
			"phase", loaded.Phase,
			"participants", len(loaded.Participants))
	}

	if c.state.Phase == interfaces.PhaseComplete {
		c.markComplete()
	}
	c.publish()
	return nil
}

// beginCeremony moves the ceremony from WAITING to RUNNING. An empty roster has nothing to
// run, so the ceremony completes in the same transition. Callers hold mu.
func (c *Coordinator) beginCeremony(ctx context.Context) error {
	now := c.now().UTC()
	transition := interfaces.Transition{
		Phase:     interfaces.PhaseRunning,
		StartedAt: &now,
	}
	if len(c.state.Participants) == 0 {
		transition.Phase = interfaces.PhaseComplete
		transition.CompletedAt = &now
	}

	err := c.persist(ctx, "start ceremony", func(ctx context.Context) error {
		return c.store.WriteTransition(ctx, transition)
	})
	if err != nil {
		return err
	}

	c.state.Phase = transition.Phase
	c.state.StartedAt = transition.StartedAt
	c.state.CompletedAt = transition.CompletedAt
	c.log.Info("Ceremony started", "participants", len(c.state.Participants), "phase", c.state.Phase)

	if c.state.Phase == interfaces.PhaseComplete {
		c.markComplete()
	}
	c.publish()
	return nil
}

// finishTurn records the outcome of the RUNNING participant's turn and, after the last
// participant, completes the ceremony. Callers hold mu.
func (c *Coordinator) finishTurn(ctx context.Context, participant interfaces.Participant, validation interfaces.Validation) (interfaces.Participant, error) {
	now := c.now().UTC()

	updated := participant.Clone()
	updated.CompletedAt = &now
	if !validation.ArtifactID.IsZero() {
		id := validation.ArtifactID
		updated.ArtifactID = &id
	}
	if validation.Valid {
		updated.State = interfaces.StateComplete
	} else {
		updated.State = interfaces.StateInvalid
		updated.Reason = validation.Reason
	}

	phase := interfaces.PhaseRunning
	var completedAt *time.Time
	if remainingTurns(c.state, updated.Position) == 0 {
		phase = interfaces.PhaseComplete
		completedAt = &now
	}

	if err := c.commitParticipant(ctx, "finish turn", updated, phase, completedAt); err != nil {
		return interfaces.Participant{}, err
	}

	c.disarmTurnTimer()
	c.obs.OnContribution(validation.Valid, validation.Reason)
	c.log.Info("Participant turn finished",
		"position", updated.Position,
		"address", updated.Address.Hex(),
		"state", updated.State,
		"reason", updated.Reason)

	if phase == interfaces.PhaseComplete {
		c.log.Info("Ceremony complete", "participants", len(c.state.Participants))
		c.markComplete()
	} else if next := nextWaiting(c.state); next >= 0 {
		c.log.Info("Next participant may begin", "position", next)
	}

	c.publish()
	return updated.Clone(), nil
}

// commitParticipant persists a participant record together with the ceremony phase and
// applies both in memory once the store confirmed the write. Callers hold mu.
func (c *Coordinator) commitParticipant(ctx context.Context, op string, updated interfaces.Participant, phase interfaces.Phase, completedAt *time.Time) error {
	transition := interfaces.Transition{
		Phase:       phase,
		StartedAt:   c.state.StartedAt,
		CompletedAt: completedAt,
		Participant: &updated,
	}
	err := c.persist(ctx, op, func(ctx context.Context) error {
		return c.store.WriteTransition(ctx, transition)
	})
	if err != nil {
		return err
	}

	c.state.Participants[updated.Position] = updated.Clone()
	c.state.Phase = phase
	if completedAt != nil {
		t := *completedAt
		c.state.CompletedAt = &t
	}
	return nil
}

// publish stores a fresh snapshot for lock-free readers. Callers hold mu.
func (c *Coordinator) publish() {
	c.seq++
	snap := buildSnapshot(c.state, c.cfg, c.demo, c.started, c.stopped, c.seq)
	c.snapshot.Store(snap)
	c.obs.OnSnapshot(snap)
}

func (c *Coordinator) markComplete() {
	c.completeOnce.Do(func() { close(c.completed) })
}

// currentRunning returns the position of the RUNNING participant, or -1.
func currentRunning(state *interfaces.CeremonyState) int {
	for _, p := range state.Participants {
		if p.State == interfaces.StateRunning {
			return p.Position
		}
	}
	return -1
}

// nextWaiting returns the lowest WAITING position, or -1.
func nextWaiting(state *interfaces.CeremonyState) int {
	for _, p := range state.Participants {
		if p.State == interfaces.StateWaiting {
			return p.Position
		}
	}
	return -1
}

// remainingTurns counts participants that still have to run, ignoring position.
func remainingTurns(state *interfaces.CeremonyState, position int) int {
	n := 0
	for _, p := range state.Participants {
		if p.Position != position && !p.State.Terminal() {
			n++
		}
	}
	return n
}

// Transcript returns the artifact submitted by the participant at position.
func (c *Coordinator) Transcript(ctx context.Context, position int) ([]byte, error) {
	p, ok := c.CurrentState().Participant(position)
	if !ok || p.ArtifactID == nil {
		return nil, interfaces.ErrContentNotFound
	}
	return c.store.FetchArtifact(ctx, position)
}
