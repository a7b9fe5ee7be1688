package ceremony

import (
	"context"
	"time"

	"github.com/ruteri/setup-mpc-server/interfaces"
)

// TurnTimeoutReason is recorded on participants invalidated by the turn watchdog.
const TurnTimeoutReason = "turn timed out"

// armStartTimer schedules the WAITING to RUNNING transition. Callers hold mu.
func (c *Coordinator) armStartTimer(delay time.Duration) {
	if c.startTimer != nil {
		c.startTimer.Stop()
	}
	c.startTimer = time.AfterFunc(delay, c.onScheduledStart)
}

func (c *Coordinator) onScheduledStart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTimer = nil
	if c.stopped || c.state == nil || c.state.Phase != interfaces.PhaseWaiting {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timerWriteTimeout)
	defer cancel()

	if err := c.beginCeremony(ctx); err != nil {
		c.log.Error("Failed to start ceremony, will retry", "err", err, "retryIn", c.cfg.Retry.MaxInterval)
		c.armStartTimer(c.cfg.Retry.MaxInterval)
	}
}

// armTurnTimer starts the watchdog for the RUNNING participant p. Callers hold mu.
func (c *Coordinator) armTurnTimer(p interfaces.Participant) {
	c.disarmTurnTimer()
	if c.cfg.TurnTimeout <= 0 || p.StartedAt == nil {
		return
	}

	deadline := p.StartedAt.Add(c.cfg.TurnTimeout)
	delay := deadline.Sub(c.now())
	if delay < 0 {
		delay = 0
	}
	position, startedAt := p.Position, *p.StartedAt
	c.turnTimer = time.AfterFunc(delay, func() { c.onTurnTimeout(position, startedAt) })
}

// disarmTurnTimer stops the turn watchdog. Callers hold mu.
func (c *Coordinator) disarmTurnTimer() {
	if c.turnTimer != nil {
		c.turnTimer.Stop()
		c.turnTimer = nil
	}
}

func (c *Coordinator) onTurnTimeout(position int, startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.state == nil || c.state.Phase != interfaces.PhaseRunning {
		return
	}
	if position >= len(c.state.Participants) {
		return
	}
	participant := c.state.Participants[position]
	// The turn already ended, or this is a stale timer from an earlier turn
	if participant.State != interfaces.StateRunning || participant.StartedAt == nil || !participant.StartedAt.Equal(startedAt) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timerWriteTimeout)
	defer cancel()

	c.log.Warn("Participant turn timed out", "position", position, "address", participant.Address.Hex(), "timeout", c.cfg.TurnTimeout)
	_, err := c.finishTurn(ctx, participant, interfaces.Validation{Valid: false, Reason: TurnTimeoutReason})
	if err != nil {
		c.log.Error("Failed to invalidate timed out participant, will retry", "position", position, "err", err)
		c.turnTimer = time.AfterFunc(c.cfg.Retry.MaxInterval, func() { c.onTurnTimeout(position, startedAt) })
	}
}
