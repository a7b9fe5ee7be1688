package ceremony

import "time"

// Observer is notified of committed ceremony changes. Calls happen inside the
// coordinator's critical section and must not block or call back into the coordinator.
type Observer interface {
	// OnSnapshot is called with every newly published snapshot.
	OnSnapshot(snap *Snapshot)

	// OnContribution is called once per terminal participant transition.
	OnContribution(valid bool, reason string)

	// OnPersistenceRetry is called before each retried transcript store write.
	OnPersistenceRetry(op string)
}

type nopObserver struct{}

func (nopObserver) OnSnapshot(*Snapshot)        {}
func (nopObserver) OnContribution(bool, string) {}
func (nopObserver) OnPersistenceRetry(string)   {}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithObserver registers obs for ceremony events.
func WithObserver(obs Observer) Option {
	return func(c *Coordinator) {
		if obs != nil {
			c.obs = obs
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
