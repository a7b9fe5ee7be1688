// Package ceremony coordinates a time-boxed, strictly sequential multi-party contribution
// ceremony.
//
// A ceremony is created WAITING with a fixed capacity and a scheduled start. Participants
// register into ordered positions until the ceremony starts; afterwards each one in turn
// begins, submits a contribution and ends COMPLETE or INVALID. When every participant has
// finished the ceremony is COMPLETE.
//
// Every change is written through to an interfaces.TranscriptStore before it is applied in
// memory, so a restarted Coordinator resumes exactly where the previous one stopped.
//
// Basic usage:
//
//	coord, err := ceremony.New(ceremony.Config{
//		Capacity:       50,
//		ScheduledStart: time.Now().Add(5 * time.Second),
//	}, store, log)
//	if err != nil {
//		return err
//	}
//	if err := coord.Start(ctx); err != nil {
//		return err
//	}
//	defer coord.Stop()
//
//	position, err := coord.Register(ctx, address)
package ceremony
