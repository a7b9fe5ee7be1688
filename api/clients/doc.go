/*
Package clients provides the HTTP client for the ceremony server.

CeremonyClient implements api.CeremonyProvider. Error responses are decoded back into the
ceremony sentinel errors, so callers branch on them the same way they would against an
in-process coordinator:

	client := clients.NewCeremonyClient("http://localhost:8080")

	position, err := client.Register(ctx, address)
	if errors.Is(err, ceremony.ErrAlreadyRegistered) {
		// position holds the existing slot
	}

	if _, err := client.BeginTurn(ctx, position); errors.Is(err, ceremony.ErrOutOfTurn) {
		// wait for the previous participant
	}

MockCeremonyProvider is a testify mock of the same interface.
*/
package clients
