package clients

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/httpserver"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/ruteri/setup-mpc-server/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, capacity int, start time.Time) (*ceremony.Coordinator, *CeremonyClient) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := transcript.Open(t.TempDir(), nil, nil, logger)
	require.NoError(t, err)
	coord, err := ceremony.New(ceremony.Config{Capacity: capacity, ScheduledStart: start}, store, logger)
	require.NoError(t, err)
	t.Cleanup(coord.Stop)

	srv, err := httpserver.New(&api.HTTPServerConfig{Log: logger}, httpserver.NewHandler(coord, 0, logger), nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return coord, NewCeremonyClient(ts.URL, 5*time.Second)
}

func TestCeremonyClient(t *testing.T) {
	ctx := context.Background()
	coord, client := startServer(t, 2, time.Now().Add(-time.Second))

	var _ api.CeremonyProvider = client

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	pos, err := client.Register(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = client.Register(ctx, addr)
	assert.ErrorIs(t, err, ceremony.ErrAlreadyRegistered)
	assert.Equal(t, 0, pos)

	_, err = client.Register(ctx, interfaces.Address{})
	assert.ErrorIs(t, err, ceremony.ErrInvalidParticipant)

	_, err = client.BeginTurn(ctx, 0)
	assert.ErrorIs(t, err, ceremony.ErrCeremonyNotRunning)

	require.NoError(t, coord.Start(ctx))

	state, err := client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseRunning, state.Phase)
	assert.Equal(t, 0, state.NextTurn)

	_, err = client.BeginTurn(ctx, 1)
	assert.ErrorIs(t, err, ceremony.ErrOutOfTurn)

	p, err := client.BeginTurn(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateRunning, p.State)

	artifact, err := transcript.SignContribution(key, 0, state.TranscriptHead(0), []byte("payload"))
	require.NoError(t, err)
	p, err = client.SubmitContribution(ctx, 0, artifact)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateComplete, p.State)

	state, err = client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseComplete, state.Phase)
	assert.Equal(t, *p.ArtifactID, state.TranscriptHead(1))

	data, err := client.Transcript(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)

	_, err = client.Transcript(ctx, 1)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	coord.Stop()
	_, err = client.BeginTurn(ctx, 0)
	assert.ErrorIs(t, err, ceremony.ErrCoordinatorStopped)
}

func TestCeremonyClient_Full(t *testing.T) {
	ctx := context.Background()
	_, client := startServer(t, 1, time.Now().Add(time.Hour))

	_, err := client.Register(ctx, crypto.PubkeyToAddress(mustKey(t).PublicKey))
	require.NoError(t, err)
	_, err = client.Register(ctx, crypto.PubkeyToAddress(mustKey(t).PublicKey))
	assert.ErrorIs(t, err, ceremony.ErrCeremonyFull)
}

func TestCeremonyClient_ServerUnreachable(t *testing.T) {
	client := NewCeremonyClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := client.State(context.Background())
	assert.Error(t, err)
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
