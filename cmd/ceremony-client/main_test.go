package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/api/clients"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/ruteri/setup-mpc-server/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResolvePosition(t *testing.T) {
	ctx := context.Background()
	me := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	provider := new(clients.MockCeremonyProvider)
	provider.On("State", mock.Anything).Return(&api.StateResponse{
		Participants: []api.ParticipantResponse{
			{Participant: interfaces.Participant{Position: 0, Address: common.HexToAddress("0x01")}},
			{Participant: interfaces.Participant{Position: 1, Address: me}},
		},
	}, nil)

	pos, err := resolvePosition(ctx, provider, me, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = resolvePosition(ctx, provider, me, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, pos)

	_, err = resolvePosition(ctx, provider, common.HexToAddress("0xbb"), -1)
	assert.Error(t, err)
}

func TestContribute_WaitsForTurn(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	head := interfaces.ComputeID([]byte("previous"))
	provider := new(clients.MockCeremonyProvider)
	provider.On("BeginTurn", mock.Anything, 1).Return(nil, ceremony.ErrOutOfTurn).Twice()
	provider.On("BeginTurn", mock.Anything, 1).Return(&api.ParticipantResponse{}, nil).Once()
	provider.On("State", mock.Anything).Return(&api.StateResponse{
		Participants: []api.ParticipantResponse{
			{Participant: interfaces.Participant{Position: 0, State: interfaces.StateComplete, ArtifactID: &head}},
		},
	}, nil)
	provider.On("SubmitContribution", mock.Anything, 1, mock.MatchedBy(func(artifact []byte) bool {
		c, err := transcript.ParseContribution(artifact)
		return err == nil && c.Position == 1 && c.Previous == head && string(c.Payload) == "payload"
	})).Return(&api.ParticipantResponse{Participant: interfaces.Participant{Position: 1, State: interfaces.StateComplete}}, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := contribute(ctx, provider, key, 1, []byte("payload"), time.Millisecond, logger)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateComplete, p.State)
	provider.AssertExpectations(t)
}

func TestContribute_StopsOnPermanentError(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	provider := new(clients.MockCeremonyProvider)
	provider.On("BeginTurn", mock.Anything, 0).Return(nil, ceremony.ErrCoordinatorStopped).Once()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = contribute(context.Background(), provider, key, 0, []byte("payload"), time.Millisecond, logger)
	assert.ErrorIs(t, err, ceremony.ErrCoordinatorStopped)
	provider.AssertNotCalled(t, "SubmitContribution", mock.Anything, mock.Anything, mock.Anything)
}
