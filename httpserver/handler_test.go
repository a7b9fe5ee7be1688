package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/ruteri/setup-mpc-server/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockCoordinator struct {
	mock.Mock
}

func (m *mockCoordinator) Register(ctx context.Context, address interfaces.Address) (int, error) {
	args := m.Called(address)
	return args.Int(0), args.Error(1)
}

func (m *mockCoordinator) BeginTurn(ctx context.Context, position int) (interfaces.Participant, error) {
	args := m.Called(position)
	return args.Get(0).(interfaces.Participant), args.Error(1)
}

func (m *mockCoordinator) SubmitContribution(ctx context.Context, position int, artifact []byte) (interfaces.Participant, error) {
	args := m.Called(position, artifact)
	return args.Get(0).(interfaces.Participant), args.Error(1)
}

func (m *mockCoordinator) Transcript(ctx context.Context, position int) ([]byte, error) {
	args := m.Called(position)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockCoordinator) CurrentState() *ceremony.Snapshot {
	return &ceremony.Snapshot{CurrentTurn: -1, NextTurn: -1}
}

func newTestServer(t *testing.T, coord Coordinator, maxArtifactSize int64) *Server {
	t.Helper()
	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLogger(),
		GracefulShutdownDuration: time.Second,
	}, NewHandler(coord, maxArtifactSize, testLogger()), nil)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	resp := w.Result()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) api.ErrorResponse {
	t.Helper()
	var e api.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &e), string(data))
	return e
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"out of turn", ceremony.ErrOutOfTurn, http.StatusConflict, api.CodeOutOfTurn},
		{"not running", ceremony.ErrCeremonyNotRunning, http.StatusConflict, api.CodeCeremonyNotRunning},
		{"stopped", ceremony.ErrCoordinatorStopped, http.StatusServiceUnavailable, api.CodeCoordinatorStopped},
		{"persistence", fmt.Errorf("%w: begin turn: disk full", ceremony.ErrPersistenceUnavailable), http.StatusServiceUnavailable, api.CodePersistenceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, api.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := new(mockCoordinator)
			coord.On("BeginTurn", 3).Return(interfaces.Participant{}, tt.err)
			srv := newTestServer(t, coord, 0)

			resp, data := do(t, srv.Handler(), http.MethodPost, "/api/participants/3/begin", nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, data).Code)
			coord.AssertExpectations(t)
		})
	}
}

func TestHandler_BadRequests(t *testing.T) {
	coord := new(mockCoordinator)
	srv := newTestServer(t, coord, 8)

	t.Run("invalid position", func(t *testing.T) {
		resp, data := do(t, srv.Handler(), http.MethodPost, "/api/participants/abc/begin", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, api.CodeBadRequest, decodeError(t, data).Code)
	})

	t.Run("negative position", func(t *testing.T) {
		resp, _ := do(t, srv.Handler(), http.MethodGet, "/api/participants/-1/transcript", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed registration", func(t *testing.T) {
		resp, data := do(t, srv.Handler(), http.MethodPost, "/api/participants", []byte(`{"address":`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, api.CodeBadRequest, decodeError(t, data).Code)
	})

	t.Run("artifact too large", func(t *testing.T) {
		resp, data := do(t, srv.Handler(), http.MethodPut, "/api/participants/0/contribution", bytes.Repeat([]byte("x"), 9))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, api.CodeBadRequest, decodeError(t, data).Code)
	})

	coord.AssertNotCalled(t, "BeginTurn", mock.Anything)
	coord.AssertNotCalled(t, "SubmitContribution", mock.Anything, mock.Anything)
}

func TestHandler_AlreadyRegisteredCarriesPosition(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	coord := new(mockCoordinator)
	coord.On("Register", addr).Return(4, ceremony.ErrAlreadyRegistered)
	srv := newTestServer(t, coord, 0)

	body, err := json.Marshal(api.RegisterRequest{Address: addr})
	require.NoError(t, err)
	resp, data := do(t, srv.Handler(), http.MethodPost, "/api/participants", body)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, api.CodeAlreadyRegistered, e.Code)
	require.NotNil(t, e.Position)
	assert.Equal(t, 4, *e.Position)
}

func TestServer_HealthEndpoints(t *testing.T) {
	srv := newTestServer(t, new(mockCoordinator), 0)
	h := srv.Handler()

	resp, _ := do(t, h, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := do(t, h, http.MethodGet, "/drain", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "draining")

	resp, _ = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, data = do(t, h, http.MethodGet, "/drain", nil)
	assert.Contains(t, string(data), "already draining")

	resp, _ = do(t, h, http.MethodGet, "/undrain", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Drives a full ceremony through the HTTP API against a disk-backed coordinator.
func TestServer_CeremonyFlow(t *testing.T) {
	ctx := context.Background()
	store, err := transcript.Open(t.TempDir(), nil, nil, testLogger())
	require.NoError(t, err)

	coord, err := ceremony.New(ceremony.Config{
		Capacity:        2,
		ScheduledStart:  time.Now().Add(-time.Second),
		DemoRoleIndices: []int{1},
	}, store, testLogger())
	require.NoError(t, err)
	t.Cleanup(coord.Stop)

	srv := newTestServer(t, coord, 0)
	h := srv.Handler()

	aliceKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	bobKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	addrs := []interfaces.Address{crypto.PubkeyToAddress(aliceKey.PublicKey), crypto.PubkeyToAddress(bobKey.PublicKey)}
	for i, addr := range addrs {
		body, err := json.Marshal(api.RegisterRequest{Address: addr})
		require.NoError(t, err)
		resp, data := do(t, h, http.MethodPost, "/api/participants", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		var reg api.RegisterResponse
		require.NoError(t, json.Unmarshal(data, &reg))
		assert.Equal(t, i, reg.Position)
	}

	resp, data := do(t, h, http.MethodPost, "/api/participants", []byte(`{"address":"0x00000000000000000000000000000000000000bb"}`))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, api.CodeCeremonyFull, decodeError(t, data).Code)

	require.NoError(t, coord.Start(ctx))

	state := func() api.StateResponse {
		resp, data := do(t, h, http.MethodGet, "/api/state", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get(api.SequenceHeader))
		var s api.StateResponse
		require.NoError(t, json.Unmarshal(data, &s))
		return s
	}

	s := state()
	assert.Equal(t, interfaces.PhaseRunning, s.Phase)
	assert.Equal(t, 0, s.NextTurn)
	require.Len(t, s.Participants, 2)
	assert.False(t, s.Participants[0].Demo)
	assert.True(t, s.Participants[1].Demo)
	assert.Equal(t, addrs[1], s.Participants[1].Address)

	resp, data = do(t, h, http.MethodPost, "/api/participants/1/begin", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, api.CodeOutOfTurn, decodeError(t, data).Code)

	resp, data = do(t, h, http.MethodPost, "/api/participants/0/begin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	artifact, err := transcript.SignContribution(aliceKey, 0, interfaces.ContentID{}, []byte("alpha"))
	require.NoError(t, err)
	resp, data = do(t, h, http.MethodPut, "/api/participants/0/contribution", artifact)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var p api.ParticipantResponse
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, interfaces.StateComplete, p.State)

	resp, data = do(t, h, http.MethodPost, "/api/participants/1/begin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &p))
	assert.True(t, p.Demo)

	resp, data = do(t, h, http.MethodPut, "/api/participants/1/contribution", []byte("not a contribution"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, interfaces.StateInvalid, p.State)
	assert.True(t, strings.HasPrefix(p.Reason, "malformed contribution"))

	s = state()
	assert.Equal(t, interfaces.PhaseComplete, s.Phase)

	resp, data = do(t, h, http.MethodGet, "/api/participants/0/transcript", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, artifact, data)

	resp, data = do(t, h, http.MethodGet, "/api/participants/1/transcript", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("not a contribution"), data)

	coord.Stop()
	resp, _ = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, data = do(t, h, http.MethodPost, "/api/participants/0/begin", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, api.CodeCoordinatorStopped, decodeError(t, data).Code)
}
