package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/stretchr/testify/mock"
)

// CeremonyClient implements api.CeremonyProvider over HTTP.
type CeremonyClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCeremonyClient creates a client for the ceremony server at baseURL
// (e.g. "http://localhost:8080"). The request timeout defaults to 30 seconds.
func NewCeremonyClient(baseURL string, timeout ...time.Duration) *CeremonyClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &CeremonyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// State fetches the current ceremony snapshot.
func (c *CeremonyClient) State(ctx context.Context) (*api.StateResponse, error) {
	var state api.StateResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/state", nil, "", &state); err != nil {
		return nil, fmt.Errorf("state request failed: %w", err)
	}
	return &state, nil
}

// Register adds address to the roster.
func (c *CeremonyClient) Register(ctx context.Context, address interfaces.Address) (int, error) {
	body, err := json.Marshal(api.RegisterRequest{Address: address})
	if err != nil {
		return -1, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var resp api.RegisterResponse
	err = c.doJSON(ctx, http.MethodPost, "/api/participants", body, "application/json", &resp)
	if err != nil {
		var regErr *registeredError
		if errors.As(err, &regErr) {
			return regErr.position, ceremony.ErrAlreadyRegistered
		}
		return -1, fmt.Errorf("register request failed: %w", err)
	}
	return resp.Position, nil
}

// BeginTurn starts the turn of the participant at position.
func (c *CeremonyClient) BeginTurn(ctx context.Context, position int) (*api.ParticipantResponse, error) {
	var p api.ParticipantResponse
	path := fmt.Sprintf("/api/participants/%d/begin", position)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, "", &p); err != nil {
		return nil, fmt.Errorf("begin turn request failed: %w", err)
	}
	return &p, nil
}

// SubmitContribution uploads the artifact of the participant at position.
func (c *CeremonyClient) SubmitContribution(ctx context.Context, position int, artifact []byte) (*api.ParticipantResponse, error) {
	var p api.ParticipantResponse
	path := fmt.Sprintf("/api/participants/%d/contribution", position)
	if err := c.doJSON(ctx, http.MethodPut, path, artifact, "application/octet-stream", &p); err != nil {
		return nil, fmt.Errorf("submit contribution request failed: %w", err)
	}
	return &p, nil
}

// Transcript downloads the artifact submitted at position.
func (c *CeremonyClient) Transcript(ctx context.Context, position int) ([]byte, error) {
	path := fmt.Sprintf("/api/participants/%d/transcript", position)
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return data, nil
}

// registeredError carries the existing position of an already registered address.
type registeredError struct {
	position int
}

func (e *registeredError) Error() string {
	return fmt.Sprintf("already registered at position %d", e.position)
}

func (c *CeremonyClient) doJSON(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do sends the request and turns non-2xx responses into errors. The caller closes the body
// of a successful response.
func (c *CeremonyClient) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var errResp api.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Code == "" {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if errResp.Code == api.CodeAlreadyRegistered && errResp.Position != nil {
		return nil, &registeredError{position: *errResp.Position}
	}
	return nil, api.ErrorFromResponse(resp.StatusCode, errResp)
}

// MockCeremonyProvider implements api.CeremonyProvider for testing.
type MockCeremonyProvider struct {
	mock.Mock
}

func (m *MockCeremonyProvider) State(ctx context.Context) (*api.StateResponse, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(*api.StateResponse)
	return state, args.Error(1)
}

func (m *MockCeremonyProvider) Register(ctx context.Context, address interfaces.Address) (int, error) {
	args := m.Called(ctx, address)
	return args.Int(0), args.Error(1)
}

func (m *MockCeremonyProvider) BeginTurn(ctx context.Context, position int) (*api.ParticipantResponse, error) {
	args := m.Called(ctx, position)
	p, _ := args.Get(0).(*api.ParticipantResponse)
	return p, args.Error(1)
}

func (m *MockCeremonyProvider) SubmitContribution(ctx context.Context, position int, artifact []byte) (*api.ParticipantResponse, error) {
	args := m.Called(ctx, position, artifact)
	p, _ := args.Get(0).(*api.ParticipantResponse)
	return p, args.Error(1)
}

func (m *MockCeremonyProvider) Transcript(ctx context.Context, position int) ([]byte, error) {
	args := m.Called(ctx, position)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
