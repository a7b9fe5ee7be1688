package transcript

import (
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedContributionVerifier(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	address := crypto.PubkeyToAddress(key.PublicKey)
	head := interfaces.ComputeID([]byte("previous contribution"))
	payload := []byte("powers of tau")

	valid, err := SignContribution(key, 3, head, payload)
	require.NoError(t, err)
	wrongPosition, err := SignContribution(key, 4, head, payload)
	require.NoError(t, err)
	wrongHead, err := SignContribution(key, 3, interfaces.ContentID{}, payload)
	require.NoError(t, err)
	wrongSigner, err := SignContribution(other, 3, head, payload)
	require.NoError(t, err)
	empty, err := SignContribution(key, 3, head, nil)
	require.NoError(t, err)

	tampered, err := ParseContribution(valid)
	require.NoError(t, err)
	tampered.Payload = []byte("powers of tau!")
	tamperedBytes, err := json.Marshal(tampered)
	require.NoError(t, err)

	tests := []struct {
		name     string
		artifact []byte
		valid    bool
		reason   string
	}{
		{name: "valid", artifact: valid, valid: true},
		{name: "not json", artifact: []byte("garbage"), reason: "malformed contribution"},
		{name: "wrong position", artifact: wrongPosition, reason: "contribution is for position 4"},
		{name: "does not extend head", artifact: wrongHead, reason: "transcript head"},
		{name: "signed by someone else", artifact: wrongSigner, reason: "not by participant"},
		{name: "empty payload", artifact: empty, reason: "empty payload"},
		{name: "tampered payload", artifact: tamperedBytes, reason: "not by participant"},
	}

	verifier := NewSignedContributionVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, err := verifier.Verify(3, address, head, tt.artifact)
			require.NoError(t, err)
			if tt.valid {
				assert.Empty(t, reason)
				return
			}
			assert.Contains(t, reason, tt.reason)
		})
	}
}

func TestSignedContributionVerifier_PayloadLimit(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	artifact, err := SignContribution(key, 0, interfaces.ContentID{}, make([]byte, 33))
	require.NoError(t, err)

	verifier := &SignedContributionVerifier{MaxPayloadSize: 32}
	reason, err := verifier.Verify(0, crypto.PubkeyToAddress(key.PublicKey), interfaces.ContentID{}, artifact)
	require.NoError(t, err)
	assert.Contains(t, reason, "payload exceeds")
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
