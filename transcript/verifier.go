package transcript

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"golang.org/x/crypto/sha3"
)

// DefaultMaxPayloadSize bounds the opaque contribution payload.
const DefaultMaxPayloadSize = 16 << 20

// Contribution is the signed envelope a participant submits. Payload is the opaque
// output of the contribution algorithm; the envelope binds it to the participant's
// roster position and to the transcript it extends.
type Contribution struct {
	Position  int                  `json:"position"`
	Previous  interfaces.ContentID `json:"previous"`
	Payload   hexutil.Bytes        `json:"payload"`
	Signature hexutil.Bytes        `json:"signature"`
}

// ContributionDigest is the keccak256 hash signed by the participant:
// keccak256(uint64(position) || previous || payload).
func ContributionDigest(position int, previous interfaces.ContentID, payload []byte) []byte {
	var pos [8]byte
	binary.BigEndian.PutUint64(pos[:], uint64(position))

	h := sha3.NewLegacyKeccak256()
	h.Write(pos[:])
	h.Write(previous[:])
	h.Write(payload)
	return h.Sum(nil)
}

// SignContribution builds the artifact a participant submits for its turn.
func SignContribution(key *ecdsa.PrivateKey, position int, previous interfaces.ContentID, payload []byte) ([]byte, error) {
	sig, err := crypto.Sign(ContributionDigest(position, previous, payload), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign contribution: %w", err)
	}

	return json.Marshal(Contribution{
		Position:  position,
		Previous:  previous,
		Payload:   payload,
		Signature: sig,
	})
}

// ParseContribution decodes an artifact envelope.
func ParseContribution(artifact []byte) (*Contribution, error) {
	var c Contribution
	if err := json.Unmarshal(artifact, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SignedContributionVerifier checks that a contribution is signed by the participant
// whose turn it is and extends the last accepted contribution.
type SignedContributionVerifier struct {
	MaxPayloadSize int
}

// NewSignedContributionVerifier returns a verifier with the default payload limit.
func NewSignedContributionVerifier() *SignedContributionVerifier {
	return &SignedContributionVerifier{MaxPayloadSize: DefaultMaxPayloadSize}
}

// Verify implements interfaces.ArtifactVerifier. It never returns an error: every
// defect of the artifact is a reason for rejection.
func (v *SignedContributionVerifier) Verify(position int, address interfaces.Address, previous interfaces.ContentID, artifact []byte) (string, error) {
	c, err := ParseContribution(artifact)
	if err != nil {
		return fmt.Sprintf("malformed contribution: %v", err), nil
	}

	if c.Position != position {
		return fmt.Sprintf("contribution is for position %d", c.Position), nil
	}
	if c.Previous != previous {
		return fmt.Sprintf("contribution extends %s, transcript head is %s", c.Previous, previous), nil
	}
	if len(c.Payload) == 0 {
		return "empty payload", nil
	}
	if v.MaxPayloadSize > 0 && len(c.Payload) > v.MaxPayloadSize {
		return fmt.Sprintf("payload exceeds %d bytes", v.MaxPayloadSize), nil
	}
	if len(c.Signature) != crypto.SignatureLength {
		return "malformed signature", nil
	}

	pub, err := crypto.SigToPub(ContributionDigest(c.Position, c.Previous, c.Payload), c.Signature)
	if err != nil {
		return "invalid signature", nil
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != address {
		return fmt.Sprintf("signed by %s, not by participant", signer.Hex()), nil
	}

	return "", nil
}
