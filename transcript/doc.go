// Package transcript implements the durable ceremony record.
//
// Store keeps the roster and phase in a JSON manifest (ceremony.json) that is replaced
// atomically on every write, so each TranscriptStore call either fully lands or leaves
// the previous manifest intact. Contribution artifacts are content addressed and kept in
// an interfaces.StorageBackend: accepted ones under the transcripts namespace, rejected
// ones under rejected.
//
// Verification verdicts are recorded per position and artifact id, which makes
// ValidateAndStore safe to retry after a persistence failure further up the stack.
//
// SignedContributionVerifier is the default check: the artifact is a Contribution
// envelope signed with the participant's secp256k1 key over
// keccak256(position || previous || payload), where previous is the id of the last
// accepted contribution. The payload itself is opaque.
package transcript
