// Package interfaces defines the contracts and data model shared by the ceremony
// coordinator, the transcript store and the network layer.
//
// # Ceremony Model
//
// A ceremony has a fixed capacity, a scheduled start and a Phase that only moves forward:
//
//	WAITING --scheduled start--> RUNNING --all participants terminal--> COMPLETE
//
// Each Participant occupies a roster position assigned on registration and moves through
//
//	WAITING --turn begins--> RUNNING --valid contribution--> COMPLETE
//	                                 --invalid contribution--> INVALID
//
// # Transcript Interfaces
//
// TranscriptStore: durable, atomic-per-call record of the ceremony roster and phase, plus
// validation and persistence of contribution artifacts.
//
// ArtifactVerifier: pluggable contribution check used by transcript stores.
//
// # Storage Interfaces
//
// StorageBackend: content-addressed artifact storage across multiple backend types
// (file, S3, IPFS, Vault).
//
// StorageBackendFactory: creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Types
//
//   - ContentID: 32-byte SHA-256 hash for content addressing
//   - Address: participant Ethereum account
//   - CeremonyState, Participant, Transition, Validation
package interfaces
