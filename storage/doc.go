// Package storage provides content-addressed artifact storage with pluggable backends.
//
// Contribution artifacts are identified by the SHA-256 hash of their bytes and kept in
// one of two namespaces: accepted transcripts and rejected submissions kept for audit.
//
//   - File system storage, the default under the ceremony store path
//   - S3-compatible storage for publishing the transcript
//   - IPFS storage through the node's mutable file system
//   - Vault KV v2 storage with token or TLS client certificate authentication
//
// # Storage URI Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Examples:
//
//   - file:///var/lib/setup-mpc/artifacts
//   - s3://ACCESS:SECRET@bucket-name/prefix/?region=us-west-2
//   - ipfs://localhost:5001/setup-mpc?timeout=30s
//   - vault://TOKEN@vault.example.com:8200/secret/ceremony
//
// # Multi-Backend Storage
//
// MultiStorageBackend aggregates multiple backends for redundancy: Store writes to every
// available backend concurrently and succeeds if any of them accepted the content, Fetch
// returns the first hit.
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend(locations)
package storage
