// Package storage persists the template store document across pluggable backends.
//
// Every backend stores whole named documents: Store replaces the document and
// must never leave a partially written version visible to Fetch.
//
//   - File system storage, written via temp file and rename
//   - S3-compatible object storage
//   - IPFS, using the node's mutable file system
//   - Vault KV v2, token authenticated
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/pod-mint/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://127.0.0.1:5001/pod-mint?timeout=30s
//   - vault://vault.example.com:8200/secret/pod-mint
//
// # Primary and Mirrors
//
// The service runs with one primary backend and optional mirrors:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend(
//	    "file:///var/lib/pod-mint/",
//	    []interfaces.StorageBackendLocation{"s3://pods-backup/mint/?region=eu-west-1"},
//	)
//
// A write succeeds once the primary has it. Mirrors are written best-effort
// and serve reads only when the primary has nothing.
package storage
