// Package registry holds the template store: the persistent map from
// template ID to template record, together with the per-template ledger of
// consumed nullifiers.
//
// Writers serialize on a single mutex. Every mutation builds a copy of the
// map, writes the whole document to the storage backend, and publishes the
// copy only after the write succeeds, so the in-memory view and the
// persisted document never diverge. Readers load the published map without
// locking and never wait on a slow write.
//
// Redeem runs the nullifier check, the caller's signing function, the
// nullifier record, and the persist step as one critical section. A POD
// is handed back only once its nullifier is durably recorded.
package registry
