// Package interfaces defines the types shared by the POD mint service
// components: typed POD entries, template records, content identifiers,
// document storage backends and the error taxonomy of the mint protocol.
//
// # Entries
//
// Entries map names to typed values (string, int, cryptographic, boolean).
// Numeric values are kept as big integers and encoded as bare JSON numbers so
// values wider than a machine word survive persistence unchanged.
//
// # Storage
//
// StorageBackend persists whole named documents. The template registry keeps
// its entire state in one document that is rewritten on every mutation.
package interfaces
