// Package kms manages the EdDSA keys used to sign PODs.
//
// The server default key is derived from a seed supplied directly or
// reconstructed from Shamir shares held by several operators. Templates may
// override it with their own seed; overrides are parsed once and cached.
package kms
