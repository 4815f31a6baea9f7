// Package main (cmd/httpserver) runs the POD mint service.
//
// The server loads its template store from the primary storage backend
// (a local directory by default) and mirrors every write to the optional
// --store-mirror backends. The default signer key is given either directly or
// as Shamir shares that are combined at startup.
//
// Settings may also come from a JSON config file passed with --config:
//
//	{
//	  "hostname": "0.0.0.0",
//	  "port": 8080,
//	  "mintUrl": "https://mint.example.com/api/mintPOD",
//	  "zupassUrl": "https://zupass.org",
//	  "defaultPrivateKey": "<hex seed>"
//	}
//
// Flags given explicitly take precedence over the file.
//
// Signature proofs are always accepted. Email credential proofs need
// --credential-issuer-key and circuit proofs need --circuit-vk (see
// cmd/circuit-setup). Without them those proof kinds are rejected.
package main
