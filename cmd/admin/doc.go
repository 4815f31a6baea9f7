// Package main (cmd/admin) is the command-line admin client for the POD mint
// service.
//
// Commands:
//
//	list                 - List mintable templates
//	add                  - Register a template from a simplified entries JSON file
//	remove               - Remove a template
//	content              - Print the entries of a template
//	link                 - Print the wallet mint link of a template
//	generate-signer-key  - Generate a signer key seed and print its public key
//	split-signer-key     - Split a signer key seed into Shamir shares
//	hash-password        - Print a bcrypt hash for the credentials file
//
// Server commands read the service URL and admin credentials from
// --server-addr, --admin-user and --admin-password (or the POD_MINT_SERVER,
// POD_MINT_ADMIN_USER and POD_MINT_ADMIN_PASSWORD environment variables).
package main
