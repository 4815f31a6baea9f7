// Package main (cmd/circuit-setup) generates the Groth16 keys of the
// ownership circuit used for circuit identity proofs.
//
// The setup command writes ownership.pk and ownership.vk; the server loads
// the verifying key with --circuit-vk. The prove command produces a proof
// for a given identity secret and template, for manual testing against a
// running server.
//
// The setup is a single-party setup. Whoever runs it can forge proofs, so
// the keys must be generated by the operator of the server.
package main
