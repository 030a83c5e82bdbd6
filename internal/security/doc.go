// Package security implements the security gate (rail's §4.7 component):
// SSH identity resolution, optional commit-signing key validation and
// signature verification, remote URL classification, and protected-branch
// diversion. The projector and sync engine consult it before any push or any
// commit construction that might land on a protected branch.
package security
