// Package keys manages the per-user asymmetric keypair lifecycle.
//
// Keys are derived deterministically from a user secret with a
// memory-hard KDF, so the same secret recovers the same identity on any
// device. Only the public half ever reaches the directory, as a JWK; the
// private half lives in process memory and is wiped, not dropped, on
// ClearKeys. Rotation revokes the old record and publishes the new one in
// a single directory operation.
package keys
