// Package convo is the conversation crypto engine: pairwise shared-secret
// derivation (X25519 + HKDF), authenticated message sealing, and
// envelope-per-recipient encryption for groups.
package convo
