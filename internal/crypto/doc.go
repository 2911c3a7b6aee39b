// Package crypto exposes the primitives used by the messaging core.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     DeriveX25519, DH)
//   - Deterministic keypair derivation from a user secret via Argon2id
//   - Authenticated message sealing with ChaCha20-Poly1305 (Seal, Open)
//   - JWK (OKP/X25519) encoding of public keys
//   - Short public-key fingerprints for display
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them when practical to reduce lifetime in memory.
package crypto
