package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"sealchat/internal/domain"
	"sealchat/internal/util/memzero"
)

// Argon2id parameters. Intentionally slow and memory-hard; derivation is a
// suspension point, never run on a hot path.
const (
	argonTime    = 3
	argonMemory  = 1 << 16 // 64 MiB
	argonThreads = 2
)

// DeriveKeyPair deterministically derives a user's X25519 pair from a
// secret. The salt is bound to the user ID so two users with the same
// secret do not share keys, and re-deriving with the same secret always
// reproduces the same public key.
func DeriveKeyPair(user domain.UserID, secret string) (domain.KeyPair, error) {
	salt := deriveSalt(user)
	seedBytes := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, 32)
	defer memzero.Zero(seedBytes)

	var seed [32]byte
	copy(seed[:], seedBytes)
	priv, pub, err := DeriveX25519(seed)
	memzero.Zero(seed[:])
	if err != nil {
		return domain.KeyPair{}, err
	}
	return domain.KeyPair{Public: pub, Private: priv}, nil
}

// ExpandSharedSecret turns a raw ECDH output into a uniformly distributed
// AEAD key via labelled HKDF, mixing in both public keys sorted so either
// side of the exchange computes the same value.
func ExpandSharedSecret(dh [32]byte, a, b domain.X25519Public) (domain.SharedSecret, error) {
	lo, hi := a, b
	if lesser(b, a) {
		lo, hi = b, a
	}
	salt := make([]byte, 0, 64)
	salt = append(salt, lo[:]...)
	salt = append(salt, hi[:]...)

	r := hkdf.New(sha256.New, dh[:], salt, []byte("sealchat|pairwise|v2"))
	var out domain.SharedSecret
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return domain.SharedSecret{}, err
	}
	return out, nil
}

func deriveSalt(user domain.UserID) []byte {
	sum := sha256.Sum256([]byte("sealchat|keys|v2|" + string(user)))
	return sum[:16]
}

func lesser(a, b domain.X25519Public) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
