package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"sealchat/internal/domain"
)

// Ciphertext framing: one version byte, then the nonce, then the AEAD
// output. The version byte is authenticated as associated data so a
// downgrade flips the tag.
const (
	cipherVersion = 2

	versionBytes = 1
	nonceBytes   = chacha20poly1305.NonceSize
	overhead     = versionBytes + nonceBytes + chacha20poly1305.Overhead
)

// Seal encrypts plaintext under the shared secret with a random nonce.
func Seal(secret domain.SharedSecret, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(secret.Slice())
	if err != nil {
		return nil, err
	}
	out := make([]byte, versionBytes+nonceBytes, versionBytes+nonceBytes+len(plaintext)+chacha20poly1305.Overhead)
	out[0] = cipherVersion
	if _, err := rand.Read(out[versionBytes : versionBytes+nonceBytes]); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[versionBytes:versionBytes+nonceBytes], plaintext, out[:versionBytes]), nil
}

// Open decrypts a sealed ciphertext. Any tampering, truncation, scheme
// mismatch or wrong key yields domain.ErrDecryptionFailed; callers never
// see a partial plaintext.
func Open(secret domain.SharedSecret, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < overhead || ciphertext[0] != cipherVersion {
		return nil, domain.ErrDecryptionFailed
	}
	aead, err := chacha20poly1305.New(secret.Slice())
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, ciphertext[versionBytes:versionBytes+nonceBytes], ciphertext[versionBytes+nonceBytes:], ciphertext[:versionBytes])
	if err != nil {
		return nil, domain.ErrDecryptionFailed
	}
	return pt, nil
}
