package convo

import (
	"crypto/rand"
	"fmt"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/util/memzero"
)

// Engine performs pairwise secret derivation and message sealing.
//
// Direct messages are sealed once under the pairwise secret. Group
// messages use envelope encryption: a fresh message key seals the body,
// and that key is sealed separately under each member's pairwise secret,
// so no single group secret ever exists and membership changes degrade
// safely.
type Engine struct {
	keys domain.KeyService
}

// New returns an engine reading key material from svc.
func New(svc domain.KeyService) *Engine {
	return &Engine{keys: svc}
}

// Envelope is the encrypted form of one group message: the sealed body
// plus one sealed copy of the message key per recipient.
type Envelope struct {
	Ciphertext []byte
	Keys       map[domain.UserID][]byte
}

// DeriveSharedSecret computes the pairwise secret with a peer. Symmetric:
// (our priv, their pub) and (their priv, our pub) agree, so each side
// computes it locally and nothing secret crosses the wire.
func (e *Engine) DeriveSharedSecret(peer domain.X25519Public) (domain.SharedSecret, error) {
	pair := e.keys.GetKeys()
	if pair == nil {
		return domain.SharedSecret{}, domain.ErrKeyUnavailable
	}
	dh, err := crypto.DH(pair.Private, peer)
	if err != nil {
		return domain.SharedSecret{}, fmt.Errorf("ecdh: %w", err)
	}
	secret, err := crypto.ExpandSharedSecret(dh, pair.Public, peer)
	memzero.Zero(dh[:])
	if err != nil {
		return domain.SharedSecret{}, fmt.Errorf("expand shared secret: %w", err)
	}
	return secret, nil
}

// Encrypt seals plaintext for a single peer.
func (e *Engine) Encrypt(peer domain.X25519Public, plaintext []byte) ([]byte, error) {
	secret, err := e.DeriveSharedSecret(peer)
	if err != nil {
		return nil, err
	}
	ct, err := crypto.Seal(secret, plaintext)
	memzero.Zero(secret[:])
	return ct, err
}

// Decrypt opens a ciphertext from a single peer. Failure comes back as
// domain.ErrDecryptionFailed so one malformed message degrades to a
// placeholder instead of breaking the conversation render.
func (e *Engine) Decrypt(peer domain.X25519Public, ciphertext []byte) ([]byte, error) {
	secret, err := e.DeriveSharedSecret(peer)
	if err != nil {
		return nil, err
	}
	pt, err := crypto.Open(secret, ciphertext)
	memzero.Zero(secret[:])
	return pt, err
}

// EncryptEnvelope seals plaintext for every recipient. Fan-out cost is
// O(recipients) key seals plus one body seal.
func (e *Engine) EncryptEnvelope(recipients map[domain.UserID]domain.X25519Public, plaintext []byte) (Envelope, error) {
	if len(recipients) == 0 {
		return Envelope{}, fmt.Errorf("envelope has no recipients")
	}
	if e.keys.GetKeys() == nil {
		return Envelope{}, domain.ErrKeyUnavailable
	}

	var messageKey domain.SharedSecret
	if _, err := rand.Read(messageKey[:]); err != nil {
		return Envelope{}, err
	}
	defer memzero.Zero(messageKey[:])

	body, err := crypto.Seal(messageKey, plaintext)
	if err != nil {
		return Envelope{}, err
	}

	sealedKeys := make(map[domain.UserID][]byte, len(recipients))
	for user, pub := range recipients {
		secret, err := e.DeriveSharedSecret(pub)
		if err != nil {
			return Envelope{}, fmt.Errorf("recipient %s: %w", user, err)
		}
		sealed, err := crypto.Seal(secret, messageKey[:])
		memzero.Zero(secret[:])
		if err != nil {
			return Envelope{}, fmt.Errorf("recipient %s: %w", user, err)
		}
		sealedKeys[user] = sealed
	}
	return Envelope{Ciphertext: body, Keys: sealedKeys}, nil
}

// OpenEnvelope recovers the plaintext of a group message using our sealed
// copy of the message key. sender is the peer whose pairwise secret
// sealed it.
func (e *Engine) OpenEnvelope(sender domain.X25519Public, self domain.UserID, env Envelope) ([]byte, error) {
	sealed, ok := env.Keys[self]
	if !ok {
		return nil, domain.ErrDecryptionFailed
	}
	secret, err := e.DeriveSharedSecret(sender)
	if err != nil {
		return nil, err
	}
	keyBytes, err := crypto.Open(secret, sealed)
	memzero.Zero(secret[:])
	if err != nil {
		return nil, err
	}
	var messageKey domain.SharedSecret
	copy(messageKey[:], keyBytes)
	memzero.Zero(keyBytes)

	pt, err := crypto.Open(messageKey, env.Ciphertext)
	memzero.Zero(messageKey[:])
	return pt, err
}
