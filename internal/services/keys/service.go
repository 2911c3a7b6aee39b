package keys

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sealchat/internal/cache"
	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/util/memzero"
	"sealchat/internal/validate"
)

// ErrSecretMismatch is returned when a derived public key does not match
// the record already published for the user, meaning the supplied secret
// is not the one the identity was created with.
var ErrSecretMismatch = errors.New("secret does not reproduce the published key")

// peerCacheTTL bounds how long a peer's public key is reused before the
// directory is consulted again, so a rotation is picked up promptly.
const peerCacheTTL = 5 * time.Minute

// Service owns the local keypair lifecycle: deterministic derivation from
// a user secret, publication of the public half to the directory, legacy
// scheme migration, and wiping on lock or sign-out.
//
// The in-memory private key is the single source of truth for "can this
// client decrypt right now"; after ClearKeys every consumer sees it gone.
type Service struct {
	directory domain.KeyDirectory
	now       func() time.Time

	mu      sync.RWMutex
	current *domain.KeyPair

	peers *cache.TTL[domain.UserID, domain.X25519Public]
}

// Option configures the service.
type Option func(*Service)

// WithClock substitutes the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a key service publishing to the given directory.
func New(directory domain.KeyDirectory, opts ...Option) *Service {
	s := &Service{
		directory: directory,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.peers = cache.New[domain.UserID, domain.X25519Public](peerCacheTTL, cache.WithClock[domain.UserID, domain.X25519Public](s.now))
	return s
}

// HasKeys reports whether a usable private key is currently in memory.
func (s *Service) HasKeys() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// GetKeys returns the current in-memory keys without side effects, or nil
// when locked. The returned pointer aliases the service's copy: after
// ClearKeys the bytes it points at are zero.
func (s *Service) GetKeys() *domain.KeyPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// DeriveKeys re-derives the keypair from the user's secret, checks it
// against the published record when one exists, and unlocks the client.
// Re-authenticating on a new device with the same secret recovers the
// same identity.
func (s *Service) DeriveKeys(ctx context.Context, user domain.UserID, secret string) (domain.KeyPair, string, error) {
	if err := validate.Secret(secret); err != nil {
		return domain.KeyPair{}, "", err
	}
	pair, err := crypto.DeriveKeyPair(user, secret)
	if err != nil {
		return domain.KeyPair{}, "", fmt.Errorf("derive keys: %w", err)
	}
	jwkDoc, err := crypto.PublicToJWK(pair.Public)
	if err != nil {
		return domain.KeyPair{}, "", err
	}

	rec, found, err := s.directory.ActiveKey(ctx, user)
	if err != nil {
		return domain.KeyPair{}, "", fmt.Errorf("%w: fetch key record: %v", domain.ErrTransport, err)
	}
	if found && rec.Scheme == domain.KeySchemeX25519 && rec.PublicJWK != jwkDoc {
		return domain.KeyPair{}, "", ErrSecretMismatch
	}

	s.install(pair)
	return pair, jwkDoc, nil
}

// InitializeKeys performs first-time key creation and publishes the public
// half. It fails loudly when a live current-scheme record already exists;
// a legacy record (no server-stored public key) is the migration case and
// is replaced atomically with the new one.
//
// Publication is confirm-or-nothing: on any failure no record is left
// behind and the client stays locked.
func (s *Service) InitializeKeys(ctx context.Context, user domain.UserID, secret string) (domain.KeyPair, string, error) {
	if err := validate.Secret(secret); err != nil {
		return domain.KeyPair{}, "", err
	}

	rec, found, err := s.directory.ActiveKey(ctx, user)
	if err != nil {
		return domain.KeyPair{}, "", fmt.Errorf("%w: fetch key record: %v", domain.ErrTransport, err)
	}
	migration := found && legacyRecord(rec)
	if found && !migration {
		return domain.KeyPair{}, "", domain.ErrKeyRecordExists
	}

	pair, err := crypto.DeriveKeyPair(user, secret)
	if err != nil {
		return domain.KeyPair{}, "", fmt.Errorf("derive keys: %w", err)
	}
	jwkDoc, err := crypto.PublicToJWK(pair.Public)
	if err != nil {
		return domain.KeyPair{}, "", err
	}

	newRec := domain.KeyRecord{
		UserID:    user,
		PublicJWK: jwkDoc,
		Scheme:    domain.KeySchemeX25519,
		CreatedAt: s.now(),
	}
	if migration {
		err = s.directory.ReplaceKey(ctx, newRec)
	} else {
		err = s.directory.PublishKey(ctx, newRec)
	}
	if err != nil {
		// Key publication failures are fatal to the flow; an inconsistent
		// record would silently break confidentiality for peers.
		return domain.KeyPair{}, "", fmt.Errorf("publish key record: %w", err)
	}

	s.install(pair)
	return pair, jwkDoc, nil
}

// NeedsMigration reports whether the user's stored record uses a
// deprecated scheme requiring a one-time re-key. A missing record is not
// a migration case; it is first-time initialization.
func (s *Service) NeedsMigration(ctx context.Context, user domain.UserID) (bool, error) {
	rec, found, err := s.directory.ActiveKey(ctx, user)
	if err != nil {
		return false, fmt.Errorf("%w: fetch key record: %v", domain.ErrTransport, err)
	}
	return found && legacyRecord(rec), nil
}

// RotateKeys derives a fresh pair from the (possibly changed) secret and
// replaces the published record. Revoking the old record and publishing
// the new one are one atomic directory operation, so no instant exists
// where a peer can pick the revoked key over the current one.
func (s *Service) RotateKeys(ctx context.Context, user domain.UserID, secret string) (domain.KeyPair, string, error) {
	if err := validate.Secret(secret); err != nil {
		return domain.KeyPair{}, "", err
	}
	pair, err := crypto.DeriveKeyPair(user, secret)
	if err != nil {
		return domain.KeyPair{}, "", fmt.Errorf("derive keys: %w", err)
	}
	jwkDoc, err := crypto.PublicToJWK(pair.Public)
	if err != nil {
		return domain.KeyPair{}, "", err
	}

	err = s.directory.ReplaceKey(ctx, domain.KeyRecord{
		UserID:    user,
		PublicJWK: jwkDoc,
		Scheme:    domain.KeySchemeX25519,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.KeyPair{}, "", fmt.Errorf("rotate key record: %w", err)
	}

	s.install(pair)
	s.peers.Delete(user)
	return pair, jwkDoc, nil
}

// ClearKeys synchronously wipes the private key bytes and locks the
// client. Called on sign-out, session expiry and explicit lock.
func (s *Service) ClearKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		memzero.Zero(s.current.Private[:])
		memzero.Zero(s.current.Public[:])
		s.current = nil
	}
	s.peers.Purge()
}

// PeerPublicKey resolves a peer's current public key through a short TTL
// cache so conversation rendering does not hammer the directory.
func (s *Service) PeerPublicKey(ctx context.Context, peer domain.UserID) (domain.X25519Public, error) {
	if pub, ok := s.peers.Get(peer); ok {
		return pub, nil
	}
	rec, found, err := s.directory.ActiveKey(ctx, peer)
	if err != nil {
		return domain.X25519Public{}, fmt.Errorf("%w: fetch peer key: %v", domain.ErrTransport, err)
	}
	if !found || rec.PublicJWK == "" {
		return domain.X25519Public{}, fmt.Errorf("peer %s: %w", peer, domain.ErrNotFound)
	}
	pub, err := crypto.PublicFromJWK(rec.PublicJWK)
	if err != nil {
		return domain.X25519Public{}, fmt.Errorf("peer %s key record: %w", peer, err)
	}
	s.peers.Set(peer, pub)
	return pub, nil
}

// InvalidatePeer drops a cached peer key, forcing a directory round trip.
// Called when a decrypt failure suggests the peer rotated.
func (s *Service) InvalidatePeer(peer domain.UserID) {
	s.peers.Delete(peer)
}

func (s *Service) install(pair domain.KeyPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		memzero.Zero(s.current.Private[:])
	}
	p := pair
	s.current = &p
}

func legacyRecord(rec domain.KeyRecord) bool {
	return rec.Scheme == domain.KeySchemeLegacy || rec.PublicJWK == ""
}

// Compile-time assertion that Service implements domain.KeyService.
var _ domain.KeyService = (*Service)(nil)
