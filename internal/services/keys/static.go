package keys

import (
	"context"
	"sync"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
)

// Static is a KeyService double holding a fixed keypair. It backs tests
// and local previews where no directory round trips are wanted.
type Static struct {
	mu   sync.RWMutex
	pair *domain.KeyPair
	jwk  string
}

// NewStatic wraps a ready-made pair.
func NewStatic(pair domain.KeyPair) *Static {
	doc, _ := crypto.PublicToJWK(pair.Public)
	p := pair
	return &Static{pair: &p, jwk: doc}
}

func (s *Static) HasKeys() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair != nil
}

func (s *Static) GetKeys() *domain.KeyPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func (s *Static) DeriveKeys(context.Context, domain.UserID, string) (domain.KeyPair, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.pair, s.jwk, nil
}

func (s *Static) InitializeKeys(ctx context.Context, user domain.UserID, secret string) (domain.KeyPair, string, error) {
	return s.DeriveKeys(ctx, user, secret)
}

func (s *Static) NeedsMigration(context.Context, domain.UserID) (bool, error) { return false, nil }

func (s *Static) RotateKeys(ctx context.Context, user domain.UserID, secret string) (domain.KeyPair, string, error) {
	return s.DeriveKeys(ctx, user, secret)
}

func (s *Static) ClearKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
}

var _ domain.KeyService = (*Static)(nil)
