// Package local stores the client-side profile on disk, encrypted
// under the account secret. The private key never touches disk in the
// clear; forgetting the secret means re-deriving, not recovery.
package local

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sealchat/internal/domain"
)

const profileFile = "profile.enc"

// Profile is the locally persisted account state.
type Profile struct {
	UserID      domain.UserID      `json:"user_id"`
	KeyPair     domain.KeyPair     `json:"key_pair"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Keystore reads and writes the encrypted profile under a directory.
type Keystore struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Keystore { return &Keystore{dir: dir} }

// Exists reports whether a profile has been saved.
func (s *Keystore) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, profileFile))
	return err == nil
}

// Save seals the profile under secret and writes it with owner-only
// permissions.
func (s *Keystore) Save(secret string, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	N, r, pp := scryptParamsDefault()
	sealed, err := encrypt(secret, raw, N, r, pp)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, profileFile), sealed, 0o600)
}

// Load opens the profile with secret. A wrong secret and a corrupted
// file are indistinguishable by construction.
func (s *Keystore) Load(secret string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(filepath.Join(s.dir, profileFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Profile{}, domain.ErrNotFound
		}
		return Profile{}, err
	}
	raw, err := decrypt(secret, sealed)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Remove deletes the stored profile. Used on sign-out.
func (s *Keystore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, profileFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
