package local_test

import (
	"errors"
	"testing"
	"time"

	"sealchat/internal/domain"
	"sealchat/internal/store/local"
)

func TestProfile_SaveLoad_OK(t *testing.T) {
	home := t.TempDir()
	secret := "Correct-Horse-Battery-9!"

	ks := local.New(home)

	p := local.Profile{
		UserID: "aaaaaaaa-1111-4111-8111-111111111111",
		KeyPair: domain.KeyPair{
			Public:  domain.X25519Public{1},
			Private: domain.X25519Private{2},
		},
		Fingerprint: "ab12cd34ef",
		CreatedAt:   time.Now().UTC(),
	}

	if err := ks.Save(secret, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if !ks.Exists() {
		t.Fatal("Exists() = false after save")
	}

	got, err := ks.Load(secret)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if got.UserID != p.UserID || got.KeyPair != p.KeyPair || got.Fingerprint != p.Fingerprint {
		t.Fatalf("mismatch after load: %+v", got)
	}
}

func TestProfile_WrongSecret_Fails(t *testing.T) {
	home := t.TempDir()
	ks := local.New(home)

	p := local.Profile{UserID: "aaaaaaaa-1111-4111-8111-111111111111"}
	if err := ks.Save("correct-secret-here-9!A", p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if _, err := ks.Load("wrong-secret-here-9!A"); err == nil {
		t.Fatal("expected error with wrong secret")
	}
}

func TestProfile_Missing_NotFound(t *testing.T) {
	ks := local.New(t.TempDir())
	if ks.Exists() {
		t.Fatal("Exists() = true on empty dir")
	}
	if _, err := ks.Load("whatever"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Load on empty dir = %v, want ErrNotFound", err)
	}
}

func TestProfile_Remove_Idempotent(t *testing.T) {
	home := t.TempDir()
	ks := local.New(home)

	if err := ks.Save("some-secret-here-9!Aa", local.Profile{}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if err := ks.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ks.Exists() {
		t.Fatal("profile survived Remove")
	}
	if err := ks.Remove(); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
