package crypto_test

import (
	"bytes"
	"testing"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
)

const testUser = domain.UserID("5f1c6a1e-8f0a-4f5e-9c55-0f6d8f3b2a11")

func TestDeriveKeyPairDeterministic(t *testing.T) {
	a, err := crypto.DeriveKeyPair(testUser, "correct horse battery staple 1!")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	b, err := crypto.DeriveKeyPair(testUser, "correct horse battery staple 1!")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	if a.Public != b.Public || a.Private != b.Private {
		t.Fatal("same secret must reproduce the same key pair")
	}

	c, err := crypto.DeriveKeyPair(testUser, "a different secret entirely 2@")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	if a.Public == c.Public {
		t.Fatal("different secrets must not share a public key")
	}

	d, err := crypto.DeriveKeyPair(domain.UserID("00000000-0000-4000-8000-000000000000"), "correct horse battery staple 1!")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	if a.Public == d.Public {
		t.Fatal("salt must bind the pair to the user")
	}
}

func TestSharedSecretSymmetry(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	dhA, err := crypto.DH(aPriv, bPub)
	if err != nil {
		t.Fatalf("DH: %v", err)
	}
	dhB, err := crypto.DH(bPriv, aPub)
	if err != nil {
		t.Fatalf("DH: %v", err)
	}
	if dhA != dhB {
		t.Fatal("raw DH outputs differ")
	}

	sA, err := crypto.ExpandSharedSecret(dhA, aPub, bPub)
	if err != nil {
		t.Fatalf("ExpandSharedSecret: %v", err)
	}
	sB, err := crypto.ExpandSharedSecret(dhB, bPub, aPub)
	if err != nil {
		t.Fatalf("ExpandSharedSecret: %v", err)
	}
	if sA != sB {
		t.Fatal("expanded secrets differ across argument order")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	var secret domain.SharedSecret
	copy(secret[:], bytes.Repeat([]byte{7}, 32))

	for _, plaintext := range [][]byte{
		[]byte(""),
		[]byte("hi"),
		bytes.Repeat([]byte("interview at 3pm "), 100),
	} {
		ct, err := crypto.Seal(secret, plaintext)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		pt, err := crypto.Open(secret, ct)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
		}
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	var secret domain.SharedSecret
	copy(secret[:], bytes.Repeat([]byte{9}, 32))

	ct, err := crypto.Seal(secret, []byte("offer accepted"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Flipping any single bit must fail authentication.
	for i := range ct {
		mutated := append([]byte(nil), ct...)
		mutated[i] ^= 0x01
		if _, err := crypto.Open(secret, mutated); err != domain.ErrDecryptionFailed {
			t.Fatalf("byte %d: tampered ciphertext opened, err=%v", i, err)
		}
	}

	// Wrong key must fail too.
	var other domain.SharedSecret
	other[0] = 1
	if _, err := crypto.Open(other, ct); err != domain.ErrDecryptionFailed {
		t.Fatalf("wrong key: err=%v", err)
	}

	// Truncation.
	if _, err := crypto.Open(secret, ct[:10]); err != domain.ErrDecryptionFailed {
		t.Fatalf("truncated ciphertext: err=%v", err)
	}
}

func TestJWKRoundTrip(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	doc, err := crypto.PublicToJWK(pub)
	if err != nil {
		t.Fatalf("PublicToJWK: %v", err)
	}
	back, err := crypto.PublicFromJWK(doc)
	if err != nil {
		t.Fatalf("PublicFromJWK: %v", err)
	}
	if back != pub {
		t.Fatal("jwk round trip changed the key")
	}

	if _, err := crypto.PublicFromJWK(`{"kty":"EC","crv":"P-256","x":"AA"}`); err == nil {
		t.Fatal("non-OKP jwk accepted")
	}
}
