package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"sealchat/internal/domain"
)

// jwk is the subset of RFC 8037 this core publishes: an OKP key on X25519.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Use string `json:"use,omitempty"`
}

// PublicToJWK encodes an X25519 public key as a JWK document.
func PublicToJWK(pub domain.X25519Public) (string, error) {
	doc, err := json.Marshal(jwk{
		Kty: "OKP",
		Crv: "X25519",
		X:   base64.RawURLEncoding.EncodeToString(pub[:]),
		Use: "enc",
	})
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

// PublicFromJWK decodes a JWK document back into an X25519 public key.
func PublicFromJWK(doc string) (pub domain.X25519Public, err error) {
	var k jwk
	if err = json.Unmarshal([]byte(doc), &k); err != nil {
		return pub, fmt.Errorf("parse jwk: %w", err)
	}
	if k.Kty != "OKP" || k.Crv != "X25519" {
		return pub, fmt.Errorf("unsupported jwk kty=%q crv=%q", k.Kty, k.Crv)
	}
	raw, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return pub, fmt.Errorf("decode jwk x: %w", err)
	}
	if len(raw) != 32 {
		return pub, fmt.Errorf("jwk x has %d bytes, want 32", len(raw))
	}
	copy(pub[:], raw)
	return pub, nil
}
