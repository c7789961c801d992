// Package vapid builds the signed JWTs that authenticate this server to
// browser push services (RFC 8292). It works from raw base64url key
// material and the standard library's P-256 primitives only.
package vapid

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrInvalidKeyFormat means the configured key material is not a valid
	// P-256 pair. This is a configuration error; retrying cannot help.
	ErrInvalidKeyFormat = errors.New("vapid: invalid key format")

	// ErrSigning wraps failures of the signing primitive itself.
	ErrSigning = errors.New("vapid: signing failed")
)

// TokenLifetime is the exp horizon for signed tokens. Push services
// reject anything over 24h; 12h leaves comfortable slack.
const TokenLifetime = 12 * time.Hour

type claims struct {
	Aud string `json:"aud"`
	Exp int64  `json:"exp"`
	Sub string `json:"sub"`
}

// Sign produces a compact ES256 JWT proving ownership of the VAPID key
// pair to the push service at audience (scheme://host of the endpoint).
// Subject is the operator contact, e.g. "mailto:admin@example.com".
func Sign(audience, subject, privateKeyB64, publicKeyB64 string) (string, error) {
	key, err := ParseKeyPair(privateKeyB64, publicKeyB64)
	if err != nil {
		return "", err
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT","alg":"ES256"}`))
	payload, err := json.Marshal(claims{
		Aud: audience,
		Exp: time.Now().Add(TokenLifetime).Unix(),
		Sub: subject,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	signingInput := header + "." + base64.RawURLEncoding.EncodeToString(payload)

	digest := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	// JWS ES256 requires the fixed-width 64-byte r||s form, not the
	// ASN.1 DER encoding ecdsa produces via crypto.Signer.
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ParseKeyPair assembles an ecdsa.PrivateKey from the base64url-encoded
// 32-byte private scalar and 65-byte uncompressed public point.
func ParseKeyPair(privateKeyB64, publicKeyB64 string) (*ecdsa.PrivateKey, error) {
	pub, err := DecodePublicKey(publicKeyB64)
	if err != nil {
		return nil, err
	}

	priv, err := decodeB64(privateKeyB64)
	if err != nil || len(priv) != 32 {
		return nil, ErrInvalidKeyFormat
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:65]),
		},
		D: new(big.Int).SetBytes(priv),
	}, nil
}

// DecodePublicKey decodes a base64url public key and checks it is a
// 65-byte uncompressed P-256 point (leading 0x04 marker).
func DecodePublicKey(publicKeyB64 string) ([]byte, error) {
	pub, err := decodeB64(publicKeyB64)
	if err != nil {
		return nil, ErrInvalidKeyFormat
	}
	if len(pub) != 65 || pub[0] != 0x04 {
		return nil, ErrInvalidKeyFormat
	}
	return pub, nil
}

// Audience derives the aud claim for a push endpoint: scheme://host
// with no path, query or trailing slash.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing push endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("push endpoint %q has no scheme or host", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
