package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
)

// DigestBytes returns the raw SHA-256 digest bytes.
func DigestBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// DigestHex returns the SHA-256 digest as lowercase hex. Audit checksums
// use this bare form.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix,
// used for internal record identifiers such as rule-set hashes.
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}

// KeyPairFromSeed derives an Ed25519 keypair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidSeedSize
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	publicKey := privateKey.Public().(ed25519.PublicKey)
	return privateKey, publicKey, nil
}

// SignEd25519 signs a digest using Ed25519.
func SignEd25519(privateKey ed25519.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, ErrInvalidDigestLen
	}
	return ed25519.Sign(privateKey, digest), nil
}

// VerifyEd25519 verifies a digest signature using Ed25519.
func VerifyEd25519(publicKey ed25519.PublicKey, digest, sig []byte) (bool, error) {
	if len(digest) != sha256.Size {
		return false, ErrInvalidDigestLen
	}
	return ed25519.Verify(publicKey, digest, sig), nil
}

// Signer binds a key id to an Ed25519 private key for report attestation.
type Signer struct {
	keyID string
	priv  ed25519.PrivateKey
}

func NewSigner(keyID string, priv ed25519.PrivateKey) *Signer {
	return &Signer{keyID: keyID, priv: priv}
}

func (s *Signer) KeyID() string { return s.keyID }

func (s *Signer) SignEd25519(digest []byte) ([]byte, error) {
	return SignEd25519(s.priv, digest)
}
