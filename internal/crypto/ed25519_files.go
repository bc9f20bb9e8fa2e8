package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadEd25519PrivateKey loads an Ed25519 private key from a file.
// Supported formats:
// - raw 64-byte private key
// - raw 32-byte seed
// - hex or base64 encoding of either form, optionally prefixed "hex:" / "base64:"
func LoadEd25519PrivateKey(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := decodeKeyBytes(raw, ed25519.PrivateKeySize)
	if err != nil {
		return nil, nil, err
	}

	switch len(data) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(data)
		pub := priv.Public().(ed25519.PublicKey)
		return priv, pub, nil
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(data)
		pub := priv.Public().(ed25519.PublicKey)
		return priv, pub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported private key length: %d", len(data))
	}
}

// LoadEd25519PublicKey loads a 32-byte Ed25519 public key from a file,
// accepting the same encodings as LoadEd25519PrivateKey.
func LoadEd25519PublicKey(path string) (ed25519.PublicKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := decodeKeyBytes(raw, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("unsupported public key length: %d", len(data))
	}
	return ed25519.PublicKey(data), nil
}

func decodeKeyBytes(raw []byte, rawSize int) ([]byte, error) {
	trim := strings.TrimSpace(string(raw))
	if trim == "" {
		return nil, fmt.Errorf("empty key file")
	}
	if rest, ok := strings.CutPrefix(trim, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	if rest, ok := strings.CutPrefix(trim, "hex:"); ok {
		return hex.DecodeString(rest)
	}

	// raw binary keys are common when the file was written by a keygen tool
	if len(raw) == rawSize || len(raw) == ed25519.SeedSize {
		return raw, nil
	}

	if out, err := hex.DecodeString(trim); err == nil {
		return out, nil
	}
	if out, err := base64.StdEncoding.DecodeString(trim); err == nil {
		return out, nil
	}
	if out, err := base64.RawURLEncoding.DecodeString(trim); err == nil {
		return out, nil
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}
