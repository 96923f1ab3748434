// Package auth issues and verifies PASETO v4.local access tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyFileName is the key file kept next to the database.
const KeyFileName = "auth.key"

// LoadOrGenerateKey returns the hex-encoded token key stored in dir/auth.key, creating the file
// with a fresh random key when it does not exist.
func LoadOrGenerateKey(dir string) (string, error) {
	keyPath := filepath.Join(dir, KeyFileName)

	//#nosec G304 -- key path is derived from the configured database directory
	if raw, err := os.ReadFile(keyPath); err == nil {
		keyHex := strings.TrimSpace(string(raw))
		if _, err := decodeKey(keyHex); err != nil {
			return "", fmt.Errorf("invalid key in %s: %w", keyPath, err)
		}
		return keyHex, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read auth key: %w", err)
	}

	key := make([]byte, keyBytesSize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate auth key: %w", err)
	}
	keyHex := hex.EncodeToString(key)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(keyHex), 0o600); err != nil {
		return "", fmt.Errorf("save auth key: %w", err)
	}
	return keyHex, nil
}

func decodeKey(keyHex string) ([]byte, error) {
	if len(keyHex) != keyHexSize {
		return nil, fmt.Errorf("key must be exactly %d hex characters (%d bytes), got %d", keyHexSize, keyBytesSize, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}
	return key, nil
}
