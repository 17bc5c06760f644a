// Package identity loads or creates the Ed25519 keypair a node uses to
// derive its NodeId. The key is persisted to disk so that a node's identity,
// and everything keyed off it (credit balance, septal gate history, election
// role), survives a process restart.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// CheckKeyFilePermissions verifies that a key file is not readable by group
// or others.
func CheckKeyFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil // Windows file permissions work differently
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat key file %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadOrCreateIdentity loads an existing Ed25519 private key from path, or
// generates and persists a new one if the file does not yet exist. The file
// holds the 32-byte seed (ed25519.SeedSize), not the expanded 64-byte key,
// since the seed is the minimal representation the key can be reconstructed
// from via ed25519.NewKeyFromSeed.
func LoadOrCreateIdentity(path string) (ed25519.PrivateKey, error) {
	if seed, err := os.ReadFile(path); err == nil {
		if err := CheckKeyFilePermissions(path); err != nil {
			return nil, err
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key file %s holds %d bytes, want %d-byte seed", path, len(seed), ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create key directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, priv.Seed(), 0600); err != nil {
		return nil, fmt.Errorf("failed to save key to %s: %w", path, err)
	}

	return priv, nil
}
