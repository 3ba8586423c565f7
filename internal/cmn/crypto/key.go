package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/milalabs/licsync/internal/cmn/fileutil"
)

// EnvKey is the environment variable holding the passphrase.
const EnvKey = "LICSYNC_ENCRYPTION_KEY"

const (
	keyFileName    = "encryption_key"
	keyDirName     = "auth"
	keyFilePerms   = os.FileMode(0600)
	keyDirPerms    = os.FileMode(0700)
	keyRandomBytes = 32
)

// ResolveKey returns an encryption passphrase using the following priority:
// 1. LICSYNC_ENCRYPTION_KEY environment variable
// 2. Key file at <dataDir>/auth/encryption_key
// 3. Auto-generates and persists a new random key
func ResolveKey(dataDir string) (string, error) {
	if key := os.Getenv(EnvKey); key != "" {
		return key, nil
	}

	keyDir := filepath.Join(dataDir, keyDirName)
	keyPath := filepath.Join(keyDir, keyFileName)

	data, err := os.ReadFile(keyPath) //nolint:gosec // path is constructed from trusted dataDir
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}

	rawKey := make([]byte, keyRandomBytes)
	if _, err := rand.Read(rawKey); err != nil {
		return "", fmt.Errorf("crypto: failed to generate random key: %w", err)
	}
	key := base64.StdEncoding.EncodeToString(rawKey)

	if err := os.MkdirAll(keyDir, keyDirPerms); err != nil {
		return "", fmt.Errorf("crypto: failed to create key directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(keyPath, []byte(key), keyFilePerms); err != nil {
		return "", fmt.Errorf("crypto: failed to persist encryption key: %w", err)
	}

	return key, nil
}
