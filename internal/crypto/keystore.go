package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	keystoreService = "deepreport"
	keystoreUser    = "token-encryption-key"
)

// LoadOrCreateKey returns the key stored in the system keychain, generating and
// storing a new one when none exists. Without a usable keychain the generated key
// only lives for this process, so tokens saved now will not decrypt after a restart.
func LoadOrCreateKey() ([]byte, error) {
	logger := zap.S().Named("crypto")

	stored, err := keyring.Get(keystoreService, keystoreUser)
	if err == nil && stored != "" {
		key, decodeErr := base64.StdEncoding.DecodeString(stored)
		if decodeErr == nil && len(key) == keySize {
			return key, nil
		}
		logger.Warnw("ignoring malformed key in keychain", "error", decodeErr)
	} else if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logger.Warnw("keychain unavailable", "error", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keystoreService, keystoreUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		logger.Warnw("failed to store key in keychain, set ENCRYPTION_KEY to keep tokens across restarts", "error", err)
	}

	return key, nil
}

// DeleteKey removes the stored key. Tokens sealed with it become unreadable.
func DeleteKey() error {
	return keyring.Delete(keystoreService, keystoreUser)
}

func IsKeyStored() bool {
	_, err := keyring.Get(keystoreService, keystoreUser)
	return err == nil
}
