package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const keySize = 32

// Cipher seals secrets at rest with AES-256-GCM. Output is base64(nonce || ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a cipher from a configured key. An empty key falls back to the
// system keychain, creating and storing a random key on first use.
//
// A configured key may be base64 of 32 bytes; anything else is hashed with SHA-256.
func NewCipher(configured string) (*Cipher, error) {
	var key []byte
	if configured != "" {
		key = deriveKey(configured)
	} else {
		stored, err := LoadOrCreateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize encryption from keystore: %w", err)
		}
		key = stored
	}
	return newCipher(key)
}

func deriveKey(configured string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(configured)
	if err == nil && len(decoded) == keySize {
		return decoded
	}
	if err == nil {
		hash := sha256.Sum256(decoded)
		return hash[:]
	}
	hash := sha256.Sum256([]byte(configured))
	return hash[:]
}

func newCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: gcm}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealJSON marshals v and encrypts the result. Used for OAuth tokens.
func (c *Cipher) SealJSON(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret: %w", err)
	}
	return c.Encrypt(raw)
}

// OpenJSON decrypts encoded and unmarshals it into v.
func (c *Cipher) OpenJSON(encoded string, v interface{}) error {
	raw, err := c.Decrypt(encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal secret: %w", err)
	}
	return nil
}
