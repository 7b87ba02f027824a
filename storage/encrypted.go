package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/CreativeUnicorns/leafprefs"
)

const (
	// KeyLength is the required AES-256 key length in bytes.
	KeyLength = 32
	// EnvEncryptionKey is the environment variable holding the encryption key.
	EnvEncryptionKey = "LEAFPREFS_ENCRYPTION_KEY"
)

var (
	// ErrInvalidKeyLength is returned when the encryption key is not 32 bytes long.
	ErrInvalidKeyLength = errors.New("encryption key must be 32 bytes for AES-256")
	// ErrKeyNotFound is returned when the encryption key environment variable is not set.
	ErrKeyNotFound = errors.New("encryption key not found in environment variable " + EnvEncryptionKey)
	// ErrEncryptionFailed is returned when encryption fails.
	ErrEncryptionFailed = errors.New("encryption operation failed")
	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption operation failed")
)

// Cipher seals tokens with AES-256-GCM. The nonce is prepended to the
// ciphertext and the result is base64 encoded.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", ErrEncryptionFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", ErrEncryptionFailed, err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromEnv reads the key from LEAFPREFS_ENCRYPTION_KEY.
func NewCipherFromEnv() (*Cipher, error) {
	key := os.Getenv(EnvEncryptionKey)
	if key == "" {
		return nil, ErrKeyNotFound
	}
	return NewCipher([]byte(key))
}

// Encrypt seals plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryptionFailed, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecryptionFailed, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// EncryptedStorage encrypts tokens before handing them to another backend.
// Keys stay in clear text so lookups keep working.
type EncryptedStorage struct {
	inner  leafprefs.Storage
	cipher *Cipher
}

// NewEncryptedStorage wraps inner.
func NewEncryptedStorage(inner leafprefs.Storage, c *Cipher) *EncryptedStorage {
	return &EncryptedStorage{inner: inner, cipher: c}
}

// Get decrypts the token stored under key.
func (s *EncryptedStorage) Get(ctx context.Context, container, key string) (string, error) {
	sealed, err := s.inner.Get(ctx, container, key)
	if err != nil {
		return "", err
	}
	return s.cipher.Decrypt(sealed)
}

// SetAll encrypts every token and merges them into inner.
func (s *EncryptedStorage) SetAll(ctx context.Context, container string, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		enc, err := s.cipher.Encrypt(v)
		if err != nil {
			return err
		}
		sealed[k] = enc
	}
	return s.inner.SetAll(ctx, container, sealed)
}

// LoadAll decrypts the whole container. One undecryptable token fails the load.
func (s *EncryptedStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	sealed, err := s.inner.LoadAll(ctx, container)
	if err != nil || sealed == nil {
		return nil, err
	}
	values := make(map[string]string, len(sealed))
	for k, v := range sealed {
		plain, err := s.cipher.Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		values[k] = plain
	}
	return values, nil
}

// Close closes inner.
func (s *EncryptedStorage) Close() error {
	return s.inner.Close()
}
