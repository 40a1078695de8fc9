package permissions

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"dfs/pkg/types"
)

// EncryptionAlgorithm names the authenticated cipher used for non-public
// files; recorded in encryption metadata.
const EncryptionAlgorithm = "AES-256-GCM"

// GenerateKey returns a fresh random 256-bit key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrKey, err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// encryptPayload seals data under the base64 key with AES-GCM and returns
// the ciphertext together with the base64 nonce.
func encryptPayload(data []byte, keyB64 string) ([]byte, string, error) {
	gcm, err := newGCM(keyB64)
	if err != nil {
		return nil, "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrEncryption, err)
	}

	ciphertext := gcm.Seal(nil, nonce, data, nil)
	return ciphertext, base64.StdEncoding.EncodeToString(nonce), nil
}

// decryptPayload opens AES-GCM ciphertext with the base64 key and nonce.
func decryptPayload(data []byte, keyB64, nonceB64 string) ([]byte, error) {
	gcm, err := newGCM(keyB64)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid nonce encoding: %v", types.ErrEncryption, err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: nonce has %d bytes, want %d", types.ErrEncryption, len(nonce), gcm.NonceSize())
	}

	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEncryption, err)
	}
	return plaintext, nil
}

func newGCM(keyB64 string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key encoding: %v", types.ErrKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key has %d bytes, want 32", types.ErrKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEncryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEncryption, err)
	}
	return gcm, nil
}
