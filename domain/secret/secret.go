// Package secret implements C11's decryption and key-schema helpers. The
// secret vault itself (the encrypted KV store) is an external collaborator
// (ports.SecretStore); this package holds the pure AES-256-GCM decrypt
// routine and the cache-key builder.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Decrypt decrypts ciphertext using AES-256-GCM with the given 32-byte key
// and IV (nonce), as stored alongside the ciphertext in the vault record.
func Decrypt(key, iv, ciphertext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secret: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secret: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secret: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Encrypt is the inverse of Decrypt, used by the (out-of-scope) admin
// surface that writes the vault; kept here so both sides of the vault
// format live in one place.
func Encrypt(key, plaintext []byte) (ciphertext, iv []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("secret: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("secret: new gcm: %w", err)
	}
	iv = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("secret: generate iv: %w", err)
	}
	ciphertext = gcm.Seal(nil, iv, plaintext, nil)
	return ciphertext, iv, nil
}

// Resolved is a per-request map of ref -> decrypted value; its lifetime is
// exactly one request (spec.md §3).
type Resolved map[string]string

// Key builds the vault lookup key "gw:<scopeId>:<slug>:<ref>".
func Key(scopeID, slug, ref string) string {
	return fmt.Sprintf("gw:%s:%s:%s", scopeID, slug, ref)
}
