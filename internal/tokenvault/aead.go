// Package tokenvault implements the secure token vault of spec.md §4.4:
// AEAD-encrypted storage for platform credentials, tamper detection,
// oauth2-backed rotation, and a masked audit log. The AES-256-GCM scheme is
// grounded directly on bdobrica-Ruriko's common/crypto/encrypt.go — the
// teacher itself carries no AEAD dependency, and this nonce-prepended-to-
// ciphertext shape is the only one in the example pack, so it is used
// unmodified rather than adding a third-party AEAD wrapper.
package tokenvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/corebridge/platform-core/internal/apperr"
)

const (
	nonceSize = 12
	keySize   = 32
)

// seal encrypts plaintext with AES-256-GCM under key, returning
// nonce||ciphertext.
func seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, apperr.Misconfigured(fmt.Sprintf("vault key must be %d bytes", keySize))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Misconfigured(err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Misconfigured(err.Error())
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperr.Misconfigured("generate nonce: " + err.Error())
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal. Any authentication failure is
// reported as apperr.TamperDetected — the caller purges the record rather
// than returning partial plaintext.
func open(key, blob []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, apperr.Misconfigured(fmt.Sprintf("vault key must be %d bytes", keySize))
	}
	if len(blob) < nonceSize {
		return nil, apperr.TamperDetected("ciphertext too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Misconfigured(err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Misconfigured(err.Error())
	}
	nonce, data := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, apperr.TamperDetected("GCM authentication failed")
	}
	return plaintext, nil
}

// checksum is a keyed hash (HMAC-SHA256) over the plaintext, stored
// alongside the ciphertext so a vault reader can detect a tampered record
// even before attempting to decrypt it (spec.md §4.4's "detect tamper"
// requirement, kept independent of GCM's own tag so a corrupted checksum
// and a corrupted ciphertext are both caught by the same code path in
// Retrieve).
func checksum(key, plaintext []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(plaintext)
	return mac.Sum(nil)
}

func verifyChecksum(key, plaintext, want []byte) bool {
	got := checksum(key, plaintext)
	return hmac.Equal(got, want)
}
