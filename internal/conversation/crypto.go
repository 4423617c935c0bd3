package conversation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/corebridge/platform-core/internal/apperr"
)

const nonceSize = 12

// cryptoBox encrypts/decrypts conversation data with the same AES-256-GCM,
// nonce-prepended construction as internal/tokenvault (spec.md §4.6: "the
// same AEAD construction as the Token Vault with a distinct IV per write").
// Each write generates its own random nonce via crypto/rand, so two writes
// of the same conversation never produce the same blob.
type cryptoBox struct {
	key []byte
}

func newCryptoBox(key []byte) (*cryptoBox, error) {
	if len(key) != 32 {
		return nil, apperr.Misconfigured("conversation store encryption key must be 32 bytes")
	}
	return &cryptoBox{key: key}, nil
}

// sealRaw encrypts raw and returns the "hex(iv):hex(ciphertext)" form
// spec.md §6 specifies for the file backend's on-disk blobs.
func (box *cryptoBox) sealRaw(raw []byte) (string, error) {
	block, err := aes.NewCipher(box.key)
	if err != nil {
		return "", apperr.Misconfigured(err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Misconfigured(err.Error())
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.Misconfigured("generate nonce: " + err.Error())
	}
	ciphertext := gcm.Seal(nil, nonce, raw, nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

// openRaw reverses sealRaw.
func (box *cryptoBox) openRaw(data string) ([]byte, error) {
	sep := strings.IndexByte(data, ':')
	if sep < 0 {
		return nil, apperr.TamperDetected("blob missing iv separator")
	}
	nonce, err := hex.DecodeString(data[:sep])
	if err != nil {
		return nil, apperr.TamperDetected("malformed iv")
	}
	ciphertext, err := hex.DecodeString(data[sep+1:])
	if err != nil {
		return nil, apperr.TamperDetected("malformed ciphertext")
	}
	block, err := aes.NewCipher(box.key)
	if err != nil {
		return nil, apperr.Misconfigured(err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Misconfigured(err.Error())
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.TamperDetected("GCM authentication failed")
	}
	return plaintext, nil
}

// encode serializes c to JSON and, if box is non-nil, seals it. A nil box
// returns plain JSON — used by FileStore.
func (box *cryptoBox) encode(c *Conversation) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	if box == nil {
		return string(raw), nil
	}
	return box.sealRaw(raw)
}

// decode reverses encode.
func (box *cryptoBox) decode(data string) (*Conversation, error) {
	raw := []byte(data)
	if box != nil {
		plain, err := box.openRaw(data)
		if err != nil {
			return nil, err
		}
		raw = plain
	}
	var c Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// encodeRaw/decodeRaw operate on already-marshaled bytes, for SQLStore's
// per-column blob encryption (messages_blob, metadata_blob are each sealed
// independently rather than the whole row, matching the column-oriented
// schema of spec.md §6).
func (box *cryptoBox) encodeRaw(raw []byte) (string, error) {
	if box == nil {
		return string(raw), nil
	}
	return box.sealRaw(raw)
}

func (box *cryptoBox) decodeRaw(data string) ([]byte, error) {
	if box == nil {
		return []byte(data), nil
	}
	return box.openRaw(data)
}
