package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

// aesGCMImpl provides AES-GCM authenticated encryption. The random nonce is
// prepended to the ciphertext, so one key may encrypt many payloads.
type aesGCMImpl struct{}

func (aesGCMImpl) Generate(alg models.KeyAlgorithm) ([]byte, []byte, error) {
	bits := alg.Length
	if bits == 0 {
		bits = 256
	}
	switch bits {
	case 128, 192, 256:
	default:
		return nil, nil, errors.New(errors.CodeInvalidArgument, "aes key length must be 128, 192 or 256 bits, got %d", bits)
	}
	key := make([]byte, bits/8)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "aes key generation failed")
	}
	return nil, key, nil
}

func (aesGCMImpl) Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "nonce generation failed")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (aesGCMImpl) Decrypt(key, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New(errors.CodeInvalidArgument, "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "decryption failed")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "invalid aes key")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "gcm construction failed")
	}
	return gcm, nil
}
