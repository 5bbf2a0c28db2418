package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

// ed25519Impl provides Ed25519 generation and signing. Private keys are
// stored in the standard library's 64-byte expanded form; public keys are
// 32 bytes. Signatures are always 64 bytes.
type ed25519Impl struct{}

func (ed25519Impl) Generate(_ models.KeyAlgorithm) ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "ed25519 key generation failed")
	}
	return pub, priv, nil
}

func (ed25519Impl) Sign(privateKey, data []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New(errors.CodeInvalidArgument, "ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), data), nil
}

func (ed25519Impl) Verify(publicKey, data, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, errors.New(errors.CodeInvalidArgument, "ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature), nil
}
