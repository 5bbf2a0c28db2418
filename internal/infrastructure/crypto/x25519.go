package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

// x25519Impl provides X25519 key agreement. Both key halves are 32 bytes.
type x25519Impl struct{}

func (x25519Impl) Generate(_ models.KeyAlgorithm) ([]byte, []byte, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "x25519 key generation failed")
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "x25519 public key derivation failed")
	}
	return pub, priv, nil
}

func (x25519Impl) DeriveBits(privateKey, publicKey []byte, length int) ([]byte, error) {
	if len(privateKey) != curve25519.ScalarSize {
		return nil, errors.New(errors.CodeInvalidArgument, "x25519 private key must be %d bytes, got %d", curve25519.ScalarSize, len(privateKey))
	}
	if len(publicKey) != curve25519.PointSize {
		return nil, errors.New(errors.CodeInvalidArgument, "x25519 public key must be %d bytes, got %d", curve25519.PointSize, len(publicKey))
	}
	shared, err := curve25519.X25519(privateKey, publicKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "x25519 agreement failed")
	}
	if length <= 0 || length > len(shared) {
		return shared, nil
	}
	return shared[:length], nil
}
