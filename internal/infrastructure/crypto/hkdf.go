package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

// hkdfImpl provides HKDF-SHA256 derivation. The stored secret is the input
// keying material; the peer-key slot of DeriveBits carries the salt.
type hkdfImpl struct{}

func (hkdfImpl) Generate(alg models.KeyAlgorithm) ([]byte, []byte, error) {
	bits := alg.Length
	if bits == 0 {
		bits = 256
	}
	if bits%8 != 0 || bits <= 0 {
		return nil, nil, errors.New(errors.CodeInvalidArgument, "hkdf key length must be a positive multiple of 8, got %d", bits)
	}
	ikm := make([]byte, bits/8)
	if _, err := rand.Read(ikm); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "hkdf key generation failed")
	}
	return nil, ikm, nil
}

func (hkdfImpl) DeriveBits(privateKey, salt []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "derive length must be positive, got %d", length)
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, privateKey, salt, nil), out); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "hkdf expansion failed")
	}
	return out, nil
}
