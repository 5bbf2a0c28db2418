package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

// secp256k1Impl provides ECDSA over the secp256k1 curve. Messages are
// digested with SHA-256 before signing; public keys use the 33-byte
// compressed encoding and private keys the 32-byte scalar.
type secp256k1Impl struct{}

func (secp256k1Impl) Generate(_ models.KeyAlgorithm) ([]byte, []byte, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "secp256k1 key generation failed")
	}
	return priv.PubKey().SerializeCompressed(), priv.Serialize(), nil
}

func (secp256k1Impl) Sign(privateKey, data []byte) ([]byte, error) {
	if len(privateKey) != 32 {
		return nil, errors.New(errors.CodeInvalidArgument, "secp256k1 private key must be 32 bytes, got %d", len(privateKey))
	}
	priv := secp256k1.PrivKeyFromBytes(privateKey)
	digest := sha256.Sum256(data)
	sig := ecdsa.Sign(priv, digest[:])
	return sig.Serialize(), nil
}

func (secp256k1Impl) Verify(publicKey, data, signature []byte) (bool, error) {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false, errors.Wrap(err, errors.CodeInvalidArgument, "invalid secp256k1 public key")
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false, nil
	}
	digest := sha256.Sum256(data)
	return sig.Verify(digest[:], pub), nil
}
