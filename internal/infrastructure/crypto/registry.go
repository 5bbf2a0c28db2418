package crypto

import (
	"strings"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

// ==================== 算法枚举 Algorithm enum ====================

// Algorithm enumerates every cryptographic algorithm the agent implements.
// The set is closed: dispatch goes through this enum, never through
// free-form strings.
type Algorithm int

const (
	AlgorithmUnknown Algorithm = iota
	AlgorithmEd25519
	AlgorithmSecp256k1
	AlgorithmX25519
	AlgorithmAESGCM
	AlgorithmHKDF
	AlgorithmSHA256
	AlgorithmSHA512
)

// ==================== 能力接口 Capability interfaces ====================

// Generator creates fresh key material. The public slice is nil for
// symmetric algorithms.
type Generator interface {
	Generate(alg models.KeyAlgorithm) (public, private []byte, err error)
}

// Signer signs and verifies with raw key bytes.
type Signer interface {
	Sign(privateKey, data []byte) ([]byte, error)
	Verify(publicKey, data, signature []byte) (bool, error)
}

// Cipher performs authenticated symmetric encryption.
type Cipher interface {
	Encrypt(key, plaintext []byte) ([]byte, error)
	Decrypt(key, ciphertext []byte) ([]byte, error)
}

// Deriver runs key agreement between a private and a public key.
type Deriver interface {
	DeriveBits(privateKey, publicKey []byte, length int) ([]byte, error)
}

// Hasher computes a fixed digest.
type Hasher interface {
	Digest(data []byte) []byte
}

// Implementation bundles one algorithm's canonical name and capabilities.
// Capability fields are nil where the algorithm lacks the operation.
type Implementation struct {
	Algorithm  Algorithm
	Name       string
	Asymmetric bool
	Generator  Generator
	Signer     Signer
	Cipher     Cipher
	Deriver    Deriver
	Hasher     Hasher
}

// ==================== 注册表 Registry ====================

// Registry maps algorithm names and aliases to implementations. Lookup is
// case-insensitive. Each Registry owns its own table; nothing is shared
// through package state.
type Registry struct {
	byAlias map[string]*Implementation
}

// NewRegistry builds a registry holding every built-in algorithm.
func NewRegistry() *Registry {
	r := &Registry{byAlias: make(map[string]*Implementation)}

	r.register(&Implementation{
		Algorithm:  AlgorithmEd25519,
		Name:       "Ed25519",
		Asymmetric: true,
		Generator:  ed25519Impl{},
		Signer:     ed25519Impl{},
	}, "Ed25519", "EdDSA")

	r.register(&Implementation{
		Algorithm:  AlgorithmSecp256k1,
		Name:       "secp256k1",
		Asymmetric: true,
		Generator:  secp256k1Impl{},
		Signer:     secp256k1Impl{},
	}, "secp256k1", "ES256K", "ECDSA-secp256k1")

	r.register(&Implementation{
		Algorithm:  AlgorithmX25519,
		Name:       "X25519",
		Asymmetric: true,
		Generator:  x25519Impl{},
		Deriver:    x25519Impl{},
	}, "X25519", "ECDH-X25519")

	r.register(&Implementation{
		Algorithm: AlgorithmAESGCM,
		Name:      "AES-GCM",
		Generator: aesGCMImpl{},
		Cipher:    aesGCMImpl{},
	}, "AES-GCM", "A128GCM", "A256GCM", "AESGCM")

	r.register(&Implementation{
		Algorithm: AlgorithmHKDF,
		Name:      "HKDF",
		Generator: hkdfImpl{},
		Deriver:   hkdfImpl{},
	}, "HKDF", "HKDF-SHA256")

	r.register(&Implementation{
		Algorithm: AlgorithmSHA256,
		Name:      "SHA-256",
		Hasher:    sha256Impl{},
	}, "SHA-256", "SHA256")

	r.register(&Implementation{
		Algorithm: AlgorithmSHA512,
		Name:      "SHA-512",
		Hasher:    sha512Impl{},
	}, "SHA-512", "SHA512")

	return r
}

func (r *Registry) register(impl *Implementation, aliases ...string) {
	for _, a := range aliases {
		r.byAlias[normalize(a)] = impl
	}
}

// Resolve maps an algorithm name or alias to its implementation. Unknown
// names fail with algorithm_not_supported.
func (r *Registry) Resolve(name string) (*Implementation, error) {
	if impl, ok := r.byAlias[normalize(name)]; ok {
		return impl, nil
	}
	return nil, errors.ErrAlgorithmNotSupported(name)
}

// ResolveForKey maps a stored key's algorithm descriptor to its
// implementation. When the name tag misses, the curve tag is tried, so a
// descriptor like {Name: "ECDSA", Curve: "secp256k1"} still resolves.
func (r *Registry) ResolveForKey(alg models.KeyAlgorithm) (*Implementation, error) {
	if impl, ok := r.byAlias[normalize(alg.Name)]; ok {
		return impl, nil
	}
	if alg.Curve != "" {
		if impl, ok := r.byAlias[normalize(alg.Curve)]; ok {
			return impl, nil
		}
	}
	return nil, errors.ErrAlgorithmNotSupported(alg.Name)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
