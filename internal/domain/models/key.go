package models

import "time"

// KeyType classifies stored key material.
// KeyType 对存储的密钥材料进行分类。
type KeyType string

const (
	// KeyTypePrivate is the private half of an asymmetric pair.
	KeyTypePrivate KeyType = "private"
	// KeyTypePublic is the public half of an asymmetric pair.
	KeyTypePublic KeyType = "public"
	// KeyTypeSecret is a symmetric key.
	KeyTypeSecret KeyType = "secret"
)

// KeyState is the lifecycle flag of a managed key.
// KeyState 是托管密钥的生命周期标志。
type KeyState string

const (
	// KeyStateEnabled marks a key as usable.
	KeyStateEnabled KeyState = "enabled"
	// KeyStateDisabled marks a key as administratively disabled.
	KeyStateDisabled KeyState = "disabled"
)

// KeyUsage names an operation a key is permitted to perform. Usages are
// enforced by convention, not cryptographically.
type KeyUsage string

const (
	KeyUsageSign       KeyUsage = "sign"
	KeyUsageVerify     KeyUsage = "verify"
	KeyUsageEncrypt    KeyUsage = "encrypt"
	KeyUsageDecrypt    KeyUsage = "decrypt"
	KeyUsageDeriveBits KeyUsage = "deriveBits"
	KeyUsageWrapKey    KeyUsage = "wrapKey"
	KeyUsageUnwrapKey  KeyUsage = "unwrapKey"
)

// KeyAlgorithm is the structured algorithm descriptor embedded in key
// metadata. Name is the canonical algorithm name; Curve and Length apply
// where the algorithm family needs them.
// KeyAlgorithm 是嵌入在密钥元数据中的结构化算法描述符。
type KeyAlgorithm struct {
	// Name is the canonical algorithm name, e.g. "Ed25519" or "AES-GCM".
	Name string `json:"name"`
	// Curve is the named curve for elliptic algorithms, e.g. "secp256k1".
	Curve string `json:"curve,omitempty"`
	// Length is the key length in bits for length-parameterized algorithms.
	Length int `json:"length,omitempty"`
}

// ManagedKey is the metadata record of a single cryptographic key. It never
// embeds private material; Material is populated only for public keys.
// ManagedKey 是单个加密密钥的元数据记录。它从不包含私有材料。
type ManagedKey struct {
	// ID is the stable opaque identifier, unique within one KMS and
	// immutable after creation.
	ID string `json:"id"`
	// Algorithm describes the key's algorithm and parameters.
	Algorithm KeyAlgorithm `json:"algorithm"`
	// Type is one of private, public or secret.
	Type KeyType `json:"type"`
	// Usages is the set of operations the key may perform.
	Usages []KeyUsage `json:"usages"`
	// Kms is the name of the owning KMS. Always overwritten by the KMS at
	// creation and import; never trusted from a caller.
	Kms string `json:"kms"`
	// Alias is an optional mutable human-assigned label for secondary lookup.
	Alias string `json:"alias,omitempty"`
	// State is the lifecycle flag.
	State KeyState `json:"state"`
	// Material carries raw key bytes for public keys only. It is always nil
	// on private and secret key metadata.
	Material []byte `json:"material,omitempty"`
	// Extractable reports whether private material may ever be exported.
	Extractable bool `json:"extractable"`
	// CreatedAt is when the key record was created.
	CreatedAt time.Time `json:"createdAt"`
}

// HasUsage reports whether the key permits the given operation.
func (k *ManagedKey) HasUsage(usage KeyUsage) bool {
	for _, u := range k.Usages {
		if u == usage {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The Usages and Material slices are detached
// so mutating the copy never reaches the original.
func (k *ManagedKey) Clone() *ManagedKey {
	if k == nil {
		return nil
	}
	out := *k
	if k.Usages != nil {
		out.Usages = append([]KeyUsage(nil), k.Usages...)
	}
	if k.Material != nil {
		out.Material = append([]byte(nil), k.Material...)
	}
	return &out
}

// ManagedKeyPair is an asymmetric pair. Both halves always share one ID and
// are created, imported and read together.
// ManagedKeyPair 是一个非对称密钥对，两半共享同一个 ID。
type ManagedKeyPair struct {
	PrivateKey *ManagedKey `json:"privateKey"`
	PublicKey  *ManagedKey `json:"publicKey"`
}

// ManagedPrivateKey is raw secret material, stored only in the private-key
// store, retrievable only by id and never enumerable by alias.
type ManagedPrivateKey struct {
	ID       string  `json:"id"`
	Type     KeyType `json:"type"`
	Material []byte  `json:"material"`
}

// KeyEntry is the union returned by key operations: either a single managed
// key (secret or standalone public key) or an asymmetric pair.
type KeyEntry struct {
	Key  *ManagedKey     `json:"key,omitempty"`
	Pair *ManagedKeyPair `json:"pair,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *KeyEntry) Clone() *KeyEntry {
	if e == nil {
		return nil
	}
	out := &KeyEntry{Key: e.Key.Clone()}
	if e.Pair != nil {
		out.Pair = &ManagedKeyPair{
			PrivateKey: e.Pair.PrivateKey.Clone(),
			PublicKey:  e.Pair.PublicKey.Clone(),
		}
	}
	return out
}

// IsPair reports whether the entry holds an asymmetric pair.
func (e *KeyEntry) IsPair() bool {
	return e.Pair != nil
}

// ID returns the entry's key identifier. Pairs share one id across both
// halves, so the private half is authoritative.
func (e *KeyEntry) ID() string {
	if e.Pair != nil {
		return e.Pair.PrivateKey.ID
	}
	if e.Key != nil {
		return e.Key.ID
	}
	return ""
}

// KmsName returns the owning KMS recorded on the entry.
func (e *KeyEntry) KmsName() string {
	if e.Pair != nil {
		return e.Pair.PrivateKey.Kms
	}
	if e.Key != nil {
		return e.Key.Kms
	}
	return ""
}

// Alias returns the entry's alias, if any.
func (e *KeyEntry) Alias() string {
	if e.Pair != nil {
		return e.Pair.PrivateKey.Alias
	}
	if e.Key != nil {
		return e.Key.Alias
	}
	return ""
}
