// Package resolver turns DIDs into documents and documents into data-node
// endpoints. did:key identifiers resolve locally; everything else goes to a
// remote resolver behind a TTL cache.
package resolver

import (
	"context"
	"strings"

	"github.com/multiformats/go-multibase"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/errors"
)

// ed25519Multicodec is the varint multicodec prefix for an Ed25519 public
// key (0xed).
var ed25519Multicodec = []byte{0xed, 0x01}

// CreateDIDKey derives a did:key identifier from a raw Ed25519 public key.
func CreateDIDKey(publicKey []byte) (string, error) {
	if len(publicKey) != 32 {
		return "", errors.New(errors.CodeInvalidArgument, "ed25519 public key must be 32 bytes, got %d", len(publicKey))
	}
	payload := make([]byte, 0, len(ed25519Multicodec)+len(publicKey))
	payload = append(payload, ed25519Multicodec...)
	payload = append(payload, publicKey...)
	encoded, err := multibase.Encode(multibase.Base58BTC, payload)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "multibase encoding failed")
	}
	return constants.DidKeyPrefix + encoded, nil
}

// didKeyResolver resolves did:key identifiers without any network access.
type didKeyResolver struct{}

var _ service.DIDResolver = didKeyResolver{}

func (didKeyResolver) Resolve(_ context.Context, did string) (*models.DIDDocument, error) {
	if _, err := PublicKeyFromDIDKey(did); err != nil {
		return nil, err
	}
	encoded := strings.TrimPrefix(did, constants.DidKeyPrefix)
	return &models.DIDDocument{
		ID: did,
		VerificationMethod: []models.VerificationMethod{{
			ID:                 did + "#" + encoded,
			Type:               "Ed25519VerificationKey2020",
			Controller:         did,
			PublicKeyMultibase: encoded,
		}},
	}, nil
}

// PublicKeyFromDIDKey decodes the raw Ed25519 public key out of a did:key.
func PublicKeyFromDIDKey(did string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(did, constants.DidKeyPrefix)
	if !ok {
		return nil, errors.New(errors.CodeResolutionFailed, "%q is not a did:key identifier", did)
	}
	_, payload, err := multibase.Decode(encoded)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeResolutionFailed, "invalid did:key encoding in %q", did)
	}
	if len(payload) != len(ed25519Multicodec)+32 ||
		payload[0] != ed25519Multicodec[0] || payload[1] != ed25519Multicodec[1] {
		return nil, errors.New(errors.CodeResolutionFailed, "%q does not carry an ed25519 key", did)
	}
	return payload[len(ed25519Multicodec):], nil
}
