package datanode

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/pkg/errors"
)

// Signer is the slice of the key manager the auth layer needs. Signing goes
// through the managing backend, so private material never surfaces here.
type Signer interface {
	Sign(ctx context.Context, tenant string, ref service.KeyRef, data []byte) ([]byte, error)
}

// kmsSigningMethod is a jwt signing method that delegates to a Signer. The
// algorithm is EdDSA; the key argument carries the signing context.
type kmsSigningMethod struct{}

type signingContext struct {
	ctx    context.Context
	signer Signer
	tenant string
	ref    service.KeyRef
}

func (kmsSigningMethod) Alg() string {
	return "EdDSA"
}

func (kmsSigningMethod) Sign(signingString string, key any) ([]byte, error) {
	sc, ok := key.(*signingContext)
	if !ok {
		return nil, errors.New(errors.CodeInvalidArgument, "signing requires a kms signing context")
	}
	return sc.signer.Sign(sc.ctx, sc.tenant, sc.ref, []byte(signingString))
}

func (kmsSigningMethod) Verify(signingString string, sig []byte, key any) error {
	publicKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if !ed25519.Verify(publicKey, []byte(signingString), sig) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// BearerToken mints a short-lived EdDSA token identifying the agent to a
// remote node.
func BearerToken(ctx context.Context, signer Signer, tenant string, ref service.KeyRef, issuer, audience string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(kmsSigningMethod{}, jwt.MapClaims{
		"iss": issuer,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	signed, err := token.SignedString(&signingContext{ctx: ctx, signer: signer, tenant: tenant, ref: ref})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to sign bearer token")
	}
	return signed, nil
}

// VerifyBearerToken checks an incoming token against the issuer's Ed25519
// public key and returns its claims.
func VerifyBearerToken(tokenString string, publicKey ed25519.PublicKey) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "invalid bearer token")
	}
	return claims, nil
}
