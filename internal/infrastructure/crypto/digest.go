package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
)

type sha256Impl struct{}

func (sha256Impl) Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

type sha512Impl struct{}

func (sha512Impl) Digest(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}
