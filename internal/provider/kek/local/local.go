// Package local registers the "local" KEK backend: a raw AES/ChaCha key read
// from config, used for development and tests. Production deployments use
// awskms or vault instead.
package local

import (
	"context"
	"fmt"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	pkgcrypto "github.com/gaspermerela/journal-service-sub002/internal/crypto"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	registrykek "github.com/gaspermerela/journal-service-sub002/internal/registry/kek"
)

func init() {
	registrykek.Register(registrykek.Plugin{
		Name: "local",
		Loader: func(_ context.Context, cfg *config.Config) (kek.Backend, error) {
			key, err := config.DecodeEncryptionKey(cfg.KEKLocalKey)
			if err != nil {
				return nil, fmt.Errorf("local kek: %w", err)
			}
			if len(key) != pkgcrypto.DEKSize {
				return nil, fmt.Errorf("local kek: key must be %d bytes, got %d", pkgcrypto.DEKSize, len(key))
			}
			return &backend{key: key}, nil
		},
	})
}

type backend struct {
	key []byte
}

func (b *backend) ID() string { return "local" }

func (b *backend) Wrap(_ context.Context, dek []byte) ([]byte, error) {
	return pkgcrypto.Wrap(dek, b.key)
}

func (b *backend) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	return pkgcrypto.Unwrap(wrapped, b.key)
}
