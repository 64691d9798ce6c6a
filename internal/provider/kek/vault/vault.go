// Package vault registers the "vault" KEK backend, backed by HashiCorp Vault
// Transit. Like awskms, every VoiceEntry owns its own DEK, so each Wrap/Unwrap
// is an independent transit call — no process-wide key cache.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	registrykek "github.com/gaspermerela/journal-service-sub002/internal/registry/kek"
)

func init() {
	registrykek.Register(registrykek.Plugin{
		Name: "vault",
		Loader: func(_ context.Context, cfg *config.Config) (kek.Backend, error) {
			if cfg.VaultTransitKey == "" {
				return nil, fmt.Errorf("vault backend: VaultTransitKey is required")
			}
			vcfg := vaultapi.DefaultConfig()
			if cfg.VaultAddr != "" {
				vcfg.Address = cfg.VaultAddr
			}
			client, err := vaultapi.NewClient(vcfg)
			if err != nil {
				return nil, fmt.Errorf("vault backend: creating client: %w", err)
			}
			if cfg.VaultToken != "" {
				client.SetToken(cfg.VaultToken)
			}
			return &backend{
				client:     client,
				transitKey: cfg.VaultTransitKey,
			}, nil
		},
	})
}

type backend struct {
	client     *vaultapi.Client
	transitKey string
}

func (b *backend) ID() string { return "vault" }

func (b *backend) Wrap(ctx context.Context, dek []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", b.transitKey)
	secret, err := b.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(dek),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/encrypt: %w", err)
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/encrypt: missing ciphertext in response")
	}
	return []byte(ciphertext), nil
}

func (b *backend) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", b.transitKey)
	secret, err := b.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: %w", err)
	}
	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/decrypt: missing plaintext in response")
	}
	plain, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: decoding plaintext: %w", err)
	}
	return plain, nil
}
