// Package awskms registers the "awskms" KEK backend. Unlike the teacher's
// cached-process-wide-key scheme, each VoiceEntry carries its own DEK, so
// there is nothing to cache here: every Wrap/Unwrap is a direct KMS call
// against the configured customer master key.
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	registrykek "github.com/gaspermerela/journal-service-sub002/internal/registry/kek"
)

func init() {
	registrykek.Register(registrykek.Plugin{
		Name: "awskms",
		Loader: func(ctx context.Context, cfg *config.Config) (kek.Backend, error) {
			if cfg.AWSKMSKeyID == "" {
				return nil, fmt.Errorf("awskms backend: AWSKMSKeyID is required")
			}
			opts := []func(*awsconfig.LoadOptions) error{}
			if cfg.AWSRegion != "" {
				opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("awskms backend: loading AWS config: %w", err)
			}
			return &backend{
				client: kms.NewFromConfig(awsCfg),
				keyID:  cfg.AWSKMSKeyID,
			}, nil
		},
	})
}

type backend struct {
	client *kms.Client
	keyID  string
}

func (b *backend) ID() string { return "awskms" }

func (b *backend) Wrap(ctx context.Context, dek []byte) ([]byte, error) {
	out, err := b.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(b.keyID),
		Plaintext: dek,
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: Encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (b *backend) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := b.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(b.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: Decrypt: %w", err)
	}
	return out.Plaintext, nil
}
