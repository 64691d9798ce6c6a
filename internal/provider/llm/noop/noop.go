// Package noop registers a fixture LLM provider for tests.
package noop

import (
	"context"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registryllm "github.com/gaspermerela/journal-service-sub002/internal/registry/llm"
)

func init() {
	registryllm.Register(registryllm.Plugin{
		Name: "noop",
		Loader: func(_ context.Context, _ *config.Config) (registryllm.Provider, error) {
			return &provider{}, nil
		},
	})
}

type provider struct{}

func (p *provider) ID() string { return "noop" }

func (p *provider) Descriptor() registryllm.ProviderDescriptor {
	min0, max1, max2 := 0.0, 1.0, 2.0
	return registryllm.ProviderDescriptor{
		ID:   "noop",
		Name: "No-op (test fixture)",
		Models: []registryllm.ModelDescriptor{
			{ID: "fixture", Name: "Fixture"},
		},
		Parameters: map[string]registryllm.ParameterSchema{
			"temperature": {Kind: registryllm.KindFloat, Min: &min0, Max: &max2, Default: 0.7},
			"top_p":       {Kind: registryllm.KindFloat, Min: &min0, Max: &max1, Default: 1.0},
		},
	}
}

func (p *provider) Complete(ctx context.Context, req registryllm.Request) (registryllm.Response, error) {
	return registryllm.Response{
		Text:     "[noop cleanup of: " + req.Prompt + "]",
		Metadata: map[string]any{"provider": "noop"},
	}, nil
}

var _ registryllm.Provider = (*provider)(nil)
