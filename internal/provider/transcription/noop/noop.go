// Package noop registers a fixture transcription provider for tests,
// mirroring the teacher's embed/local fixture-style adapter.
package noop

import (
	"context"
	"fmt"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
)

func init() {
	registrytranscription.Register(registrytranscription.Plugin{
		Name: "noop",
		Loader: func(_ context.Context, _ *config.Config) (registrytranscription.Provider, error) {
			return &provider{}, nil
		},
	})
}

type provider struct{}

func (p *provider) ID() string { return "noop" }

func (p *provider) Descriptor() registrytranscription.ProviderDescriptor {
	min0, min1, max1, max10 := 0.0, 1.0, 1.0, 10.0
	return registrytranscription.ProviderDescriptor{
		ID:   "noop",
		Name: "No-op (test fixture)",
		Models: []registrytranscription.ModelDescriptor{
			{ID: "fixture", Name: "Fixture"},
		},
		Parameters: map[string]registrytranscription.ParameterSchema{
			"temperature":        {Kind: registrytranscription.KindFloat, Min: &min0, Max: &max1, Default: 0.0},
			"language":           {Kind: registrytranscription.KindString, Default: "auto"},
			"beam_size":          {Kind: registrytranscription.KindInt, Min: &min1, Max: &max10, Default: 5},
			"enable_diarization": {Kind: registrytranscription.KindBool, Default: false},
			"speaker_count":      {Kind: registrytranscription.KindInt, Min: &min1, Max: &max10, Default: 1},
		},
	}
}

func (p *provider) Transcribe(ctx context.Context, req registrytranscription.Request) (registrytranscription.Response, error) {
	if req.Audio == nil {
		return registrytranscription.Response{}, fmt.Errorf("noop transcribe: audio handle is required")
	}
	return registrytranscription.Response{
		Text:     "[noop transcription of " + req.Audio.Key() + "]",
		Metadata: map[string]any{"provider": "noop"},
	}, nil
}

var _ registrytranscription.Provider = (*provider)(nil)
