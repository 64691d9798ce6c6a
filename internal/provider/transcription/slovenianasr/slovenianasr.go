// Package slovenianasr registers the "slovenian-asr" transcription
// provider, a thin HTTP client against a self-hosted Slovene-specialized
// ASR endpoint (no "auto" language: this provider only ever transcribes
// Slovenian).
package slovenianasr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
)

func init() {
	registrytranscription.Register(registrytranscription.Plugin{
		Name: "slovenian-asr",
		Loader: func(_ context.Context, cfg *config.Config) (registrytranscription.Provider, error) {
			if cfg.SlovenianASREndpoint == "" {
				return nil, fmt.Errorf("slovenian-asr provider: SlovenianASREndpoint is required")
			}
			return &provider{endpoint: cfg.SlovenianASREndpoint}, nil
		},
	})
}

type provider struct {
	endpoint string
}

func (p *provider) ID() string { return "slovenian-asr" }

func (p *provider) Descriptor() registrytranscription.ProviderDescriptor {
	min0, max1 := 0.0, 1.0
	return registrytranscription.ProviderDescriptor{
		ID:   "slovenian-asr",
		Name: "Slovenian ASR",
		Models: []registrytranscription.ModelDescriptor{
			{ID: "sl-rtvslo-v1", Name: "RTV SLO v1"},
		},
		Parameters: map[string]registrytranscription.ParameterSchema{
			"temperature": {Kind: registrytranscription.KindFloat, Min: &min0, Max: &max1, Default: 0.0},
		},
	}
}

type asrResponse struct {
	Transcript string `json:"transcript"`
	Error      string `json:"error"`
}

func (p *provider) Transcribe(ctx context.Context, req registrytranscription.Request) (registrytranscription.Response, error) {
	if req.Audio == nil {
		return registrytranscription.Response{}, fmt.Errorf("slovenian-asr transcribe: audio handle is required")
	}
	audio, err := req.Audio.Open(ctx)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("slovenian-asr transcribe: opening audio: %w", err)
	}
	defer audio.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/recognize", audio)
	if err != nil {
		return registrytranscription.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("slovenian-asr transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("slovenian-asr transcribe: read response: %w", err)
	}
	var result asrResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return registrytranscription.Response{}, fmt.Errorf("slovenian-asr transcribe: parse response: %w", err)
	}
	if result.Error != "" {
		return registrytranscription.Response{}, fmt.Errorf("slovenian-asr transcribe error: %s", result.Error)
	}
	return registrytranscription.Response{
		Text:     result.Transcript,
		Metadata: map[string]any{"provider": "slovenian-asr", "model": req.ModelID, "language": "sl"},
	}, nil
}

var _ registrytranscription.Provider = (*provider)(nil)
