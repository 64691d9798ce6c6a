// Package ollama registers the "ollama" LLM provider, a thin HTTP client
// against a self-hosted Ollama server's /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registryllm "github.com/gaspermerela/journal-service-sub002/internal/registry/llm"
)

func init() {
	registryllm.Register(registryllm.Plugin{
		Name: "ollama",
		Loader: func(_ context.Context, cfg *config.Config) (registryllm.Provider, error) {
			if cfg.OllamaBaseURL == "" {
				return nil, fmt.Errorf("ollama provider: OllamaBaseURL is required")
			}
			return &provider{baseURL: cfg.OllamaBaseURL}, nil
		},
	})
}

type provider struct {
	baseURL string
}

func (p *provider) ID() string { return "ollama" }

func (p *provider) Descriptor() registryllm.ProviderDescriptor {
	min0, max1, max2 := 0.0, 1.0, 2.0
	return registryllm.ProviderDescriptor{
		ID:   "ollama",
		Name: "Local Ollama",
		Models: []registryllm.ModelDescriptor{
			{ID: "llama3.1", Name: "Llama 3.1"},
			{ID: "mistral", Name: "Mistral"},
		},
		Parameters: map[string]registryllm.ParameterSchema{
			"temperature": {Kind: registryllm.KindFloat, Min: &min0, Max: &max2, Default: 0.7},
			"top_p":       {Kind: registryllm.KindFloat, Min: &min0, Max: &max1, Default: 1.0},
		},
	}
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (p *provider) Complete(ctx context.Context, req registryllm.Request) (registryllm.Response, error) {
	temperature, _ := req.Parameters["temperature"].(float64)
	topP, _ := req.Parameters["top_p"].(float64)

	reqBody, err := json.Marshal(generateRequest{
		Model:  req.ModelID,
		Prompt: req.Prompt,
		Stream: false,
		Options: options{
			Temperature: temperature,
			TopP:        topP,
		},
	})
	if err != nil {
		return registryllm.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return registryllm.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return registryllm.Response{}, fmt.Errorf("ollama complete: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return registryllm.Response{}, fmt.Errorf("ollama complete: read response: %w", err)
	}
	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return registryllm.Response{}, fmt.Errorf("ollama complete: parse response: %w", err)
	}
	if result.Error != "" {
		return registryllm.Response{}, fmt.Errorf("ollama complete error: %s", result.Error)
	}
	return registryllm.Response{
		Text:     result.Response,
		Metadata: map[string]any{"provider": "ollama", "model": req.ModelID},
	}, nil
}

var _ registryllm.Provider = (*provider)(nil)
