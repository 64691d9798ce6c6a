// Package groq registers the "groq" LLM provider, a thin HTTP client
// against Groq's OpenAI-compatible chat completions endpoint.
package groq

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

const baseURL = "https://api.groq.com/openai/v1/chat/completions"

func init() {
	registryllm.Register(registryllm.Plugin{
		Name: "groq",
		Loader: func(_ context.Context, cfg *config.Config) (registryllm.Provider, error) {
			if cfg.GroqAPIKey == "" {
				return nil, fmt.Errorf("groq llm provider: GroqAPIKey is required")
			}
			return &provider{apiKey: cfg.GroqAPIKey}, nil
		},
	})
}

type provider struct {
	apiKey string
}

func (p *provider) ID() string { return "groq" }

func (p *provider) Descriptor() registryllm.ProviderDescriptor {
	min0, max1, max2 := 0.0, 1.0, 2.0
	return registryllm.ProviderDescriptor{
		ID:   "groq",
		Name: "Groq",
		Models: []registryllm.ModelDescriptor{
			{ID: "llama-3.3-70b-versatile", Name: "Llama 3.3 70B Versatile"},
			{ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B Instant"},
		},
		Parameters: map[string]registryllm.ParameterSchema{
			"temperature": {Kind: registryllm.KindFloat, Min: &min0, Max: &max2, Default: 0.7},
			"top_p":       {Kind: registryllm.KindFloat, Min: &min0, Max: &max1, Default: 1.0},
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *provider) Complete(ctx context.Context, req registryllm.Request) (registryllm.Response, error) {
	temperature, _ := req.Parameters["temperature"].(float64)
	topP, _ := req.Parameters["top_p"].(float64)

	reqBody, err := json.Marshal(chatRequest{
		Model:       req.ModelID,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return registryllm.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return registryllm.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return registryllm.Response{}, fmt.Errorf("groq complete: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return registryllm.Response{}, fmt.Errorf("groq complete: read response: %w", err)
	}
	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return registryllm.Response{}, fmt.Errorf("groq complete: parse response: %w", err)
	}
	if result.Error != nil {
		return registryllm.Response{}, fmt.Errorf("groq complete error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return registryllm.Response{}, fmt.Errorf("groq complete: no choices returned")
	}
	return registryllm.Response{
		Text:     result.Choices[0].Message.Content,
		Metadata: map[string]any{"provider": "groq", "model": req.ModelID},
	}, nil
}

var _ registryllm.Provider = (*provider)(nil)
