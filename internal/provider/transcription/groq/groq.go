// Package groq registers the "groq" transcription provider, a thin HTTP
// client against Groq's OpenAI-compatible Whisper endpoint, mirroring the
// teacher's embed/openai adapter shape.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
)

const baseURL = "https://api.groq.com/openai/v1/audio/transcriptions"

func init() {
	registrytranscription.Register(registrytranscription.Plugin{
		Name: "groq",
		Loader: func(_ context.Context, cfg *config.Config) (registrytranscription.Provider, error) {
			if cfg.GroqAPIKey == "" {
				return nil, fmt.Errorf("groq transcription provider: GroqAPIKey is required")
			}
			return &provider{apiKey: cfg.GroqAPIKey}, nil
		},
	})
}

type provider struct {
	apiKey string
}

func (p *provider) ID() string { return "groq" }

func (p *provider) Descriptor() registrytranscription.ProviderDescriptor {
	min0, max1 := 0.0, 1.0
	return registrytranscription.ProviderDescriptor{
		ID:   "groq",
		Name: "Groq Whisper",
		Models: []registrytranscription.ModelDescriptor{
			{ID: "whisper-large-v3", Name: "Whisper Large v3"},
			{ID: "whisper-large-v3-turbo", Name: "Whisper Large v3 Turbo"},
		},
		Parameters: map[string]registrytranscription.ParameterSchema{
			"temperature": {Kind: registrytranscription.KindFloat, Min: &min0, Max: &max1, Default: 0.0},
			"language":    {Kind: registrytranscription.KindString, Default: "auto"},
		},
	}
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *provider) Transcribe(ctx context.Context, req registrytranscription.Request) (registrytranscription.Response, error) {
	if req.Audio == nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: audio handle is required")
	}
	audio, err := req.Audio.Open(ctx)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: opening audio: %w", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", req.Audio.Key())
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: building request: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: copying audio: %w", err)
	}
	_ = writer.WriteField("model", req.ModelID)
	if lang, ok := req.Parameters["language"].(string); ok && lang != "" && lang != "auto" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: closing writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, &body)
	if err != nil {
		return registrytranscription.Response{}, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: read response: %w", err)
	}
	var result transcriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe: parse response: %w", err)
	}
	if result.Error != nil {
		return registrytranscription.Response{}, fmt.Errorf("groq transcribe error: %s", result.Error.Message)
	}
	return registrytranscription.Response{
		Text:     result.Text,
		Metadata: map[string]any{"provider": "groq", "model": req.ModelID},
	}, nil
}

var _ registrytranscription.Provider = (*provider)(nil)
