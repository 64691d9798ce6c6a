// Package whisperlocal registers the "whisper-local" transcription provider,
// a thin HTTP client against a self-hosted faster-whisper HTTP server.
package whisperlocal

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
		Name: "whisper-local",
		Loader: func(_ context.Context, cfg *config.Config) (registrytranscription.Provider, error) {
			if cfg.WhisperLocalEndpoint == "" {
				return nil, fmt.Errorf("whisper-local provider: WhisperLocalEndpoint is required")
			}
			return &provider{endpoint: cfg.WhisperLocalEndpoint}, nil
		},
	})
}

type provider struct {
	endpoint string
}

func (p *provider) ID() string { return "whisper-local" }

func (p *provider) Descriptor() registrytranscription.ProviderDescriptor {
	min0, max1, min1, max10 := 0.0, 1.0, 1.0, 10.0
	return registrytranscription.ProviderDescriptor{
		ID:   "whisper-local",
		Name: "Local Whisper",
		Models: []registrytranscription.ModelDescriptor{
			{ID: "base", Name: "Base"},
			{ID: "small", Name: "Small"},
			{ID: "medium", Name: "Medium"},
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

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

func (p *provider) Transcribe(ctx context.Context, req registrytranscription.Request) (registrytranscription.Response, error) {
	if req.Audio == nil {
		return registrytranscription.Response{}, fmt.Errorf("whisper-local transcribe: audio handle is required")
	}
	audio, err := req.Audio.Open(ctx)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("whisper-local transcribe: opening audio: %w", err)
	}
	defer audio.Close()

	url := fmt.Sprintf("%s/transcribe?model=%s", p.endpoint, req.ModelID)
	if lang, ok := req.Parameters["language"].(string); ok && lang != "" {
		url += "&language=" + lang
	}
	if diarize, ok := req.Parameters["enable_diarization"].(bool); ok && diarize {
		url += "&diarize=true"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, audio)
	if err != nil {
		return registrytranscription.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("whisper-local transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return registrytranscription.Response{}, fmt.Errorf("whisper-local transcribe: read response: %w", err)
	}
	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return registrytranscription.Response{}, fmt.Errorf("whisper-local transcribe: parse response: %w", err)
	}
	if result.Error != "" {
		return registrytranscription.Response{}, fmt.Errorf("whisper-local transcribe error: %s", result.Error)
	}

	segments := make([]registrytranscription.Segment, len(result.Segments))
	for i, s := range result.Segments {
		segments[i] = registrytranscription.Segment{
			StartSeconds: s.Start,
			EndSeconds:   s.End,
			SpeakerLabel: s.Speaker,
			Text:         s.Text,
		}
	}
	return registrytranscription.Response{
		Text:     result.Text,
		Segments: segments,
		Metadata: map[string]any{"provider": "whisper-local", "model": req.ModelID},
	}, nil
}

var _ registrytranscription.Provider = (*provider)(nil)
