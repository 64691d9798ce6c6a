// Package assemblyai registers the "assemblyai" transcription provider: a
// thin HTTP client against AssemblyAI's upload + transcript + poll API.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gaspermerela/journal-service-sub002/internal/blob"
	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
)

const (
	uploadURL     = "https://api.assemblyai.com/v2/upload"
	transcriptURL = "https://api.assemblyai.com/v2/transcript"
	pollInterval  = 2 * time.Second
)

func init() {
	registrytranscription.Register(registrytranscription.Plugin{
		Name: "assemblyai",
		Loader: func(_ context.Context, cfg *config.Config) (registrytranscription.Provider, error) {
			if cfg.AssemblyAIAPIKey == "" {
				return nil, fmt.Errorf("assemblyai provider: AssemblyAIAPIKey is required")
			}
			return &provider{apiKey: cfg.AssemblyAIAPIKey}, nil
		},
	})
}

type provider struct {
	apiKey string
}

func (p *provider) ID() string { return "assemblyai" }

func (p *provider) Descriptor() registrytranscription.ProviderDescriptor {
	min1, max10 := 1.0, 10.0
	return registrytranscription.ProviderDescriptor{
		ID:   "assemblyai",
		Name: "AssemblyAI",
		Models: []registrytranscription.ModelDescriptor{
			{ID: "best", Name: "Best"},
			{ID: "nano", Name: "Nano"},
		},
		Parameters: map[string]registrytranscription.ParameterSchema{
			"language":           {Kind: registrytranscription.KindString, Default: "auto"},
			"enable_diarization": {Kind: registrytranscription.KindBool, Default: false},
			"speaker_count":      {Kind: registrytranscription.KindInt, Min: &min1, Max: &max10, Default: 1},
		},
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL       string `json:"audio_url"`
	SpeechModel    string `json:"speech_model,omitempty"`
	LanguageCode   string `json:"language_code,omitempty"`
	LanguageDetect bool   `json:"language_detection,omitempty"`
	SpeakerLabels  bool   `json:"speaker_labels,omitempty"`
}

type transcriptStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
	Utterances []struct {
		Start   int     `json:"start"`
		End     int     `json:"end"`
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
	} `json:"utterances"`
}

func (p *provider) Transcribe(ctx context.Context, req registrytranscription.Request) (registrytranscription.Response, error) {
	if req.Audio == nil {
		return registrytranscription.Response{}, fmt.Errorf("assemblyai transcribe: audio handle is required")
	}
	uploadedURL, err := p.upload(ctx, req.Audio)
	if err != nil {
		return registrytranscription.Response{}, err
	}

	transcriptReq := transcriptRequest{AudioURL: uploadedURL, SpeechModel: req.ModelID}
	if lang, ok := req.Parameters["language"].(string); ok && lang != "" {
		if lang == "auto" {
			transcriptReq.LanguageDetect = true
		} else {
			transcriptReq.LanguageCode = lang
		}
	}
	if diarize, ok := req.Parameters["enable_diarization"].(bool); ok {
		transcriptReq.SpeakerLabels = diarize
	}

	id, err := p.createTranscript(ctx, transcriptReq)
	if err != nil {
		return registrytranscription.Response{}, err
	}

	status, err := p.pollUntilDone(ctx, id)
	if err != nil {
		return registrytranscription.Response{}, err
	}
	if status.Status == "error" {
		return registrytranscription.Response{}, fmt.Errorf("assemblyai transcribe error: %s", status.Error)
	}

	segments := make([]registrytranscription.Segment, len(status.Utterances))
	for i, u := range status.Utterances {
		segments[i] = registrytranscription.Segment{
			StartSeconds: float64(u.Start) / 1000.0,
			EndSeconds:   float64(u.End) / 1000.0,
			SpeakerLabel: u.Speaker,
			Text:         u.Text,
		}
	}
	return registrytranscription.Response{
		Text:     status.Text,
		Segments: segments,
		Metadata: map[string]any{"provider": "assemblyai", "model": req.ModelID, "transcript_id": id},
	}, nil
}

func (p *provider) upload(ctx context.Context, audio blob.AudioHandle) (string, error) {
	reader, err := audio.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("assemblyai upload: opening audio: %w", err)
	}
	defer reader.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, reader)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("assemblyai upload: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("assemblyai upload: read response: %w", err)
	}
	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("assemblyai upload: parse response: %w", err)
	}
	return result.UploadURL, nil
}

func (p *provider) createTranscript(ctx context.Context, reqBody transcriptRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, transcriptURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("assemblyai create transcript: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("assemblyai create transcript: read response: %w", err)
	}
	var status transcriptStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("assemblyai create transcript: parse response: %w", err)
	}
	return status.ID, nil
}

func (p *provider) pollUntilDone(ctx context.Context, id string) (*transcriptStatus, error) {
	url := transcriptURL + "/" + id
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := p.fetchStatus(ctx, url)
			if err != nil {
				return nil, err
			}
			if status.Status == "completed" || status.Status == "error" {
				return status, nil
			}
		}
	}
}

func (p *provider) fetchStatus(ctx context.Context, url string) (*transcriptStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", p.apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assemblyai poll: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assemblyai poll: read response: %w", err)
	}
	var status transcriptStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("assemblyai poll: parse response: %w", err)
	}
	return &status, nil
}

var _ registrytranscription.Provider = (*provider)(nil)
