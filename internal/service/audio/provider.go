package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mireilabs/velora/backend/internal/config"
	"github.com/mireilabs/velora/backend/internal/fault"
)

// Transcriber converts user audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Synthesizer converts reply text into spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type httpTranscriber struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewTranscriber builds a speech-to-text client against the configured
// provider.
func NewTranscriber(cfg config.ProviderConfig, client *http.Client) Transcriber {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTranscriber{cfg: cfg, client: client}
}

func (t *httpTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/v1/transcriptions", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return out.Text, nil
}

type httpSynthesizer struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewSynthesizer builds a text-to-speech client against the configured
// provider.
func NewSynthesizer(cfg config.ProviderConfig, client *http.Client) Synthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpSynthesizer{cfg: cfg, client: client}
}

func (s *httpSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text, "voice_id": voiceID})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read synthesis body: %v", fault.ErrProviderUnavailable, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty synthesis response", fault.ErrProviderUnavailable)
	}
	return audio, nil
}

// mapStatus folds a provider HTTP status into the service fault taxonomy.
func mapStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: status %d", fault.ErrProviderRejectedInput, status)
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: status %d", fault.ErrProviderQuotaExceeded, status)
	default:
		return fmt.Errorf("%w: status %d", fault.ErrProviderUnavailable, status)
	}
}

var errNotConfigured = errors.New("audio provider not configured")
