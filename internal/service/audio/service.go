// Package audio wraps the speech providers: transcription of user audio,
// synthesis of persona replies, and the text sanitizer that sits in front
// of synthesis.
package audio

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mireilabs/velora/backend/internal/config"
	"github.com/mireilabs/velora/backend/internal/fault"
)

// Service bounds every provider call with a timeout and falls back to a
// secondary synthesizer when the primary is unavailable.
type Service struct {
	transcriber Transcriber
	synthesizer Synthesizer
	fallback    Synthesizer
	timeout     time.Duration
}

// NewService wires the providers from configuration. Unconfigured
// providers stay nil and the matching operation fails fast.
func NewService(cfg config.AudioConfig) *Service {
	s := &Service{timeout: cfg.Timeout}
	if cfg.Transcription.Configured() {
		s.transcriber = NewTranscriber(cfg.Transcription, nil)
	}
	if cfg.Synthesis.Configured() {
		s.synthesizer = NewSynthesizer(cfg.Synthesis, nil)
	}
	if cfg.Fallback.Configured() {
		s.fallback = NewSynthesizer(cfg.Fallback, nil)
	}
	return s
}

// NewServiceWith injects providers directly, for tests.
func NewServiceWith(t Transcriber, primary, fallback Synthesizer, timeout time.Duration) *Service {
	return &Service{transcriber: t, synthesizer: primary, fallback: fallback, timeout: timeout}
}

// Transcribe converts user audio to text. There is no transcription
// fallback: without the user's words the turn cannot proceed, so failures
// surface to the caller immediately.
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if s.transcriber == nil {
		return "", fmt.Errorf("%w: transcription: %w", fault.ErrProviderUnavailable, errNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Synthesize sanitizes the text and converts it to speech. When the
// primary provider is unavailable the fallback gets exactly one attempt;
// input rejections and quota errors are not retried anywhere.
func (s *Service) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.synthesizer == nil {
		return nil, fmt.Errorf("%w: synthesis: %w", fault.ErrProviderUnavailable, errNotConfigured)
	}

	spoken := SanitizeForSpeech(text)
	if spoken == "" {
		return nil, fmt.Errorf("%w: nothing speakable after sanitizing", fault.ErrProviderRejectedInput)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	audio, err := s.synthesizer.Synthesize(callCtx, spoken, voiceID)
	cancel()
	if err == nil {
		return audio, nil
	}
	if s.fallback == nil || !fault.Transient(err) {
		return nil, err
	}

	log.Printf("[audio] primary synthesis failed, trying fallback: %v", err)

	callCtx, cancel = context.WithTimeout(ctx, s.timeout)
	defer cancel()
	audio, ferr := s.fallback.Synthesize(callCtx, spoken, voiceID)
	if ferr != nil {
		return nil, fmt.Errorf("fallback after %v: %w", err, ferr)
	}
	return audio, nil
}
