package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/rs/zerolog"
)

// DefaultWhisperURL is OpenAI's transcription endpoint.
const DefaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// WhisperConfig holds Whisper API configuration
type WhisperConfig struct {
	URL      string
	APIKey   string
	Model    string // "whisper-1"
	Language string // optional language hint
}

// WhisperBackend is the online backend. It speaks the OpenAI-compatible
// multipart transcription API, which local servers such as faster-whisper
// also expose.
type WhisperBackend struct {
	apiKey string
	client *http.Client
	log    zerolog.Logger
	config WhisperConfig
}

// NewWhisperBackend creates an online backend. The API key falls back to
// OPENAI_API_KEY. Timeouts come from the caller's context.
func NewWhisperBackend(log zerolog.Logger, config WhisperConfig) *WhisperBackend {
	if config.URL == "" {
		config.URL = DefaultWhisperURL
	}
	if config.Model == "" {
		config.Model = "whisper-1"
	}
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &WhisperBackend{
		apiKey: apiKey,
		client: &http.Client{},
		log:    log.With().Str("backend", "whisper").Logger(),
		config: config,
	}
}

// Name returns the backend identifier
func (w *WhisperBackend) Name() string {
	return "whisper"
}

// Transcribe uploads audio as a WAV file.
func (w *WhisperBackend) Transcribe(ctx context.Context, audio Audio) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(EncodeWAV(audio)); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.config.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if w.config.Language != "" {
		if err := writer.WriteField("language", w.config.Language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		w.log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("whisper API error")
		return "", fmt.Errorf("whisper API status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return result.Text, nil
}
