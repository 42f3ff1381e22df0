package stt

import (
	"context"
	"strings"
)

// TextBackend treats the audio payload as UTF-8 text. It lets the console
// harness drive the pipeline without a microphone.
type TextBackend struct{}

// Name returns the backend identifier
func (TextBackend) Name() string {
	return "text"
}

// Transcribe returns the payload as text.
func (TextBackend) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(audio.Data)), nil
}

// TextAudio wraps typed text as an Audio payload for TextBackend.
func TextAudio(text string) Audio {
	return Audio{Data: []byte(text), Silent: strings.TrimSpace(text) == ""}
}
