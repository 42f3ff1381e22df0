// Package stt turns captured audio into text, choosing between an online and
// an offline recognizer per utterance.
package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSpeechDetected means the capture held no usable speech.
	ErrNoSpeechDetected = errors.New("no speech detected")
	// ErrTranscriptionFailed means every backend that was tried failed.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Source identifies the backend family that produced an Utterance.
type Source string

const (
	SourceOffline Source = "offline"
	SourceOnline  Source = "online"
)

// Utterance is one recognized span of speech.
type Utterance struct {
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
	Source     Source    `json:"source"`
}

// Audio is a bounded capture of 16-bit mono PCM.
type Audio struct {
	Data       []byte
	SampleRate int
	// Silent is set by the capturer when no signal was heard at all.
	Silent bool
}

// Duration is the playback length of the capture. Zero when SampleRate is unset.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	samples := int64(len(a.Data) / 2)
	return time.Duration(samples * int64(time.Second) / int64(a.SampleRate))
}

// Trim returns a copy of a cut to at most limit. A non-positive limit or
// unknown sample rate leaves the audio unchanged.
func (a Audio) Trim(limit time.Duration) Audio {
	if limit <= 0 || a.SampleRate <= 0 || a.Duration() <= limit {
		return a
	}
	samples := int64(limit) * int64(a.SampleRate) / int64(time.Second)
	a.Data = a.Data[:samples*2]
	return a
}

// Backend is a speech recognizer.
type Backend interface {
	Name() string
	// Transcribe returns the recognized text. An empty string means the
	// backend heard nothing it could recognize.
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Probe reports whether the online backend is reachable.
type Probe interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

// Online calls f.
func (f ProbeFunc) Online(ctx context.Context) bool {
	return f(ctx)
}
