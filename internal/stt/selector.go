package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/metrics"
)

const probeCacheKey = "online"

// Config holds the selection policy.
type Config struct {
	UseOnline      bool
	ProbeTimeout   time.Duration
	ProbeCacheTTL  time.Duration
	OnlineTimeout  time.Duration
	OfflineTimeout time.Duration
	// OfflineRetries is the number of extra offline attempts after a failure
	OfflineRetries int
	// SampleRate is assumed for captures that do not report one (default: 16000)
	SampleRate int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		UseOnline:      true,
		ProbeTimeout:   3 * time.Second,
		ProbeCacheTTL:  10 * time.Second,
		OnlineTimeout:  30 * time.Second,
		OfflineTimeout: 15 * time.Second,
		SampleRate:     16000,
	}
}

// Option configures a Selector.
type Option func(*Selector)

// WithOnline sets the online backend.
func WithOnline(b Backend) Option {
	return func(s *Selector) { s.online = b }
}

// WithProbe sets the connectivity probe. Without one the selector assumes it
// is offline.
func WithProbe(p Probe) Option {
	return func(s *Selector) { s.probe = p }
}

// WithLogger sets the selector's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Selector) { s.log = log }
}

// WithBus publishes transcription events.
func WithBus(b *bus.EventBus) Option {
	return func(s *Selector) { s.bus = b }
}

// WithClock overrides the clock used for Utterance.CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// Selector picks a backend per utterance: online when enabled and reachable,
// otherwise offline, falling back to offline when the online attempt fails.
type Selector struct {
	offline Backend
	online  Backend
	probe   Probe
	probes  *cache.Cache

	bus    *bus.EventBus
	log    zerolog.Logger
	now    func() time.Time
	config Config
}

// NewSelector creates a Selector around a required offline backend.
func NewSelector(config Config, offline Backend, opts ...Option) *Selector {
	ttl := config.ProbeCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	s := &Selector{
		offline: offline,
		probes:  cache.New(ttl, 2*ttl),
		log:     zerolog.Nop(),
		now:     time.Now,
		config:  config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe recognizes audio, cut to maxDuration first.
//
// Silent or empty audio and an empty transcript from the last backend tried
// return ErrNoSpeechDetected. When every attempt fails the error wraps
// ErrTranscriptionFailed and each attempt's cause.
func (s *Selector) Transcribe(ctx context.Context, audio Audio, maxDuration time.Duration) (Utterance, error) {
	if audio.Silent || len(audio.Data) == 0 {
		return s.noSpeech("silent capture")
	}
	if audio.SampleRate <= 0 {
		audio.SampleRate = s.config.SampleRate
	}
	audio = audio.Trim(maxDuration)

	var errs []error
	if s.useOnline(ctx) {
		text, err := s.attempt(ctx, s.online, s.config.OnlineTimeout, audio)
		if err == nil && text != "" {
			return s.result(text, SourceOnline)
		}
		if err == nil {
			err = errors.New("empty transcript")
		}
		errs = append(errs, fmt.Errorf("online %s: %w", s.online.Name(), err))
		s.log.Warn().Err(err).Str("backend", s.online.Name()).Msg("online transcription failed, falling back to offline")
	}

	for i := 0; i <= max(s.config.OfflineRetries, 0); i++ {
		text, err := s.attempt(ctx, s.offline, s.config.OfflineTimeout, audio)
		if err == nil {
			if text == "" {
				return s.noSpeech("empty transcript")
			}
			return s.result(text, SourceOffline)
		}
		errs = append(errs, fmt.Errorf("offline %s attempt %d: %w", s.offline.Name(), i+1, err))
		if ctx.Err() != nil {
			break
		}
	}

	err := fmt.Errorf("%w: %w", ErrTranscriptionFailed, errors.Join(errs...))
	s.log.Error().Err(err).Msg("all transcription backends failed")
	s.bus.Emit(bus.EventTypeSTTFailed, map[string]any{"error": err.Error()})
	return Utterance{}, err
}

func (s *Selector) useOnline(ctx context.Context) bool {
	if !s.config.UseOnline || s.online == nil || s.probe == nil {
		return false
	}
	if v, ok := s.probes.Get(probeCacheKey); ok {
		return v.(bool)
	}

	timeout := s.config.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	online := s.probe.Online(pctx) && pctx.Err() == nil
	if ctx.Err() != nil {
		// the caller gave up, which says nothing about connectivity
		return false
	}
	s.probes.SetDefault(probeCacheKey, online)
	s.log.Debug().Bool("online", online).Msg("connectivity probed")
	return online
}

func (s *Selector) attempt(ctx context.Context, b Backend, timeout time.Duration, audio Audio) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := b.Transcribe(ctx, audio)
	metrics.TranscriptionLatency.WithLabelValues(b.Name()).Observe(time.Since(start).Seconds())

	text = strings.TrimSpace(text)
	switch {
	case err != nil:
		metrics.Transcriptions.WithLabelValues(b.Name(), "error").Inc()
	case text == "":
		metrics.Transcriptions.WithLabelValues(b.Name(), "empty").Inc()
	default:
		metrics.Transcriptions.WithLabelValues(b.Name(), "ok").Inc()
	}
	return text, err
}

func (s *Selector) result(text string, source Source) (Utterance, error) {
	u := Utterance{Text: text, CapturedAt: s.now(), Source: source}
	s.log.Info().Str("text", text).Str("source", string(source)).Msg("transcription complete")
	s.bus.Emit(bus.EventTypeSTTResult, map[string]any{"text": text, "source": string(source)})
	return u, nil
}

func (s *Selector) noSpeech(reason string) (Utterance, error) {
	s.log.Debug().Str("reason", reason).Msg("no speech detected")
	s.bus.Emit(bus.EventTypeSTTNoSpeech, map[string]any{"reason": reason})
	return Utterance{}, ErrNoSpeechDetected
}
