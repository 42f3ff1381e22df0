package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultVoskURL is where vosk-server listens by default.
const DefaultVoskURL = "ws://127.0.0.1:2700"

// voskChunk matches the reference client's 4000-frame reads.
const voskChunk = 8000

// VoskBackend is the offline backend. It streams PCM to a local vosk-server
// over its websocket protocol: a config message, binary chunks, then
// {"eof":1} answered by the final result.
type VoskBackend struct {
	url    string
	dialer websocket.Dialer
	log    zerolog.Logger
}

// NewVoskBackend creates an offline backend for the server at url.
func NewVoskBackend(log zerolog.Logger, url string) *VoskBackend {
	if url == "" {
		url = DefaultVoskURL
	}
	return &VoskBackend{
		url:    url,
		dialer: websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		log:    log.With().Str("backend", "vosk").Logger(),
	}
}

// Name returns the backend identifier
func (v *VoskBackend) Name() string {
	return "vosk"
}

type voskConfig struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type voskResult struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

// Transcribe streams audio and joins every final result the server returns.
func (v *VoskBackend) Transcribe(ctx context.Context, audio Audio) (string, error) {
	conn, resp, err := v.dialer.DialContext(ctx, v.url, nil)
	if err != nil {
		if resp != nil {
			v.log.Error().Int("status", resp.StatusCode).Err(err).Msg("vosk connection failed")
		}
		return "", fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	// unblock reads when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var cfg voskConfig
	cfg.Config.SampleRate = audio.SampleRate
	if cfg.Config.SampleRate <= 0 {
		cfg.Config.SampleRate = 16000
	}
	if err := conn.WriteJSON(cfg); err != nil {
		return "", v.wrap(ctx, "send config", err)
	}

	var parts []string
	for data := audio.Data; len(data) > 0; {
		n := min(voskChunk, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[:n]); err != nil {
			return "", v.wrap(ctx, "send audio", err)
		}
		data = data[n:]

		res, err := v.read(conn)
		if err != nil {
			return "", v.wrap(ctx, "read result", err)
		}
		if res.Text != nil && *res.Text != "" {
			parts = append(parts, *res.Text)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return "", v.wrap(ctx, "send eof", err)
	}
	// partials may still be queued ahead of the final result
	for {
		res, err := v.read(conn)
		if err != nil {
			return "", v.wrap(ctx, "read final result", err)
		}
		if res.Text == nil {
			continue
		}
		if *res.Text != "" {
			parts = append(parts, *res.Text)
		}
		break
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	text := strings.Join(parts, " ")
	v.log.Debug().Str("text", text).Msg("vosk transcript")
	return text, nil
}

func (v *VoskBackend) read(conn *websocket.Conn) (voskResult, error) {
	var res voskResult
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(msg, &res); err != nil {
		return res, fmt.Errorf("parse result %q: %w", msg, err)
	}
	return res, nil
}

func (v *VoskBackend) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, err)
}
