// Package console drives the voice pipeline from a terminal: typed lines
// stand in for the background recognizer and the microphone, and responses
// are printed instead of spoken.
//
// A single reader goroutine owns the input. Every line is handed to Listen;
// a line is additionally handed to Capture only while a Capture call is
// waiting, which mirrors a microphone that hears the same audio as the
// always-on recognizer.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/stt"
)

// Console implements activation.Listener, activation.Capturer and
// activation.Speaker over a line-oriented reader and writer.
type Console struct {
	in   io.Reader
	name string
	log  zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	start sync.Once
	lines chan string
	eof   chan struct{}
	err   error

	mu      sync.Mutex
	waiters []chan string
}

// Option configures a Console.
type Option func(*Console)

// WithName sets the speaker label printed before each response.
func WithName(name string) Option {
	return func(c *Console) { c.name = name }
}

// WithLogger sets the console logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Console) { c.log = log }
}

// New creates a Console reading from in and writing to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		in:    in,
		out:   out,
		name:  "Strom",
		log:   zerolog.Nop(),
		lines: make(chan string),
		eof:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) read() {
	defer close(c.eof)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.log.Debug().Str("line", line).Msg("heard")

		c.mu.Lock()
		waiters := c.waiters
		c.waiters = nil
		c.mu.Unlock()
		for _, w := range waiters {
			w <- line
		}

		c.lines <- line
	}
	c.err = scanner.Err()
}

func (c *Console) run() {
	c.start.Do(func() { go c.read() })
}

// Listen returns the next typed line, or io.EOF once input ends.
func (c *Console) Listen(ctx context.Context) (string, error) {
	c.run()
	select {
	case line := <-c.lines:
		return line, nil
	case <-c.eof:
		if c.err != nil {
			return "", fmt.Errorf("read console: %w", c.err)
		}
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Capture waits up to maxDuration for the next typed line. No line in time,
// or the end of input, yields silent audio.
func (c *Console) Capture(ctx context.Context, maxDuration time.Duration) (stt.Audio, error) {
	c.run()
	w := make(chan string, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	defer c.drop(w)

	timer := time.NewTimer(maxDuration)
	defer timer.Stop()

	select {
	case line := <-w:
		return stt.TextAudio(line), nil
	case <-timer.C:
		return stt.Audio{Silent: true}, nil
	case <-c.eof:
		return stt.Audio{Silent: true}, nil
	case <-ctx.Done():
		return stt.Audio{}, ctx.Err()
	}
}

func (c *Console) drop(w chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Speak prints text with the assistant's label.
func (c *Console) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s: %s\n", c.name, text)
	return err
}
