package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (c *Console) waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func TestListen_LinesThenEOF(t *testing.T) {
	c := New(strings.NewReader("hey strom\n\n  what time is it  \n"), io.Discard)
	ctx := context.Background()

	line, err := c.Listen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hey strom", line)

	line, err = c.Listen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "what time is it", line)

	_, err = c.Listen(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestListen_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Listen(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCapture_TeesLineWhileWaiting(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New(pr, io.Discard)
	ctx := context.Background()

	type result struct {
		text   string
		silent bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		audio, err := c.Capture(ctx, 5*time.Second)
		done <- result{string(audio.Data), audio.Silent, err}
	}()
	require.Eventually(t, func() bool { return c.waiting() == 1 }, time.Second, 5*time.Millisecond)

	go pw.Write([]byte("open chrome\n"))

	// the listener sees the same line
	line, err := c.Listen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "open chrome", line)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "open chrome", res.text)
	assert.False(t, res.silent)
	assert.Zero(t, c.waiting())
}

func TestCapture_TimeoutIsSilent(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New(pr, io.Discard)

	audio, err := c.Capture(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, audio.Silent)
	assert.Zero(t, c.waiting())
}

func TestCapture_EndOfInputIsSilent(t *testing.T) {
	c := New(strings.NewReader(""), io.Discard)

	audio, err := c.Capture(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, audio.Silent)
}

func TestCapture_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Capture(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpeak(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out, WithName("Jarvis"))

	require.NoError(t, c.Speak(context.Background(), "Hello!"))
	require.NoError(t, c.Speak(context.Background(), "Goodbye."))
	assert.Equal(t, "Jarvis: Hello!\nJarvis: Goodbye.\n", out.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Speak(ctx, "dropped"))
}
