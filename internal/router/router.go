// Package router dispatches recognized commands to registered handlers.
//
// Route never fails: handler errors and panics become an apology response,
// and every routed command is recorded exactly once after its handler
// returns.
package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/conversation"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/metrics"
)

// ErrHandlerFailure wraps every error or panic raised by a handler.
var ErrHandlerFailure = errors.New("handler failure")

// Fixed replies.
const (
	ReplyDidNotUnderstand = "Sorry, I didn't understand that."
	ReplyUnavailable      = "That isn't available right now."
	ReplyError            = "Sorry, I encountered an error."
	ReplyThanks           = "You're welcome!"
	ReplyGoodbye          = "Goodbye! Have a great day!"
	ReplyHelp             = "I can help with system control, tasks, messaging, and information. Just ask!"
	ReplyStop             = "Okay, I'm standing by."
	ReplyCancelled        = "Okay, cancelled."
	ReplyNothingToConfirm = "There's nothing to confirm."
)

// Command is the unit of dispatch.
type Command = intent.Command

// Handler executes one or more intents.
type Handler interface {
	Handle(ctx context.Context, es intent.EntitySet) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, es intent.EntitySet) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, es intent.EntitySet) (string, error) {
	return f(ctx, es)
}

// Recorder receives every routed command with its final response.
type Recorder interface {
	AddExchange(cmd intent.Command, response string) conversation.Exchange
}

// Config configures the Router.
type Config struct {
	// AssistantName is used in the greeting
	AssistantName string
	// ConfirmWindow is how long a dangerous command waits for "yes" (default: 30s)
	ConfirmWindow time.Duration
	// ErrorMessage replaces ReplyError when set
	ErrorMessage string
}

// DefaultConfig returns default router settings.
func DefaultConfig() Config {
	return Config{
		AssistantName: "Strom",
		ConfirmWindow: 30 * time.Second,
		ErrorMessage:  ReplyError,
	}
}

// Option configures a Router.
type Option func(*Router)

// WithRecorder records every routed exchange.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// WithBus publishes routing events.
func WithBus(b *bus.EventBus) Option {
	return func(r *Router) { r.bus = b }
}

// WithLogger sets the router's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// WithClock overrides the clock used for confirmation expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// pendingCommand is a dangerous command waiting for confirmation.
type pendingCommand struct {
	cmd     Command
	handler Handler
	expires time.Time
}

// Router maps intents to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[intent.Intent]Handler
	fallback Handler
	pending  *pendingCommand

	recorder Recorder
	bus      *bus.EventBus
	log      zerolog.Logger
	now      func() time.Time
	config   Config
}

// New creates a Router with the built-in conversational replies.
func New(config Config, opts ...Option) *Router {
	if config.ConfirmWindow <= 0 {
		config.ConfirmWindow = 30 * time.Second
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = ReplyError
	}
	if config.AssistantName == "" {
		config.AssistantName = "Strom"
	}
	r := &Router{
		handlers: make(map[intent.Intent]Handler),
		log:      zerolog.Nop(),
		now:      time.Now,
		config:   config,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds h to each intent. A later registration for the same intent
// replaces the earlier one.
func (r *Router) Register(h Handler, intents ...intent.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range intents {
		r.handlers[in] = h
	}
}

// RegisterFunc is Register for a plain function.
func (r *Router) RegisterFunc(f HandlerFunc, intents ...intent.Intent) {
	r.Register(f, intents...)
}

// SetFallback sets the handler tried for unknown commands carrying raw_query.
func (r *Router) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Registered lists intents with a registered handler, sorted.
func (r *Router) Registered() []intent.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]intent.Intent, 0, len(r.handlers))
	for in := range r.handlers {
		out = append(out, in)
	}
	slices.Sort(out)
	return out
}

// Route dispatches cmd and returns the response text.
func (r *Router) Route(ctx context.Context, cmd Command) string {
	response := r.dispatch(ctx, cmd)

	metrics.IntentsRouted.WithLabelValues(string(cmd.Intent)).Inc()
	if r.recorder != nil {
		r.recorder.AddExchange(cmd, response)
	}
	r.bus.Emit(bus.EventTypeCommandRouted, map[string]any{
		"intent":   string(cmd.Intent),
		"text":     cmd.Text,
		"response": response,
	})
	return response
}

func (r *Router) dispatch(ctx context.Context, cmd Command) string {
	if resp, handled := r.resolvePending(ctx, cmd); handled {
		return resp
	}

	r.mu.RLock()
	h, ok := r.handlers[cmd.Intent]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok && cmd.Intent.Dangerous() {
		return r.park(cmd, h)
	}
	if ok {
		return r.invoke(ctx, cmd, h)
	}

	switch cmd.Intent {
	case intent.Unknown:
		if raw, ok := cmd.Entities.Str(intent.EntityRawQuery); ok && raw != "" && fallback != nil {
			return r.invoke(ctx, cmd, fallback)
		}
		return ReplyDidNotUnderstand
	case intent.Greeting:
		return fmt.Sprintf("Hello! I'm %s. How can I help?", r.config.AssistantName)
	case intent.Thanks:
		return ReplyThanks
	case intent.Goodbye:
		return ReplyGoodbye
	case intent.Help:
		return ReplyHelp
	case intent.Stop:
		return ReplyStop
	case intent.Confirm:
		return ReplyNothingToConfirm
	case intent.Deny:
		return ReplyCancelled
	default:
		return ReplyUnavailable
	}
}

// resolvePending consumes a parked dangerous command. Any reply other than
// confirm or deny drops it and is routed normally.
func (r *Router) resolvePending(ctx context.Context, cmd Command) (string, bool) {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.mu.Unlock()

	if p == nil {
		return "", false
	}
	if r.now().After(p.expires) {
		r.log.Debug().Str("intent", string(p.cmd.Intent)).Msg("confirmation expired")
		return "", false
	}

	switch cmd.Intent {
	case intent.Confirm:
		return r.invoke(ctx, p.cmd, p.handler), true
	case intent.Deny:
		return ReplyCancelled, true
	default:
		return "", false
	}
}

func (r *Router) park(cmd Command, h Handler) string {
	r.mu.Lock()
	r.pending = &pendingCommand{cmd: cmd, handler: h, expires: r.now().Add(r.config.ConfirmWindow)}
	r.mu.Unlock()

	action := "do that"
	switch cmd.Intent {
	case intent.Shutdown:
		action = "shut down the computer"
	case intent.Restart:
		action = "restart the computer"
	}
	return fmt.Sprintf("Are you sure you want to %s? Say yes to confirm.", action)
}

// Pending reports whether a dangerous command awaits confirmation.
func (r *Router) Pending() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending != nil && !r.now().After(r.pending.expires)
}

func (r *Router) invoke(ctx context.Context, cmd Command, h Handler) (response string) {
	defer func() {
		if rec := recover(); rec != nil {
			response = r.fail(cmd, fmt.Errorf("%w: panic: %v", ErrHandlerFailure, rec))
		}
	}()

	out, err := h.Handle(ctx, cmd.Entities.Clone())
	if err != nil {
		return r.fail(cmd, fmt.Errorf("%w: %w", ErrHandlerFailure, err))
	}
	if out == "" {
		out = "Done."
	}
	return out
}

func (r *Router) fail(cmd Command, err error) string {
	r.log.Error().Err(err).
		Str("intent", string(cmd.Intent)).
		Str("text", cmd.Text).
		Msg("handler failed")
	metrics.HandlerFailures.WithLabelValues(string(cmd.Intent)).Inc()
	r.bus.Emit(bus.EventTypeHandlerFailed, map[string]any{
		"intent": string(cmd.Intent),
		"error":  err.Error(),
	})
	return r.config.ErrorMessage
}
