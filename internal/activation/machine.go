// Package activation runs the top-level voice cycle: wait for the wake
// phrase, capture a command, transcribe, route and speak the response.
//
// The Machine is the only writer of its state and engaged flag. Each command
// cycle runs in its own goroutine under a cancellable context so the stop
// phrase can abort it; a generation counter keeps a cancelled cycle from
// touching the state after it has been replaced.
package activation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/metrics"
	"github.com/normanking/cortexvoice/internal/scheduler"
	"github.com/normanking/cortexvoice/internal/stt"
)

// State is the machine's position in the voice cycle.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateResponding State = "responding"
)

// Listener yields every phrase the background recognizer hears. It returns
// io.EOF when the input is exhausted.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Capturer records one command, bounded by maxDuration.
type Capturer interface {
	Capture(ctx context.Context, maxDuration time.Duration) (stt.Audio, error)
}

// Transcriber is implemented by *stt.Selector.
type Transcriber interface {
	Transcribe(ctx context.Context, audio stt.Audio, maxDuration time.Duration) (stt.Utterance, error)
}

// Parser is implemented by *intent.Extractor.
type Parser interface {
	Parse(text string) intent.Command
}

// Router is implemented by *router.Router.
type Router interface {
	Route(ctx context.Context, cmd intent.Command) string
}

// Resolver fills pronoun references and follow-up subjects from
// conversation context. Implemented by *conversation.Manager.
type Resolver interface {
	ResolvePronounReference(text string, in intent.Intent, es intent.EntitySet) intent.EntitySet
	ResolveFollowUp(cmd intent.Command) intent.EntitySet
}

// Speaker voices responses. Failures are logged and never end a cycle.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Deps are the machine's collaborators. Resolver is optional.
type Deps struct {
	Listener    Listener
	Capturer    Capturer
	Transcriber Transcriber
	Parser      Parser
	Router      Router
	Resolver    Resolver
	Speaker     Speaker
}

// Config configures the Machine.
type Config struct {
	AssistantName string
	WakePhrase    string
	StopPhrase    string
	// Tolerance is the fuzzy phrase tolerance (0-1)
	Tolerance float64
	// MaxUtterance bounds each capture and transcription
	MaxUtterance time.Duration
	// MaxListenAttempts is how many silent captures end a cycle
	MaxListenAttempts int
	// ContinuousMode keeps listening after each response until a stop
	ContinuousMode bool
	// ErrorMessage is spoken when routing panics
	ErrorMessage string
}

// DefaultConfig returns default activation settings.
func DefaultConfig() Config {
	return Config{
		AssistantName:     "Strom",
		WakePhrase:        "hey strom",
		StopPhrase:        "stop strom",
		Tolerance:         0.5,
		MaxUtterance:      10 * time.Second,
		MaxListenAttempts: 2,
		ErrorMessage:      "Sorry, I encountered an error.",
	}
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithBus publishes state changes and phrase detections.
func WithBus(b *bus.EventBus) Option {
	return func(m *Machine) { m.bus = b }
}

// WithResponses replaces the acknowledgement pool. intn picks an index and
// may be nil for math/rand.
func WithResponses(pool ResponsePool, intn func(int) int) Option {
	return func(m *Machine) {
		m.responses = pool
		m.intn = intn
	}
}

// Machine is the activation state machine.
type Machine struct {
	mu         sync.Mutex
	state      State
	engaged    bool
	gen        uint64
	cancel     context.CancelFunc
	introduced bool
	due        []scheduler.Task
	dueSignal  chan struct{}

	wake      *PhraseMatcher
	stop      *PhraseMatcher
	responses ResponsePool
	intn      func(int) int

	deps   Deps
	bus    *bus.EventBus
	log    zerolog.Logger
	config Config
}

// New creates a Machine in the idle state.
func New(config Config, deps Deps, opts ...Option) *Machine {
	def := DefaultConfig()
	if config.WakePhrase == "" {
		config.WakePhrase = def.WakePhrase
	}
	if config.StopPhrase == "" {
		config.StopPhrase = def.StopPhrase
	}
	if config.AssistantName == "" {
		config.AssistantName = def.AssistantName
	}
	if config.MaxListenAttempts <= 0 {
		config.MaxListenAttempts = 1
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = def.ErrorMessage
	}

	m := &Machine{
		state:     StateIdle,
		dueSignal: make(chan struct{}, 1),
		wake:      NewPhraseMatcher(config.WakePhrase, config.Tolerance),
		stop:      NewPhraseMatcher(config.StopPhrase, config.Tolerance),
		responses: DefaultResponsePool(),
		deps:      deps,
		log:       zerolog.Nop(),
		config:    config,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Engaged reports whether a command cycle is in progress.
func (m *Machine) Engaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engaged
}

// Notify queues a triggered task for announcement. It never blocks, so it
// can serve as the scheduler's notifier.
func (m *Machine) Notify(t scheduler.Task) {
	m.mu.Lock()
	m.due = append(m.due, t)
	m.mu.Unlock()

	select {
	case m.dueSignal <- struct{}{}:
	default:
	}
}

// Run drives the machine until ctx is done or the listener is exhausted.
// A cycle in progress when the listener ends is allowed to finish.
func (m *Machine) Run(ctx context.Context) error {
	var cycles sync.WaitGroup
	defer cycles.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	heard := make(chan string)
	listenErr := make(chan error, 1)
	go m.listen(ctx, heard, listenErr)
	done := make(chan uint64)

	m.log.Info().Str("wake_phrase", m.wake.Phrase).Str("stop_phrase", m.stop.Phrase).Msg("activation machine running")

	draining := false
	for {
		select {
		case <-ctx.Done():
			m.interrupt()
			return nil

		case text := <-heard:
			if start, inline := m.hear(text); start {
				m.startCycle(ctx, inline, done, &cycles)
			}

		case err := <-listenErr:
			heard, listenErr = nil, nil
			if !errors.Is(err, io.EOF) {
				m.interrupt()
				return fmt.Errorf("listener: %w", err)
			}
			if !m.Engaged() {
				m.announce(ctx)
				return nil
			}
			draining = true

		case gen := <-done:
			m.finishCycle(gen)
			if m.Engaged() {
				continue
			}
			m.announce(ctx)
			if draining {
				return nil
			}

		case <-m.dueSignal:
			if !m.Engaged() {
				m.announce(ctx)
			}
		}
	}
}

func (m *Machine) listen(ctx context.Context, heard chan<- string, errc chan<- error) {
	for {
		text, err := m.deps.Listener.Listen(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errc <- err
			}
			return
		}
		select {
		case heard <- text:
		case <-ctx.Done():
			return
		}
	}
}

// hear classifies a background phrase. While idle only the wake phrase
// matters; while engaged only the stop phrase does, and only when the text
// is mostly that phrase, so a command mentioning it is not an interrupt.
// When text is close to both phrases the closer one wins, and a tie goes
// to the phrase that fits the current state.
func (m *Machine) hear(text string) (start bool, inline string) {
	wake, stop := m.wake.Score(text), m.stop.Score(text)

	if m.Engaged() {
		if m.stop.Whole(text) && stop > wake {
			m.log.Info().Str("heard", text).Msg("stop phrase detected")
			m.bus.Emit(bus.EventTypeStopPhrase, map[string]any{"text": text})
			m.interrupt()
		}
		return false, ""
	}

	rest, ok := m.wake.Remainder(text)
	if !ok || wake < stop {
		return false, ""
	}
	m.log.Info().Str("heard", text).Msg("wake phrase detected")
	m.bus.Emit(bus.EventTypeWake, map[string]any{"text": text})
	return true, rest
}

func (m *Machine) startCycle(ctx context.Context, inline string, done chan<- uint64, cycles *sync.WaitGroup) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.engaged = true
	cctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	metrics.Engaged.Set(1)

	cycles.Add(1)
	go func() {
		defer cycles.Done()
		defer cancel()
		m.cycle(cctx, gen, inline)
		select {
		case done <- gen:
		case <-ctx.Done():
		}
	}()
}

// interrupt cancels the in-flight cycle and returns to idle. Scheduled
// tasks are untouched.
func (m *Machine) interrupt() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	gen := m.gen
	m.engaged = false
	m.mu.Unlock()
	metrics.Engaged.Set(0)

	m.transition(gen, StateIdle)
}

func (m *Machine) finishCycle(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.engaged = false
	m.cancel = nil
	m.mu.Unlock()
	metrics.Engaged.Set(0)

	m.transition(gen, StateIdle)
}

// transition moves to state to on behalf of cycle gen. Stale cycles are
// ignored.
func (m *Machine) transition(gen uint64, to State) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	from := m.state
	m.state = to
	m.mu.Unlock()

	if from == to {
		return true
	}
	metrics.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
	m.bus.Emit(bus.EventTypeStateChanged, map[string]any{"from": string(from), "to": string(to)})
	m.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state changed")
	return true
}

// cycle handles one engagement. inline is a command spoken together with
// the wake phrase.
func (m *Machine) cycle(ctx context.Context, gen uint64, inline string) {
	m.transition(gen, StateListening)
	if inline == "" {
		m.speak(ctx, m.acknowledgement())
	}

	text := inline
	attempts := 0
	for {
		if text == "" {
			var err error
			text, err = m.hearCommand(ctx, gen)
			if ctx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, stt.ErrNoSpeechDetected):
				attempts++
				if attempts >= m.config.MaxListenAttempts {
					m.log.Debug().Int("attempts", attempts).Msg("no speech, going idle")
					return
				}
				m.transition(gen, StateListening)
				continue
			case err != nil:
				m.log.Warn().Err(err).Msg("command not heard")
				m.transition(gen, StateResponding)
				m.speak(ctx, ReplyNotHeard)
				return
			}
		}
		attempts = 0
		m.transition(gen, StateProcessing)

		cmd := m.deps.Parser.Parse(text)
		// a spoken "stop" is routed so it is answered; a misheard stop
		// phrase that parses as anything else just ends the cycle
		if cmd.Intent != intent.Stop && m.stop.Whole(text) && m.stop.Score(text) > m.wake.Score(text) {
			m.log.Info().Str("heard", text).Msg("stop phrase in command")
			m.bus.Emit(bus.EventTypeStopPhrase, map[string]any{"text": text})
			return
		}
		if m.deps.Resolver != nil {
			cmd.Entities = m.deps.Resolver.ResolvePronounReference(text, cmd.Intent, cmd.Entities)
			cmd.Entities = m.deps.Resolver.ResolveFollowUp(cmd)
		}

		m.transition(gen, StateResponding)
		response := m.route(ctx, cmd)
		if ctx.Err() != nil {
			return
		}
		m.speak(ctx, response)

		if cmd.Intent == intent.Stop || !m.config.ContinuousMode {
			return
		}
		text = ""
		m.transition(gen, StateListening)
	}
}

func (m *Machine) hearCommand(ctx context.Context, gen uint64) (string, error) {
	audio, err := m.deps.Capturer.Capture(ctx, m.config.MaxUtterance)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	m.transition(gen, StateProcessing)

	u, err := m.deps.Transcriber.Transcribe(ctx, audio, m.config.MaxUtterance)
	if err != nil {
		return "", err
	}
	return u.Text, nil
}

func (m *Machine) route(ctx context.Context, cmd intent.Command) (response string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("intent", string(cmd.Intent)).Msg("routing panicked")
			response = m.config.ErrorMessage
		}
	}()
	return m.deps.Router.Route(ctx, cmd)
}

func (m *Machine) acknowledgement() string {
	m.mu.Lock()
	first := !m.introduced
	m.introduced = true
	m.mu.Unlock()
	return m.responses.pick(first, m.config.AssistantName, m.intn)
}

func (m *Machine) speak(ctx context.Context, text string) {
	if text == "" || m.deps.Speaker == nil {
		return
	}
	if err := m.deps.Speaker.Speak(ctx, text); err != nil {
		m.log.Warn().Err(err).Str("text", text).Msg("speak failed")
	}
}

// announce speaks queued task announcements.
func (m *Machine) announce(ctx context.Context) {
	m.mu.Lock()
	due := m.due
	m.due = nil
	m.mu.Unlock()

	for _, t := range due {
		m.speak(ctx, Announcement(t))
	}
}
