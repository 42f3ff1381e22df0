package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/config"
	"github.com/normanking/cortexvoice/internal/conversation"
	"github.com/normanking/cortexvoice/internal/data"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/logging"
	"github.com/normanking/cortexvoice/internal/modules"
	"github.com/normanking/cortexvoice/internal/router"
	"github.com/normanking/cortexvoice/internal/scheduler"
	"github.com/normanking/cortexvoice/internal/stt"
)

// markerFile records tasks a run could not persist.
const markerFile = "unsynced_tasks.json"

// app holds the pipeline components shared by the commands.
type app struct {
	cfg       *config.Config
	bus       *bus.EventBus
	store     *data.Store
	scheduler *scheduler.Scheduler
	convo     *conversation.Manager
	router    *router.Router
	extractor *intent.Extractor
}

// openStore opens the SQLite store in the configured data directory.
func openStore(cfg *config.Config, log *logging.Logger) (*data.Store, error) {
	store, err := data.NewDB(cfg.Data.Dir, data.WithLogger(log.Component("data")))
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	return store, nil
}

// newApp opens storage, restores tasks and history, and registers the
// handler modules on a fresh router.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, error) {
	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	eventBus := bus.NewEventBus()
	bus.Journal(eventBus, log.Component("events"))

	sched := scheduler.New(
		scheduler.Config{
			ScanInterval: cfg.Scheduler.ScanInterval,
			MarkerPath:   filepath.Join(cfg.Data.Dir, markerFile),
		},
		scheduler.WithStore(store),
		scheduler.WithLogger(log.Component("scheduler")),
		scheduler.WithBus(eventBus),
	)
	if err := sched.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}

	convo := conversation.NewManager(
		conversation.Config{MaxHistory: cfg.Conversation.MaxHistory},
		conversation.WithStore(store),
		conversation.WithLogger(log.Component("conversation")),
	)
	if err := convo.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	rt := router.New(
		router.Config{
			AssistantName: cfg.Voice.AssistantName,
			ConfirmWindow: cfg.Router.ConfirmWindow,
			ErrorMessage:  cfg.Voice.ErrorMessage,
		},
		router.WithRecorder(convo),
		router.WithBus(eventBus),
		router.WithLogger(log.Component("router")),
	)
	modules.NewTaskModule(sched, store, modules.WithLogger(log.Component("tasks"))).Register(rt)
	modules.NewKnowledgeModule(nil, cfg.Router.SearchURL, modules.WithLogger(log.Component("knowledge"))).Register(rt)

	return &app{
		cfg:       cfg,
		bus:       eventBus,
		store:     store,
		scheduler: sched,
		convo:     convo,
		router:    rt,
		extractor: intent.NewExtractor(),
	}, nil
}

// Close stops the scheduler and closes storage.
func (a *app) Close() error {
	a.scheduler.Stop()
	return a.store.Close()
}

// newSelector builds the hybrid transcription selector from config. offline
// overrides the configured vosk backend when non-nil.
func newSelector(cfg *config.Config, log *logging.Logger, eventBus *bus.EventBus, offline stt.Backend) *stt.Selector {
	sttLog := log.Component("stt")
	if offline == nil {
		offline = stt.NewVoskBackend(sttLog, cfg.STT.VoskURL)
	}

	opts := []stt.Option{
		stt.WithLogger(sttLog),
		stt.WithBus(eventBus),
	}
	if cfg.STT.UseOnline {
		opts = append(opts,
			stt.WithOnline(stt.NewWhisperBackend(sttLog, stt.WhisperConfig{
				URL:      cfg.STT.WhisperURL,
				APIKey:   cfg.STT.APIKey,
				Model:    cfg.STT.WhisperModel,
				Language: cfg.STT.Language,
			})),
			stt.WithProbe(stt.NewHTTPProbe(cfg.STT.ProbeURL)),
		)
	}

	return stt.NewSelector(stt.Config{
		UseOnline:      cfg.STT.UseOnline,
		ProbeTimeout:   cfg.STT.ProbeTimeout,
		ProbeCacheTTL:  cfg.STT.ProbeCacheTTL,
		OnlineTimeout:  cfg.STT.OnlineTimeout,
		OfflineTimeout: cfg.STT.OfflineTimeout,
		OfflineRetries: cfg.STT.OfflineRetries,
		SampleRate:     cfg.STT.SampleRate,
	}, offline, opts...)
}
