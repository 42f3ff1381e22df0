package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/cortexvoice/internal/activation"
	"github.com/normanking/cortexvoice/internal/console"
	"github.com/normanking/cortexvoice/internal/stt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	var (
		metricsAddr string
		continuous  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the assistant",
		Long: `Start the activation cycle and the background scheduler.

Typed lines stand in for the microphone: say the wake phrase ("hey strom")
on one line and the command on the next, or both on one line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if cmd.Flags().Changed("continuous") {
				cfg.Voice.ContinuousMode = continuous
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAssistant(ctx, cmd)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "keep listening after each response until a stop command")
	return cmd
}

func runAssistant(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	cliLog := log.Component("cli")
	cliLog.Info().Str("log_file", log.GetLogPath()).Msg("assistant starting")

	if lost := a.scheduler.Lost(); len(lost) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d task(s) from the last run may not have been saved\n", len(lost))
	}

	term := console.New(cmd.InOrStdin(), cmd.OutOrStdout(),
		console.WithName(cfg.Voice.AssistantName),
		console.WithLogger(log.Component("console")),
	)

	// typed input needs no recognizer
	typed := *cfg
	typed.STT.UseOnline = false
	selector := newSelector(&typed, log, a.bus, stt.TextBackend{})

	machine := activation.New(
		activation.Config{
			AssistantName:     cfg.Voice.AssistantName,
			WakePhrase:        cfg.Voice.WakePhrase,
			StopPhrase:        cfg.Voice.StopPhrase,
			Tolerance:         cfg.Voice.PhraseTolerance,
			MaxUtterance:      cfg.Voice.MaxUtterance,
			MaxListenAttempts: cfg.Voice.MaxListenAttempts,
			ContinuousMode:    cfg.Voice.ContinuousMode,
			ErrorMessage:      cfg.Voice.ErrorMessage,
		},
		activation.Deps{
			Listener:    term,
			Capturer:    term,
			Transcriber: selector,
			Parser:      a.extractor,
			Router:      a.router,
			Resolver:    a.convo,
			Speaker:     term,
		},
		activation.WithLogger(log.Component("activation")),
		activation.WithBus(a.bus),
	)
	a.scheduler.SetNotifier(machine.Notify)

	fmt.Fprintf(cmd.OutOrStdout(), "Say %q to begin. Ctrl+D to quit.\n", cfg.Voice.WakePhrase)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// end of input ends the run
		defer cancel()
		return machine.Run(gctx)
	})

	g.Go(func() error {
		if err := a.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(a.store),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			metricsLog := log.Component("metrics")
			metricsLog.Info().Str("addr", srv.Addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// metricsMux serves prometheus metrics and a health check backed by the
// data store.
func metricsMux(store healthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
