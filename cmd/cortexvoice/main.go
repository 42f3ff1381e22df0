// Package main is the entry point for the cortexvoice CLI.
// cortexvoice is a voice command pipeline: wake phrase, transcription,
// rule-based intents, handler dispatch and background alarms, reminders and
// timers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/cortexvoice/internal/config"
	"github.com/normanking/cortexvoice/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	cfg     *config.Config
	log     *logging.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cortexvoice",
		Short: "cortexvoice - voice-driven command assistant",
		Long: `cortexvoice listens for a wake phrase, transcribes the command that
follows, routes it to a handler and speaks the response. Alarms,
reminders and timers run in the background.

Start the assistant:   cortexvoice run
Classify a command:    cortexvoice parse "set a timer for 5 minutes"
Transcribe a file:     cortexvoice transcribe command.wav
Scheduled tasks:       cortexvoice tasks list`,
		PersistentPreRunE: initRuntime,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if log != nil {
				return log.Close()
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.cortexvoice/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cortexvoice v%s\n", version)
		},
	})

	root.AddCommand(runCmd())
	root.AddCommand(parseCmd())
	root.AddCommand(transcribeCmd())
	root.AddCommand(tasksCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())

	return root
}

// initRuntime loads configuration and sets up logging for every command.
func initRuntime(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if verbose {
		level = logging.LevelDebug
	}
	log, err = logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   level,
		Console: cfg.Logging.Console,
		Out:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	return nil
}
