package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/cortexvoice/internal/config"
	"github.com/normanking/cortexvoice/internal/conversation"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/scheduler"
	"github.com/normanking/cortexvoice/internal/stt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PARSE / TRANSCRIBE
// ═══════════════════════════════════════════════════════════════════════════════

func parseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse [text]",
		Short: "Classify a command and print its intent and entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := intent.NewExtractor().Parse(strings.Join(args, " "))
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(parsed)
			}

			fmt.Fprintf(out, "Intent:   %s (%s)\n", parsed.Intent, parsed.Intent.Family())
			if len(parsed.Entities) == 0 {
				fmt.Fprintln(out, "Entities: none")
				return nil
			}
			fmt.Fprintln(out, "Entities:")
			for _, key := range sortedKeys(parsed.Entities) {
				v := parsed.Entities[key]
				fmt.Fprintf(out, "  %-10s %s (%s)\n", key, v, v.Kind)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the command as JSON")
	return cmd
}

func transcribeCmd() *cobra.Command {
	var offlineOnly bool

	cmd := &cobra.Command{
		Use:   "transcribe [file.wav]",
		Short: "Transcribe a 16-bit mono WAV file with the hybrid selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open audio: %w", err)
			}
			defer f.Close()

			audio, err := stt.DecodeWAV(f)
			if err != nil {
				return err
			}

			sttCfg := *cfg
			if offlineOnly {
				sttCfg.STT.UseOnline = false
			}
			selector := newSelector(&sttCfg, log, nil, nil)

			u, err := selector.Transcribe(cmd.Context(), audio, cfg.Voice.MaxUtterance)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", u.Source, u.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offlineOnly, "offline", false, "skip the online backend")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// TASKS / HISTORY
// ═══════════════════════════════════════════════════════════════════════════════

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect scheduled alarms, reminders and timers",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			// read the store directly so listing never triggers due tasks
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := store.LoadTasks(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				tasks = slices.DeleteFunc(tasks, func(t scheduler.Task) bool { return t.Triggered })
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No scheduled tasks.")
				return nil
			}
			for _, t := range tasks {
				status := "pending"
				if t.Triggered {
					status = "done " + t.TriggeredAt.Format(time.DateTime)
				}
				fmt.Fprintf(out, "%4d  %-8s  %s  %-24s  %s\n",
					t.ID, t.Kind, t.DueAt.Format(time.DateTime), status, t.Message)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include triggered tasks")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.scheduler.Cancel(id) {
				return fmt.Errorf("no pending task %d", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %d.\n", id)
			return nil
		},
	})

	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit        int
		clearHistory bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversation exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			convo := conversation.NewManager(
				conversation.Config{MaxHistory: cfg.Conversation.MaxHistory},
				conversation.WithStore(store),
				conversation.WithLogger(log.Component("conversation")),
			)
			if err := convo.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load conversation history: %w", err)
			}
			out := cmd.OutOrStdout()

			if clearHistory {
				if err := convo.ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Conversation history cleared.")
				return nil
			}

			exchanges := convo.History()
			if limit > 0 {
				exchanges = convo.Recent(limit)
			}
			if len(exchanges) == 0 {
				fmt.Fprintln(out, "No conversation history.")
				return nil
			}
			for _, ex := range exchanges {
				fmt.Fprintf(out, "%s  [%s] %s\n", ex.Timestamp.Format(time.DateTime), ex.Intent, ex.Text)
				fmt.Fprintf(out, "                     -> %s\n", ex.Response)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, convo.Summary())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of exchanges to show (0 for all)")
	cmd.Flags().BoolVar(&clearHistory, "clear", false, "delete the stored history")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *cfg
			if shown.STT.APIKey != "" {
				shown.STT.APIKey = "********"
			}
			data, err := shown.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func sortedKeys(es intent.EntitySet) []string {
	return slices.Sorted(maps.Keys(es))
}
