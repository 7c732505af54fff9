// Package main is the promptvault command-line interface, the in-process
// consumer of the prompt store facade.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/promptvault/promptvault/internal/config"
	"github.com/promptvault/promptvault/internal/observability"
	"github.com/promptvault/promptvault/internal/store"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "promptvault",
		Short:         "Personal prompt store with full-text search and backups",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")

	openVault := func() (*store.Vault, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger := observability.NewLogger("promptvault", nil)
		metrics := observability.NewMetrics(logger)
		metrics.SetSlowThreshold(cfg.SlowOp())
		return store.Open(store.Options{
			Path:               cfg.DBPath,
			BackupDir:          cfg.BackupDir,
			MaxBackups:         cfg.MaxBackups,
			DuplicateThreshold: cfg.Dedupe.Threshold,
			MinDuplicateTokens: cfg.Dedupe.MinTokens,
			Logger:             logger,
			Metrics:            metrics,
		})
	}

	root.AddCommand(
		newInitCmd(openVault),
		newAddCmd(openVault),
		newListCmd(openVault),
		newSearchCmd(openVault),
		newUseCmd(openVault),
		newRemoveCmd(openVault),
		newBackupCmd(openVault),
		newExportCmd(openVault),
		newImportCmd(openVault),
		newStatsCmd(openVault),
	)
	return root
}

type vaultOpener func() (*store.Vault, error)

func newInitCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store schema if absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "store ready")
			return nil
		},
	}
}

func newAddCmd(open vaultOpener) *cobra.Command {
	var (
		category, folder, notes string
		tags                    []string
		rating                  int
		force                   bool
	)
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Insert a prompt (duplicate-checked unless --force)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			p, err := v.Insert(cmd.Context(), store.Prompt{
				Text:     args[0],
				Category: category,
				Folder:   folder,
				Tags:     tags,
				Rating:   rating,
				Notes:    notes,
			}, force)
			var dup *store.DuplicateError
			if errors.As(err, &dup) {
				fmt.Fprintf(cmd.OutOrStdout(),
					"refused: %d near-duplicate(s); first match: %q\n",
					len(dup.Matches), truncate(dup.Matches[0].Text, 60))
				fmt.Fprintln(cmd.OutOrStdout(), "re-run with --force to insert anyway")
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "category name")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "folder name")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "free-text notes")
	cmd.Flags().IntVarP(&rating, "rating", "r", 0, "rating 0-5 (0 = unrated)")
	cmd.Flags().BoolVar(&force, "force", false, "skip duplicate detection")
	return cmd
}

func newListCmd(open vaultOpener) *cobra.Command {
	var (
		category, folder string
		minRating        int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompts, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			ctx := cmd.Context()
			var prompts []store.Prompt
			switch {
			case category != "":
				prompts, err = v.FindByCategory(ctx, category)
			case folder != "":
				prompts, err = v.FindByFolder(ctx, folder)
			case minRating > 0:
				prompts, err = v.FindByMinRating(ctx, minRating)
			default:
				prompts, err = v.ListAll(ctx)
			}
			if err != nil {
				return err
			}
			printPrompts(cmd, prompts)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "filter by folder")
	cmd.Flags().IntVar(&minRating, "min-rating", 0, "filter by minimum rating")
	return cmd
}

func newSearchCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over text, notes, and tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			prompts, err := v.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printPrompts(cmd, prompts)
			return nil
		},
	}
}

func newUseCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Record one usage of a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()
			return v.RecordUsage(cmd.Context(), args[0])
		},
	}
}

func newRemoveCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete prompts by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			deleted, err := v.DeleteMany(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d prompt(s)\n", len(deleted))
			return nil
		},
	}
}

func newBackupCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent snapshot and prune old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			path, err := v.Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newExportCmd(open vaultOpener) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full store as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			snap, err := v.Load(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func newImportCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the entire prompt set from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var snap store.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("parse %q: %w", args[0], err)
			}

			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			if err := v.Save(cmd.Context(), snap.Prompts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d prompt(s)\n", len(snap.Prompts))
			return nil
		},
	}
}

func newStatsCmd(open vaultOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show operation timings, store size, and today's activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := open()
			if err != nil {
				return err
			}
			defer v.Close()

			ctx := cmd.Context()
			count, err := v.Count(ctx)
			if err != nil {
				return err
			}
			today, err := v.AnalyticsFor(ctx, time.Now().UTC().Format("2006-01-02"))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "prompts:     %d\n", count)
			fmt.Fprintf(out, "file size:   %d bytes\n", v.FileSize())
			fmt.Fprintf(out, "today:       %d created, %d used, %d backups\n",
				today.PromptsCreated, today.PromptsUsed, today.BackupCount)
			for op, s := range v.OpStats() {
				fmt.Fprintf(out, "op %-8s  count=%d avg=%s min=%s max=%s\n",
					op, s.Count, s.Avg, s.Min, s.Max)
			}
			return nil
		},
	}
}

func printPrompts(cmd *cobra.Command, prompts []store.Prompt) {
	out := cmd.OutOrStdout()
	if len(prompts) == 0 {
		fmt.Fprintln(out, "no prompts")
		return
	}
	for _, p := range prompts {
		line := fmt.Sprintf("%s  %s", p.ID, truncate(p.Text, 70))
		if p.Category != "" {
			line += "  [" + p.Category + "]"
		}
		if len(p.Tags) > 0 {
			line += "  #" + strings.Join(p.Tags, " #")
		}
		fmt.Fprintln(out, line)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
