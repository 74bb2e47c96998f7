package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/floodwatch/internal/app"
	"github.com/okian/floodwatch/internal/domain/reconcile"
	"github.com/okian/floodwatch/internal/domain/types"
)

const defaultLogLimit = 10

// NewSyncCommand creates the sync command. It runs one pass and waits for it.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync",
		Short:         "Deliver pending and failed submissions now",
		Long:          "Runs one manual sync pass in the foreground and reports its counts.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				res, err := svc.RunSync(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "running sync pass", err)
				}
				if res.Skipped {
					return WrapExitError(ExitFailure, "sync pass skipped", reconcile.ErrPassInProgress)
				}
				if err := out.Emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "Synced %d, failed %d in %s\n", res.Synced, res.Failed, res.Duration.Round(time.Millisecond))
					if res.Interrupted {
						fmt.Fprintln(w, "Pass interrupted before all items were attempted")
					}
				}); err != nil {
					return err
				}
				if res.Failed > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d submissions failed to sync", res.Failed))
				}
				return nil
			})
		},
	}
}

// NewQuickSyncCommand creates the quick-sync command.
func NewQuickSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "quick-sync",
		Short:         "Mark every pending submission synced without delivery",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				res, err := svc.QuickSync(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "quick sync", err)
				}
				return out.Emit(res, func(w io.Writer) {
					fmt.Fprintln(w, res.Message)
					printStatus(w, res.Status)
				})
			})
		},
	}
}

// NewMarkSyncedCommand creates the mark-synced command.
func NewMarkSyncedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "mark-synced",
		Short:         "Force pending and failed submissions to synced",
		Long:          "Sets every pending or failed submission to synced with one attempt. No sync log is written.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				n, err := svc.MarkAllSynced(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "marking submissions synced", err)
				}
				return out.Emit(map[string]int{"marked": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Marked %d submissions as synced\n", n)
				})
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show sync counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				st, err := svc.SyncStatus(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "reading sync status", err)
				}
				return out.Emit(st, func(w io.Writer) { printStatus(w, st) })
			})
		},
	}
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "logs",
		Short:         "List recent sync passes, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				logs, err := svc.SyncLogs(ctx, limit)
				if err != nil {
					return WrapExitError(ExitFailure, "listing sync logs", err)
				}
				return out.Emit(map[string][]types.SyncLog{"logs": logs}, func(w io.Writer) {
					if len(logs) == 0 {
						fmt.Fprintln(w, "No sync passes recorded")
						return
					}
					for _, l := range logs {
						outcome := "ok"
						if !l.Success {
							outcome = "error: " + l.ErrorMessage
						}
						fmt.Fprintf(w, "%s  %-6s synced %d failed %d attempts %d  %.2fs  %s\n",
							l.Timestamp, l.SyncType, l.SubmissionsSync, l.SubmissionsFail,
							l.TotalAttempts, l.DurationSeconds, outcome)
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultLogLimit, "maximum number of passes to list")
	return cmd
}

func printStatus(w io.Writer, st reconcile.Status) {
	last := "never"
	if st.LastSync != nil {
		last = st.LastSync.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "pending %d  failed %d  synced %d  total %d  last sync %s\n",
		st.Pending, st.Failed, st.Synced, st.Total, last)
}
