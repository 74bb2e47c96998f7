package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/floodwatch/internal/app"
)

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "analyze <submission-id>",
		Short:         "Score one submission against the tamper rules",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				res, err := svc.Analyze(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("analyzing submission %d", id), err)
				}
				return out.Emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "Submission %d: score %.2f (%s)\n", res.SubmissionID, res.TamperScore, res.TamperStatus)
					for _, d := range res.Detections {
						fmt.Fprintf(w, "  %-22s %-8s %.2f  %s\n", d.Type, d.Severity, d.ConfidenceScore, d.Description)
					}
				})
			})
		},
	}
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(opts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:           "batch",
		Short:         "Re-score recent submissions",
		Long:          "Re-scores every submission from the trailing days except confirmed tamper.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return NewExitError(ExitCommandError, "--days must not be negative")
			}
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				res, err := svc.RunBatch(ctx, days)
				if err != nil {
					return WrapExitError(ExitFailure, "running batch analysis", err)
				}
				return out.Emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "Analyzed %d submissions, %d suspicious, %d failed\n",
						res.TotalAnalyzed, res.SuspiciousFound, res.Failed)
					for _, k := range sortedKeys(res.DetectionsByType) {
						fmt.Fprintf(w, "  %-22s %d\n", k, res.DetectionsByType[k])
					}
					for _, k := range sortedKeys(res.DetectionsBySeverity) {
						fmt.Fprintf(w, "  %-22s %d\n", k, res.DetectionsBySeverity[k])
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "trailing window in days (0 uses batch_days)")
	return cmd
}

// NewAgentCommand creates the agent command.
func NewAgentCommand(opts *RootOptions) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:           "agent <user-id>",
		Short:         "Summarize an agent's recent tamper scores",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if hours < 0 {
				return NewExitError(ExitCommandError, "--window-hours must not be negative")
			}
			return opts.run(cmd, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				rep, err := svc.AgentBehavior(ctx, id, time.Duration(hours)*time.Hour)
				if err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("monitoring agent %d", id), err)
				}
				return out.Emit(rep, func(w io.Writer) {
					fmt.Fprintf(w, "Agent %d: %s\n", rep.UserID, rep.Status)
					if rep.Message != "" {
						fmt.Fprintf(w, "  %s\n", rep.Message)
						return
					}
					fmt.Fprintf(w, "  submissions %d, avg score %.2f, suspicious %d (%.0f%%)\n",
						rep.TotalSubmissions, rep.AvgTamperScore, rep.SuspiciousCount, rep.SuspiciousRatio*100)
				})
			})
		},
	}

	cmd.Flags().IntVar(&hours, "window-hours", 0, "trailing window in hours (0 uses agent_window_hours)")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q: must be a positive integer", s))
	}
	return id, nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
