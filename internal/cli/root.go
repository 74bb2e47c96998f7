// Package cli implements the fieldctl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/floodwatch/internal/app"
	"github.com/okian/floodwatch/internal/config"
	"github.com/okian/floodwatch/pkg/logger"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

const stopTimeout = 10 * time.Second

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON}

// Opener builds a started service for one command. The returned func stops it.
type Opener func(ctx context.Context, verbose bool) (*service.Service, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string
	Open    Opener
}

// NewRootCommand creates the fieldctl root command. A nil open uses OpenConfigured.
func NewRootCommand(open Opener) *cobra.Command {
	return newRoot(&RootOptions{Open: open})
}

func newRoot(opts *RootOptions) *cobra.Command {
	if opts.Open == nil {
		opts.Open = OpenConfigured
	}

	cmd := &cobra.Command{
		Use:   "fieldctl",
		Short: "Operate the floodwatch field store",
		Long: "fieldctl seeds, analyzes and syncs the local water-level submission store.\n" +
			"Configuration comes from FLOODWATCH_CONFIG and FLOODWATCH_* variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (json|text)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewAgentCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewQuickSyncCommand(opts))
	cmd.AddCommand(NewMarkSyncedCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))

	return cmd
}

// Execute runs fieldctl with args and returns the process exit code.
// Failures are reported on stderr, or on stdout as an envelope in json mode.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, open Opener) int {
	opts := &RootOptions{Open: open}
	cmd := newRoot(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	if !isValidFormat(out.Format) {
		out.Format = FormatText
	}
	_ = out.Error(errorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

// OpenConfigured loads configuration, sends logs to stderr and starts a
// service without the background sync loop.
func OpenConfigured(ctx context.Context, verbose bool) (*service.Service, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading configuration", err)
	}
	cfg.BackgroundSync = false

	if err := logger.InitWithWriter(os.Stderr); err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		_ = logger.SetLevelString("info")
	}

	svc := service.New(cfg, service.WithLogger(logger.Named("fieldctl")))
	if err := svc.Start(ctx); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "starting service", err)
	}
	return svc, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			logger.Get().Warn(stopCtx, "service stop failed", logger.Error(err))
		}
	}, nil
}

// run opens the service and hands it to fn with a formatter bound to cmd.
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, stop, err := o.Open(ctx, o.Verbose)
	if err != nil {
		return err
	}
	defer stop()
	return fn(ctx, svc, &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	})
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
