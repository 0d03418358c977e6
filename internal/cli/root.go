package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/temporal/internal/config"
	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string        // "json" | "text"
	DB        string        // SQLite database path
	Models    string        // CUE model file or directory
	Now       string        // clock override (RFC 3339), empty for the wall clock
	Tolerance time.Duration // manager default tolerance

	LogLevel slog.Level
	OTel     config.OTel

	// Logger is installed by the root command; nil discards.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the temporal CLI. Flag
// defaults come from TEMPORAL_* environment variables.
func NewRootCommand() *cobra.Command {
	conf, err := config.Parse()
	if err != nil {
		defaults, _ := config.ParseEnvironment(map[string]string{})
		cmd := NewRootCommandWithConfig(defaults)
		cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
			return WrapExitError(ExitCommandError, "invalid environment", err)
		}
		return cmd
	}
	return NewRootCommandWithConfig(conf)
}

// shutdownTelemetry flushes exporters once the command returns.
var shutdownTelemetry = telemetry.Shutdown

// Execute runs cmd and flushes telemetry whether or not the command failed.
func Execute(cmd *cobra.Command) error {
	defer shutdownTelemetry(context.Background())
	return cmd.Execute()
}

// NewRootCommandWithConfig creates the root command with explicit defaults.
func NewRootCommandWithConfig(conf *config.Config) *cobra.Command {
	opts := &RootOptions{
		LogLevel: conf.Logger.Level,
		OTel:     conf.OTel,
	}

	cmd := &cobra.Command{
		Use:   "temporal",
		Short: "temporal - valid-time lifecycle manager",
		Long: `Manage versioned records that carry a [valid_start, valid_end) interval.

New records close or supersede their siblings, updates are restricted to
moving valid_end, and deletes of records that already took effect end them
instead of removing history.`,
		Version: ir.ManagerVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Tolerance < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid tolerance %s: must not be negative", opts.Tolerance))
			}

			level := opts.LogLevel
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			if err := telemetry.Init(cmd.Context(), "temporal", ir.ManagerVersion, telemetry.Options{
				Enabled: opts.OTel.Enabled,
				Stdout:  opts.OTel.Stdout,
			}); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialise telemetry", err)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", conf.Format, "output format (json|text)")
	flags.StringVar(&opts.DB, "db", conf.DB, "SQLite database path")
	flags.StringVar(&opts.Models, "models", conf.Models, "CUE model file or directory (skipped if missing)")
	flags.StringVar(&opts.Now, "now", "", "evaluate at this instant (RFC 3339) instead of the wall clock")
	flags.DurationVar(&opts.Tolerance, "tolerance", conf.Tolerance, "default past-start tolerance")

	// Add subcommands
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewEnableUpdatesCommand(opts))
	cmd.AddCommand(NewDisableUpdatesCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewModelsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// logger returns the configured logger or a discarding one.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
