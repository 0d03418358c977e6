package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/temporal/internal/compiler"
	"github.com/roach88/temporal/internal/harness"
	"github.com/roach88/temporal/internal/store"
	"github.com/roach88/temporal/internal/temporal"
)

// fixedClock pins the manager to the --now instant.
type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// session bundles what a record command needs: an open store, the
// manager on top of it and the output formatter.
type session struct {
	store     *store.Store
	manager   *temporal.Manager
	formatter *OutputFormatter
	logger    *slog.Logger
}

// openSession opens the database and builds the manager. Callers must
// call close.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := opts.logger()

	var clock temporal.Clock = temporal.SystemClock{}
	if opts.Now != "" {
		now, err := time.Parse(time.RFC3339Nano, opts.Now)
		if err != nil {
			_ = formatter.Error(ErrCodeBadInput, fmt.Sprintf("invalid --now %q: expected RFC 3339", opts.Now), nil)
			return nil, WrapExitError(ExitCommandError, "invalid --now", err)
		}
		clock = fixedClock(now.UTC())
	}

	managerOpts := []temporal.Option{
		temporal.WithTolerance(opts.Tolerance),
		temporal.WithLogger(logger),
	}

	if opts.Models != "" {
		if _, err := os.Stat(opts.Models); err == nil {
			reg, err := loadRegistry(opts.Models, formatter)
			if err != nil {
				return nil, err
			}
			formatter.VerboseLog("Loaded %d model(s) from %s", len(reg.Names()), opts.Models)
			managerOpts = append(managerOpts, temporal.WithModels(reg))
		} else {
			logger.Debug("models path not found, skipping model validation", "path", opts.Models)
		}
	}

	st, err := store.Open(opts.DB, store.WithLogger(logger))
	if err != nil {
		_ = formatter.Error(ErrCodeStore, fmt.Sprintf("failed to open database %s: %v", opts.DB, err), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	formatter.VerboseLog("Opened %s", opts.DB)

	return &session{
		store:     st,
		manager:   temporal.New(st, clock, managerOpts...),
		formatter: formatter,
		logger:    logger,
	}, nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close database", "error", err)
	}
}

// loadRegistry compiles the models at path and reports failures.
func loadRegistry(path string, formatter *OutputFormatter) (*compiler.Registry, error) {
	result, errs := LoadModels(path, LoadModeFailFast)
	if len(errs) > 0 {
		code, msg := ErrCodeGeneric, errs[0].Error()
		var le *LoadError
		if errors.As(errs[0], &le) {
			code, msg = le.Code, le.Message
		}
		_ = formatter.Error(code, msg, nil)
		return nil, WrapExitError(ExitCommandError, "failed to load models", errs[0])
	}
	reg, err := compiler.NewRegistry(result.Models...)
	if err != nil {
		reportValidation(formatter, err)
		return nil, WrapExitError(ExitCommandError, "invalid models", err)
	}
	return reg, nil
}

// fail reports err in the configured format and maps it to an exit code.
// Refused requests exit 1; infrastructure errors exit 2.
func (s *session) fail(err error) error {
	var le *temporal.LifecycleError
	if errors.As(err, &le) {
		return s.formatter.LifecycleFailure(le)
	}
	if errors.Is(err, temporal.ErrNotFound) {
		_ = s.formatter.Error(ErrCodeNoRecord, err.Error(), nil)
		return WrapExitError(ExitFailure, "record not found", err)
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		reportValidation(s.formatter, err)
		return WrapExitError(ExitFailure, "record does not match its model", err)
	}
	_ = s.formatter.Error(ErrCodeStore, err.Error(), nil)
	return WrapExitError(ExitCommandError, "request failed", err)
}

// reportValidation prints model validation errors with the first code.
func reportValidation(formatter *OutputFormatter, err error) {
	var verrs compiler.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return
	}
	_ = formatter.Error(verrs[0].Code, verrs[0].Message, []compiler.ValidationError(verrs))
}

// parseInstant accepts "now", "now+1h", "now-5s" or an RFC 3339 timestamp.
func parseInstant(expr string, now time.Time) (time.Time, error) {
	return harness.ParseInstant(expr, now, now)
}
