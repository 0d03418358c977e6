package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/temporal/internal/compiler"
	"github.com/roach88/temporal/internal/ir"
)

// ModelsResult is the output of the models command.
type ModelsResult struct {
	Models    []ir.ModelSpec `json:"models"`
	FileCount int            `json:"file_count"`
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models [path]",
		Short: "Validate and list CUE model definitions",
		Long: `Compile the CUE models at path (default: --models) and report every
validation error found.

Exit codes:
  0 - All models valid
  1 - Validation errors
  2 - Command error (path not found, CUE syntax, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Models
			if len(args) == 1 {
				path = args[0]
			}
			return runModels(rootOpts, path, cmd)
		},
	}
}

func runModels(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, errs := LoadModels(path, LoadModeCollectAll)
	if result == nil {
		le := firstLoadError(errs)
		_ = formatter.Error(le.Code, le.Message, nil)
		return WrapExitError(ExitCommandError, "failed to load models", le)
	}
	if len(errs) > 0 {
		le := firstLoadError(errs)
		_ = formatter.Error(le.Code, le.Message, loadErrorMessages(errs))
		return WrapExitError(ExitFailure, "invalid models", le)
	}

	formatter.VerboseLog("Read %d CUE file(s) from %s", result.FileCount, path)

	reg, err := compiler.NewRegistry(result.Models...)
	if err != nil {
		reportValidation(formatter, err)
		return WrapExitError(ExitFailure, "invalid models", err)
	}

	models := make([]ir.ModelSpec, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		spec, _ := reg.Get(name)
		models = append(models, spec)
	}

	if formatter.Format == "json" {
		return formatter.Success(ModelsResult{Models: models, FileCount: result.FileCount})
	}
	writeModels(formatter.Writer, models)
	return nil
}

func firstLoadError(errs []error) *LoadError {
	var le *LoadError
	if len(errs) > 0 && errors.As(errs[0], &le) {
		return le
	}
	msg := "unknown error"
	if len(errs) > 0 {
		msg = errs[0].Error()
	}
	return &LoadError{Code: ErrCodeGeneric, Message: msg}
}

func loadErrorMessages(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// writeModels renders models as an aligned table.
func writeModels(w io.Writer, models []ir.ModelSpec) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPARENT\tTYPE\tTOLERANCE\tFIELDS")
	for _, m := range models {
		typeField, tolerance := "-", "default"
		if m.TypeField != "" {
			typeField = m.TypeField
		}
		if m.Tolerance > 0 {
			tolerance = m.Tolerance.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.ParentField, typeField, tolerance, formatFields(m.Fields))
	}
	tw.Flush()
}

func formatFields(fields map[string]ir.FieldType) string {
	if len(fields) == 0 {
		return "-"
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + string(fields[name])
	}
	return strings.Join(parts, ",")
}
