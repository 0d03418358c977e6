package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/temporal"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Refused request or failed scenarios
	ExitCommandError = 2 // Command error (invalid flags, unreadable database, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "INVALID_DATE_RANGE", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	switch v := data.(type) {
	case ir.Record:
		writeRecords(f.Writer, []ir.Record{v})
	case []ir.Record:
		if len(v) == 0 {
			fmt.Fprintln(f.Writer, "No records.")
			return nil
		}
		writeRecords(f.Writer, v)
	default:
		fmt.Fprintln(f.Writer, data)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// LifecycleFailure reports a refused request and returns the matching
// exit error.
func (f *OutputFormatter) LifecycleFailure(le *temporal.LifecycleError) error {
	details := map[string]string{}
	for k, v := range le.Details {
		details[k] = v
	}
	if le.RecordID != "" {
		details["record_id"] = le.RecordID
	}
	if le.Group.Model != "" {
		details["group"] = le.Group.String()
	}
	if len(details) == 0 {
		details = nil
	}
	if err := f.Error(string(le.Code), le.Message, details); err != nil {
		return err
	}
	return WrapExitError(ExitFailure, "request refused", le)
}

// writeRecords renders records as an aligned table.
func writeRecords(w io.Writer, records []ir.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGROUP\tVALID_START\tVALID_END\tUPDATES\tPAYLOAD")
	for _, r := range records {
		updates := "restricted"
		if r.UpdatesEnabled {
			updates = "enabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Group, formatInstant(r.ValidStart), formatEnd(r.ValidEnd), updates, formatPayload(r.Payload))
	}
	tw.Flush()
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatEnd(end *time.Time) string {
	if end == nil {
		return "open"
	}
	return formatInstant(*end)
}

func formatPayload(p ir.Object) string {
	if len(p) == 0 {
		return "{}"
	}
	data, err := ir.MarshalCanonical(p)
	if err != nil {
		return strings.TrimSpace(fmt.Sprint(ir.ToAny(p)))
	}
	return string(data)
}
