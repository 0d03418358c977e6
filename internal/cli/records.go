package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/temporal/internal/harness"
	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/temporal"
)

// groupFlags are the flags addressing a temporal group.
type groupFlags struct {
	Model      string
	ParentID   string
	ParentType string
}

func (g *groupFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&g.Model, "model", "", "model name (required)")
	cmd.Flags().StringVar(&g.ParentID, "parent-id", "", "parent id (required)")
	cmd.Flags().StringVar(&g.ParentType, "parent-type", "", "parent type for polymorphic models")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("parent-id")
}

func (g *groupFlags) key() ir.GroupKey {
	return ir.GroupKey{Model: g.Model, ParentID: g.ParentID, ParentType: g.ParentType}
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Group   groupFlags
	Start   string
	End     string
	Payload string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record in a temporal group",
		Long: `Create a record valid over [start, end).

An open-ended record supersedes siblings scheduled after now; a record
with an end supersedes the siblings it overlaps. The record valid now is
closed at the new record's start.

Examples:
  temporal create --model price --parent-id p1 --payload '{"cents":100}'
  temporal create --model price --parent-id p1 --start now+1h --end now+2h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	opts.Group.register(cmd)
	cmd.Flags().StringVar(&opts.Start, "start", "now", "valid_start (now, now+1h, or RFC 3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "valid_end; empty for open-ended")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "payload as a JSON object")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	now := s.manager.Now()
	cand := ir.Record{Group: opts.Group.key()}
	if cand.ValidStart, err = parseInstant(opts.Start, now); err != nil {
		return s.badInput("--start", err)
	}
	if opts.End != "" {
		end, err := parseInstant(opts.End, now)
		if err != nil {
			return s.badInput("--end", err)
		}
		cand.ValidEnd = &end
	}
	if cand.Payload, err = ir.ParseObject(opts.Payload); err != nil {
		return s.badInput("--payload", err)
	}

	rec, err := s.manager.Create(cmd.Context(), cand)
	if err != nil {
		return s.fail(err)
	}
	return s.formatter.Success(rec)
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Changes string
	Check   bool
}

// UpdateCheck is the output of update --check.
type UpdateCheck struct {
	ID      string `json:"id"`
	Allowed bool   `json:"allowed"`
}

func (c UpdateCheck) String() string {
	if c.Allowed {
		return fmt.Sprintf("%s: update allowed", c.ID)
	}
	return fmt.Sprintf("%s: update not allowed", c.ID)
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Request changes to a record",
		Long: `Request changes to a record.

Unless unrestricted updates are enabled on the record, only valid_end may
change, only while the record has not ended, and never to before now
minus the tolerance. Set valid_end to null to make the record open-ended.

Examples:
  temporal update rec-1 --changes '{"valid_end":"now+1h"}'
  temporal update rec-1 --changes '{"payload.cents":120}' --check`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Changes, "changes", "", "changes as a JSON object (required)")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "only report whether the update would be allowed")
	_ = cmd.MarkFlagRequired("changes")

	return cmd
}

func runUpdate(opts *UpdateOptions, id string, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	changes, err := decodeChanges(opts.Changes, s.manager.Now())
	if err != nil {
		return s.badInput("--changes", err)
	}

	if opts.Check {
		ok, err := s.manager.CanUpdate(cmd.Context(), id, changes)
		if err != nil {
			return s.fail(err)
		}
		if err := s.formatter.Success(UpdateCheck{ID: id, Allowed: ok}); err != nil {
			return err
		}
		if !ok {
			return NewExitError(ExitFailure, "update not allowed")
		}
		return nil
	}

	rec, err := s.manager.RequestUpdate(cmd.Context(), id, changes)
	if err != nil {
		return s.fail(err)
	}
	return s.formatter.Success(rec)
}

// DeleteResult is the output of the delete command.
type DeleteResult struct {
	ID         string              `json:"id"`
	Resolution temporal.Resolution `json:"resolution"`
}

func (r DeleteResult) String() string {
	return fmt.Sprintf("%s: %s", r.ID, r.Resolution)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Request deletion of a record",
		Long: `Request deletion of a record.

A record that has not started yet is removed. A record valid now is ended
now. A record that already ended is left unchanged.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.manager.RequestDelete(cmd.Context(), args[0])
			if err != nil {
				return s.fail(err)
			}
			return s.formatter.Success(DeleteResult{ID: args[0], Resolution: res})
		},
	}
}

// NewEnableUpdatesCommand creates the enable-updates command.
func NewEnableUpdatesCommand(rootOpts *RootOptions) *cobra.Command {
	return newToggleCommand(rootOpts, "enable-updates", "Allow unrestricted updates on a record",
		(*temporal.Manager).EnableUnrestrictedUpdates)
}

// NewDisableUpdatesCommand creates the disable-updates command.
func NewDisableUpdatesCommand(rootOpts *RootOptions) *cobra.Command {
	return newToggleCommand(rootOpts, "disable-updates", "Restore the update allow-list on a record",
		(*temporal.Manager).DisableUnrestrictedUpdates)
}

func newToggleCommand(rootOpts *RootOptions, use, short string,
	toggle func(*temporal.Manager, context.Context, string) (ir.Record, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			rec, err := toggle(s.manager, cmd.Context(), args[0])
			if err != nil {
				return s.fail(err)
			}
			return s.formatter.Success(rec)
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			rec, err := s.manager.Get(cmd.Context(), args[0])
			if err != nil {
				return s.fail(err)
			}
			return s.formatter.Success(rec)
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Group   groupFlags
	At      string
	Valid   bool
	Invalid bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of a temporal group",
		Long: `List the records of a temporal group ordered by valid_start.

Without --valid or --invalid the whole timeline is listed.

Examples:
  temporal list --model price --parent-id p1
  temporal list --model price --parent-id p1 --valid --at 2024-03-01T12:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	opts.Group.register(cmd)
	cmd.Flags().StringVar(&opts.At, "at", "now", "reference instant for --valid and --invalid")
	cmd.Flags().BoolVar(&opts.Valid, "valid", false, "only records valid at --at")
	cmd.Flags().BoolVar(&opts.Invalid, "invalid", false, "only records not valid at --at")
	cmd.MarkFlagsMutuallyExclusive("valid", "invalid")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	at, err := parseInstant(opts.At, s.manager.Now())
	if err != nil {
		return s.badInput("--at", err)
	}

	key := opts.Group.key()
	var records []ir.Record
	switch {
	case opts.Valid:
		records, err = s.manager.ValidAt(cmd.Context(), key, at)
	case opts.Invalid:
		records, err = s.manager.InvalidAt(cmd.Context(), key, at)
	default:
		records, err = s.manager.History(cmd.Context(), key)
	}
	if err != nil {
		return s.fail(err)
	}
	if records == nil {
		records = []ir.Record{}
	}
	return s.formatter.Success(records)
}

// badInput reports a malformed flag value.
func (s *session) badInput(flag string, err error) error {
	_ = s.formatter.Error(ErrCodeBadInput, fmt.Sprintf("invalid %s: %v", flag, err), nil)
	return WrapExitError(ExitCommandError, "invalid "+flag, err)
}

// decodeJSONObject decodes a JSON object keeping numbers exact.
func decodeJSONObject(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return m, nil
}

// decodeChanges turns a JSON changes object into an ir.Changes set.
// valid_start and valid_end take instant expressions and valid_end may be
// null. Keys prefixed with "payload." take any JSON value.
func decodeChanges(data string, now time.Time) (ir.Changes, error) {
	raw, err := decodeJSONObject(data)
	if err != nil {
		return nil, err
	}
	return harness.ConvertChanges(raw, now, now)
}
