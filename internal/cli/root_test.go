package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/temporal/internal/config"
)

func newTestRoot(t *testing.T, vars map[string]string) *cobra.Command {
	t.Helper()
	conf, err := config.ParseEnvironment(vars)
	require.NoError(t, err)
	return NewRootCommandWithConfig(conf)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "temporal", cmd.Use)
	assert.Contains(t, cmd.Long, "valid_start")
	assert.NotEmpty(t, cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := newTestRoot(t, nil)
	commands := []string{
		"create", "update", "delete", "enable-updates", "disable-updates",
		"show", "list", "models", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newTestRoot(t, nil)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "temporal.db", dbFlag.DefValue)

	toleranceFlag := cmd.PersistentFlags().Lookup("tolerance")
	require.NotNil(t, toleranceFlag)
	assert.Equal(t, (5 * time.Second).String(), toleranceFlag.DefValue)

	nowFlag := cmd.PersistentFlags().Lookup("now")
	require.NotNil(t, nowFlag)
	assert.Equal(t, "", nowFlag.DefValue)
}

func TestFlagDefaultsFromEnvironment(t *testing.T) {
	cmd := newTestRoot(t, map[string]string{
		"TEMPORAL_DB":        "/var/lib/temporal.db",
		"TEMPORAL_FORMAT":    "json",
		"TEMPORAL_TOLERANCE": "1m",
	})

	assert.Equal(t, "/var/lib/temporal.db", cmd.PersistentFlags().Lookup("db").DefValue)
	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.Equal(t, time.Minute.String(), cmd.PersistentFlags().Lookup("tolerance").DefValue)
}

func TestCreateCommandFlags(t *testing.T) {
	cmd := newTestRoot(t, nil)
	createCmd, _, err := cmd.Find([]string{"create"})
	require.NoError(t, err)

	for _, name := range []string{"model", "parent-id", "parent-type", "start", "end", "payload"} {
		assert.NotNil(t, createCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "now", createCmd.Flags().Lookup("start").DefValue)
	assert.Equal(t, "{}", createCmd.Flags().Lookup("payload").DefValue)
}

func TestUpdateCommandFlags(t *testing.T) {
	cmd := newTestRoot(t, nil)
	updateCmd, _, err := cmd.Find([]string{"update"})
	require.NoError(t, err)

	require.NotNil(t, updateCmd.Flags().Lookup("changes"))
	checkFlag := updateCmd.Flags().Lookup("check")
	require.NotNil(t, checkFlag)
	assert.Equal(t, "false", checkFlag.DefValue)
}

func TestListCommandFlags(t *testing.T) {
	cmd := newTestRoot(t, nil)
	listCmd, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)

	for _, name := range []string{"model", "parent-id", "parent-type", "at", "valid", "invalid"} {
		assert.NotNil(t, listCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := newTestRoot(t, nil)
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := newTestRoot(t, nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "show", "rec-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNegativeToleranceRejected(t *testing.T) {
	cmd := newTestRoot(t, nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--tolerance", "-1s", "show", "rec-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tolerance")
}

func TestExecuteShutsDownTelemetryOnFailure(t *testing.T) {
	calls := 0
	orig := shutdownTelemetry
	shutdownTelemetry = func(context.Context) { calls++ }
	t.Cleanup(func() { shutdownTelemetry = orig })

	root := newTestRoot(t, nil)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(*cobra.Command, []string) error {
			return NewExitError(ExitFailure, "refused")
		},
	})

	root.SetArgs([]string{"fail"})
	err := Execute(root)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, 1, calls)
}
