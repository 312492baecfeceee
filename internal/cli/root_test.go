package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "recon", cmd.Use)
	assert.Contains(t, cmd.Long, "event streams")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"modules", "fields", "check", "fix", "serve", "events", "docs", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestSubcommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"events", "append"},
		{"events", "import"},
		{"events", "show"},
		{"events", "streams"},
		{"docs", "put"},
		{"docs", "get"},
		{"docs", "delete"},
		{"docs", "list"},
	}

	for _, path := range paths {
		subCmd, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[1], subCmd.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "read-model", "concurrency", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestCheckCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"check", "fix"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		for _, flag := range []string{"all", "filter", "since", "until", "fields", "report"} {
			assert.NotNil(t, sub.Flags().Lookup(flag), "%s --%s", name, flag)
		}
		assert.Equal(t, "false", sub.Flags().Lookup("all").DefValue)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	addrFlag := serveCmd.Flags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, "", addrFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
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
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "modules"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogFormatValidation(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--log-format", "xml", "modules"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestConcurrencyValidation(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--concurrency", "-1", "modules"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
