package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "loomstore", cmd.Use)
	assert.Contains(t, cmd.Long, "record logs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"flash", "info"},
		{"flash", "erase"},
		{"flash", "read"},
		{"flash", "write"},
		{"log", "inspect"},
		{"log", "repair"},
		{"db", "users"},
		{"db", "posts"},
		{"db", "totems"},
		{"db", "get"},
		{"db", "range"},
		{"db", "add-user"},
		{"db", "add-totem"},
		{"db", "add-post"},
		{"db", "mirror"},
		{"config", "show"},
	}

	for _, path := range commands {
		t.Run(path[0]+"_"+path[1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[1], subCmd.Name())
		})
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
	assert.Equal(t, "", configFlag.DefValue)
}

func TestDBCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	usersCmd, _, err := cmd.Find([]string{"db", "users"})
	require.NoError(t, err)
	limitFlag := usersCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "0", limitFlag.DefValue)

	mirrorCmd, _, err := cmd.Find([]string{"db", "mirror"})
	require.NoError(t, err)
	assert.NotNil(t, mirrorCmd.Flags().Lookup("sqlite"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_RunsSubcommandWithConfig(t *testing.T) {
	opts, _ := testOptions(t, "json")

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", opts.ConfigPath, "--format", "json", "flash", "info"})

	require.NoError(t, cmd.Execute())

	var info FlashInfo
	decodeData(t, buf.String(), &info)
	assert.Equal(t, 4, info.PageCount)
}

// Helpers

// testOptions writes a config rooted in a temp dir: a 4 x 256 flash image
// with bit enforcement, non-durable writes and logging disabled.
func testOptions(t *testing.T, format string) (*RootOptions, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "loomstore.yaml")
	content := fmt.Sprintf(`data_dir: %q
flash:
  page_count: 4
  page_size: 256
  enforce_flash_bits: true
  durable: false
record_log:
  durable: false
logging:
  level: disabled
`, dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return &RootOptions{Format: format, ConfigPath: path}, dir
}

// execute runs cmd with args and returns its stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData unpacks the data of an ok JSON response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()

	var resp struct {
		Status string
		Data   json.RawMessage
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status, "output: %s", out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// decodeError unpacks an error JSON response.
func decodeError(t *testing.T, out string) CLIError {
	t.Helper()

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "error", resp.Status, "output: %s", out)
	require.NotNil(t, resp.Error)
	return *resp.Error
}
