package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loomstore/internal/recordlog"
)

// writeLog creates a log holding "abc" and "de", followed by extra raw bytes.
func writeLog(t *testing.T, dir string, extra []byte) string {
	t.Helper()

	path := filepath.Join(dir, "posts.bin")
	l, err := recordlog.Open(path, recordlog.Options{})
	require.NoError(t, err)
	require.NoError(t, l.AppendBatch([][]byte{[]byte("abc"), []byte("de")}))
	require.NoError(t, l.Close())

	if len(extra) > 0 {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.Write(extra)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	return path
}

func TestLogInspect_CleanLog(t *testing.T) {
	opts, dir := testOptions(t, "json")
	path := writeLog(t, dir, nil)

	out, err := execute(NewLogCommand(opts), "inspect", path)
	require.NoError(t, err)

	var got LogInspection
	decodeData(t, out, &got)
	assert.Equal(t, path, got.Path)
	assert.Equal(t, recordlog.Stats{Frames: 2, Bytes: 13, PayloadBytes: 5}, got.Stats)
}

func TestLogInspect_TornTailIsReportedNotRepaired(t *testing.T) {
	opts, dir := testOptions(t, "json")
	path := writeLog(t, dir, []byte{0x05, 0x00, 0x00, 0x00, 'x'})

	out, err := execute(NewLogCommand(opts), "inspect", path)
	require.NoError(t, err)

	var got LogInspection
	decodeData(t, out, &got)
	assert.Equal(t, 2, got.Frames)
	assert.Equal(t, int64(5), got.TornBytes)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(18), st.Size())
}

func TestLogInspect_Text(t *testing.T) {
	opts, dir := testOptions(t, "text")
	path := writeLog(t, dir, []byte{0x01})

	out, err := execute(NewLogCommand(opts), "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "frames:        2")
	assert.Contains(t, out, "torn bytes:    1")
}

func TestLogInspect_MissingFileIsEmpty(t *testing.T) {
	opts, dir := testOptions(t, "json")

	out, err := execute(NewLogCommand(opts), "inspect", filepath.Join(dir, "absent.bin"))
	require.NoError(t, err)

	var got LogInspection
	decodeData(t, out, &got)
	assert.Equal(t, recordlog.Stats{}, got.Stats)
}

func TestLogInspect_CorruptFrame(t *testing.T) {
	opts, dir := testOptions(t, "json")
	path := writeLog(t, dir, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00})

	out, err := execute(NewLogCommand(opts), "inspect", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, recordlog.ErrFrameTooLarge)

	cliErr := decodeError(t, out)
	assert.Equal(t, CodeCorruptLog, cliErr.Code)
	details, ok := cliErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(13), details["offset"])
}

func TestLogRepair_TruncatesTornTail(t *testing.T) {
	opts, dir := testOptions(t, "json")
	path := writeLog(t, dir, []byte{0x05, 0x00, 0x00, 0x00, 'x', 'y'})

	out, err := execute(NewLogCommand(opts), "repair", path)
	require.NoError(t, err)

	var got LogRepair
	decodeData(t, out, &got)
	assert.Equal(t, int64(6), got.Dropped)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(13), st.Size())

	out, err = execute(NewLogCommand(opts), "repair", path)
	require.NoError(t, err)
	decodeData(t, out, &got)
	assert.Equal(t, int64(0), got.Dropped)
}

func TestLogRepair_LeavesCorruptionAlone(t *testing.T) {
	opts, dir := testOptions(t, "text")
	path := writeLog(t, dir, []byte{0xFF, 0xFF, 0xFF, 0xFF})

	out, err := execute(NewLogCommand(opts), "repair", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+CodeCorruptLog+"]")

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), st.Size())
}

func TestLogInspect_RequiresFile(t *testing.T) {
	opts, _ := testOptions(t, "text")

	_, err := execute(NewLogCommand(opts), "inspect")
	require.Error(t, err)
}
