package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashInfo_CreatesErasedImage(t *testing.T) {
	opts, dir := testOptions(t, "json")

	out, err := execute(NewFlashCommand(opts), "info")
	require.NoError(t, err)

	var info FlashInfo
	decodeData(t, out, &info)
	assert.Equal(t, filepath.Join(dir, "flash.img"), info.Path)
	assert.Equal(t, 4, info.PageCount)
	assert.Equal(t, 256, info.PageSize)
	assert.Equal(t, int64(1024), info.Size)
	assert.Equal(t, 4, info.ErasedPages)
	require.Len(t, info.Pages, 4)
	for _, p := range info.Pages {
		assert.True(t, p.Erased)
		assert.Len(t, p.Digest, 16)
	}
	// Identical contents, identical digests.
	assert.Equal(t, info.Pages[0].Digest, info.Pages[3].Digest)

	st, err := os.Stat(info.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), st.Size())
}

func TestFlashInfo_Text(t *testing.T) {
	opts, _ := testOptions(t, "text")

	out, err := execute(NewFlashCommand(opts), "info")
	require.NoError(t, err)
	assert.Contains(t, out, "4 pages x 256 bytes")
	assert.Contains(t, out, "4 erased")
	assert.Contains(t, out, "page    0  erased")
}

func TestFlashWriteThenRead(t *testing.T) {
	opts, _ := testOptions(t, "json")

	_, err := execute(NewFlashCommand(opts), "write", "1", "a55a", "--offset", "2")
	require.NoError(t, err)

	out, err := execute(NewFlashCommand(opts), "read", "1", "--offset", "1", "--length", "4")
	require.NoError(t, err)

	var data FlashData
	decodeData(t, out, &data)
	assert.Equal(t, 1, data.Page)
	assert.Equal(t, 1, data.Offset)
	assert.Equal(t, "ffa55aff", data.Data)

	out, err = execute(NewFlashCommand(opts), "info")
	require.NoError(t, err)
	var info FlashInfo
	decodeData(t, out, &info)
	assert.Equal(t, 3, info.ErasedPages)
	assert.False(t, info.Pages[1].Erased)
}

func TestFlashRead_DefaultsToRestOfPage(t *testing.T) {
	opts, _ := testOptions(t, "json")

	out, err := execute(NewFlashCommand(opts), "read", "0", "--offset", "250")
	require.NoError(t, err)

	var data FlashData
	decodeData(t, out, &data)
	assert.Equal(t, "ffffffffffff", data.Data)
}

func TestFlashRead_TextDump(t *testing.T) {
	opts, _ := testOptions(t, "text")

	out, err := execute(NewFlashCommand(opts), "read", "0", "--length", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "page 0 offset 0 (4 bytes)")
	assert.Contains(t, out, "ff ff ff ff")
}

func TestFlashWrite_BitViolationIsRejected(t *testing.T) {
	opts, _ := testOptions(t, "json")

	_, err := execute(NewFlashCommand(opts), "write", "2", "0f")
	require.NoError(t, err)

	out, err := execute(NewFlashCommand(opts), "write", "2", "f0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "flash write rejected")
	assert.Equal(t, CodeFlashViolated, decodeError(t, out).Code)

	// Clearing further bits is allowed.
	_, err = execute(NewFlashCommand(opts), "write", "2", "05")
	require.NoError(t, err)
}

func TestFlashErase_RestoresPage(t *testing.T) {
	opts, _ := testOptions(t, "json")

	_, err := execute(NewFlashCommand(opts), "write", "3", "00")
	require.NoError(t, err)

	out, err := execute(NewFlashCommand(opts), "erase", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Erased 1 page(s)")

	// Previously cleared bits can be programmed again.
	_, err = execute(NewFlashCommand(opts), "write", "3", "f0")
	require.NoError(t, err)

	out, err = execute(NewFlashCommand(opts), "erase", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Erased 4 page(s)")
}

func TestFlashErase_RequiresPagesOrAll(t *testing.T) {
	opts, _ := testOptions(t, "text")

	_, err := execute(NewFlashCommand(opts), "erase")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(NewFlashCommand(opts), "erase", "1", "--all")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlash_OutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"read_page", []string{"read", "4"}},
		{"read_length", []string{"read", "0", "--offset", "200", "--length", "100"}},
		{"write_page", []string{"write", "7", "00"}},
		{"write_past_page_end", []string{"write", "0", "0000", "--offset", "255"}},
		{"erase_page", []string{"erase", "9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, _ := testOptions(t, "json")

			out, err := execute(NewFlashCommand(opts), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, err.Error(), "out of bounds")
			assert.Equal(t, CodeFlashViolated, decodeError(t, out).Code)
		})
	}
}

func TestFlash_InvalidArguments(t *testing.T) {
	opts, _ := testOptions(t, "text")

	_, err := execute(NewFlashCommand(opts), "write", "0", "not-hex")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid hex data")

	_, err = execute(NewFlashCommand(opts), "read", "first")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid page")
}
