package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loomstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.DataDir, cfg.DataDir)
	assert.Equal(t, want.Flash, cfg.Flash)
	assert.Equal(t, want.RecordLog, cfg.RecordLog)
	assert.Equal(t, want.SQLite, cfg.SQLite)
	assert.Equal(t, want.Logging, cfg.Logging)
	assert.Equal(t, want.Metrics.SampleRate, cfg.Metrics.SampleRate)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/loom
flash:
  page_count: 4
  page_size: 4096
  enforce_flash_bits: true
record_log:
  durable: false
  max_frame_size: 1024
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/loom", cfg.DataDir)
	assert.Equal(t, 4, cfg.Flash.PageCount)
	assert.True(t, cfg.Flash.EnforceFlashBits)
	assert.True(t, cfg.Flash.Durable, "unset keys keep their defaults")
	assert.False(t, cfg.RecordLog.Durable)
	assert.Equal(t, 1024, cfg.RecordLog.MaxFrameSize)
	assert.Equal(t, "/var/lib/loom/flash.img", cfg.FlashPath())
	assert.Equal(t, "/var/lib/loom/records", cfg.RecordLogDir())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "flash:\n  page_count: 4\n")
	t.Setenv("LOOMSTORE_FLASH_PAGE_COUNT", "16")
	t.Setenv("LOOMSTORE_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Flash.PageCount)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "flash:\n  page_count: 0\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "page_count")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"tiny page", func(c *Config) { c.Flash.PageSize = 16 }, "page_size"},
		{"negative frame limit", func(c *Config) { c.RecordLog.MaxFrameSize = -1 }, "max_frame_size"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, "level"},
		{"sample rate above one", func(c *Config) { c.Metrics.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestResolve_AbsolutePathsKept(t *testing.T) {
	cfg := Default()
	cfg.SQLite.Path = "/tmp/other.db"
	assert.Equal(t, "/tmp/other.db", cfg.SQLitePath())
	assert.Equal(t, filepath.Join("./loomdata", "records"), cfg.RecordLogDir())
}

func TestMarshal(t *testing.T) {
	out, err := Default().Marshal()
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "page_count: 64")
	assert.Contains(t, s, "repair_torn_tail: true")
	assert.NotContains(t, s, "tags")
}
