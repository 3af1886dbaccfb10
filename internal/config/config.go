package config

import (
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix is the prefix for environment overrides, e.g. LOOMSTORE_FLASH_PAGE_COUNT.
const EnvPrefix = "LOOMSTORE"

// ErrInvalid is returned when a configuration does not satisfy the schema.
var ErrInvalid = errors.New("invalid config")

// Config is the storage layer configuration. It is constructed once and
// passed explicitly to every component; nothing reads it from globals.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	Flash     FlashConfig     `mapstructure:"flash" yaml:"flash" json:"flash"`
	RecordLog RecordLogConfig `mapstructure:"record_log" yaml:"record_log" json:"record_log"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite" yaml:"sqlite" json:"sqlite"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// FlashConfig describes the virtual flash image.
type FlashConfig struct {
	Path             string `mapstructure:"path" yaml:"path" json:"path"`
	PageCount        int    `mapstructure:"page_count" yaml:"page_count" json:"page_count"`
	PageSize         int    `mapstructure:"page_size" yaml:"page_size" json:"page_size"`
	EnforceFlashBits bool   `mapstructure:"enforce_flash_bits" yaml:"enforce_flash_bits" json:"enforce_flash_bits"`
	Durable          bool   `mapstructure:"durable" yaml:"durable" json:"durable"`
}

// RecordLogConfig describes the per-entity record logs.
type RecordLogConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Durable        bool   `mapstructure:"durable" yaml:"durable" json:"durable"`
	MaxFrameSize   int    `mapstructure:"max_frame_size" yaml:"max_frame_size" json:"max_frame_size"`
	RepairTornTail bool   `mapstructure:"repair_torn_tail" yaml:"repair_torn_tail" json:"repair_torn_tail"`
}

// SQLiteConfig locates the SQL-backed database variant.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" json:"pretty"`
}

// MetricsConfig configures the statsd recorder.
type MetricsConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address    string   `mapstructure:"address" yaml:"address" json:"address"`
	Namespace  string   `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
	SampleRate float64  `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate"`
	Tags       []string `mapstructure:"tags" yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Default returns the configuration used when no file or override is given.
func Default() Config {
	return Config{
		DataDir: "./loomdata",
		Flash: FlashConfig{
			Path:      "flash.img",
			PageCount: 64,
			PageSize:  4096,
			Durable:   true,
		},
		RecordLog: RecordLogConfig{
			Dir:            "records",
			Durable:        true,
			MaxFrameSize:   64 << 10,
			RepairTornTail: true,
		},
		SQLite: SQLiteConfig{
			Path: "loom.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Address:    "localhost:8125",
			Namespace:  "loomstore.",
			SampleRate: 1,
		},
	}
}

// Load reads a YAML config file (optional) on top of the defaults, applies
// LOOMSTORE_* environment overrides and validates the result.
//
// An empty path loads defaults plus environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("flash.path", d.Flash.Path)
	v.SetDefault("flash.page_count", d.Flash.PageCount)
	v.SetDefault("flash.page_size", d.Flash.PageSize)
	v.SetDefault("flash.enforce_flash_bits", d.Flash.EnforceFlashBits)
	v.SetDefault("flash.durable", d.Flash.Durable)

	v.SetDefault("record_log.dir", d.RecordLog.Dir)
	v.SetDefault("record_log.durable", d.RecordLog.Durable)
	v.SetDefault("record_log.max_frame_size", d.RecordLog.MaxFrameSize)
	v.SetDefault("record_log.repair_torn_tail", d.RecordLog.RepairTornTail)

	v.SetDefault("sqlite.path", d.SQLite.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.pretty", d.Logging.Pretty)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.sample_rate", d.Metrics.SampleRate)
	v.SetDefault("metrics.tags", d.Metrics.Tags)
}

// Validate checks the config against the embedded CUE schema.
// The first violation is reported with its field path.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatSchemaError(err)
	}
	return nil
}

// formatSchemaError reduces a CUE error list to its first entry.
func formatSchemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	first := errs[0]
	path := strings.Join(first.Path(), ".")
	if path == "" {
		return fmt.Errorf("%w: %v", ErrInvalid, first)
	}
	return fmt.Errorf("%w: %s: %v", ErrInvalid, path, first)
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// FlashPath returns the flash image path, resolved against DataDir.
func (c Config) FlashPath() string { return c.resolve(c.Flash.Path) }

// RecordLogDir returns the record log directory, resolved against DataDir.
func (c Config) RecordLogDir() string { return c.resolve(c.RecordLog.Dir) }

// SQLitePath returns the SQLite database path, resolved against DataDir.
func (c Config) SQLitePath() string { return c.resolve(c.SQLite.Path) }

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
