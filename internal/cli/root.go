package cli

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/loomstore/internal/config"
	"github.com/roach88/loomstore/internal/logger"
	"github.com/roach88/loomstore/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the loomstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "loomstore",
		Short: "loomstore - device storage toolkit",
		Long: `Inspect and maintain the storage of a mesh messaging device.

loomstore operates on three layers:
- a virtual flash image addressed by page
- append-only record logs of length-prefixed frames
- the user, post and totem databases built on top of them`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewFlashCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Config loads the configuration once per invocation.
func (o *RootOptions) Config() (config.Config, error) {
	if o.cfg == nil {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.cfg = &cfg
	}
	return *o.cfg, nil
}

// formatter builds the output formatter for cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// env carries what a storage command needs once the config is loaded.
type env struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Recorder
	out     *OutputFormatter
}

// setup loads the config and builds the logger and metrics recorder.
// Logs go to stderr so they never mix with command output.
func (o *RootOptions) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if o.Verbose {
		logCfg.Level = zerolog.DebugLevel.String()
	}
	log := logger.New(logCfg, cmd.ErrOrStderr())

	rec, err := metrics.New(cfg.Metrics, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start metrics", err)
	}

	return &env{
		cfg:     cfg,
		log:     log,
		metrics: rec,
		out:     o.formatter(cmd),
	}, nil
}

func (e *env) close() {
	if err := e.metrics.Close(); err != nil {
		e.log.Warn().Err(err).Msg("closing metrics")
	}
}
