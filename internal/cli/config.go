package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(newConfigShowCommand(rootOpts))

	return cmd
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults and overrides",
		Long: `Print the configuration loaded from --config, with defaults filled in
and LOOMSTORE_* environment overrides applied (e.g. LOOMSTORE_FLASH_PAGE_COUNT).`,
		Example: `  loomstore config show --config ./loomstore.yaml
  LOOMSTORE_DATA_DIR=/mnt/sd loomstore config show --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(rootOpts, cmd)
		},
	}
}

func runConfigShow(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	if out.Format == "json" {
		return out.Success(cfg)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render config", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
