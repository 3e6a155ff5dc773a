package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/config"
	"github.com/pyscout/core/tui/theme"
)

// NewConfigCmd creates the `config` command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate pyscout configuration",
	}

	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for pyscout.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Validates the given configuration file against the pyscout schema.
Without an argument, validates the configuration that would be loaded
from the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			var cfg *config.Config
			var err error
			switch {
			case len(args) == 1:
				cfg, err = config.Load(args[0])
			case opts.ConfigFile != "":
				cfg, err = config.Load(opts.ConfigFile)
			default:
				cfg, err = config.LoadDefault()
			}
			if err != nil {
				return handler.Handle(err)
			}

			if err := cfg.Validate(); err != nil {
				return handler.Handle(err)
			}

			t := theme.DefaultTheme
			source := cfg.Path()
			if source == "" {
				source = "defaults"
			}
			fmt.Println(t.Success.Render("✓") + " " + source + " is valid")
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			settings, err := cli.LoadSettings(cmd)
			if err != nil {
				return handler.Handle(err)
			}

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(settings)
		},
	}
}
