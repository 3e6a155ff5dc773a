package main

import (
	"os"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/cmd"
	"github.com/pyscout/core/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"pyscout",
		"Discover and inspect Python environments",
	)

	info := version.GetInfo()
	rootCmd.Version = info.Version
	cli.SetVersionTemplate(rootCmd, cli.VersionInfo{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		BuildArch: info.Platform,
	})

	// Add subcommands
	rootCmd.AddCommand(cmd.NewListCmd())
	rootCmd.AddCommand(cmd.NewResolveCmd())
	rootCmd.AddCommand(cmd.NewCondaInfoCmd())
	rootCmd.AddCommand(cmd.NewUseCmd())
	rootCmd.AddCommand(cmd.NewWatchCmd())
	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	cli.ApplyStyledHelpRecursive(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		cli.PrintError(rootCmd, err)
		os.Exit(1)
	}
}
