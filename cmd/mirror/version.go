package main

import (
	"fmt"

	"github.com/pysugar/workspace-mirror/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		}
		return printResult(info, fmt.Sprintf("mirror %s (%s, built %s)", version.Version, version.Commit, version.BuildTime))
	},
}
